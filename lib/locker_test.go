//----------------------------------------------------------------------
// This file is part of 'coinapi'.
// Copyright (C) 2024, Bernd Fix >Y<
//
// 'coinapi' is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// 'coinapi' is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package lib

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddrLockerSerializes(t *testing.T) {
	locker := NewAddrLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counter int
		max     int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := locker.Lock("BTC_addr")
			defer locker.Unlock(keys)
			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()
			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, max)
}

func TestAddrLockerOrdering(t *testing.T) {
	locker := NewAddrLocker()
	// duplicate keys collapse; order is canonical
	keys := locker.Lock("b", "a", "b", "a")
	require.Equal(t, []string{"a", "b"}, keys)
	locker.Unlock(keys)

	// opposite acquisition order cannot deadlock
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var keys []string
			if i%2 == 0 {
				keys = locker.Lock("x", "y")
			} else {
				keys = locker.Lock("y", "x")
			}
			locker.Unlock(keys)
		}(i)
	}
	wg.Wait()
}
