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
	"sort"
	"sync"
)

// AddrLocker serializes balance-changing operations per address.
// Multi-key acquisition locks in sorted order so two concurrent batches
// touching the same addresses cannot deadlock.
type AddrLocker struct {
	lock  sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAddrLocker creates an empty locker.
func NewAddrLocker() *AddrLocker {
	return &AddrLocker{
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *AddrLocker) mutex(key string) *sync.Mutex {
	l.lock.Lock()
	defer l.lock.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = new(sync.Mutex)
		l.locks[key] = m
	}
	return m
}

// Lock acquires the mutexes for all given keys (deduplicated, sorted).
// Returns the ordered key set to pass to Unlock.
func (l *AddrLocker) Lock(keys ...string) []string {
	uniq := make(map[string]bool)
	for _, k := range keys {
		uniq[k] = true
	}
	ordered := make([]string, 0, len(uniq))
	for k := range uniq {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)
	for _, k := range ordered {
		l.mutex(k).Lock()
	}
	return ordered
}

// Unlock releases the mutexes acquired by Lock (reverse order).
func (l *AddrLocker) Unlock(ordered []string) {
	for i := len(ordered) - 1; i >= 0; i-- {
		l.mutex(ordered[i]).Unlock()
	}
}
