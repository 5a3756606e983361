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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryReload(t *testing.T) {
	mdl := testModel(t)
	reg := NewRegistry(mdl)

	// empty registry answers cleanly
	snap := reg.Snapshot()
	require.False(t, snap.Has("addr-1"))
	require.Nil(t, snap.Lookup("BTC", "addr-1"))
	require.Zero(t, snap.Size())

	apiID, err := mdl.AddApiUser("key", "BTC")
	require.NoError(t, err)
	_, err = mdl.InsertAddress(apiID, "BTC", "addr-1", "", "", "t1", "")
	require.NoError(t, err)
	require.NoError(t, reg.Reload())

	snap = reg.Snapshot()
	require.True(t, snap.Has("addr-1"))
	da := snap.Lookup("BTC", "addr-1")
	require.NotNil(t, da)
	require.Equal(t, apiID, da.ApiID)
	require.Equal(t, 1, snap.Size())

	// the same address under another coin is a different key
	require.Nil(t, snap.Lookup("XMR", "addr-1"))
}

// a captured snapshot stays stable across a reload
func TestRegistrySnapshotStable(t *testing.T) {
	mdl := testModel(t)
	reg := NewRegistry(mdl)
	apiID, err := mdl.AddApiUser("key", "BTC")
	require.NoError(t, err)
	_, err = mdl.InsertAddress(apiID, "BTC", "addr-1", "", "", "t1", "")
	require.NoError(t, err)
	require.NoError(t, reg.Reload())

	old := reg.Snapshot()
	_, err = mdl.InsertAddress(apiID, "BTC", "addr-2", "", "", "t2", "")
	require.NoError(t, err)
	require.NoError(t, reg.Reload())

	require.False(t, old.Has("addr-2"))
	require.True(t, reg.Snapshot().Has("addr-2"))
}

func TestRegistryKey(t *testing.T) {
	require.Equal(t, "BTC_addr", RegistryKey("BTC", "addr"))
}
