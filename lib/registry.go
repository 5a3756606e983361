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
	"fmt"
	"sync/atomic"
)

// RegistryKey builds the lookup key for a (coin, address) pair.
func RegistryKey(coinName, address string) string {
	return fmt.Sprintf("%s_%s", coinName, address)
}

// RegistrySnapshot is an immutable view of all known deposit addresses.
// Readers hold one snapshot for the duration of a request; a rebuild
// publishes a fresh snapshot and never mutates a published one.
type RegistrySnapshot struct {
	addresses map[string]bool
	byKey     map[string]*DepositAddress
}

// Has is an O(1) membership test on the address string.
func (s *RegistrySnapshot) Has(address string) bool {
	return s.addresses[address]
}

// Lookup resolves ownership and counters for a (coin, address) pair.
func (s *RegistrySnapshot) Lookup(coinName, address string) *DepositAddress {
	return s.byKey[RegistryKey(coinName, address)]
}

// Size returns the number of known addresses.
func (s *RegistrySnapshot) Size() int {
	return len(s.addresses)
}

// Registry keeps the in-memory index of all deposit addresses with
// owner and tag metadata. Rebuilt after every issuance and after any
// withdraw/transfer that changes counters.
type Registry struct {
	mdl  *Model
	snap atomic.Pointer[RegistrySnapshot]
}

// NewRegistry creates an empty registry over the model.
func NewRegistry(mdl *Model) *Registry {
	reg := &Registry{mdl: mdl}
	reg.snap.Store(&RegistrySnapshot{
		addresses: make(map[string]bool),
		byKey:     make(map[string]*DepositAddress),
	})
	return reg
}

// Reload rebuilds the snapshot from the database and swaps it in.
func (reg *Registry) Reload() error {
	list, err := reg.mdl.GetDepositAddresses()
	if err != nil {
		return err
	}
	snap := &RegistrySnapshot{
		addresses: make(map[string]bool, len(list)),
		byKey:     make(map[string]*DepositAddress, len(list)),
	}
	for _, da := range list {
		snap.addresses[da.Address] = true
		snap.byKey[RegistryKey(da.CoinName, da.Address)] = da
	}
	reg.snap.Store(snap)
	return nil
}

// Snapshot returns the current registry view.
func (reg *Registry) Snapshot() *RegistrySnapshot {
	return reg.snap.Load()
}
