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
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache namespaces used by the gateway
const (
	CacheBlock  = "block"  // chain tips, 60 s
	CacheStatus = "status" // /status response memoization, 10 s
)

const cacheSize = 1024

// Cache is a process-wide key/value store with per-namespace TTLs.
// Best effort: a lost entry only costs a recomputation, never
// correctness.
type Cache struct {
	lock   sync.RWMutex
	tables map[string]*expirable.LRU[string, any]
}

// NewCache creates a cache with the gateway's standard namespaces.
func NewCache() *Cache {
	c := &Cache{
		tables: make(map[string]*expirable.LRU[string, any]),
	}
	c.AddTable(CacheBlock, time.Minute)
	c.AddTable(CacheStatus, 10*time.Second)
	return c
}

// AddTable registers a namespace with its TTL.
func (c *Cache) AddTable(name string, ttl time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tables[name] = expirable.NewLRU[string, any](cacheSize, nil, ttl)
}

// Set stores a value under (table, key).
func (c *Cache) Set(table, key string, value any) {
	c.lock.RLock()
	t, ok := c.tables[table]
	c.lock.RUnlock()
	if ok {
		t.Add(key, value)
	}
}

// Get reads a value; the second return reports a hit.
func (c *Cache) Get(table, key string) (any, bool) {
	c.lock.RLock()
	t, ok := c.tables[table]
	c.lock.RUnlock()
	if !ok {
		return nil, false
	}
	return t.Get(key)
}

// GetHeight reads a cached chain tip; ok is false on a miss.
func (c *Cache) GetHeight(key string) (int64, bool) {
	v, ok := c.Get(CacheBlock, key)
	if !ok {
		return 0, false
	}
	h, ok := v.(int64)
	return h, ok
}
