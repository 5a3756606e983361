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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "config.json")
	cfg := &Config{
		Db: &ModelConfig{
			DbEngine:  "mysql",
			DbConnect: "user:pass@tcp(localhost:3306)/coinapi",
		},
		Api: &APIConfig{
			Bind:      ":8283",
			Name:      "CoinAPI",
			MasterKey: "master",
			KvPrefix:  "kv_",
		},
		Log: &LogConfig{
			Level:   "INFO",
			Webhook: "https://example.invalid/webhook",
			Rates:   []int{5, 100},
		},
	}
	require.NoError(t, WriteConfig(fname, cfg))

	read, err := ReadConfig(fname)
	require.NoError(t, err)
	require.Equal(t, cfg, read)

	_, err = ReadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
