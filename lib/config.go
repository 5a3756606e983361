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
	"encoding/json"
	"os"
)

// ModelConfig for the database connection
type ModelConfig struct {
	DbEngine  string `json:"dbEngine"`  // mysql or sqlite3
	DbConnect string `json:"dbConnect"` // engine-specific DSN
}

// APIConfig holds settings for the HTTP service
type APIConfig struct {
	Bind      string `json:"bind"`      // listen address like ":8283"
	Name      string `json:"name"`      // server name (response header)
	MasterKey string `json:"masterKey"` // key for the /reload endpoint
	KvPrefix  string `json:"kvPrefix"`  // prefix for cache keys
}

// LogConfig for log output and webhook notifications
type LogConfig struct {
	File    string `json:"file"`    // log file name ("" for console)
	Level   string `json:"level"`   // logging level
	Webhook string `json:"webhook"` // Discord-style webhook URL
	Rates   []int  `json:"rates"`   // webhook rate limits [sec,min,hr,day,week]
}

// Config holds overall configuration settings
type Config struct {
	Db  *ModelConfig `json:"database"` // database settings
	Api *APIConfig   `json:"coinapi"`  // service settings
	Log *LogConfig   `json:"log"`      // logging settings
}

// ReadConfig to parse configurations from file
func ReadConfig(fname string) (*Config, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	cfg := new(Config)
	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteConfig to store configuration to file
func WriteConfig(fname string, cfg *Config) error {
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}
