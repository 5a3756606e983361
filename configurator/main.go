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
//
// Operator tool: initializes the database schema and seeds coin
// settings and API users for the coinapi gateway.
//
//----------------------------------------------------------------------

package main

import (
	"bufio"
	"coinapi/lib"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bfix/gospel/logger"
)

var (
	cfg *lib.Config
	mdl *lib.Model
)

func main() {
	defer logger.Flush()
	logger.Println(logger.INFO, "===============================")
	logger.Println(logger.INFO, "coinapi configurator")
	logger.Println(logger.INFO, "(c) 2024, Bernd Fix         >Y<")
	logger.Println(logger.INFO, "===============================")

	// parse and process command-line options
	var (
		confFile string
		initDb   bool
		addCoin  bool
		addApi   bool
	)
	flag.StringVar(&confFile, "c", "config.json", "Configuration file (default: config.json)")
	flag.BoolVar(&initDb, "init", false, "Initialize database schema")
	flag.BoolVar(&addCoin, "add-coin", false, "Add a coin setting")
	flag.BoolVar(&addApi, "add-api", false, "Add an API user")
	flag.Parse()

	// read configuration and connect to model
	var err error
	if cfg, err = lib.ReadConfig(confFile); err != nil {
		logger.Println(logger.ERROR, err.Error())
		return
	}
	if mdl, err = lib.Connect(cfg.Db); err != nil {
		logger.Println(logger.ERROR, err.Error())
		return
	}
	defer mdl.Close()

	switch {
	case initDb:
		if err = mdl.Setup(); err != nil {
			logger.Println(logger.ERROR, err.Error())
			return
		}
		fmt.Println("<<< Schema created.")

	case addCoin:
		if err = enterCoin(); err != nil {
			fmt.Println("<<< ERROR: " + err.Error())
			return
		}
		fmt.Println("<<< DONE.")

	case addApi:
		allowed := ask("Allowed coins (comma-separated)")
		key := lib.PaymentID(32)
		var id int64
		if id, err = mdl.AddApiUser(key, strings.ToUpper(allowed)); err != nil {
			fmt.Println("<<< ERROR: " + err.Error())
			return
		}
		fmt.Printf("<<< API user #%d created.\n", id)
		fmt.Printf("<<< API key: %s\n", key)

	default:
		flag.Usage()
	}
}

// ask prompts the operator for one value.
func ask(prompt string) string {
	fmt.Printf(">>> %s: ", prompt)
	rdr := bufio.NewReader(os.Stdin)
	in, _, err := rdr.ReadLine()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(in))
}

func askInt(prompt string, dflt int) int {
	in := ask(prompt)
	if in == "" {
		return dflt
	}
	val, err := strconv.Atoi(in)
	if err != nil {
		return dflt
	}
	return val
}

func askFloat(prompt string, dflt float64) float64 {
	in := ask(prompt)
	if in == "" {
		return dflt
	}
	val, err := strconv.ParseFloat(in, 64)
	if err != nil {
		return dflt
	}
	return val
}

// enterCoin collects a coin setting interactively and stores it.
func enterCoin() error {
	cs := &lib.CoinSetting{
		CoinName:          strings.ToUpper(ask("Coin name")),
		Type:              strings.ToUpper(ask("Type [BTC|XMR|TRTL-API|TRTL-SERVICE|BCN]")),
		Enable:            1,
		EnableCreate:      1,
		EnableDeposit:     1,
		EnableWithdraw:    1,
		DaemonAddress:     ask("Daemon address"),
		WalletAddress:     ask("Wallet address (RPC URL)"),
		Header:            ask("Wallet header (API key, empty if none)"),
		MainAddress:       ask("Main address"),
		Decimal:           askInt("Decimal exponent", 8),
		ConfirmationDepth: int64(askInt("Confirmation depth", 6)),
		MinDeposit:        askFloat("Min deposit", 0),
		MinTransfer:       askFloat("Min transfer", 0),
		MaxTransfer:       askFloat("Max transfer", 0),
		MinWithdraw:       askFloat("Min withdraw", 0),
		MaxWithdraw:       askFloat("Max withdraw", 0),
		FeeWithdraw:       askFloat("Withdraw fee", 0),
		Mixin:             askInt("Mixin", 0),
		IsFeePerByte:      askInt("Fee per byte [0|1]", 0),
		HasPos:            askInt("Has PoS [0|1]", 0),
		RoundPlaces:       askInt("Round places", 8),
		UseGetInfoBtc:     askInt("Use getinfo [0|1]", 0),
	}
	if lib.Family(cs.Type) == "" {
		return fmt.Errorf("unknown coin type '%s'", cs.Type)
	}
	return mdl.AddCoinSetting(cs)
}
