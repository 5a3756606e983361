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

package main

import (
	"coinapi/lib"
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bfix/gospel/logger"
	"github.com/fatih/color"
)

var Version string = "v0.0.0"

// Application entry point
func main() {
	var err error

	// welcome
	defer logger.Flush()
	logger.Println(logger.INFO, "===============================")
	logger.Println(logger.INFO, "coinapi gateway          "+Version)
	logger.Println(logger.INFO, "(c) 2024, Bernd Fix         >Y<")
	logger.Println(logger.INFO, "===============================")

	// read configuration
	logger.Println(logger.INFO, "Reading configuration...")
	var cfg *lib.Config
	if cfg, err = lib.ReadConfig("config.json"); err != nil {
		logger.Println(logger.ERROR, err.Error())
		return
	}
	if cfg.Log != nil {
		if cfg.Log.File != "" {
			logger.LogToFile(cfg.Log.File)
		}
		if cfg.Log.Level != "" {
			logger.SetLogLevelFromName(cfg.Log.Level)
		}
	}

	// connect to database
	logger.Println(logger.INFO, "Connecting to database...")
	var mdl *lib.Model
	if mdl, err = lib.Connect(cfg.Db); err != nil {
		logger.Println(logger.ERROR, err.Error())
		return
	}
	defer mdl.Close()
	if err = mdl.Setup(); err != nil {
		logger.Println(logger.ERROR, err.Error())
		return
	}

	// assemble cache, registry, notifier and reconciler
	cache := lib.NewCache()
	reg := lib.NewRegistry(mdl)
	if err = reg.Reload(); err != nil {
		logger.Println(logger.ERROR, err.Error())
		return
	}
	notify := lib.NewNotifier(cfg.Log)
	rc := lib.NewReconciler(mdl, cache, reg, notify, cfg.Api.KvPrefix)
	if err = rc.ReloadCoins(); err != nil {
		logger.Println(logger.ERROR, err.Error())
		return
	}
	color.Yellow("Loading %d coin(s)", len(rc.CoinList()))
	color.Yellow("Loading %d address(es)", reg.Snapshot().Size())
	logger.Printf(logger.INFO, "Serving %d coin(s), %d address(es)",
		len(rc.CoinList()), reg.Snapshot().Size())

	// start background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rc.Run(ctx)

	// start web service
	srv := NewService(cfg, mdl, cache, reg, rc, notify)
	httpSrv := &http.Server{
		Addr:    cfg.Api.Bind,
		Handler: srv.Router(),
	}
	go func() {
		logger.Printf(logger.INFO, "Waiting for client requests on '%s'...", cfg.Api.Bind)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Println(logger.ERROR, err.Error())
		}
	}()

	// handle OS signals
	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh)

	// heart beat
	tick := time.NewTicker(5 * time.Minute)

loop:
	for {
		select {
		// handle OS signals
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGKILL, syscall.SIGINT, syscall.SIGTERM:
				logger.Printf(logger.INFO, "Terminating service (on signal '%s')\n", sig)
				break loop
			case syscall.SIGHUP:
				logger.Println(logger.INFO, "SIGHUP")
			case syscall.SIGURG:
				// TODO: https://github.com/golang/go/issues/37942
			default:
				logger.Println(logger.INFO, "Unhandled signal: "+sig.String())
			}
		// handle heart beat
		case now := <-tick.C:
			logger.Println(logger.INFO, "Heart beat at "+now.String())
		}
	}
	// graceful shutdown of the web service
	downCtx, downCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer downCancel()
	if err = httpSrv.Shutdown(downCtx); err != nil {
		logger.Println(logger.ERROR, err.Error())
	}
}
