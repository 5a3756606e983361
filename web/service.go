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
	"encoding/json"
	"net/http"
	"time"

	"github.com/bfix/gospel/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Envelope is the uniform response of all endpoints. The HTTP status
// is always 200; Success is the authoritative indicator.
type Envelope struct {
	Success   bool  `json:"success"`
	Data      any   `json:"data"`
	Message   any   `json:"message"`
	SecondTag any   `json:"second_tag,omitempty"`
	Time      int64 `json:"time"`
}

// Service is the HTTP API over ledger, cache, registry and drivers.
type Service struct {
	cfg    *lib.Config
	mdl    *lib.Model
	cache  *lib.Cache
	reg    *lib.Registry
	rc     *lib.Reconciler
	notify *lib.Notifier
	locker *lib.AddrLocker
}

// NewService assembles the API surface.
func NewService(cfg *lib.Config, mdl *lib.Model, cache *lib.Cache, reg *lib.Registry, rc *lib.Reconciler, notify *lib.Notifier) *Service {
	return &Service{
		cfg:    cfg,
		mdl:    mdl,
		cache:  cache,
		reg:    reg,
		rc:     rc,
		notify: notify,
		locker: lib.NewAddrLocker(),
	}
}

// Router builds the endpoint table.
func (srv *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(srv.recoverer)

	r.Get("/status", srv.doStatusAll)
	r.Get("/status/{coin_name}", srv.doStatus)
	r.Get("/reload", srv.doReload)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/newaddress", srv.doNewAddress)
	r.Post("/balance", srv.doBalance)
	r.Post("/withdraw", srv.doWithdraw)
	r.Post("/transfer", srv.doTransfer)
	r.Post("/hold_alance", srv.doHoldBalance)

	r.Get("/noted/{coin_name}/{tx}", srv.doNoted)
	r.Get("/list_transactions/{coin_name}", srv.doListTransactions)
	r.Get("/list_transactions/{coin_name}/{address}", srv.doListTransactions)
	r.Get("/list_withdraws/{coin_name}", srv.doListWithdraws)
	r.Get("/list_withdraws/{coin_name}/{address}", srv.doListWithdraws)
	r.Get("/list_address/{coin_name}", srv.doListAddresses)
	return r
}

// recoverer turns handler panics into the generic failure envelope.
func (srv *Service) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Printf(logger.ERROR, "[api] panic in %s: %v", r.URL.Path, rec)
				srv.writeJSON(w, &Envelope{
					Success: false,
					Message: "internal error.",
					Time:    time.Now().Unix(),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (srv *Service) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if srv.cfg.Api.Name != "" {
		w.Header().Set("Server", srv.cfg.Api.Name)
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

//----------------------------------------------------------------------
// Response helpers: every failure appends a failure log, every success
// a success log (once an API identity is known).
//----------------------------------------------------------------------

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// fail writes a failure envelope with a message and data payload.
func (srv *Service) fail(w http.ResponseWriter, api *lib.ApiUser, method string, req any, data any, msg string) {
	env := &Envelope{
		Success: false,
		Data:    data,
		Message: msg,
		Time:    time.Now().Unix(),
	}
	if api != nil {
		if err := srv.mdl.InsertApiFailedLog(api.ID, method, marshal(req), marshal(env)); err != nil {
			logger.Printf(logger.WARN, "[api] failed log: %s", err.Error())
		}
	}
	lib.MetricApiCalls.WithLabelValues(method, "failed").Inc()
	srv.writeJSON(w, env)
}

// ok writes a success envelope.
func (srv *Service) ok(w http.ResponseWriter, api *lib.ApiUser, method string, req any, env *Envelope) {
	env.Success = true
	env.Time = time.Now().Unix()
	if api != nil {
		if err := srv.mdl.InsertApiLog(api.ID, method, marshal(req), marshal(env)); err != nil {
			logger.Printf(logger.WARN, "[api] log: %s", err.Error())
		}
	}
	lib.MetricApiCalls.WithLabelValues(method, "ok").Inc()
	srv.writeJSON(w, env)
}

//----------------------------------------------------------------------
// Shared resolution steps
//----------------------------------------------------------------------

// authorize runs the checks shared by all authenticated endpoints:
// warm coin list, known coin, Authorization header, valid key, not
// suspended. Writes the failure envelope itself and returns ok=false
// when the request is rejected. coinName may be empty for endpoints
// that are not coin-scoped; cs is the coin's settings otherwise.
func (srv *Service) authorize(w http.ResponseWriter, r *http.Request, coinName string) (api *lib.ApiUser, cs *lib.CoinSetting, ok bool) {
	coins := srv.rc.CoinList()
	if len(coins) == 0 {
		srv.fail(w, nil, r.URL.Path, nil, nil, "internal error.")
		return nil, nil, false
	}
	if coinName != "" {
		if cs = coins[coinName]; cs == nil {
			srv.fail(w, nil, r.URL.Path, nil, nil,
				"coin "+coinName+" not in the supported list!")
			return nil, nil, false
		}
	}
	key := r.Header.Get("Authorization")
	if key == "" {
		srv.fail(w, nil, r.URL.Path, nil, nil, "You need Authorization key in header!")
		return nil, nil, false
	}
	api, err := srv.mdl.GetApiByKey(key)
	if err != nil {
		logger.Printf(logger.ERROR, "[api] key lookup: %s", err.Error())
		srv.fail(w, nil, r.URL.Path, nil, nil, "internal error.")
		return nil, nil, false
	}
	if api == nil {
		srv.fail(w, nil, r.URL.Path, nil, nil, "Wrong API key!")
		return nil, nil, false
	}
	if api.IsSuspended != 0 {
		srv.fail(w, api, r.URL.Path, nil, nil, "We suspended your API key, please contact us!")
		return nil, nil, false
	}
	return api, cs, true
}

// requireAllowed rejects a coin outside the API's allowed set.
func (srv *Service) requireAllowed(w http.ResponseWriter, api *lib.ApiUser, method string, req any, coinName string) bool {
	if !api.Allowed(coinName) {
		srv.fail(w, api, method, req, nil,
			"Your API is limited to these coins: "+api.AllowedCoin+
				"! If you need, please request additional access.")
		return false
	}
	return true
}
