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
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bfix/gospel/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// history reads are capped
const listLimit = 500

// hold expiry clamps (seconds)
const (
	holdExpireMin = 30
	holdExpireMax = 30 * 24 * 3600
)

func fmtAmount(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func head(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

//----------------------------------------------------------------------
// POST /newaddress
//----------------------------------------------------------------------

type newAddressReq struct {
	Coin      string `json:"coin"`
	Tag       string `json:"tag"`
	SecondTag string `json:"second_tag,omitempty"`
}

func (srv *Service) doNewAddress(w http.ResponseWriter, r *http.Request) {
	const method = "/newaddress"
	var req newAddressReq
	if err := decode(r, &req); err != nil {
		srv.fail(w, nil, method, nil, nil, "internal error.")
		return
	}
	coinName := strings.ToUpper(req.Coin)
	api, cs, ok := srv.authorize(w, r, coinName)
	if !ok {
		return
	}
	if !srv.requireAllowed(w, api, method, req, coinName) {
		return
	}
	if cs.EnableCreate != 1 {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"Currently, %s not enable for new address generation. Try again later!", coinName))
		return
	}
	if len(req.Tag) >= 100 {
		srv.fail(w, api, method, req, nil, fmt.Sprintf("tag '%s' is too long.", req.Tag))
		return
	}
	tag := strings.TrimSpace(req.Tag)
	secondTag := strings.TrimSpace(req.SecondTag)

	// idempotent issuance: an existing (coin, tag) binding is returned
	existing, err := srv.mdl.FindAddressByTag(api.ID, coinName, tag)
	if err != nil {
		srv.fail(w, api, method, req, nil, "internal error.")
		return
	}
	if existing != nil {
		if secondTag != "" && existing.SecondTag == "" {
			if err = srv.mdl.UpdateSecondTag(coinName, existing.ID, secondTag); err != nil {
				logger.Printf(logger.WARN, "[api] second tag: %s", err.Error())
			}
			existing.SecondTag = secondTag
		}
		srv.ok(w, api, method, req, &Envelope{
			Data: existing.Address,
			Message: fmt.Sprintf("Tag: '%s' already exist for coin %s within your API.",
				tag, coinName),
			SecondTag: existing.SecondTag,
		})
		return
	}

	drv := srv.rc.Driver(cs.Type)
	addr, err := drv.MakeAddress(context.Background(), cs)
	if err != nil {
		srv.fail(w, api, method, req, nil, "internal error.")
		return
	}
	if _, err = srv.mdl.InsertAddress(
		api.ID, coinName, addr.Address, addr.Extra, addr.PrivateKey, tag, secondTag); err != nil {
		srv.fail(w, api, method, req, nil, "internal error during inserting to DB.")
		return
	}
	if err = srv.reg.Reload(); err != nil {
		logger.Printf(logger.WARN, "[api] registry reload: %s", err.Error())
	}
	logger.Printf(logger.INFO, "[api] new %s address %s for API %d", coinName, addr.Address, api.ID)
	srv.ok(w, api, method, map[string]string{"coin": coinName, "tag": req.Tag},
		&Envelope{Data: addr.Address})
}

//----------------------------------------------------------------------
// POST /balance
//----------------------------------------------------------------------

type balanceReq struct {
	Coin    string `json:"coin"`
	Address string `json:"address"`
}

func (srv *Service) doBalance(w http.ResponseWriter, r *http.Request) {
	const method = "/balance"
	var req balanceReq
	if err := decode(r, &req); err != nil {
		srv.fail(w, nil, method, nil, nil, "internal error.")
		return
	}
	coinName := strings.ToUpper(req.Coin)
	api, cs, ok := srv.authorize(w, r, coinName)
	if !ok {
		return
	}
	da, err := srv.mdl.GetAddress(api.ID, coinName, req.Address)
	if err != nil {
		srv.fail(w, api, method, req, nil, "internal error.")
		return
	}
	if da == nil {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, address not found %s!", coinName, req.Address))
		return
	}
	places := cs.RoundPlaces
	srv.ok(w, api, method, req, &Envelope{
		Data: map[string]any{
			"coin":        coinName,
			"address":     req.Address,
			"balance":     da.Balance(places),
			"amount_hold": lib.RoundAmount(da.AmountHold, places),
			"deposit":     lib.RoundAmount(da.TotalDeposited, places),
			"withdrew":    lib.RoundAmount(da.TotalWithdrew, places),
			"received":    lib.RoundAmount(da.TotalReceived, places),
			"sent":        lib.RoundAmount(da.TotalSent, places),
		},
	})
}

//----------------------------------------------------------------------
// POST /withdraw
//----------------------------------------------------------------------

type withdrawReq struct {
	Coin        string  `json:"coin"`
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	Amount      float64 `json:"amount"`
	Remark      string  `json:"remark"`
}

func (srv *Service) doWithdraw(w http.ResponseWriter, r *http.Request) {
	const method = "/withdraw"
	var req withdrawReq
	if err := decode(r, &req); err != nil {
		srv.fail(w, nil, method, nil, nil, "internal error.")
		return
	}
	coinName := strings.ToUpper(req.Coin)
	api, cs, ok := srv.authorize(w, r, coinName)
	if !ok {
		return
	}
	if !srv.requireAllowed(w, api, method, req, coinName) {
		return
	}
	if cs.EnableWithdraw != 1 {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"Currently, %s not enable for withdraw. Try again later!", coinName))
		return
	}
	snap := srv.reg.Snapshot()
	if !snap.Has(req.FromAddress) {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, address %s.. not in our database.", coinName, req.FromAddress))
		return
	}
	owner := snap.Lookup(coinName, req.FromAddress)
	if owner == nil || api.ID != owner.ApiID {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, address %s.. permission denied.", coinName, req.FromAddress))
		return
	}
	// internal destinations must use /transfer
	if snap.Has(req.ToAddress) {
		msg := fmt.Sprintf(
			"%s, you can not send to address %s. You might need to call /transfer instead",
			coinName, req.ToAddress)
		srv.notify.Notify(fmt.Sprintf(
			"API: %d / ATTEMPT TO WITHDRAW %s %s from %s to %s in our API database.",
			api.ID, fmtAmount(req.Amount), coinName, req.FromAddress, req.ToAddress))
		srv.fail(w, api, method, req, msg, msg)
		return
	}
	if req.Amount < cs.MinWithdraw || req.Amount > cs.MaxWithdraw {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, withdraw amount out of range %s-%s.",
			coinName, fmtAmount(cs.MinWithdraw), fmtAmount(cs.MaxWithdraw)))
		return
	}
	if len(req.Remark) > 100 {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, remark is too long %s.", coinName, req.Remark))
		return
	}

	// serialize per source address; the committed balance is re-read
	// under the lock
	keys := srv.locker.Lock(lib.RegistryKey(coinName, req.FromAddress))
	defer srv.locker.Unlock(keys)

	da, err := srv.mdl.GetAddress(api.ID, coinName, req.FromAddress)
	if err != nil {
		srv.fail(w, api, method, req, nil, "internal error.")
		return
	}
	if da == nil {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, address not found %s!", coinName, req.FromAddress))
		return
	}
	balance := da.Balance(cs.RoundPlaces)
	if req.Amount+cs.FeeWithdraw > balance {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, insufficient balance to withdraw for %s! Fee: %s %s. Having %s %s.",
			coinName, req.FromAddress, fmtAmount(cs.FeeWithdraw), coinName,
			fmtAmount(balance), coinName))
		return
	}

	// integrated-address families spend from the master wallet; the
	// BTC family wallet picks inputs itself
	fromAddr := req.FromAddress
	if lib.Family(cs.Type) != lib.FamilyBTC {
		fromAddr = cs.MainAddress
	}
	drv := srv.rc.Driver(cs.Type)
	sent, err := drv.SendExternal(context.Background(), cs, fromAddr, req.ToAddress, req.Amount)
	if err != nil {
		logger.Printf(logger.WARN, "[api] %s send failed: %s", coinName, err.Error())
		srv.notify.Notify(fmt.Sprintf("API: %d / FAILED TO WITHDRAW %s %s to %s.",
			api.ID, fmtAmount(req.Amount), coinName, req.ToAddress))
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, failed to send %s %s to %s.",
			coinName, fmtAmount(req.Amount), coinName, req.ToAddress))
		return
	}
	refUUID := uuid.NewString()
	if err = srv.mdl.InsertWithdraw(&lib.Withdraw{
		ApiID:         api.ID,
		CoinName:      coinName,
		FromAddress:   req.FromAddress,
		Amount:        req.Amount,
		FeeAndTax:     cs.FeeWithdraw,
		FromDepositID: da.ID,
		ToAddress:     req.ToAddress,
		TxID:          sent.Hash,
		TxKey:         sent.Key,
		Remark:        req.Remark,
		RefUUID:       refUUID,
	}); err != nil {
		// the coins are on the wire; the ledger write must be visible
		logger.Printf(logger.ERROR, "[api] %s withdraw persist: %s", coinName, err.Error())
		srv.fail(w, api, method, req, nil, "internal error.")
		return
	}
	if err = srv.reg.Reload(); err != nil {
		logger.Printf(logger.WARN, "[api] registry reload: %s", err.Error())
	}
	srv.notify.Notify(fmt.Sprintf("API: %d / WITHDRAW %s %s to %s. Tx: %s",
		api.ID, fmtAmount(req.Amount), coinName, req.ToAddress, sent.Hash))
	srv.ok(w, api, method, req, &Envelope{
		Data: sent.Hash,
		Message: fmt.Sprintf("%s, successfully sent %s %s to %s. Tx: %s, Ref: %s",
			coinName, fmtAmount(req.Amount), coinName, req.ToAddress, sent.Hash, refUUID),
	})
}

//----------------------------------------------------------------------
// POST /transfer
//----------------------------------------------------------------------

type transferReq struct {
	Coin        string  `json:"coin"`
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	Amount      float64 `json:"amount"`
	Remark      string  `json:"remark"`
}

func (srv *Service) doTransfer(w http.ResponseWriter, r *http.Request) {
	const method = "/transfer"
	var items []transferReq
	if err := decode(r, &items); err != nil {
		srv.fail(w, nil, method, nil, nil, "internal error.")
		return
	}
	coins := srv.rc.CoinList()
	if len(coins) == 0 {
		srv.fail(w, nil, method, nil, nil, "internal error.")
		return
	}
	if len(items) == 0 {
		srv.fail(w, nil, method, nil, nil, "list of transfer can't be empty.")
		return
	}
	api, _, ok := srv.authorize(w, r, "")
	if !ok {
		return
	}

	// lock every touched address and validate against the counters
	// re-read under the locks
	var lockKeys []string
	for _, ea := range items {
		coin := strings.ToUpper(ea.Coin)
		lockKeys = append(lockKeys, lib.RegistryKey(coin, ea.FromAddress), lib.RegistryKey(coin, ea.ToAddress))
	}
	defer srv.locker.Unlock(srv.locker.Lock(lockKeys...))
	if err := srv.reg.Reload(); err != nil {
		logger.Printf(logger.WARN, "[api] registry reload: %s", err.Error())
	}
	snap := srv.reg.Snapshot()
	refUUID := uuid.NewString()
	var (
		errorList []string
		records   []*lib.TransferRecord
	)
	// scratch balances of all touched addresses; the batch is applied
	// to them in listed order
	scratch := make(map[string]float64)
	initScratch := func(coinName, addr string) {
		key := lib.RegistryKey(coinName, addr)
		if _, done := scratch[key]; done {
			return
		}
		if da := snap.Lookup(coinName, addr); da != nil {
			scratch[key] = da.TotalDeposited + da.TotalReceived -
				da.TotalSent - da.TotalWithdrew - da.AmountHold
		}
	}
	for _, ea := range items {
		coinName := strings.ToUpper(ea.Coin)
		if snap.Has(ea.FromAddress) {
			initScratch(coinName, ea.FromAddress)
		}
		if snap.Has(ea.ToAddress) {
			initScratch(coinName, ea.ToAddress)
		}
	}

	pairs := make(map[string]map[string]bool) // coin -> seen (from,to) pairs
	for _, ea := range items {
		eaError := false
		reject := func(msg string) {
			eaError = true
			errorList = append(errorList, msg)
		}
		coinName := strings.ToUpper(ea.Coin)
		cs := coins[coinName]
		from := snap.Lookup(coinName, ea.FromAddress)
		if from != nil && api.ID != from.ApiID {
			reject(fmt.Sprintf("%s/address: %s is not within your API!", coinName, ea.FromAddress))
		}
		if cs == nil {
			reject(fmt.Sprintf("%s is not in the supported list!", coinName))
		} else if ea.Amount < cs.MinTransfer || ea.Amount > cs.MaxTransfer {
			reject(fmt.Sprintf("%s %s is out of range transfer.", fmtAmount(ea.Amount), coinName))
		}
		if len(ea.Remark) >= 100 {
			reject(fmt.Sprintf("%s, remark %s.. is too long.", coinName, head(ea.Remark, 90)))
		}
		if ea.FromAddress == ea.ToAddress {
			reject(fmt.Sprintf("%s, same address from and to.", coinName))
		}
		if !snap.Has(ea.FromAddress) {
			reject(fmt.Sprintf("%s, address %s.. not in our database.", coinName, head(ea.FromAddress, 30)))
		} else {
			// repeated pair in either orientation is a loop
			if pairs[coinName] == nil {
				pairs[coinName] = make(map[string]bool)
			}
			if pairs[coinName][ea.FromAddress+ea.ToAddress] ||
				pairs[coinName][ea.ToAddress+ea.FromAddress] {
				reject(fmt.Sprintf("%s, loop transfer detected.", coinName))
			} else {
				pairs[coinName][ea.FromAddress+ea.ToAddress] = true
			}
			if from == nil {
				reject(fmt.Sprintf("%s, address %s.. not in our API.", coinName, head(ea.FromAddress, 30)))
			} else {
				key := lib.RegistryKey(coinName, ea.FromAddress)
				scratch[key] -= ea.Amount
				if scratch[key] < 0 {
					reject(fmt.Sprintf("%s, address %s.. not sufficient balance.", coinName, head(ea.FromAddress, 30)))
				}
			}
		}
		to := snap.Lookup(coinName, ea.ToAddress)
		if !snap.Has(ea.ToAddress) || to == nil {
			reject(fmt.Sprintf("%s, address %s.. not in our database.", coinName, head(ea.ToAddress, 30)))
		} else {
			scratch[lib.RegistryKey(coinName, ea.ToAddress)] += ea.Amount
		}
		if !eaError {
			tr := &lib.TransferRecord{
				ApiID:       api.ID,
				FromAddress: ea.FromAddress,
				ToAddress:   ea.ToAddress,
				Amount:      lib.RoundAmount(ea.Amount, cs.RoundPlaces),
				CoinName:    coinName,
				Purpose:     ea.Remark,
				RefUUID:     refUUID,
			}
			tr.Bind(from, to)
			records = append(records, tr)
		}
	}
	if len(errorList) > 0 {
		srv.fail(w, api, method, items, errorList, "there is one or more error(s)!")
		return
	}
	if len(records) == 0 {
		srv.fail(w, api, method, items, nil, "no transfer records!")
		return
	}
	err := srv.mdl.BatchTransfer(records)
	if err != nil {
		logger.Printf(logger.ERROR, "[api] transfer persist: %s", err.Error())
		srv.fail(w, api, method, items, nil, "internal error.")
		return
	}
	if err = srv.reg.Reload(); err != nil {
		logger.Printf(logger.WARN, "[api] registry reload: %s", err.Error())
	}
	srv.ok(w, api, method, records, &Envelope{
		Data:    refUUID,
		Message: fmt.Sprintf("processed %d transfer(s).", len(records)),
	})
}

//----------------------------------------------------------------------
// POST /hold_alance
//----------------------------------------------------------------------

type holdReq struct {
	Coin     string  `json:"coin"`
	Address  string  `json:"address"`
	Amount   float64 `json:"amount"`
	Expiring int64   `json:"expiring"`
	Purpose  string  `json:"purpose"`
}

func (srv *Service) doHoldBalance(w http.ResponseWriter, r *http.Request) {
	const method = "/hold_balance"
	req := holdReq{Expiring: 3600}
	if err := decode(r, &req); err != nil {
		srv.fail(w, nil, method, nil, nil, "internal error.")
		return
	}
	coinName := strings.ToUpper(req.Coin)
	api, cs, ok := srv.authorize(w, r, coinName)
	if !ok {
		return
	}
	// an unknown address is indistinguishable from a foreign one
	owner := srv.reg.Snapshot().Lookup(coinName, req.Address)
	if owner == nil || api.ID != owner.ApiID {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, address %s.. permission denied.", coinName, req.Address))
		return
	}
	if req.Amount < 0 {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, invalid amount %s!", coinName, fmtAmount(req.Amount)))
		return
	}
	holdAmount := lib.RoundAmount(req.Amount, cs.RoundPlaces)
	purpose := head(strings.TrimSpace(req.Purpose), 255)
	expiring := req.Expiring
	if expiring > holdExpireMax {
		expiring = holdExpireMax
	}
	if expiring <= holdExpireMin {
		expiring = holdExpireMin
	}

	keys := srv.locker.Lock(lib.RegistryKey(coinName, req.Address))
	defer srv.locker.Unlock(keys)

	da, err := srv.mdl.GetAddress(api.ID, coinName, req.Address)
	if err != nil {
		srv.fail(w, api, method, req, nil, "internal error.")
		return
	}
	if da == nil {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, address not found %s!", coinName, req.Address))
		return
	}
	balance := da.Balance(cs.RoundPlaces)
	if holdAmount > balance {
		srv.notify.Notify(fmt.Sprintf(
			"API: %d / %s - trying to hold %s %s but having %s %s.",
			api.ID, req.Address, fmtAmount(holdAmount), coinName, fmtAmount(balance), coinName))
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, insufficient balance to hold amount %s! Having %s!",
			coinName, fmtAmount(holdAmount), fmtAmount(balance)))
		return
	}
	expiresAt := time.Now().Unix() + expiring
	if err = srv.mdl.InsertHold(&lib.Hold{
		CoinName:     coinName,
		ApiID:        api.ID,
		DepositID:    da.ID,
		Address:      req.Address,
		HoldAmount:   holdAmount,
		TimeExpiring: expiresAt,
		Purpose:      purpose,
	}); err != nil {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, internal error for holding %s of address %s",
			coinName, fmtAmount(holdAmount), req.Address))
		return
	}
	if err = srv.reg.Reload(); err != nil {
		logger.Printf(logger.WARN, "[api] registry reload: %s", err.Error())
	}
	srv.notify.Notify(fmt.Sprintf("API: %d / %s - HOLDING %s %s and expiring: <t:%d:f>.",
		api.ID, req.Address, fmtAmount(holdAmount), coinName, expiresAt))
	srv.ok(w, api, method, req, &Envelope{
		Data: map[string]any{
			"coin":        coinName,
			"address":     req.Address,
			"hold_amount": holdAmount,
			"expiring":    expiresAt,
			"purpose":     purpose,
		},
	})
}

//----------------------------------------------------------------------
// GET /noted/{coin_name}/{tx}
//----------------------------------------------------------------------

func (srv *Service) doNoted(w http.ResponseWriter, r *http.Request) {
	const method = "/noted/"
	coinName := strings.ToUpper(chi.URLParam(r, "coin_name"))
	txid := chi.URLParam(r, "tx")
	api, _, ok := srv.authorize(w, r, coinName)
	if !ok {
		return
	}
	data := map[string]any{"coin_name": coinName, "api_id": api.ID, "tx": txid}
	dep, err := srv.mdl.FindTx(coinName, txid, api.ID)
	if err != nil {
		srv.fail(w, api, method, data, nil, "internal error.")
		return
	}
	if dep == nil {
		srv.ok(w, api, method, data, &Envelope{
			Message: fmt.Sprintf("no such transaction for %s.", coinName),
		})
		return
	}
	if err = srv.mdl.NoteTx(coinName, txid, api.ID, dep.DepostID); err != nil {
		srv.fail(w, api, method, data, nil, fmt.Sprintf(
			"%s, internal error noting tx: %s.", coinName, txid))
		return
	}
	srv.ok(w, api, method, data, &Envelope{
		Message: fmt.Sprintf("noted for tx %s.", txid),
	})
}

//----------------------------------------------------------------------
// GET /list_transactions/{coin_name}[/{address}]
//----------------------------------------------------------------------

// requireOwnedAddress rejects a path address that is unknown or owned
// by another API.
func (srv *Service) requireOwnedAddress(w http.ResponseWriter, api *lib.ApiUser, method, coinName, address string, req any) bool {
	if address == "" {
		return true
	}
	owner := srv.reg.Snapshot().Lookup(coinName, address)
	if owner == nil || owner.ApiID != api.ID {
		srv.fail(w, api, method, req, nil, fmt.Sprintf(
			"%s, address: %s not within your API.", coinName, address))
		return false
	}
	return true
}

func (srv *Service) doListTransactions(w http.ResponseWriter, r *http.Request) {
	const method = "/list_transactions/"
	coinName := strings.ToUpper(chi.URLParam(r, "coin_name"))
	address := chi.URLParam(r, "address")
	api, _, ok := srv.authorize(w, r, coinName)
	if !ok {
		return
	}
	data := map[string]any{"coin_name": coinName, "api_id": api.ID, "address": address}
	if !srv.requireAllowed(w, api, method, data, coinName) {
		return
	}
	if !srv.requireOwnedAddress(w, api, method, coinName, address, data) {
		return
	}
	txes, err := srv.mdl.ListDeposits(coinName, api.ID, address, listLimit)
	if err != nil {
		srv.fail(w, api, method, data, nil, "internal error.")
		return
	}
	if len(txes) == 0 {
		srv.ok(w, api, method, data, &Envelope{Data: []any{}, Message: "no transactions."})
		return
	}
	rows := make([]map[string]any, 0, len(txes))
	for _, tx := range txes {
		rows = append(rows, map[string]any{
			"coin_name":  coinName,
			"txid":       tx.TxID,
			"amount":     tx.Amount,
			"address":    tx.Address,
			"time":       tx.TimeInsert,
			"tag":        tx.Tag,
			"second_tag": tx.SecondTag,
			"noted":      tx.AlreadyNoted,
			"noted_time": tx.NotedTime,
		})
	}
	srv.ok(w, api, method, data, &Envelope{Data: rows})
}

//----------------------------------------------------------------------
// GET /list_withdraws/{coin_name}[/{address}]
//----------------------------------------------------------------------

func (srv *Service) doListWithdraws(w http.ResponseWriter, r *http.Request) {
	const method = "/list_withdraws/"
	coinName := strings.ToUpper(chi.URLParam(r, "coin_name"))
	address := chi.URLParam(r, "address")
	api, _, ok := srv.authorize(w, r, coinName)
	if !ok {
		return
	}
	data := map[string]any{"coin_name": coinName, "api_id": api.ID, "address": address}
	if !srv.requireAllowed(w, api, method, data, coinName) {
		return
	}
	if !srv.requireOwnedAddress(w, api, method, coinName, address, data) {
		return
	}
	wds, err := srv.mdl.ListWithdraws(coinName, api.ID, address, listLimit)
	if err != nil {
		srv.fail(w, api, method, data, nil, "internal error.")
		return
	}
	if len(wds) == 0 {
		srv.ok(w, api, method, data, &Envelope{Data: []any{}, Message: "no withdraws."})
		return
	}
	rows := make([]map[string]any, 0, len(wds))
	for _, wd := range wds {
		rows = append(rows, map[string]any{
			"coin_name":    coinName,
			"txid":         wd.TxID,
			"amount":       wd.Amount,
			"fee_and_tax":  wd.FeeAndTax,
			"from_address": wd.FromAddress,
			"to_address":   wd.ToAddress,
			"time":         wd.Timestamp,
			"remark":       wd.Remark,
			"ref_uuid":     wd.RefUUID,
			"tag":          wd.Tag,
			"second_tag":   wd.SecondTag,
		})
	}
	srv.ok(w, api, method, data, &Envelope{Data: rows})
}

//----------------------------------------------------------------------
// GET /list_address/{coin_name}
//----------------------------------------------------------------------

func (srv *Service) doListAddresses(w http.ResponseWriter, r *http.Request) {
	const method = "/list_address/"
	coinName := strings.ToUpper(chi.URLParam(r, "coin_name"))
	api, _, ok := srv.authorize(w, r, coinName)
	if !ok {
		return
	}
	data := map[string]any{"coin_name": coinName, "api_id": api.ID}
	if !srv.requireAllowed(w, api, method, data, coinName) {
		return
	}
	list, err := srv.mdl.GetAddressesByCoinAPI(coinName, api.ID)
	if err != nil {
		srv.fail(w, api, method, data, nil, "internal error.")
		return
	}
	if len(list) == 0 {
		srv.ok(w, api, method, data, &Envelope{Data: []any{}, Message: "no address."})
		return
	}
	rows := make([]map[string]any, 0, len(list))
	for _, da := range list {
		rows = append(rows, map[string]any{
			"coin_name": coinName,
			"address":   da.Address,
			"created":   da.CreatedDate,
			"tag":       da.Tag,
		})
	}
	srv.ok(w, api, method, data, &Envelope{Data: rows})
}

//----------------------------------------------------------------------
// GET /status and /status/{coin_name}
//----------------------------------------------------------------------

func (srv *Service) doStatusAll(w http.ResponseWriter, r *http.Request) {
	coins := srv.rc.CoinList()
	names := make([]string, 0, len(coins))
	for name := range coins {
		names = append(names, name)
	}
	srv.writeJSON(w, &Envelope{
		Success: true,
		Data:    names,
		Time:    time.Now().Unix(),
	})
}

func (srv *Service) doStatus(w http.ResponseWriter, r *http.Request) {
	coinName := strings.ToUpper(chi.URLParam(r, "coin_name"))
	coins := srv.rc.CoinList()
	if len(coins) == 0 {
		srv.writeJSON(w, &Envelope{
			Success: false,
			Message: "internal error.",
			Time:    time.Now().Unix(),
		})
		return
	}
	if _, found := coins[coinName]; !found {
		srv.writeJSON(w, &Envelope{
			Success: false,
			Message: fmt.Sprintf("coin %s not in the supported list!", coinName),
			Time:    time.Now().Unix(),
		})
		return
	}
	if cached, hit := srv.cache.Get(lib.CacheStatus, "/status/"+coinName); hit {
		srv.writeJSON(w, &Envelope{
			Success: true,
			Data:    cached,
			Time:    time.Now().Unix(),
		})
		return
	}
	if err := srv.rc.ReloadCoins(); err != nil {
		logger.Printf(logger.WARN, "[api] status reload: %s", err.Error())
	}
	cs := srv.rc.Coin(coinName)
	if cs == nil {
		srv.writeJSON(w, &Envelope{
			Success: false,
			Message: "internal error.",
			Time:    time.Now().Unix(),
		})
		return
	}
	result := map[string]any{
		"coin":            coinName,
		"min_transfer":    cs.MinTransfer,
		"max_transfer":    cs.MaxTransfer,
		"min_withdraw":    cs.MinWithdraw,
		"max_withdraw":    cs.MaxWithdraw,
		"tx_fee":          cs.FeeWithdraw,
		"chain_height":    cs.ChainHeight,
		"enable_create":   cs.EnableCreate,
		"enable_deposit":  cs.EnableDeposit,
		"enable_withdraw": cs.EnableWithdraw,
		"time":            time.Now().Unix(),
	}
	srv.cache.Set(lib.CacheStatus, "/status/"+coinName, result)
	srv.writeJSON(w, &Envelope{
		Success: true,
		Data:    result,
		Time:    time.Now().Unix(),
	})
}

//----------------------------------------------------------------------
// GET /reload
//----------------------------------------------------------------------

func (srv *Service) doReload(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Authorization")
	if key == "" {
		srv.writeJSON(w, &Envelope{
			Success: false,
			Message: "This is not where you need to do!",
			Time:    time.Now().Unix(),
		})
		return
	}
	if key != srv.cfg.Api.MasterKey {
		srv.writeJSON(w, &Envelope{
			Success: false,
			Message: "Wrong API key!",
			Time:    time.Now().Unix(),
		})
		return
	}
	if err := srv.rc.ReloadCoins(); err != nil {
		logger.Printf(logger.ERROR, "[api] reload coins: %s", err.Error())
	}
	if err := srv.reg.Reload(); err != nil {
		logger.Printf(logger.ERROR, "[api] reload registry: %s", err.Error())
	}
	logger.Println(logger.INFO, "[api] configuration reloaded")
	srv.notify.Notify("Configuration reloaded")
	srv.writeJSON(w, &Envelope{
		Success: true,
		Message: "reloaded configuration done!",
		Time:    time.Now().Unix(),
	})
}
