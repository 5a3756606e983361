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
// Coin-backend drivers: all wallet/daemon access is managed by a driver
// instance per coin family. A driver exposes the chain tip, address
// generation, a confirmed-transfer window and external sends over one
// interface; the wire dialects (BTC JSON-RPC 1.0, wallet JSON-RPC 2.0,
// CN REST) stay inside the driver files.
//
//----------------------------------------------------------------------

package lib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Error codes (driver-related)
var (
	ErrBackendUnreachable = fmt.Errorf("backend unreachable")
	ErrBackendRejected    = fmt.Errorf("backend rejected request")
)

// Per-method timeouts
const (
	timeoutStatus = 15 * time.Second
	timeoutQuery  = 60 * time.Second
	timeoutSend   = 150 * time.Second
	timeoutSave   = 300 * time.Second
)

// TopBlock is the current chain tip of a coin.
type TopBlock struct {
	Height int64
	Hash   string
}

// NewAddress is a freshly minted deposit address. Extra carries the
// payment id for integrated-address families; PrivateKey is only set
// for the BTC family.
type NewAddress struct {
	Address    string
	Extra      string
	PrivateKey string
}

// WalletTransfer is one candidate credit reported by a wallet backend.
// Amount is in integer atomic units; Discriminator is the payment id
// (integrated-address families) or the receiving address (BTC family).
type WalletTransfer struct {
	TxID          string
	Height        int64
	Amount        int64
	Discriminator string
	BlockHash     string
	Confirmations int64
}

// SendResult is the outcome of a broadcast external send.
type SendResult struct {
	Hash string
	Key  string
}

// Driver is the uniform capability set of a coin backend.
type Driver interface {
	// TopBlock returns the current chain tip.
	TopBlock(ctx context.Context, cs *CoinSetting) (*TopBlock, error)
	// MakeAddress generates or derives a new deposit address.
	MakeAddress(ctx context.Context, cs *CoinSetting) (*NewAddress, error)
	// ListTransfers returns candidate credits within a height window.
	ListTransfers(ctx context.Context, cs *CoinSetting, fromHeight, toHeight int64) ([]*WalletTransfer, error)
	// SendExternal broadcasts a payout and returns the transaction hash.
	SendExternal(ctx context.Context, cs *CoinSetting, fromAddr, toAddr string, amount float64) (*SendResult, error)
}

// NewDriver instantiates the driver for a coin family.
func NewDriver(family string) (Driver, error) {
	switch family {
	case FamilyBTC:
		return new(BtcDriver), nil
	case FamilyXMR:
		return new(XmrDriver), nil
	case FamilyCNREST:
		return new(CnRestDriver), nil
	}
	return nil, fmt.Errorf("no driver for family '%s'", family)
}

//----------------------------------------------------------------------
// Shared wire helpers
//----------------------------------------------------------------------

// httpPost performs a POST with body and headers under a timeout and
// returns the raw response body. Non-2xx responses map to
// ErrBackendRejected, transport failures to ErrBackendUnreachable.
func httpPost(ctx context.Context, url string, body []byte, hdrs map[string]string, timeout time.Duration) ([]byte, error) {
	toCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(toCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}
	cl := &http.Client{}
	resp, err := cl.Do(req)
	if err != nil {
		return nil, ErrBackendUnreachable
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrBackendUnreachable
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrBackendRejected
	}
	return data, nil
}

// httpGet performs a GET with headers under a timeout.
func httpGet(ctx context.Context, url string, hdrs map[string]string, timeout time.Duration) ([]byte, error) {
	toCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(toCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}
	cl := &http.Client{}
	resp, err := cl.Do(req)
	if err != nil {
		return nil, ErrBackendUnreachable
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrBackendUnreachable
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrBackendRejected
	}
	return data, nil
}

// rpcCall performs a JSON-RPC 2.0 call (wallet/daemon dialect of the
// XMR and CN families) and returns the raw 'result' member.
func rpcCall(ctx context.Context, url, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      uuid.NewString(),
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	} else {
		payload["params"] = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	data, err := httpPost(ctx, url, body, map[string]string{
		"Content-Type": "application/json",
	}, timeout)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err = json.Unmarshal(data, &resp); err != nil {
		return nil, ErrBackendRejected
	}
	if resp.Error != nil || resp.Result == nil {
		return nil, ErrBackendRejected
	}
	return resp.Result, nil
}
