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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// rpcStub answers JSON-RPC requests from a method table.
func rpcStub(t *testing.T, answers map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := answers[req.Method]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": result})
	}))
}

func TestNewDriver(t *testing.T) {
	for _, family := range []string{FamilyBTC, FamilyXMR, FamilyCNREST} {
		drv, err := NewDriver(family)
		require.NoError(t, err)
		require.NotNil(t, drv)
	}
	_, err := NewDriver("NANO")
	require.Error(t, err)
}

func TestBtcDriver(t *testing.T) {
	srv := rpcStub(t, map[string]any{
		"getblockchaininfo": map[string]any{"blocks": 800000, "bestblockhash": "hash-1"},
		"getnewaddress":     "bc1-new",
		"dumpprivkey":       "priv-1",
		"sendtoaddress":     "sent-tx",
		"listtransactions": []map[string]any{
			{"address": "bc1-new", "category": "receive", "amount": 1.5,
				"confirmations": 10, "blockhash": "bh", "txid": "tx-1"},
			{"address": "bc1-out", "category": "send", "amount": -2.0,
				"confirmations": 3, "txid": "tx-2"},
		},
	})
	defer srv.Close()

	cs := &CoinSetting{
		CoinName:      "BTC",
		Type:          CoinTypeBTC,
		DaemonAddress: srv.URL,
		Decimal:       8,
	}
	drv := new(BtcDriver)
	ctx := context.Background()

	tip, err := drv.TopBlock(ctx, cs)
	require.NoError(t, err)
	require.Equal(t, int64(800000), tip.Height)
	require.Equal(t, "hash-1", tip.Hash)

	addr, err := drv.MakeAddress(ctx, cs)
	require.NoError(t, err)
	require.Equal(t, "bc1-new", addr.Address)
	require.Equal(t, "priv-1", addr.PrivateKey)
	require.Empty(t, addr.Extra)

	// outgoing entries are filtered; amounts converted to atomic units
	list, err := drv.ListTransfers(ctx, cs, 798000, 800000)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "tx-1", list[0].TxID)
	require.Equal(t, int64(150000000), list[0].Amount)
	require.Equal(t, "bc1-new", list[0].Discriminator)
	require.Equal(t, int64(800000-10), list[0].Height)

	sent, err := drv.SendExternal(ctx, cs, "from", "to", 0.5)
	require.NoError(t, err)
	require.Equal(t, "sent-tx", sent.Hash)
}

func TestBtcDriverGetInfo(t *testing.T) {
	srv := rpcStub(t, map[string]any{
		"getinfo": map[string]any{"blocks": 12345},
	})
	defer srv.Close()
	cs := &CoinSetting{
		CoinName:      "DOGE",
		Type:          CoinTypeBTC,
		DaemonAddress: srv.URL,
		UseGetInfoBtc: 1,
	}
	tip, err := new(BtcDriver).TopBlock(context.Background(), cs)
	require.NoError(t, err)
	require.Equal(t, int64(12345), tip.Height)
}

func TestXmrDriver(t *testing.T) {
	daemon := rpcStub(t, map[string]any{
		"get_block_count": map[string]any{"count": 3000001},
		"get_block_header_by_height": map[string]any{
			"block_header": map[string]any{"height": 3000000, "hash": "xmr-hash"},
		},
	})
	defer daemon.Close()
	wallet := rpcStub(t, map[string]any{
		"make_integrated_address": map[string]any{
			"integrated_address": "4-integrated", "payment_id": "pid-1",
		},
		"get_transfers": map[string]any{
			"in": []map[string]any{
				{"txid": "tx-1", "height": 2999000, "amount": 5000, "payment_id": "pid-1"},
				{"txid": "tx-2", "height": 2999000, "amount": 7000, "payment_id": ""},
			},
		},
		"transfer": map[string]any{"tx_hash": "xmr-tx", "tx_key": "xmr-key"},
	})
	defer wallet.Close()

	cs := &CoinSetting{
		CoinName:      "XMR",
		Type:          CoinTypeXMR,
		DaemonAddress: daemon.URL,
		WalletAddress: wallet.URL,
		MainAddress:   "4-main",
		Decimal:       12,
	}
	drv := new(XmrDriver)
	ctx := context.Background()

	tip, err := drv.TopBlock(ctx, cs)
	require.NoError(t, err)
	require.Equal(t, int64(3000000), tip.Height)
	require.Equal(t, "xmr-hash", tip.Hash)

	addr, err := drv.MakeAddress(ctx, cs)
	require.NoError(t, err)
	require.Equal(t, "4-integrated", addr.Address)
	require.Equal(t, "pid-1", addr.Extra)
	require.Empty(t, addr.PrivateKey)

	// credits without payment id cannot be routed and are dropped
	list, err := drv.ListTransfers(ctx, cs, 2998000, 3000000)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "pid-1", list[0].Discriminator)
	require.Equal(t, int64(1000), list[0].Confirmations)

	sent, err := drv.SendExternal(ctx, cs, "4-main", "4-dest", 0.1)
	require.NoError(t, err)
	require.Equal(t, "xmr-tx", sent.Hash)
	require.Equal(t, "xmr-key", sent.Key)
}

// ring_size is keyed on the coin, not on the mixin setting
func TestXmrRingSize(t *testing.T) {
	var gotParams map[string]any
	wallet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "transfer", req.Method)
		gotParams = req.Params
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"tx_hash": "tx", "tx_key": "key"}})
	}))
	defer wallet.Close()

	// a nonzero mixin on a plain XMR coin never puts ring_size on the wire
	cs := &CoinSetting{
		CoinName:      "XMR",
		Type:          CoinTypeXMR,
		WalletAddress: wallet.URL,
		Decimal:       12,
		Mixin:         11,
	}
	drv := new(XmrDriver)
	_, err := drv.SendExternal(context.Background(), cs, "4-main", "4-dest", 0.1)
	require.NoError(t, err)
	require.NotContains(t, gotParams, "ring_size")
	require.Contains(t, gotParams, "priority")
	require.Contains(t, gotParams, "unlock_time")

	// UPX swaps priority/unlock_time for the fixed ring size
	cs.CoinName = "UPX"
	cs.Mixin = 0
	_, err = drv.SendExternal(context.Background(), cs, "4-main", "4-dest", 0.1)
	require.NoError(t, err)
	require.Equal(t, float64(upxRingSize), gotParams["ring_size"])
	require.NotContains(t, gotParams, "priority")
	require.NotContains(t, gotParams, "unlock_time")
}

func TestCnServiceSend(t *testing.T) {
	wallet := rpcStub(t, map[string]any{
		"sendTransaction": map[string]any{"transactionHash": "trtl-tx"},
	})
	defer wallet.Close()
	cs := &CoinSetting{
		CoinName:      "TRTL",
		Type:          CoinTypeTrtlService,
		WalletAddress: wallet.URL,
		Decimal:       2,
		FeeWithdraw:   0.1,
		Mixin:         3,
	}
	sent, err := new(XmrDriver).SendExternal(context.Background(), cs, "trtl-main", "trtl-dest", 10)
	require.NoError(t, err)
	require.Equal(t, "trtl-tx", sent.Hash)
	require.Empty(t, sent.Key)
}

func TestCnRestDriver(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/json_rpc", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "getblockcount":
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{"count": 1000001}})
		case "getblockheaderbyheight":
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{"block_header": map[string]any{
					"height": 1000000, "hash": "cn-hash"}}})
		}
	})
	mux.HandleFunc("/addresses/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "api-key", r.Header.Get("X-API-KEY"))
		json.NewEncoder(w).Encode(map[string]any{"integratedAddress": "wrkz-int"})
	})
	mux.HandleFunc("/transactions/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"transactions": []map[string]any{
				{
					"hash": "tx-1", "blockHeight": 999000, "paymentID": "pid-1",
					"transfers": []map[string]any{
						{"address": "wrkz-master", "amount": 5000},
						{"address": "wrkz-other", "amount": 100},
					},
				},
				{
					"hash": "tx-2", "blockHeight": 999000, "paymentID": "",
					"transfers": []map[string]any{
						{"address": "wrkz-master", "amount": 5000},
					},
				},
			},
		})
	})
	mux.HandleFunc("/transactions/send/advanced", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "api-key", r.Header.Get("X-API-KEY"))
		json.NewEncoder(w).Encode(map[string]any{"transactionHash": "wrkz-tx"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cs := &CoinSetting{
		CoinName:      "WRKZ",
		Type:          CoinTypeTrtlAPI,
		DaemonAddress: srv.URL,
		WalletAddress: srv.URL,
		Header:        "api-key",
		MainAddress:   "wrkz-master",
		Decimal:       2,
	}
	drv := new(CnRestDriver)
	ctx := context.Background()

	tip, err := drv.TopBlock(ctx, cs)
	require.NoError(t, err)
	require.Equal(t, int64(1000000), tip.Height)

	addr, err := drv.MakeAddress(ctx, cs)
	require.NoError(t, err)
	require.Equal(t, "wrkz-int", addr.Address)
	require.Len(t, addr.Extra, 64)

	// only master-address slots with a payment id are credits
	list, err := drv.ListTransfers(ctx, cs, 998000, 1000000)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "tx-1", list[0].TxID)
	require.Equal(t, int64(5000), list[0].Amount)

	sent, err := drv.SendExternal(ctx, cs, "wrkz-master", "wrkz-dest", 10)
	require.NoError(t, err)
	require.Equal(t, "wrkz-tx", sent.Hash)
}

func TestDriverErrors(t *testing.T) {
	// non-2xx maps to a rejection
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	cs := &CoinSetting{Type: CoinTypeBTC, DaemonAddress: bad.URL, Decimal: 8}
	_, err := new(BtcDriver).TopBlock(context.Background(), cs)
	require.ErrorIs(t, err, ErrBackendRejected)

	// a dead endpoint maps to unreachable
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()
	cs = &CoinSetting{Type: CoinTypeBTC, DaemonAddress: dead.URL, Decimal: 8}
	_, err = new(BtcDriver).TopBlock(context.Background(), cs)
	require.ErrorIs(t, err, ErrBackendUnreachable)

	// an RPC error member is a rejection
	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":-5,"message":"no such address"}}`)
	}))
	defer errSrv.Close()
	cs = &CoinSetting{Type: CoinTypeBTC, DaemonAddress: errSrv.URL, Decimal: 8}
	_, err = new(BtcDriver).MakeAddress(context.Background(), cs)
	require.ErrorIs(t, err, ErrBackendRejected)
}
