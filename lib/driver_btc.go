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
	"time"

	"github.com/google/uuid"
)

//======================================================================
// BTC family (bitcoind-compatible JSON-RPC 1.0)
//======================================================================

// BtcDriver speaks to bitcoind-style wallet daemons. The wallet itself
// discriminates deposits by address, so no payment ids are involved.
type BtcDriver struct{}

// call performs a JSON-RPC 1.0 request against the coin daemon and
// returns the raw 'result' member. Amounts on this wire are decimal
// floats.
func (drv *BtcDriver) call(ctx context.Context, url, method string, params []any, timeout time.Duration) (json.RawMessage, error) {
	payload := map[string]any{
		"jsonrpc": "1.0",
		"id":      uuid.NewString(),
		"method":  method,
		"params":  params,
	}
	if params == nil {
		payload["params"] = []any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	data, err := httpPost(ctx, url, body, nil, timeout)
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

// TopBlock returns the daemon's current block count.
func (drv *BtcDriver) TopBlock(ctx context.Context, cs *CoinSetting) (*TopBlock, error) {
	method := "getblockchaininfo"
	if cs.UseGetInfoBtc == 1 {
		method = "getinfo"
	}
	res, err := drv.call(ctx, cs.DaemonAddress, method, nil, timeoutQuery)
	if err != nil {
		return nil, err
	}
	var info struct {
		Blocks        int64  `json:"blocks"`
		BestBlockHash string `json:"bestblockhash"`
	}
	if err = json.Unmarshal(res, &info); err != nil {
		return nil, ErrBackendRejected
	}
	return &TopBlock{Height: info.Blocks, Hash: info.BestBlockHash}, nil
}

// MakeAddress mints a wallet address and exports its private key.
func (drv *BtcDriver) MakeAddress(ctx context.Context, cs *CoinSetting) (*NewAddress, error) {
	res, err := drv.call(ctx, cs.DaemonAddress, "getnewaddress", []any{}, timeoutQuery)
	if err != nil {
		return nil, err
	}
	var addr string
	if err = json.Unmarshal(res, &addr); err != nil || addr == "" {
		return nil, ErrBackendRejected
	}
	res, err = drv.call(ctx, cs.DaemonAddress, "dumpprivkey", []any{addr}, timeoutQuery)
	if err != nil {
		return nil, err
	}
	var key string
	if err = json.Unmarshal(res, &key); err != nil || key == "" {
		return nil, ErrBackendRejected
	}
	return &NewAddress{Address: addr, PrivateKey: key}, nil
}

// btcWalletTx is one entry of a 'listtransactions' response.
type btcWalletTx struct {
	Address       string  `json:"address"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	Confirmations int64   `json:"confirmations"`
	BlockHash     string  `json:"blockhash"`
	BlockHeight   int64   `json:"blockheight"`
	TxID          string  `json:"txid"`
	Time          int64   `json:"time"`
}

// ListTransfers returns recent incoming wallet credits. The wallet
// reports the last transactions regardless of the requested window;
// an entry without a block height gets one reconstructed from its
// confirmation count.
func (drv *BtcDriver) ListTransfers(ctx context.Context, cs *CoinSetting, fromHeight, toHeight int64) ([]*WalletTransfer, error) {
	res, err := drv.call(ctx, cs.DaemonAddress, "listtransactions", []any{"*", 100, 0}, timeoutQuery)
	if err != nil {
		return nil, err
	}
	var txs []*btcWalletTx
	if err = json.Unmarshal(res, &txs); err != nil {
		return nil, ErrBackendRejected
	}
	list := make([]*WalletTransfer, 0, len(txs))
	for _, tx := range txs {
		if tx.Category != "receive" || tx.Address == "" || tx.Amount <= 0 {
			continue
		}
		height := tx.BlockHeight
		if height == 0 && tx.Confirmations > 0 {
			height = toHeight - tx.Confirmations
		}
		list = append(list, &WalletTransfer{
			TxID:          tx.TxID,
			Height:        height,
			Amount:        AtomicUnits(tx.Amount, cs.Decimal),
			Discriminator: tx.Address,
			BlockHash:     tx.BlockHash,
			Confirmations: tx.Confirmations,
		})
	}
	return list, nil
}

// SendExternal broadcasts a payout with 'sendtoaddress'. PoS-style
// daemons take no subtract-fee argument.
func (drv *BtcDriver) SendExternal(ctx context.Context, cs *CoinSetting, fromAddr, toAddr string, amount float64) (*SendResult, error) {
	params := []any{toAddr, amount, fromAddr, toAddr, false}
	if cs.HasPos == 1 {
		params = []any{toAddr, amount, fromAddr, toAddr}
	}
	res, err := drv.call(ctx, cs.DaemonAddress, "sendtoaddress", params, timeoutSend)
	if err != nil {
		return nil, err
	}
	var hash string
	if err = json.Unmarshal(res, &hash); err != nil || hash == "" {
		return nil, ErrBackendRejected
	}
	return &SendResult{Hash: hash}, nil
}
