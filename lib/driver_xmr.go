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
)

//======================================================================
// XMR family (Monero wallet-rpc and CryptoNote walletd JSON-RPC 2.0)
//======================================================================

// XmrDriver speaks to monero-wallet-rpc (type XMR) and to CryptoNote
// wallet services (types TRTL-SERVICE, BCN). Deposits are routed by
// integrated addresses, so every credit carries a payment id.
type XmrDriver struct{}

// the UPX fork demands a fixed ring size on 'transfer'
const upxRingSize = 11

// daemonMethods returns the tip-query method pair for the coin type.
func (drv *XmrDriver) daemonMethods(coinType string) (count, header string) {
	if coinType == CoinTypeXMR {
		return "get_block_count", "get_block_header_by_height"
	}
	return "getblockcount", "getblockheaderbyheight"
}

// TopBlock queries the daemon block count and resolves the tip header
// for its hash.
func (drv *XmrDriver) TopBlock(ctx context.Context, cs *CoinSetting) (*TopBlock, error) {
	countMethod, headerMethod := drv.daemonMethods(cs.Type)
	url := cs.DaemonAddress + "/json_rpc"
	res, err := rpcCall(ctx, url, countMethod, nil, timeoutStatus)
	if err != nil {
		return nil, err
	}
	var count struct {
		Count int64 `json:"count"`
	}
	if err = json.Unmarshal(res, &count); err != nil || count.Count == 0 {
		return nil, ErrBackendRejected
	}
	res, err = rpcCall(ctx, url, headerMethod,
		map[string]any{"height": count.Count - 1}, timeoutStatus)
	if err != nil {
		return nil, err
	}
	var header struct {
		BlockHeader struct {
			Height int64  `json:"height"`
			Hash   string `json:"hash"`
		} `json:"block_header"`
	}
	if err = json.Unmarshal(res, &header); err != nil {
		return nil, ErrBackendRejected
	}
	return &TopBlock{
		Height: header.BlockHeader.Height,
		Hash:   header.BlockHeader.Hash,
	}, nil
}

// MakeAddress derives an integrated address with a wallet-chosen
// payment id bound to the coin's main address.
func (drv *XmrDriver) MakeAddress(ctx context.Context, cs *CoinSetting) (*NewAddress, error) {
	res, err := rpcCall(ctx, cs.WalletAddress, "make_integrated_address",
		map[string]any{"standard_address": cs.MainAddress}, timeoutStatus)
	if err != nil {
		return nil, err
	}
	var addr struct {
		IntegratedAddress string `json:"integrated_address"`
		PaymentID         string `json:"payment_id"`
	}
	if err = json.Unmarshal(res, &addr); err != nil || addr.IntegratedAddress == "" {
		return nil, ErrBackendRejected
	}
	return &NewAddress{Address: addr.IntegratedAddress, Extra: addr.PaymentID}, nil
}

// ListTransfers reads incoming wallet transfers within a height window.
func (drv *XmrDriver) ListTransfers(ctx context.Context, cs *CoinSetting, fromHeight, toHeight int64) ([]*WalletTransfer, error) {
	payload := map[string]any{
		"in":               true,
		"out":              true,
		"pending":          false,
		"failed":           false,
		"pool":             false,
		"filter_by_height": true,
		"min_height":       fromHeight,
		"max_height":       toHeight,
	}
	res, err := rpcCall(ctx, cs.WalletAddress, "get_transfers", payload, timeoutQuery)
	if err != nil {
		return nil, err
	}
	var transfers struct {
		In []struct {
			TxID      string `json:"txid"`
			Height    int64  `json:"height"`
			Amount    int64  `json:"amount"`
			PaymentID string `json:"payment_id"`
		} `json:"in"`
	}
	if err = json.Unmarshal(res, &transfers); err != nil {
		return nil, ErrBackendRejected
	}
	list := make([]*WalletTransfer, 0, len(transfers.In))
	for _, tx := range transfers.In {
		if tx.PaymentID == "" {
			continue
		}
		list = append(list, &WalletTransfer{
			TxID:          tx.TxID,
			Height:        tx.Height,
			Amount:        tx.Amount,
			Discriminator: tx.PaymentID,
			Confirmations: toHeight - tx.Height,
		})
	}
	return list, nil
}

// SendExternal broadcasts a payout. Monero wallets use 'transfer',
// CryptoNote wallet services 'sendTransaction'; fee-per-byte backends
// choose the fee themselves.
func (drv *XmrDriver) SendExternal(ctx context.Context, cs *CoinSetting, fromAddr, toAddr string, amount float64) (*SendResult, error) {
	units := AtomicUnits(amount, cs.Decimal)
	if cs.Type == CoinTypeXMR {
		payload := map[string]any{
			"destinations": []map[string]any{
				{"amount": units, "address": toAddr},
			},
			"account_index":   0,
			"subaddr_indices": []int{},
			"priority":        1,
			"unlock_time":     0,
			"get_tx_key":      true,
			"get_tx_hex":      false,
			"get_tx_metadata": false,
		}
		// UPX takes a fixed ring size instead of priority/unlock_time
		if cs.CoinName == "UPX" {
			delete(payload, "priority")
			delete(payload, "unlock_time")
			payload["ring_size"] = upxRingSize
		}
		res, err := rpcCall(ctx, cs.WalletAddress, "transfer", payload, timeoutSend)
		if err != nil {
			return nil, err
		}
		var send struct {
			TxHash string `json:"tx_hash"`
			TxKey  string `json:"tx_key"`
		}
		if err = json.Unmarshal(res, &send); err != nil || send.TxHash == "" {
			return nil, ErrBackendRejected
		}
		return &SendResult{Hash: send.TxHash, Key: send.TxKey}, nil
	}

	payload := map[string]any{
		"addresses": []string{fromAddr},
		"transfers": []map[string]any{
			{"amount": units, "address": toAddr},
		},
		"anonymity": cs.Mixin,
	}
	if cs.IsFeePerByte != 1 {
		payload["fee"] = AtomicUnits(cs.FeeWithdraw, cs.Decimal)
	}
	res, err := rpcCall(ctx, cs.WalletAddress, "sendTransaction", payload, timeoutSend)
	if err != nil {
		return nil, err
	}
	var send struct {
		TransactionHash string `json:"transactionHash"`
	}
	if err = json.Unmarshal(res, &send); err != nil || send.TransactionHash == "" {
		return nil, ErrBackendRejected
	}
	return &SendResult{Hash: send.TransactionHash}, nil
}
