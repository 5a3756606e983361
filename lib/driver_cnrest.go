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
)

//======================================================================
// CN-REST family (wallet-api style REST with X-API-KEY)
//======================================================================

// CnRestDriver speaks to CryptoNote wallet-api services (type
// TRTL-API). Addresses are integrated addresses derived from the master
// address and a server-generated random payment id.
type CnRestDriver struct{}

func (drv *CnRestDriver) headers(cs *CoinSetting) map[string]string {
	return map[string]string{
		"X-API-KEY":    cs.Header,
		"Content-Type": "application/json",
	}
}

// TopBlock queries the daemon block count (CryptoNote JSON-RPC).
func (drv *CnRestDriver) TopBlock(ctx context.Context, cs *CoinSetting) (*TopBlock, error) {
	url := cs.DaemonAddress + "/json_rpc"
	res, err := rpcCall(ctx, url, "getblockcount", nil, timeoutStatus)
	if err != nil {
		return nil, err
	}
	var count struct {
		Count int64 `json:"count"`
	}
	if err = json.Unmarshal(res, &count); err != nil || count.Count == 0 {
		return nil, ErrBackendRejected
	}
	res, err = rpcCall(ctx, url, "getblockheaderbyheight",
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

// MakeAddress binds a fresh random payment id to the master address.
func (drv *CnRestDriver) MakeAddress(ctx context.Context, cs *CoinSetting) (*NewAddress, error) {
	paymentID := PaymentID(32)
	url := fmt.Sprintf("%s/addresses/%s/%s", cs.WalletAddress, cs.MainAddress, paymentID)
	data, err := httpGet(ctx, url, drv.headers(cs), timeoutStatus)
	if err != nil {
		return nil, err
	}
	var addr struct {
		IntegratedAddress string `json:"integratedAddress"`
	}
	if err = json.Unmarshal(data, &addr); err != nil || addr.IntegratedAddress == "" {
		return nil, ErrBackendRejected
	}
	return &NewAddress{Address: addr.IntegratedAddress, Extra: paymentID}, nil
}

// cnRestTx is one wallet-api transaction with its per-address slots.
type cnRestTx struct {
	Hash        string `json:"hash"`
	BlockHeight int64  `json:"blockHeight"`
	PaymentID   string `json:"paymentID"`
	Transfers   []struct {
		Address string `json:"address"`
		Amount  int64  `json:"amount"`
	} `json:"transfers"`
}

// ListTransfers reads wallet transactions within a height window. Only
// credits destined for the master address with a payment id count.
func (drv *CnRestDriver) ListTransfers(ctx context.Context, cs *CoinSetting, fromHeight, toHeight int64) ([]*WalletTransfer, error) {
	url := fmt.Sprintf("%s/transactions/%d/%d", cs.WalletAddress, fromHeight, toHeight)
	data, err := httpGet(ctx, url, drv.headers(cs), timeoutQuery)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Transactions []*cnRestTx `json:"transactions"`
	}
	if err = json.Unmarshal(data, &resp); err != nil {
		return nil, ErrBackendRejected
	}
	list := make([]*WalletTransfer, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		if tx.PaymentID == "" || len(tx.Transfers) == 0 {
			continue
		}
		// one block can hold credits for several payment ids; only
		// slots paying the master address belong to this wallet
		var amount int64
		for _, slot := range tx.Transfers {
			if slot.Address == cs.MainAddress && slot.Amount > 0 {
				amount += slot.Amount
			}
		}
		if amount == 0 {
			continue
		}
		list = append(list, &WalletTransfer{
			TxID:          tx.Hash,
			Height:        tx.BlockHeight,
			Amount:        amount,
			Discriminator: tx.PaymentID,
			Confirmations: toHeight - tx.BlockHeight,
		})
	}
	return list, nil
}

// SendExternal broadcasts a payout through the advanced send endpoint.
func (drv *CnRestDriver) SendExternal(ctx context.Context, cs *CoinSetting, fromAddr, toAddr string, amount float64) (*SendResult, error) {
	payload := map[string]any{
		"destinations": []map[string]any{
			{"address": toAddr, "amount": AtomicUnits(amount, cs.Decimal)},
		},
		"mixin":           cs.Mixin,
		"sourceAddresses": []string{fromAddr},
		"paymentID":       "",
		"changeAddress":   fromAddr,
	}
	if cs.IsFeePerByte != 1 {
		payload["fee"] = AtomicUnits(cs.FeeWithdraw, cs.Decimal)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	data, err := httpPost(ctx, cs.WalletAddress+"/transactions/send/advanced",
		body, drv.headers(cs), timeoutSend)
	if err != nil {
		return nil, err
	}
	var send struct {
		TransactionHash string `json:"transactionHash"`
	}
	if err = json.Unmarshal(data, &send); err != nil || send.TransactionHash == "" {
		return nil, ErrBackendRejected
	}
	return &SendResult{Hash: send.TransactionHash}, nil
}
