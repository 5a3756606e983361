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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// seedAddress creates an owner and one deposit address.
func seedAddress(t *testing.T, mdl *Model, coin, addr, tag string) (apiID, addrID int64) {
	t.Helper()
	apiID, err := mdl.AddApiUser("key-"+addr, coin)
	require.NoError(t, err)
	addrID, err = mdl.InsertAddress(apiID, coin, addr, "", "", tag, "")
	require.NoError(t, err)
	return
}

// credit books a promoted deposit on an address.
func credit(t *testing.T, mdl *Model, coin string, apiID, addrID int64, addr, txid string, amount float64) {
	t.Helper()
	require.NoError(t, mdl.UpsertDeposit(&Deposit{
		CoinName: coin,
		ApiID:    apiID,
		DepostID: addrID,
		TxID:     txid,
		Address:  addr,
		Height:   100,
		Amount:   amount,
	}))
	dep, err := mdl.FindTx(coin, txid, apiID)
	require.NoError(t, err)
	promoted, err := mdl.PromoteDeposit(dep.ID)
	require.NoError(t, err)
	require.True(t, promoted)
}

func TestDepositIdempotent(t *testing.T) {
	mdl := testModel(t)
	apiID, addrID := seedAddress(t, mdl, "BTC", "addr-1", "t1")

	dep := &Deposit{
		CoinName: "BTC",
		ApiID:    apiID,
		DepostID: addrID,
		TxID:     "tx-1",
		Address:  "addr-1",
		Height:   100,
		Amount:   1.5,
	}
	require.NoError(t, mdl.UpsertDeposit(dep))
	require.NoError(t, mdl.UpsertDeposit(dep))
	require.NoError(t, mdl.UpsertDeposit(dep))

	// at most one row per (coin, txid, address)
	var count int
	row := mdl.inst.QueryRow(
		"select count(*) from deposits where coin_name=? and txid=? and address=?",
		"BTC", "tx-1", "addr-1")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)

	exists, err := mdl.HasDeposit("BTC", "tx-1", "addr-1")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = mdl.HasDeposit("BTC", "tx-2", "addr-1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDepositPromotion(t *testing.T) {
	mdl := testModel(t)
	apiID, addrID := seedAddress(t, mdl, "BTC", "addr-1", "t1")

	require.NoError(t, mdl.UpsertDeposit(&Deposit{
		CoinName: "BTC",
		ApiID:    apiID,
		DepostID: addrID,
		TxID:     "tx-1",
		Address:  "addr-1",
		Height:   100,
		Amount:   2.5,
	}))
	pending, err := mdl.PendingDeposits()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, CreditNo, pending[0].CanCredit)

	// promotion flips the row and credits the counters atomically
	promoted, err := mdl.PromoteDeposit(pending[0].ID)
	require.NoError(t, err)
	require.True(t, promoted)

	da, err := mdl.GetAddress(apiID, "BTC", "addr-1")
	require.NoError(t, err)
	require.Equal(t, 2.5, da.TotalDeposited)
	require.Equal(t, int64(1), da.NumbDeposit)
	require.Equal(t, 2.5, da.Balance(8))

	// a second promotion is a no-op; counters stay intact
	promoted, err = mdl.PromoteDeposit(pending[0].ID)
	require.NoError(t, err)
	require.False(t, promoted)
	da, err = mdl.GetAddress(apiID, "BTC", "addr-1")
	require.NoError(t, err)
	require.Equal(t, 2.5, da.TotalDeposited)
	require.Equal(t, int64(1), da.NumbDeposit)

	// and the row never regresses
	pending, err = mdl.PendingDeposits()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestNoteTx(t *testing.T) {
	mdl := testModel(t)
	apiID, addrID := seedAddress(t, mdl, "BTC", "addr-1", "t1")
	credit(t, mdl, "BTC", apiID, addrID, "addr-1", "tx-1", 1.0)

	dep, err := mdl.FindTx("BTC", "tx-1", apiID)
	require.NoError(t, err)
	require.NotNil(t, dep)
	require.Zero(t, dep.AlreadyNoted)

	require.NoError(t, mdl.NoteTx("BTC", "tx-1", apiID, addrID))
	dep, err = mdl.FindTx("BTC", "tx-1", apiID)
	require.NoError(t, err)
	require.Equal(t, 1, dep.AlreadyNoted)
	require.NotZero(t, dep.NotedTime)

	// unknown tx resolves to nil
	dep, err = mdl.FindTx("BTC", "tx-404", apiID)
	require.NoError(t, err)
	require.Nil(t, dep)
}

func TestInsertWithdraw(t *testing.T) {
	mdl := testModel(t)
	apiID, addrID := seedAddress(t, mdl, "BTC", "addr-1", "t1")
	credit(t, mdl, "BTC", apiID, addrID, "addr-1", "tx-1", 10)

	require.NoError(t, mdl.InsertWithdraw(&Withdraw{
		ApiID:         apiID,
		CoinName:      "BTC",
		FromAddress:   "addr-1",
		Amount:        2,
		FeeAndTax:     0.5,
		FromDepositID: addrID,
		ToAddress:     "external",
		TxID:          "wtx-1",
		RefUUID:       "ref-1",
	}))
	da, err := mdl.GetAddress(apiID, "BTC", "addr-1")
	require.NoError(t, err)
	// fee and amount both leave the balance
	require.Equal(t, 2.5, da.TotalWithdrew)
	require.Equal(t, int64(1), da.NumbWithdrew)
	require.Equal(t, 7.5, da.Balance(8))

	list, err := mdl.ListWithdraws("BTC", apiID, "addr-1", 500)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "wtx-1", list[0].TxID)
	require.Equal(t, 0.5, list[0].FeeAndTax)
}

func TestBatchTransferAtomic(t *testing.T) {
	mdl := testModel(t)
	apiID, aID := seedAddress(t, mdl, "BTC", "addr-a", "ta")
	_, bID := seedAddress(t, mdl, "BTC", "addr-b", "tb")
	credit(t, mdl, "BTC", apiID, aID, "addr-a", "tx-1", 10)

	// a failing record rolls back the whole batch
	good := &TransferRecord{
		ApiID:       apiID,
		FromAddress: "addr-a",
		ToAddress:   "addr-b",
		Amount:      1,
		CoinName:    "BTC",
		RefUUID:     "ref-fail",
	}
	good.fromID = aID
	good.toID = bID
	bad := &TransferRecord{
		ApiID:       apiID,
		FromAddress: "addr-a",
		ToAddress:   "addr-c",
		Amount:      1,
		CoinName:    "BTC",
		RefUUID:     "ref-fail",
	}
	bad.fromID = aID
	bad.toID = 9999 // no such address
	err := mdl.BatchTransfer([]*TransferRecord{good, bad})
	require.Error(t, err)
	count, err := mdl.CountTransfersByRef("ref-fail")
	require.NoError(t, err)
	require.Zero(t, count)
	da, err := mdl.GetAddress(apiID, "BTC", "addr-a")
	require.NoError(t, err)
	require.Zero(t, da.TotalSent)

	// a clean batch persists every row under one ref
	good2 := *good
	good2.RefUUID = "ref-ok"
	good3 := *good
	good3.RefUUID = "ref-ok"
	good3.Amount = 2
	require.NoError(t, mdl.BatchTransfer([]*TransferRecord{&good2, &good3}))
	count, err = mdl.CountTransfersByRef("ref-ok")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	da, err = mdl.GetAddress(apiID, "BTC", "addr-a")
	require.NoError(t, err)
	require.Equal(t, 3.0, da.TotalSent)
	require.Equal(t, int64(2), da.NumbSent)
	db := lookupByID(t, mdl, bID)
	require.Equal(t, 3.0, db.TotalReceived)
	require.Equal(t, int64(2), db.NumbReceived)
}

func lookupByID(t *testing.T, mdl *Model, id int64) *DepositAddress {
	t.Helper()
	list, err := mdl.GetDepositAddresses()
	require.NoError(t, err)
	for _, da := range list {
		if da.ID == id {
			return da
		}
	}
	t.Fatalf("address #%d not found", id)
	return nil
}

func TestHolds(t *testing.T) {
	mdl := testModel(t)
	apiID, addrID := seedAddress(t, mdl, "BTC", "addr-1", "t1")
	credit(t, mdl, "BTC", apiID, addrID, "addr-1", "tx-1", 10)

	// active hold reduces the balance
	require.NoError(t, mdl.InsertHold(&Hold{
		CoinName:     "BTC",
		ApiID:        apiID,
		DepositID:    addrID,
		Address:      "addr-1",
		HoldAmount:   4,
		TimeExpiring: time.Now().Unix() + 3600,
		Purpose:      "escrow",
	}))
	da, err := mdl.GetAddress(apiID, "BTC", "addr-1")
	require.NoError(t, err)
	require.Equal(t, 4.0, da.AmountHold)
	require.Equal(t, 6.0, da.Balance(8))

	// an unexpired hold survives the sweep
	purged, err := mdl.SweepHolds()
	require.NoError(t, err)
	require.Zero(t, purged)

	// an expired hold is purged and its amount released
	require.NoError(t, mdl.InsertHold(&Hold{
		CoinName:     "BTC",
		ApiID:        apiID,
		DepositID:    addrID,
		Address:      "addr-1",
		HoldAmount:   2,
		TimeExpiring: time.Now().Unix() - 10,
	}))
	purged, err = mdl.SweepHolds()
	require.NoError(t, err)
	require.Equal(t, 1, purged)
	da, err = mdl.GetAddress(apiID, "BTC", "addr-1")
	require.NoError(t, err)
	require.Equal(t, 4.0, da.AmountHold)
	require.Equal(t, 6.0, da.Balance(8))
}

// TestBalanceInvariant replays a mixed event sequence and checks the
// materialized counters against the recomputed sums over the event
// tables.
func TestBalanceInvariant(t *testing.T) {
	mdl := testModel(t)
	apiID, aID := seedAddress(t, mdl, "BTC", "addr-a", "ta")
	_, bID := seedAddress(t, mdl, "BTC", "addr-b", "tb")

	credit(t, mdl, "BTC", apiID, aID, "addr-a", "tx-1", 5)
	credit(t, mdl, "BTC", apiID, aID, "addr-a", "tx-2", 2.5)
	tr := &TransferRecord{
		ApiID:       apiID,
		FromAddress: "addr-a",
		ToAddress:   "addr-b",
		Amount:      1.5,
		CoinName:    "BTC",
		RefUUID:     "ref-1",
	}
	tr.fromID = aID
	tr.toID = bID
	require.NoError(t, mdl.BatchTransfer([]*TransferRecord{tr}))
	require.NoError(t, mdl.InsertWithdraw(&Withdraw{
		ApiID:         apiID,
		CoinName:      "BTC",
		FromAddress:   "addr-a",
		Amount:        1,
		FeeAndTax:     0.25,
		FromDepositID: aID,
		ToAddress:     "external",
		TxID:          "wtx-1",
		RefUUID:       "ref-2",
	}))
	require.NoError(t, mdl.InsertHold(&Hold{
		CoinName:     "BTC",
		ApiID:        apiID,
		DepositID:    aID,
		Address:      "addr-1",
		HoldAmount:   0.5,
		TimeExpiring: time.Now().Unix() + 3600,
	}))

	da, err := mdl.GetAddress(apiID, "BTC", "addr-a")
	require.NoError(t, err)

	// recompute each counter from its event table
	var sum float64
	row := mdl.inst.QueryRow(
		"select coalesce(sum(amount),0) from deposits where depost_id=? and can_credit='YES'", aID)
	require.NoError(t, row.Scan(&sum))
	require.Equal(t, sum, da.TotalDeposited)

	row = mdl.inst.QueryRow(
		"select coalesce(sum(amount),0) from transfer_records where from_address=?", "addr-a")
	require.NoError(t, row.Scan(&sum))
	require.Equal(t, sum, da.TotalSent)

	row = mdl.inst.QueryRow(
		"select coalesce(sum(amount+fee_and_tax),0) from withdraws where from_deposit_id=?", aID)
	require.NoError(t, row.Scan(&sum))
	require.Equal(t, sum, da.TotalWithdrew)

	row = mdl.inst.QueryRow(
		"select coalesce(sum(hold_amount),0) from balance_holds where deposit_id=?", aID)
	require.NoError(t, row.Scan(&sum))
	require.Equal(t, sum, da.AmountHold)

	// and the derived balance follows the invariant
	expect := da.TotalDeposited + da.TotalReceived - da.TotalSent -
		da.TotalWithdrew - da.AmountHold
	require.Equal(t, RoundAmount(expect, 8), da.Balance(8))
}
