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
	"database/sql"
	"time"
)

// Credit states of a deposit
const (
	CreditNo  = "NO"
	CreditYes = "YES"
)

// Deposit is one detected on-chain credit. Unique on
// (coin_name, txid, address).
type Deposit struct {
	ID            int64   `json:"id"`
	CoinName      string  `json:"coin_name"`
	ApiID         int64   `json:"api_id"`
	DepostID      int64   `json:"depost_id"`
	TxID          string  `json:"txid"`
	BlockHash     string  `json:"blockhash"`
	Address       string  `json:"address"`
	Extra         string  `json:"extra"`
	Height        int64   `json:"height"`
	Amount        float64 `json:"amount"`
	Confirmations int64   `json:"confirmations"`
	TimeInsert    int64   `json:"time"`
	CanCredit     string  `json:"can_credit"`
	AlreadyNoted  int     `json:"noted"`
	NotedTime     int64   `json:"noted_time"`
	Tag           string  `json:"tag"`
	SecondTag     string  `json:"second_tag"`
}

const depositCols = "id,coin_name,api_id,depost_id,txid,blockhash,address," +
	"extra,height,amount,confirmations,time_insert,can_credit,already_noted,noted_time"

func scanDeposit(sc interface{ Scan(...any) error }) (*Deposit, error) {
	d := new(Deposit)
	var blockhash, extra sql.NullString
	var height, noted sql.NullInt64
	err := sc.Scan(
		&d.ID, &d.CoinName, &d.ApiID, &d.DepostID, &d.TxID, &blockhash,
		&d.Address, &extra, &height, &d.Amount, &d.Confirmations,
		&d.TimeInsert, &d.CanCredit, &d.AlreadyNoted, &noted)
	if err != nil {
		return nil, err
	}
	d.BlockHash = blockhash.String
	d.Extra = extra.String
	d.Height = height.Int64
	d.NotedTime = noted.Int64
	return d, nil
}

// UpsertDeposit records a detected credit; duplicates on
// (coin_name, txid, address) are silently ignored.
func (mdl *Model) UpsertDeposit(d *Deposit) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	_, err := mdl.inst.Exec(
		mdl.insertIgnore()+" deposits(coin_name,api_id,depost_id,txid,"+
			"blockhash,address,extra,height,amount,confirmations,time_insert,can_credit)"+
			" values(?,?,?,?,?,?,?,?,?,?,?,?)",
		d.CoinName, d.ApiID, d.DepostID, d.TxID, nullable(d.BlockHash),
		d.Address, nullable(d.Extra), d.Height, d.Amount, d.Confirmations,
		time.Now().Unix(), CreditNo)
	return err
}

// HasDeposit checks whether a credit was already recorded.
func (mdl *Model) HasDeposit(coinName, txid, address string) (bool, error) {
	// check for valid repository
	if mdl.inst == nil {
		return false, ErrModelNotAvailable
	}
	row := mdl.inst.QueryRow(
		"select count(*) from deposits where coin_name=? and txid=? and address=?",
		coinName, txid, address)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// PendingDeposits returns all rows still waiting for their depth.
func (mdl *Model) PendingDeposits() (list []*Deposit, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	var rows *sql.Rows
	if rows, err = mdl.inst.Query(
		"select "+depositCols+" from deposits where can_credit=?", CreditNo); err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var d *Deposit
		if d, err = scanDeposit(rows); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return
}

// PromoteDeposit flips one pending deposit to spendable and credits the
// owning address's counters in the same transaction. Promotion is
// one-way: a YES row is never touched again.
func (mdl *Model) PromoteDeposit(id int64) (promoted bool, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return false, ErrModelNotAvailable
	}
	var tx *sql.Tx
	if tx, err = mdl.inst.BeginTx(context.Background(), nil); err != nil {
		return
	}
	var res sql.Result
	if res, err = tx.Exec(
		"update deposits set can_credit=? where id=? and can_credit=?",
		CreditYes, id, CreditNo); err != nil {
		tx.Rollback()
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// already promoted by a concurrent run
		tx.Rollback()
		return false, nil
	}
	row := tx.QueryRow("select depost_id,amount from deposits where id=?", id)
	var depostID int64
	var amount float64
	if err = row.Scan(&depostID, &amount); err != nil {
		tx.Rollback()
		return
	}
	if _, err = tx.Exec(
		"update deposit_addresses set total_deposited=total_deposited+?,"+
			" numb_deposit=numb_deposit+1 where id=?", amount, depostID); err != nil {
		tx.Rollback()
		return
	}
	return true, tx.Commit()
}

// FindTx looks up one deposit of an API user by transaction hash.
func (mdl *Model) FindTx(coinName, txid string, apiID int64) (*Deposit, error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	row := mdl.inst.QueryRow(
		"select "+depositCols+" from deposits"+
			" where api_id=? and coin_name=? and txid=?", apiID, coinName, txid)
	d, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// NoteTx marks a deposit as acknowledged by the downstream consumer.
func (mdl *Model) NoteTx(coinName, txid string, apiID, depostID int64) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	_, err := mdl.inst.Exec(
		"update deposits set already_noted=1, noted_time=?"+
			" where api_id=? and coin_name=? and txid=? and depost_id=?",
		time.Now().Unix(), apiID, coinName, txid, depostID)
	return err
}

// ListDeposits returns the deposit history of an API user for a coin,
// optionally narrowed to one address, newest first.
func (mdl *Model) ListDeposits(coinName string, apiID int64, address string, limit int) (list []*Deposit, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	query := "select d.id,d.coin_name,d.api_id,d.depost_id,d.txid,d.blockhash," +
		"d.address,d.extra,d.height,d.amount,d.confirmations,d.time_insert," +
		"d.can_credit,d.already_noted,d.noted_time,a.tag,a.second_tag" +
		" from deposits d inner join deposit_addresses a on a.id=d.depost_id" +
		" where d.api_id=? and d.coin_name=?"
	args := []any{apiID, coinName}
	if address != "" {
		query += " and d.address=?"
		args = append(args, address)
	}
	query += " order by d.time_insert desc limit ?"
	args = append(args, limit)

	var rows *sql.Rows
	if rows, err = mdl.inst.Query(query, args...); err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		d := new(Deposit)
		var blockhash, extra, second sql.NullString
		var height, noted sql.NullInt64
		if err = rows.Scan(
			&d.ID, &d.CoinName, &d.ApiID, &d.DepostID, &d.TxID, &blockhash,
			&d.Address, &extra, &height, &d.Amount, &d.Confirmations,
			&d.TimeInsert, &d.CanCredit, &d.AlreadyNoted, &noted,
			&d.Tag, &second); err != nil {
			return nil, err
		}
		d.BlockHash = blockhash.String
		d.Extra = extra.String
		d.Height = height.Int64
		d.NotedTime = noted.Int64
		d.SecondTag = second.String
		list = append(list, d)
	}
	return
}

//----------------------------------------------------------------------
// Withdraws
//----------------------------------------------------------------------

// Withdraw is one broadcast on-chain payout. Inserted only after the
// backend driver returned a transaction hash.
type Withdraw struct {
	ID            int64   `json:"id"`
	ApiID         int64   `json:"api_id"`
	CoinName      string  `json:"coin_name"`
	FromAddress   string  `json:"from_address"`
	Amount        float64 `json:"amount"`
	FeeAndTax     float64 `json:"fee_and_tax"`
	FromDepositID int64   `json:"from_deposit_id"`
	ToAddress     string  `json:"to_address"`
	TxID          string  `json:"txid"`
	TxKey         string  `json:"tx_key"`
	Timestamp     int64   `json:"time"`
	Remark        string  `json:"remark"`
	RefUUID       string  `json:"ref_uuid"`
	Tag           string  `json:"tag"`
	SecondTag     string  `json:"second_tag"`
}

// InsertWithdraw persists a successful payout and debits the address's
// counters (amount plus fee) in the same transaction.
func (mdl *Model) InsertWithdraw(w *Withdraw) (err error) {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	var tx *sql.Tx
	if tx, err = mdl.inst.BeginTx(context.Background(), nil); err != nil {
		return
	}
	if _, err = tx.Exec(
		"insert into withdraws(api_id,coin_name,from_address,amount,fee_and_tax,"+
			"from_deposit_id,to_address,txid,tx_key,timestamp,remark,ref_uuid)"+
			" values(?,?,?,?,?,?,?,?,?,?,?,?)",
		w.ApiID, w.CoinName, w.FromAddress, w.Amount, w.FeeAndTax,
		w.FromDepositID, w.ToAddress, w.TxID, nullable(w.TxKey),
		time.Now().Unix(), w.Remark, w.RefUUID); err != nil {
		tx.Rollback()
		return
	}
	if _, err = tx.Exec(
		"update deposit_addresses set total_withdrew=total_withdrew+?,"+
			" numb_withdrew=numb_withdrew+1 where id=?",
		w.Amount+w.FeeAndTax, w.FromDepositID); err != nil {
		tx.Rollback()
		return
	}
	return tx.Commit()
}

// ListWithdraws returns the payout history of an API user for a coin,
// optionally narrowed to one source address, newest first.
func (mdl *Model) ListWithdraws(coinName string, apiID int64, address string, limit int) (list []*Withdraw, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	query := "select w.id,w.api_id,w.coin_name,w.from_address,w.amount," +
		"w.fee_and_tax,w.from_deposit_id,w.to_address,w.txid,w.tx_key," +
		"w.timestamp,w.remark,w.ref_uuid,a.tag,a.second_tag" +
		" from withdraws w inner join deposit_addresses a on a.address=w.from_address" +
		" where w.api_id=? and w.coin_name=?"
	args := []any{apiID, coinName}
	if address != "" {
		query += " and w.from_address=?"
		args = append(args, address)
	}
	query += " order by w.timestamp desc limit ?"
	args = append(args, limit)

	var rows *sql.Rows
	if rows, err = mdl.inst.Query(query, args...); err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		w := new(Withdraw)
		var txKey, remark, second sql.NullString
		if err = rows.Scan(
			&w.ID, &w.ApiID, &w.CoinName, &w.FromAddress, &w.Amount,
			&w.FeeAndTax, &w.FromDepositID, &w.ToAddress, &w.TxID, &txKey,
			&w.Timestamp, &remark, &w.RefUUID, &w.Tag, &second); err != nil {
			return nil, err
		}
		w.TxKey = txKey.String
		w.Remark = remark.String
		w.SecondTag = second.String
		list = append(list, w)
	}
	return
}

//----------------------------------------------------------------------
// Transfers
//----------------------------------------------------------------------

// TransferRecord is one leg of an internal book transfer. All records
// of one API call share a ref_uuid.
type TransferRecord struct {
	ApiID       int64   `json:"api_id"`
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	Amount      float64 `json:"amount"`
	CoinName    string  `json:"coin_name"`
	Purpose     string  `json:"purpose"`
	Timestamp   int64   `json:"time"`
	RefUUID     string  `json:"ref_uuid"`

	fromID int64
	toID   int64
}

// Bind attaches the resolved sender and receiver address rows; the ids
// are needed for the counter updates.
func (tr *TransferRecord) Bind(from, to *DepositAddress) {
	tr.fromID = from.ID
	tr.toID = to.ID
}

// BatchTransfer persists all records of one call atomically: rows plus
// sender/receiver counters commit together or not at all.
func (mdl *Model) BatchTransfer(records []*TransferRecord) (err error) {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	var tx *sql.Tx
	if tx, err = mdl.inst.BeginTx(context.Background(), nil); err != nil {
		return
	}
	now := time.Now().Unix()
	counter := func(set string, amount float64, id int64) error {
		res, err := tx.Exec(
			"update deposit_addresses set "+set+" where id=?", amount, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return ErrMdlNoAddress
		}
		return nil
	}
	for _, tr := range records {
		if _, err = tx.Exec(
			"insert into transfer_records(api_id,from_address,to_address,amount,"+
				"coin_name,purpose,timestamp,ref_uuid) values(?,?,?,?,?,?,?,?)",
			tr.ApiID, tr.FromAddress, tr.ToAddress, tr.Amount, tr.CoinName,
			nullable(tr.Purpose), now, tr.RefUUID); err != nil {
			tx.Rollback()
			return
		}
		if err = counter("total_sent=total_sent+?, numb_sent=numb_sent+1",
			tr.Amount, tr.fromID); err != nil {
			tx.Rollback()
			return
		}
		if err = counter("total_received=total_received+?, numb_received=numb_received+1",
			tr.Amount, tr.toID); err != nil {
			tx.Rollback()
			return
		}
	}
	return tx.Commit()
}

// CountTransfersByRef returns the number of persisted rows of a batch.
func (mdl *Model) CountTransfersByRef(refUUID string) (count int, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return 0, ErrModelNotAvailable
	}
	row := mdl.inst.QueryRow(
		"select count(*) from transfer_records where ref_uuid=?", refUUID)
	err = row.Scan(&count)
	return
}

//----------------------------------------------------------------------
// Holds
//----------------------------------------------------------------------

// Hold is a time-bounded reservation against an address's balance.
type Hold struct {
	ID           int64
	CoinName     string
	ApiID        int64
	DepositID    int64
	Address      string
	HoldAmount   float64
	TimeInsert   int64
	TimeExpiring int64
	Purpose      string
}

// InsertHold reserves part of an address's balance and raises the
// amount_hold counter in the same transaction.
func (mdl *Model) InsertHold(h *Hold) (err error) {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	var tx *sql.Tx
	if tx, err = mdl.inst.BeginTx(context.Background(), nil); err != nil {
		return
	}
	if _, err = tx.Exec(
		"insert into balance_holds(coin_name,api_id,deposit_id,address,"+
			"hold_amount,time_insert,time_expiring,purpose) values(?,?,?,?,?,?,?,?)",
		h.CoinName, h.ApiID, h.DepositID, h.Address, h.HoldAmount,
		time.Now().Unix(), h.TimeExpiring, nullable(h.Purpose)); err != nil {
		tx.Rollback()
		return
	}
	if _, err = tx.Exec(
		"update deposit_addresses set amount_hold=amount_hold+? where id=?",
		h.HoldAmount, h.DepositID); err != nil {
		tx.Rollback()
		return
	}
	return tx.Commit()
}

// SweepHolds deletes all expired holds and releases their amounts from
// the address counters. Returns the number of purged holds.
func (mdl *Model) SweepHolds() (purged int, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return 0, ErrModelNotAvailable
	}
	now := time.Now().Unix()
	var tx *sql.Tx
	if tx, err = mdl.inst.BeginTx(context.Background(), nil); err != nil {
		return
	}
	var rows *sql.Rows
	if rows, err = tx.Query(
		"select id,deposit_id,hold_amount from balance_holds where time_expiring<?", now); err != nil {
		tx.Rollback()
		return
	}
	type expired struct {
		id, depositID int64
		amount        float64
	}
	var list []expired
	for rows.Next() {
		var e expired
		if err = rows.Scan(&e.id, &e.depositID, &e.amount); err != nil {
			rows.Close()
			tx.Rollback()
			return
		}
		list = append(list, e)
	}
	rows.Close()
	for _, e := range list {
		if _, err = tx.Exec(
			"update deposit_addresses set amount_hold=amount_hold-? where id=?",
			e.amount, e.depositID); err != nil {
			tx.Rollback()
			return
		}
		if _, err = tx.Exec("delete from balance_holds where id=?", e.id); err != nil {
			tx.Rollback()
			return
		}
	}
	return len(list), tx.Commit()
}

//----------------------------------------------------------------------
// Audit logs
//----------------------------------------------------------------------

// InsertApiLog appends a success log for an API invocation.
func (mdl *Model) InsertApiLog(apiID int64, method, data, result string) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	_, err := mdl.inst.Exec(
		"insert into api_logs(api_id,method,data,result,time) values(?,?,?,?,?)",
		apiID, method, data, result, time.Now().Unix())
	return err
}

// InsertApiFailedLog appends a failure log for an API invocation.
func (mdl *Model) InsertApiFailedLog(apiID int64, method, data, result string) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	_, err := mdl.inst.Exec(
		"insert into api_logs_failed(api_id,method,data,result,time) values(?,?,?,?,?)",
		apiID, method, data, result, time.Now().Unix())
	return err
}
