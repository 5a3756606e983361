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
// Abstract persistent data model for the coinapi gateway.
//
// Table 'coin_settings' has all serviced coins with their operational
// parameters; 'api_users' the authenticated client applications. Each
// user owns a set of 'deposit_addresses'; the balance-relevant counters
// (total_deposited, total_received, total_sent, total_withdrew,
// amount_hold) are materialized on the address record and are updated
// in the same database transaction as the event that changes them
// (deposit promotion, transfer batch, withdraw, hold). The event tables
// ('deposits', 'withdraws', 'transfer_records', 'balance_holds') stay
// the ground truth; the counters are a cache of their row-level sums.
//
//----------------------------------------------------------------------

package lib

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// import MySQL driver
	_ "github.com/go-sql-driver/mysql"

	// import SQLite3 driver
	_ "github.com/mattn/go-sqlite3"
)

// Error codes
var (
	ErrModelNotAvailable = fmt.Errorf("model not available")
	ErrMdlUnknownCoin    = fmt.Errorf("unknown coin")
	ErrMdlNoAddress      = fmt.Errorf("unknown address")
)

// Coin backend families
const (
	CoinTypeBTC         = "BTC"
	CoinTypeXMR         = "XMR"
	CoinTypeTrtlAPI     = "TRTL-API"
	CoinTypeTrtlService = "TRTL-SERVICE"
	CoinTypeBCN         = "BCN"

	FamilyBTC    = "BTC"
	FamilyXMR    = "XMR"
	FamilyCNREST = "CN-REST"
)

// Family maps a coin type to its backend driver family.
func Family(coinType string) string {
	switch strings.ToUpper(coinType) {
	case CoinTypeBTC:
		return FamilyBTC
	case CoinTypeXMR, CoinTypeTrtlService, CoinTypeBCN:
		return FamilyXMR
	case CoinTypeTrtlAPI:
		return FamilyCNREST
	}
	return ""
}

// Model for domain logic and persistent storage
type Model struct {
	inst *sql.DB
	cfg  *ModelConfig
}

// Connect to model
func Connect(cfg *ModelConfig) (mdl *Model, err error) {
	mdl = &Model{}
	mdl.cfg = cfg
	mdl.inst, err = sql.Open(cfg.DbEngine, cfg.DbConnect)
	if err == nil {
		mdl.inst.SetMaxIdleConns(4)
		mdl.inst.SetMaxOpenConns(8)
	}
	return
}

// Close model connection
func (mdl *Model) Close() (err error) {
	if mdl.inst != nil {
		err = mdl.inst.Close()
	}
	return
}

//----------------------------------------------------------------------
// Coin settings
//----------------------------------------------------------------------

// CoinSetting holds the operational parameters for one serviced coin.
type CoinSetting struct {
	CoinName          string  `json:"coin_name"`
	Type              string  `json:"type"` // BTC, XMR, TRTL-API, TRTL-SERVICE, BCN
	Enable            int     `json:"enable"`
	EnableCreate      int     `json:"enable_create"`
	EnableDeposit     int     `json:"enable_deposit"`
	EnableWithdraw    int     `json:"enable_withdraw"`
	DaemonAddress     string  `json:"daemon_address"`
	WalletAddress     string  `json:"wallet_address"`
	Header            string  `json:"wallet_header"` // opaque wallet API key
	MainAddress       string  `json:"main_address"`
	Decimal           int     `json:"decimal"`
	ConfirmationDepth int64   `json:"confirmation_depth"`
	MinDeposit        float64 `json:"min_deposit"`
	MinTransfer       float64 `json:"min_transfer"`
	MaxTransfer       float64 `json:"max_transfer"`
	MinWithdraw       float64 `json:"min_withdraw"`
	MaxWithdraw       float64 `json:"max_withdraw"`
	FeeWithdraw       float64 `json:"fee_withdraw"`
	Mixin             int     `json:"mixin"`
	IsFeePerByte      int     `json:"is_fee_per_byte"`
	HasPos            int     `json:"has_pos"`
	RoundPlaces       int     `json:"round_places"`
	ChainHeight       int64   `json:"chain_height"`
	ChainHeightSet    int64   `json:"chain_height_set_time"`
	UseGetInfoBtc     int     `json:"use_getinfo_btc"`
}

const coinSettingCols = "coin_name,type,enable,enable_create,enable_deposit," +
	"enable_withdraw,daemon_address,wallet_address,wallet_header,main_address," +
	"decimal_places,confirmation_depth,min_deposit,min_transfer,max_transfer," +
	"min_withdraw,max_withdraw,fee_withdraw,mixin,is_fee_per_byte,has_pos," +
	"round_places,chain_height,chain_height_set_time,use_getinfo_btc"

func scanCoinSetting(rows *sql.Rows) (*CoinSetting, error) {
	cs := new(CoinSetting)
	err := rows.Scan(
		&cs.CoinName, &cs.Type, &cs.Enable, &cs.EnableCreate, &cs.EnableDeposit,
		&cs.EnableWithdraw, &cs.DaemonAddress, &cs.WalletAddress, &cs.Header,
		&cs.MainAddress, &cs.Decimal, &cs.ConfirmationDepth, &cs.MinDeposit,
		&cs.MinTransfer, &cs.MaxTransfer, &cs.MinWithdraw, &cs.MaxWithdraw,
		&cs.FeeWithdraw, &cs.Mixin, &cs.IsFeePerByte, &cs.HasPos,
		&cs.RoundPlaces, &cs.ChainHeight, &cs.ChainHeightSet, &cs.UseGetInfoBtc)
	return cs, err
}

// GetCoinSettings returns all enabled coins keyed by coin name.
func (mdl *Model) GetCoinSettings() (map[string]*CoinSetting, error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	rows, err := mdl.inst.Query(
		"select " + coinSettingCols + " from coin_settings where enable=1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make(map[string]*CoinSetting)
	for rows.Next() {
		cs, err := scanCoinSetting(rows)
		if err != nil {
			return nil, err
		}
		list[cs.CoinName] = cs
	}
	return list, nil
}

// AddCoinSetting inserts a new coin record (administrative use).
func (mdl *Model) AddCoinSetting(cs *CoinSetting) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	_, err := mdl.inst.Exec(
		"insert into coin_settings("+coinSettingCols+") values"+
			"(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		cs.CoinName, cs.Type, cs.Enable, cs.EnableCreate, cs.EnableDeposit,
		cs.EnableWithdraw, cs.DaemonAddress, cs.WalletAddress, cs.Header,
		cs.MainAddress, cs.Decimal, cs.ConfirmationDepth, cs.MinDeposit,
		cs.MinTransfer, cs.MaxTransfer, cs.MinWithdraw, cs.MaxWithdraw,
		cs.FeeWithdraw, cs.Mixin, cs.IsFeePerByte, cs.HasPos,
		cs.RoundPlaces, cs.ChainHeight, cs.ChainHeightSet, cs.UseGetInfoBtc)
	return err
}

// UpdateTopBlock stores the current chain tip for a coin. The value is
// the database fallback when the block cache is cold.
func (mdl *Model) UpdateTopBlock(coinName string, height int64) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	_, err := mdl.inst.Exec(
		"update coin_settings set chain_height=?, chain_height_set_time=? where coin_name=?",
		height, time.Now().Unix(), coinName)
	return err
}

// GetChainHeight reads the stored chain tip of a coin.
func (mdl *Model) GetChainHeight(coinName string) (height int64, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return 0, ErrModelNotAvailable
	}
	row := mdl.inst.QueryRow(
		"select chain_height from coin_settings where coin_name=?", coinName)
	err = row.Scan(&height)
	return
}

//----------------------------------------------------------------------
// API users
//----------------------------------------------------------------------

// ApiUser is a downstream application identified by an opaque API key.
type ApiUser struct {
	ID          int64
	ApiKey      string
	AllowedCoin string // comma-separated coin names
	IsSuspended int
}

// Allowed checks if a coin is within the user's allowed set.
func (u *ApiUser) Allowed(coinName string) bool {
	for _, c := range strings.Split(strings.ReplaceAll(u.AllowedCoin, " ", ""), ",") {
		if c == coinName {
			return true
		}
	}
	return false
}

// GetApiByKey resolves an API user from its key; returns nil if the key
// is unknown.
func (mdl *Model) GetApiByKey(key string) (*ApiUser, error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	row := mdl.inst.QueryRow(
		"select id,api_key,allowed_coin,is_suspended from api_users where api_key=?", key)
	u := new(ApiUser)
	err := row.Scan(&u.ID, &u.ApiKey, &u.AllowedCoin, &u.IsSuspended)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SuspendApiUser toggles the suspension flag of an API user.
func (mdl *Model) SuspendApiUser(key string, suspended bool) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	flag := 0
	if suspended {
		flag = 1
	}
	_, err := mdl.inst.Exec(
		"update api_users set is_suspended=? where api_key=?", flag, key)
	return err
}

// Coin feature flags toggled administratively
const (
	FlagEnable         = "enable"
	FlagEnableCreate   = "enable_create"
	FlagEnableDeposit  = "enable_deposit"
	FlagEnableWithdraw = "enable_withdraw"
)

// UpdateCoinFlag toggles one of the per-coin feature flags.
func (mdl *Model) UpdateCoinFlag(coinName, flag string, value int) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	switch flag {
	case FlagEnable, FlagEnableCreate, FlagEnableDeposit, FlagEnableWithdraw:
	default:
		return fmt.Errorf("unknown coin flag '%s'", flag)
	}
	_, err := mdl.inst.Exec(
		"update coin_settings set "+flag+"=? where coin_name=?", value, coinName)
	return err
}

// AddApiUser inserts a new API user (administrative use).
func (mdl *Model) AddApiUser(key, allowedCoin string) (int64, error) {
	// check for valid repository
	if mdl.inst == nil {
		return 0, ErrModelNotAvailable
	}
	res, err := mdl.inst.Exec(
		"insert into api_users(api_key,allowed_coin,is_suspended) values(?,?,0)",
		key, allowedCoin)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

//----------------------------------------------------------------------
// Deposit addresses
//----------------------------------------------------------------------

// DepositAddress is one pooled address owned by an API user. The
// counters materialize the balance invariant
//
//	balance = total_deposited + total_received - total_sent
//	        - total_withdrew - amount_hold
type DepositAddress struct {
	ID           int64
	ApiID        int64
	CoinName     string
	CreatedDate  int64
	Address      string
	AddressExtra string // payment id for integrated-address chains
	PrivateKey   string // BTC family only
	Tag          string
	SecondTag    string

	TotalDeposited float64
	NumbDeposit    int64
	TotalReceived  float64
	NumbReceived   int64
	TotalSent      float64
	NumbSent       int64
	TotalWithdrew  float64
	NumbWithdrew   int64
	AmountHold     float64
}

// Balance derives the spendable balance from the materialized counters.
func (da *DepositAddress) Balance(roundPlaces int) float64 {
	return RoundAmount(da.TotalDeposited+da.TotalReceived-da.TotalSent-
		da.TotalWithdrew-da.AmountHold, roundPlaces)
}

const depositAddrCols = "id,api_id,coin_name,created_date,address," +
	"address_extra,private_key,tag,second_tag,total_deposited,numb_deposit," +
	"total_received,numb_received,total_sent,numb_sent,total_withdrew," +
	"numb_withdrew,amount_hold"

func scanDepositAddress(sc interface{ Scan(...any) error }) (*DepositAddress, error) {
	da := new(DepositAddress)
	var extra, priv, second sql.NullString
	err := sc.Scan(
		&da.ID, &da.ApiID, &da.CoinName, &da.CreatedDate, &da.Address,
		&extra, &priv, &da.Tag, &second, &da.TotalDeposited, &da.NumbDeposit,
		&da.TotalReceived, &da.NumbReceived, &da.TotalSent, &da.NumbSent,
		&da.TotalWithdrew, &da.NumbWithdrew, &da.AmountHold)
	if err != nil {
		return nil, err
	}
	da.AddressExtra = extra.String
	da.PrivateKey = priv.String
	da.SecondTag = second.String
	return da, nil
}

// InsertAddress stores a freshly minted deposit address.
func (mdl *Model) InsertAddress(
	apiID int64, coinName, address, extra, privKey, tag, secondTag string,
) (id int64, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return 0, ErrModelNotAvailable
	}
	res, err := mdl.inst.Exec(
		"insert into deposit_addresses(api_id,coin_name,created_date,address,"+
			"address_extra,private_key,tag,second_tag) values(?,?,?,?,?,?,?,?)",
		apiID, coinName, time.Now().Unix(), address,
		nullable(extra), nullable(privKey), tag, nullable(secondTag))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetDepositAddresses returns all known addresses (registry bootstrap).
func (mdl *Model) GetDepositAddresses() (list []*DepositAddress, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	var rows *sql.Rows
	if rows, err = mdl.inst.Query(
		"select " + depositAddrCols + " from deposit_addresses"); err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var da *DepositAddress
		if da, err = scanDepositAddress(rows); err != nil {
			return nil, err
		}
		list = append(list, da)
	}
	return
}

// GetAddress reads one address row scoped by owner and coin.
func (mdl *Model) GetAddress(apiID int64, coinName, address string) (*DepositAddress, error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	row := mdl.inst.QueryRow(
		"select "+depositAddrCols+" from deposit_addresses"+
			" where api_id=? and coin_name=? and address=?",
		apiID, coinName, address)
	da, err := scanDepositAddress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return da, err
}

// FindAddressByTag returns the address bound to (api, coin, tag), or nil.
func (mdl *Model) FindAddressByTag(apiID int64, coinName, tag string) (*DepositAddress, error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	row := mdl.inst.QueryRow(
		"select "+depositAddrCols+" from deposit_addresses"+
			" where api_id=? and coin_name=? and tag=?",
		apiID, coinName, tag)
	da, err := scanDepositAddress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return da, err
}

// FindAddressByDiscriminator resolves the owner of a deposit candidate:
// integrated-address families discriminate by payment id (address_extra),
// the BTC family by the address itself.
func (mdl *Model) FindAddressByDiscriminator(coinName, family, disc string) (*DepositAddress, error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	field := "address_extra"
	if family == FamilyBTC {
		field = "address"
	}
	row := mdl.inst.QueryRow(
		"select "+depositAddrCols+" from deposit_addresses"+
			" where "+field+"=? and coin_name=?",
		disc, coinName)
	da, err := scanDepositAddress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return da, err
}

// UpdateSecondTag fills the correlation token of an existing address.
func (mdl *Model) UpdateSecondTag(coinName string, id int64, secondTag string) error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	if secondTag == "" {
		return nil
	}
	_, err := mdl.inst.Exec(
		"update deposit_addresses set second_tag=? where coin_name=? and id=?",
		secondTag, coinName, id)
	return err
}

// GetAddressesByCoinAPI lists addresses of one owner for one coin.
func (mdl *Model) GetAddressesByCoinAPI(coinName string, apiID int64) (list []*DepositAddress, err error) {
	// check for valid repository
	if mdl.inst == nil {
		return nil, ErrModelNotAvailable
	}
	var rows *sql.Rows
	if rows, err = mdl.inst.Query(
		"select "+depositAddrCols+" from deposit_addresses"+
			" where api_id=? and coin_name=?", apiID, coinName); err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var da *DepositAddress
		if da, err = scanDepositAddress(rows); err != nil {
			return nil, err
		}
		list = append(list, da)
	}
	return
}

//----------------------------------------------------------------------
// helpers
//----------------------------------------------------------------------

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
