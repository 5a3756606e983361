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

import "fmt"

// idColumn returns the auto-incrementing primary key declaration for
// the configured engine.
func (mdl *Model) idColumn() string {
	if mdl.cfg.DbEngine == "sqlite3" {
		return "id integer primary key autoincrement"
	}
	return "id bigint primary key auto_increment"
}

// insertIgnore returns the engine-specific insert-or-ignore verb.
func (mdl *Model) insertIgnore() string {
	if mdl.cfg.DbEngine == "sqlite3" {
		return "insert or ignore into"
	}
	return "insert ignore into"
}

// Setup creates all tables and indices if they do not exist yet.
func (mdl *Model) Setup() error {
	// check for valid repository
	if mdl.inst == nil {
		return ErrModelNotAvailable
	}
	stmts := []string{
		`create table if not exists coin_settings (
			` + mdl.idColumn() + `,
			coin_name varchar(32) not null unique,
			type varchar(16) not null,
			enable integer not null default 1,
			enable_create integer not null default 1,
			enable_deposit integer not null default 1,
			enable_withdraw integer not null default 1,
			daemon_address varchar(255) not null default '',
			wallet_address varchar(255) not null default '',
			wallet_header varchar(255) not null default '',
			main_address varchar(255) not null default '',
			decimal_places integer not null default 8,
			confirmation_depth integer not null default 6,
			min_deposit double not null default 0,
			min_transfer double not null default 0,
			max_transfer double not null default 0,
			min_withdraw double not null default 0,
			max_withdraw double not null default 0,
			fee_withdraw double not null default 0,
			mixin integer not null default 0,
			is_fee_per_byte integer not null default 0,
			has_pos integer not null default 0,
			round_places integer not null default 8,
			chain_height integer not null default 0,
			chain_height_set_time integer not null default 0,
			use_getinfo_btc integer not null default 0
		)`,
		`create table if not exists api_users (
			` + mdl.idColumn() + `,
			api_key varchar(128) not null unique,
			allowed_coin text not null,
			is_suspended integer not null default 0
		)`,
		`create table if not exists deposit_addresses (
			` + mdl.idColumn() + `,
			api_id integer not null,
			coin_name varchar(32) not null,
			created_date integer not null,
			address varchar(255) not null,
			address_extra varchar(255),
			private_key text,
			tag varchar(100) not null,
			second_tag varchar(255),
			total_deposited double not null default 0,
			numb_deposit integer not null default 0,
			total_received double not null default 0,
			numb_received integer not null default 0,
			total_sent double not null default 0,
			numb_sent integer not null default 0,
			total_withdrew double not null default 0,
			numb_withdrew integer not null default 0,
			amount_hold double not null default 0,
			unique (api_id, coin_name, tag)
		)`,
		`create table if not exists deposits (
			` + mdl.idColumn() + `,
			coin_name varchar(32) not null,
			api_id integer not null,
			depost_id integer not null,
			txid varchar(255) not null,
			blockhash varchar(255),
			address varchar(255) not null,
			extra varchar(255),
			height integer,
			amount double not null,
			confirmations integer not null default 0,
			time_insert integer not null,
			can_credit varchar(3) not null default 'NO',
			already_noted integer not null default 0,
			noted_time integer,
			unique (coin_name, txid, address)
		)`,
		`create table if not exists withdraws (
			` + mdl.idColumn() + `,
			api_id integer not null,
			coin_name varchar(32) not null,
			from_address varchar(255) not null,
			amount double not null,
			fee_and_tax double not null default 0,
			from_deposit_id integer not null,
			to_address varchar(255) not null,
			txid varchar(255) not null,
			tx_key varchar(255),
			timestamp integer not null,
			remark varchar(255),
			ref_uuid varchar(64) not null
		)`,
		`create table if not exists transfer_records (
			` + mdl.idColumn() + `,
			api_id integer not null,
			from_address varchar(255) not null,
			to_address varchar(255) not null,
			amount double not null,
			coin_name varchar(32) not null,
			purpose varchar(255),
			timestamp integer not null,
			ref_uuid varchar(64) not null
		)`,
		`create table if not exists balance_holds (
			` + mdl.idColumn() + `,
			coin_name varchar(32) not null,
			api_id integer not null,
			deposit_id integer not null,
			address varchar(255) not null,
			hold_amount double not null,
			time_insert integer not null,
			time_expiring integer not null,
			purpose varchar(255)
		)`,
		`create table if not exists api_logs (
			` + mdl.idColumn() + `,
			api_id integer not null,
			method varchar(64) not null,
			data text,
			result text,
			time integer not null
		)`,
		`create table if not exists api_logs_failed (
			` + mdl.idColumn() + `,
			api_id integer not null,
			method varchar(64) not null,
			data text,
			result text,
			time integer not null
		)`,
	}
	for _, stmt := range stmts {
		if _, err := mdl.inst.Exec(stmt); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}
	return nil
}
