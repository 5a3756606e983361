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
	"crypto/rand"
	"encoding/hex"
	"math"
)

// RoundAmount truncates an amount to the given number of decimal places.
// Truncation (not rounding) so a computed balance never exceeds the sum
// of its parts.
func RoundAmount(amount float64, places int) float64 {
	f := math.Pow10(places)
	return math.Floor(amount*f) / f
}

// PaymentID returns a random hex-encoded payment id of n bytes (64 hex
// characters for the usual n=32).
func PaymentID(n int) string {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

// AtomicUnits converts a coin amount into integer atomic units for the
// given decimal exponent.
func AtomicUnits(amount float64, decimal int) int64 {
	return int64(amount * math.Pow10(decimal))
}

// FromAtomicUnits converts integer atomic units back into a coin amount.
func FromAtomicUnits(units int64, decimal int) float64 {
	return float64(units) / math.Pow10(decimal)
}
