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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operational counters and gauges exposed on /metrics.
var (
	MetricChainHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coinapi_chain_height",
		Help: "Last chain tip reported by the coin daemon.",
	}, []string{"coin"})

	MetricDepositsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinapi_deposits_detected_total",
		Help: "Deposits newly recorded by the reconciler.",
	}, []string{"coin"})

	MetricDepositsPromoted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinapi_deposits_promoted_total",
		Help: "Deposits promoted to spendable.",
	}, []string{"coin"})

	MetricHoldsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinapi_holds_swept_total",
		Help: "Expired balance holds purged by the sweeper.",
	})

	MetricApiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinapi_api_calls_total",
		Help: "API invocations by method and outcome.",
	}, []string{"method", "outcome"})

	MetricBackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinapi_backend_errors_total",
		Help: "Driver failures by coin.",
	}, []string{"coin"})
)
