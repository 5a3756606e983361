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

	"github.com/bfix/gospel/logger"
	"github.com/bfix/gospel/network"
)

// webhook message cap (Discord-style)
const webhookMaxLen = 1000

// Notifier posts out-of-band notifications to a Discord-style webhook.
// Delivery is fire-and-forget: failures are logged, never reported to
// callers, and a request is never blocked on it.
type Notifier struct {
	url         string
	ratelimiter *network.RateLimiter
}

// NewNotifier creates a notifier for the configured webhook; a nil
// config or empty URL yields a no-op notifier.
func NewNotifier(cfg *LogConfig) *Notifier {
	n := new(Notifier)
	if cfg == nil {
		return n
	}
	n.url = cfg.Webhook
	rates := cfg.Rates
	if len(rates) == 0 {
		rates = []int{5}
	}
	n.ratelimiter = network.NewRateLimiter(rates...)
	return n
}

// Notify sends a content message asynchronously.
func (n *Notifier) Notify(content string) {
	if n.url == "" {
		return
	}
	if len(content) > webhookMaxLen {
		content = content[:webhookMaxLen]
	}
	go n.post(content)
}

func (n *Notifier) post(content string) {
	n.ratelimiter.Pass()
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return
	}
	if _, err = httpPost(context.Background(), n.url, body, map[string]string{
		"Content-Type": "application/json",
	}, 15*time.Second); err != nil {
		logger.Printf(logger.WARN, "[webhook] delivery failed: %s", err.Error())
	}
}
