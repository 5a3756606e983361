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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotifier(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got <- body.Content
	}))
	defer srv.Close()

	n := NewNotifier(&LogConfig{Webhook: srv.URL, Rates: []int{100}})
	n.Notify("pending deposit")
	select {
	case content := <-got:
		require.Equal(t, "pending deposit", content)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}

	// oversize content is capped at 1000 characters
	n.Notify(strings.Repeat("x", 2000))
	select {
	case content := <-got:
		require.Len(t, content, webhookMaxLen)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

// a notifier without a webhook URL swallows everything
func TestNotifierNoop(t *testing.T) {
	n := NewNotifier(nil)
	n.Notify("dropped")
	NewNotifier(&LogConfig{}).Notify("dropped too")
}
