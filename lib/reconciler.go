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
// Deposit reconciliation: per-family loops poll each coin's daemon and
// wallet, record confirmed credits exactly once, promote pending
// credits to spendable, purge expired balance holds and refresh the
// in-memory coin settings. A failing coin never stalls the others; a
// failing tick is logged and retried on the next one.
//
//----------------------------------------------------------------------

package lib

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bfix/gospel/logger"
)

// Reconciler cadences
const (
	scanTimer   = 10 * time.Second
	unlockTimer = 10 * time.Second
	sweepTimer  = 30 * time.Second
	reloadTimer = 10 * time.Second

	// re-scanned window below the tip; wider than any confirmation
	// depth to absorb reorgs and wallet lag
	scanWindow = 2000
)

// Reconciler drives the coin backends and writes detected deposits to
// the ledger. It owns the in-memory coin settings map, which is
// replaced as a whole on every reload and read without locks.
type Reconciler struct {
	mdl      *Model
	cache    *Cache
	reg      *Registry
	notify   *Notifier
	kvPrefix string

	coins   atomic.Pointer[map[string]*CoinSetting]
	drivers map[string]Driver
}

// NewReconciler wires the reconciler over model, cache, registry and
// notifier.
func NewReconciler(mdl *Model, cache *Cache, reg *Registry, notify *Notifier, kvPrefix string) *Reconciler {
	rc := &Reconciler{
		mdl:      mdl,
		cache:    cache,
		reg:      reg,
		notify:   notify,
		kvPrefix: kvPrefix,
		drivers:  make(map[string]Driver),
	}
	for _, family := range []string{FamilyBTC, FamilyXMR, FamilyCNREST} {
		drv, _ := NewDriver(family)
		rc.drivers[family] = drv
	}
	empty := make(map[string]*CoinSetting)
	rc.coins.Store(&empty)
	return rc
}

// CoinList returns the current coin settings snapshot.
func (rc *Reconciler) CoinList() map[string]*CoinSetting {
	return *rc.coins.Load()
}

// Coin returns the settings of one coin (nil if unknown/disabled).
func (rc *Reconciler) Coin(name string) *CoinSetting {
	return rc.CoinList()[name]
}

// Driver returns the backend driver serving a coin type.
func (rc *Reconciler) Driver(coinType string) Driver {
	return rc.drivers[Family(coinType)]
}

// UseDriver replaces the driver of a family (custom backends, tests).
func (rc *Reconciler) UseDriver(family string, drv Driver) {
	rc.drivers[family] = drv
}

// ReloadCoins refreshes the settings snapshot from the database.
func (rc *Reconciler) ReloadCoins() error {
	list, err := rc.mdl.GetCoinSettings()
	if err != nil {
		return err
	}
	rc.coins.Store(&list)
	return nil
}

// Run starts all background loops; they terminate with the context.
func (rc *Reconciler) Run(ctx context.Context) {
	for _, family := range []string{FamilyBTC, FamilyXMR, FamilyCNREST} {
		go rc.loop(ctx, scanTimer, family, func() { rc.scanTick(ctx, family) })
	}
	go rc.loop(ctx, unlockTimer, "unlock", func() { rc.promoteTick() })
	go rc.loop(ctx, sweepTimer, "sweep", func() { rc.sweepTick() })
	go rc.loop(ctx, reloadTimer, "reload", func() {
		if err := rc.ReloadCoins(); err != nil {
			logger.Printf(logger.ERROR, "[reconciler] coin reload: %s", err.Error())
		}
	})
}

// loop runs a tick function on a fixed cadence until cancelled.
func (rc *Reconciler) loop(ctx context.Context, timer time.Duration, name string, tick func()) {
	logger.Printf(logger.INFO, "[reconciler] %s loop started (%s)", name, timer)
	t := time.NewTicker(timer)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Printf(logger.INFO, "[reconciler] %s loop stopped", name)
			return
		case <-t.C:
			tick()
		}
	}
}

// scanTick fans out one deposit scan per coin of a family. The per-coin
// work runs concurrently; one stuck backend does not delay its peers.
func (rc *Reconciler) scanTick(ctx context.Context, family string) {
	var wg sync.WaitGroup
	for _, cs := range rc.CoinList() {
		if Family(cs.Type) != family || cs.EnableDeposit != 1 {
			continue
		}
		wg.Add(1)
		go func(cs *CoinSetting) {
			defer wg.Done()
			if err := rc.scanCoin(ctx, cs); err != nil {
				MetricBackendErrors.WithLabelValues(cs.CoinName).Inc()
				logger.Printf(logger.WARN, "[reconciler] scan %s: %s", cs.CoinName, err.Error())
			}
		}(cs)
	}
	wg.Wait()
}

// scanCoin refreshes the chain tip and ingests new confirmed credits
// for one coin.
func (rc *Reconciler) scanCoin(ctx context.Context, cs *CoinSetting) error {
	drv := rc.drivers[Family(cs.Type)]
	tip, err := drv.TopBlock(ctx, cs)
	if err != nil {
		return err
	}
	// publish tip to cache and database
	rc.cache.Set(CacheBlock, rc.kvPrefix+cs.CoinName, tip.Height)
	if err = rc.mdl.UpdateTopBlock(cs.CoinName, tip.Height); err != nil {
		return err
	}
	MetricChainHeight.WithLabelValues(cs.CoinName).Set(float64(tip.Height))

	from := tip.Height - scanWindow
	if from < 0 {
		from = 0
	}
	transfers, err := drv.ListTransfers(ctx, cs, from, tip.Height)
	if err != nil {
		return err
	}
	minUnits := AtomicUnits(cs.MinDeposit, cs.Decimal)
	for _, tx := range transfers {
		// credit only when the depth against our own tip is met; the
		// wallet's self-reported confirmation count is not trusted here
		if tx.Height+cs.ConfirmationDepth > tip.Height {
			continue
		}
		if tx.Amount < minUnits || tx.Discriminator == "" {
			continue
		}
		owner, err := rc.mdl.FindAddressByDiscriminator(cs.CoinName, Family(cs.Type), tx.Discriminator)
		if err != nil {
			logger.Printf(logger.WARN, "[reconciler] %s owner: %s", cs.CoinName, err.Error())
			continue
		}
		if owner == nil {
			// not one of ours
			continue
		}
		exists, err := rc.mdl.HasDeposit(cs.CoinName, tx.TxID, owner.Address)
		if err != nil {
			logger.Printf(logger.WARN, "[reconciler] %s dedup: %s", cs.CoinName, err.Error())
			continue
		}
		if exists {
			continue
		}
		amount := FromAtomicUnits(tx.Amount, cs.Decimal)
		dep := &Deposit{
			CoinName:      cs.CoinName,
			ApiID:         owner.ApiID,
			DepostID:      owner.ID,
			TxID:          tx.TxID,
			BlockHash:     tx.BlockHash,
			Address:       owner.Address,
			Extra:         tx.Discriminator,
			Height:        tx.Height,
			Amount:        amount,
			Confirmations: tip.Height - tx.Height,
		}
		if Family(cs.Type) == FamilyBTC {
			// the address itself discriminates; no payment id
			dep.Extra = ""
		}
		if err = rc.mdl.UpsertDeposit(dep); err != nil {
			logger.Printf(logger.ERROR, "[reconciler] %s upsert: %s", cs.CoinName, err.Error())
			continue
		}
		MetricDepositsDetected.WithLabelValues(cs.CoinName).Inc()
		logger.Printf(logger.INFO, "[reconciler] %s pending deposit %f to %s (height %d)",
			cs.CoinName, amount, owner.Address, tx.Height)
		rc.notify.Notify(fmt.Sprintf(
			"API: %d / PENDING DEPOSIT %f %s to %s. Height: %d",
			owner.ApiID, amount, cs.CoinName, owner.Address, tx.Height))
	}
	return nil
}

// promoteTick flips eligible pending deposits to spendable. The tip is
// read from the block cache with the persisted chain height as
// fallback, so a cold cache never blocks promotion.
func (rc *Reconciler) promoteTick() {
	pending, err := rc.mdl.PendingDeposits()
	if err != nil {
		logger.Printf(logger.ERROR, "[reconciler] pending: %s", err.Error())
		return
	}
	for _, dep := range pending {
		cs := rc.Coin(dep.CoinName)
		if cs == nil {
			continue
		}
		tip, ok := rc.cache.GetHeight(rc.kvPrefix + dep.CoinName)
		if !ok {
			if tip, err = rc.mdl.GetChainHeight(dep.CoinName); err != nil {
				logger.Printf(logger.WARN, "[reconciler] %s tip: %s", dep.CoinName, err.Error())
				continue
			}
		}
		if dep.Confirmations >= cs.ConfirmationDepth ||
			(dep.Height > 0 && tip-dep.Height >= cs.ConfirmationDepth) {
			promoted, err := rc.mdl.PromoteDeposit(dep.ID)
			if err != nil {
				logger.Printf(logger.ERROR, "[reconciler] promote %s/%s: %s",
					dep.CoinName, dep.TxID, err.Error())
				continue
			}
			if promoted {
				MetricDepositsPromoted.WithLabelValues(dep.CoinName).Inc()
				logger.Printf(logger.INFO, "[reconciler] %s unlocked %f to %s (tx %s)",
					dep.CoinName, dep.Amount, dep.Address, dep.TxID)
				rc.notify.Notify(fmt.Sprintf(
					"API: %d / UNLOCKED %f %s to %s. Tx: %s",
					dep.ApiID, dep.Amount, dep.CoinName, dep.Address, dep.TxID))
			}
		}
	}
}

// sweepTick purges expired balance holds.
func (rc *Reconciler) sweepTick() {
	purged, err := rc.mdl.SweepHolds()
	if err != nil {
		logger.Printf(logger.ERROR, "[reconciler] sweep: %s", err.Error())
		return
	}
	if purged > 0 {
		MetricHoldsSwept.Add(float64(purged))
		logger.Printf(logger.INFO, "[reconciler] purged %d expired hold(s)", purged)
	}
}
