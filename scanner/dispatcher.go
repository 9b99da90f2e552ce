// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/ava-labs/solwatch/metrics"
	"github.com/ava-labs/solwatch/store"
	"github.com/ava-labs/solwatch/types"
)

const (
	// seenCacheSize bounds the recent-signature cache. Replays older
	// than the cache still dedup through the store's unique index.
	seenCacheSize = 8192

	storeTimeout   = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Dispatcher delivers each matched transaction to the store, the bus,
// and live subscribers. Persistence is the dedup gate: a duplicate
// signature suppresses the publish and the notification, while any
// other persist failure still lets both proceed so downstream
// consumers never silently lose a transaction.
type Dispatcher struct {
	store    TxStore
	bus      TxPublisher
	notifier Notifier
	seen     *lru.Cache
	log      *zap.Logger

	wg sync.WaitGroup
}

func NewDispatcher(st TxStore, pub TxPublisher, notifier Notifier, logger *zap.Logger) *Dispatcher {
	seen, _ := lru.New(seenCacheSize)
	return &Dispatcher{
		store:    st,
		bus:      pub,
		notifier: notifier,
		seen:     seen,
		log:      logger,
	}
}

// Dispatch hands tx to a short-lived delivery task and returns
// immediately. The scanner loop never blocks on sink latency.
func (d *Dispatcher) Dispatch(tx *types.Transaction) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(tx)
	}()
}

// Drain blocks until every in-flight delivery finishes or ctx expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delivery contexts derive from Background rather than the scan tick
// so a root cancellation drains in-flight deliveries instead of
// aborting them mid-sink.
func (d *Dispatcher) deliver(tx *types.Transaction) {
	if d.seen.Contains(tx.Signature) {
		metrics.StoreDuplicates.Inc()
		d.log.Debug("duplicate transaction suppressed",
			zap.String("signature", tx.Signature))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	err := d.store.InsertTransaction(ctx, tx)
	cancel()

	switch {
	case errors.Is(err, store.ErrDuplicateSignature):
		d.seen.Add(tx.Signature, struct{}{})
		metrics.StoreDuplicates.Inc()
		d.log.Debug("transaction already stored",
			zap.String("signature", tx.Signature))
		return
	case err != nil:
		// At-least-once: the bus and subscribers still hear about the
		// transaction even when persistence misbehaves.
		d.log.Error("persist transaction",
			zap.String("signature", tx.Signature), zap.Error(err))
	default:
		d.seen.Add(tx.Signature, struct{}{})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.publish(tx)
	}()
	go func() {
		defer wg.Done()
		d.notifier.Notify(tx)
	}()
	wg.Wait()
}

func (d *Dispatcher) publish(tx *types.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.bus.Publish(ctx, tx); err != nil {
		metrics.PublishFailures.Inc()
		d.log.Error("publish transaction",
			zap.String("signature", tx.Signature), zap.Error(err))
	}
}
