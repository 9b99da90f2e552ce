// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/solwatch/chain"
	"github.com/ava-labs/solwatch/metrics"
	"github.com/ava-labs/solwatch/store"
	"github.com/ava-labs/solwatch/types"
)

const (
	// bootstrapWindow is how many slots behind the head a fresh
	// deployment starts scanning; everything older is never visited.
	bootstrapWindow = 300

	// tickInterval paces the scan loop. The legacy SCAN_INTERVAL_SECS
	// knob survives in configuration but the engine always runs at
	// this cadence.
	tickInterval = 200 * time.Millisecond

	drainTimeout = 10 * time.Second
)

// Config tunes the engine.
type Config struct {
	// MaxConcurrentRequests bounds parallel block fetches. Values
	// below one are treated as one.
	MaxConcurrentRequests int
	// MaxAddresses is the advisory cap on the watched set; crossing
	// it logs a warning and nothing else.
	MaxAddresses int
}

// Engine drives the scan loop. It owns the cursor: the persisted
// last-scanned slot only ever advances over a contiguous run of
// completed slots, no matter in which order concurrent fetches finish.
type Engine struct {
	cfg        Config
	chain      Chain
	store      store.Store
	dispatcher *Dispatcher
	classifier *Classifier
	watched    mapset.Set[string]
	sem        *semaphore.Weighted
	log        *zap.Logger

	tick time.Duration

	mu         sync.Mutex
	haveCursor bool
	// next is the lowest slot not yet committed; every slot below it
	// has completed (success or skip). completed holds finished slots
	// at or above next, waiting for the gap below them to close.
	next         uint64
	completed    map[uint64]bool
	totalMatched uint64
}

func NewEngine(cfg Config, ch Chain, st store.Store, d *Dispatcher, logger *zap.Logger) *Engine {
	concurrency := cfg.MaxConcurrentRequests
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		cfg:        cfg,
		chain:      ch,
		store:      st,
		dispatcher: d,
		classifier: NewClassifier(logger.Named("classifier")),
		watched:    mapset.NewSet[string](),
		sem:        semaphore.NewWeighted(int64(concurrency)),
		log:        logger,
		tick:       tickInterval,
		completed:  make(map[uint64]bool),
	}
}

// Start runs the scan loop until ctx is cancelled and then returns
// nil. Per-slot failures never stop the loop; they are retried on
// later ticks because the cursor cannot pass an incomplete slot.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}

	e.log.Info("scanner started",
		zap.Int("watched_addresses", e.watched.Cardinality()),
		zap.Duration("tick", e.tick),
	)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.stop()
			return nil
		case <-ticker.C:
			e.scanTick(ctx)
		}
	}
}

// prepare loads the persisted cursor and the active address set. A
// missing or unreadable cursor defers to bootstrap on the first tick;
// an unreadable address set is fatal because the engine would silently
// match nothing.
func (e *Engine) prepare(ctx context.Context) error {
	st, err := e.store.ScanStatus(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		e.log.Info("no scan progress found; bootstrapping from the chain head")
	case err != nil:
		e.log.Warn("load scan progress; bootstrapping from the chain head", zap.Error(err))
	default:
		e.mu.Lock()
		e.haveCursor = true
		e.next = st.LastScannedBlock + 1
		e.totalMatched = st.TotalTransactionsScanned
		e.mu.Unlock()
		e.log.Info("resuming scan", zap.Uint64("from_slot", st.LastScannedBlock+1))
	}

	addrs, err := e.store.ActiveAddresses(ctx)
	if err != nil {
		return fmt.Errorf("load watched addresses: %w", err)
	}
	for _, a := range addrs {
		e.watched.Add(a.Address)
	}
	e.log.Info("loaded watched addresses", zap.Int("count", len(addrs)))
	return nil
}

// stop drains in-flight deliveries and marks the persisted status as
// no longer scanning. Runs once, after the loop exits.
func (e *Engine) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := e.dispatcher.Drain(ctx); err != nil {
		e.log.Warn("dispatch drain incomplete", zap.Error(err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.haveCursor || e.next == 0 {
		e.log.Info("scanner stopped")
		return
	}
	st := &types.ScanStatus{
		LastScannedBlock:         e.next - 1,
		LastScanTime:             time.Now().UTC(),
		TotalTransactionsScanned: e.totalMatched,
		IsScanning:               false,
	}
	if err := e.store.UpsertScanStatus(ctx, st); err != nil {
		e.log.Warn("persist final scan status", zap.Error(err))
	}
	e.log.Info("scanner stopped", zap.Uint64("cursor", e.next-1))
}

// scanTick fetches every unfinished slot in [cursor, head] with at
// most the configured number of fetches in flight, then waits for the
// batch so a slow node cannot pile ticks on top of each other.
func (e *Engine) scanTick(ctx context.Context) {
	head, err := e.chain.Slot(ctx)
	if err != nil {
		e.log.Warn("fetch chain head", zap.Error(err))
		return
	}
	metrics.ChainHead.Set(float64(head))

	e.mu.Lock()
	if !e.haveCursor {
		var start uint64
		if head > bootstrapWindow {
			start = head - bootstrapWindow
		}
		e.next = start
		e.haveCursor = true
		e.log.Info("bootstrapping scan window",
			zap.Uint64("from_slot", start), zap.Uint64("head", head))
	}
	next := e.next
	e.mu.Unlock()

	if next > head {
		return
	}
	e.log.Debug("scanning slots", zap.Uint64("from", next), zap.Uint64("to", head))

	var wg sync.WaitGroup
	for slot := next; slot <= head; slot++ {
		e.mu.Lock()
		done := slot < e.next || e.completed[slot]
		e.mu.Unlock()
		if done {
			continue
		}
		if err := e.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(slot uint64) {
			defer wg.Done()
			defer e.sem.Release(1)
			e.scanSlot(ctx, slot)
		}(slot)
	}
	wg.Wait()
}

func (e *Engine) scanSlot(ctx context.Context, slot uint64) {
	blk, err := e.chain.Block(ctx, slot)
	var matched int
	switch {
	case errors.Is(err, chain.ErrSlotSkipped):
		metrics.SlotsSkipped.Inc()
		e.log.Debug("slot skipped", zap.Uint64("slot", slot))
	case err != nil:
		// Incomplete: the cursor stalls here and the slot falls back
		// into range on the next tick.
		metrics.SlotErrors.Inc()
		e.log.Warn("fetch block; will retry",
			zap.Uint64("slot", slot), zap.Error(err))
		return
	default:
		txs := e.classifier.ClassifyBlock(slot, blk, e.watched.Clone())
		for _, tx := range txs {
			e.dispatcher.Dispatch(tx)
		}
		matched = len(txs)
		metrics.BlocksScanned.Inc()
		if matched > 0 {
			e.log.Info("matched transactions",
				zap.Uint64("slot", slot), zap.Int("count", matched))
		}
	}
	e.commit(ctx, slot, matched)
}

// commit marks slot complete and, when that closes the gap above the
// cursor, advances and persists it. Persisting under the mutex keeps
// the stored cursor monotonic.
func (e *Engine) commit(ctx context.Context, slot uint64, matched int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.completed[slot] = true
	e.totalMatched += uint64(matched)

	advanced := false
	for e.completed[e.next] {
		delete(e.completed, e.next)
		e.next++
		advanced = true
	}
	if !advanced {
		return
	}

	cursor := e.next - 1
	metrics.ScanCursor.Set(float64(cursor))
	st := &types.ScanStatus{
		LastScannedBlock:         cursor,
		LastScanTime:             time.Now().UTC(),
		TotalTransactionsScanned: e.totalMatched,
		IsScanning:               true,
	}
	if err := e.store.UpsertScanStatus(ctx, st); err != nil {
		e.log.Error("persist scan status",
			zap.Uint64("cursor", cursor), zap.Error(err))
		return
	}
	e.log.Debug("scan cursor advanced", zap.Uint64("cursor", cursor))
}

// AddWatched validates, persists, and starts watching address. The
// watched set only grows after the store accepts the record, so a
// duplicate or a storage failure leaves the in-memory set untouched.
func (e *Engine) AddWatched(ctx context.Context, address string, label *string) error {
	if err := types.ValidateAddress(address); err != nil {
		return err
	}
	if err := e.store.InsertAddress(ctx, types.NewWalletAddress(address, label)); err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	e.watched.Add(address)
	if n := e.watched.Cardinality(); e.cfg.MaxAddresses > 0 && n > e.cfg.MaxAddresses {
		e.log.Warn("watched set exceeds the configured cap",
			zap.Int("count", n), zap.Int("cap", e.cfg.MaxAddresses))
	}
	e.log.Info("watching address", zap.String("address", address))
	return nil
}

// RemoveWatched deactivates the persisted record and stops watching.
func (e *Engine) RemoveWatched(ctx context.Context, address string) error {
	if err := e.store.DeactivateAddress(ctx, address); err != nil {
		return fmt.Errorf("deactivate address: %w", err)
	}
	e.watched.Remove(address)
	e.log.Info("unwatching address", zap.String("address", address))
	return nil
}

// WatchedAddresses returns a sorted snapshot of the watched set.
func (e *Engine) WatchedAddresses() []string {
	out := e.watched.ToSlice()
	sort.Strings(out)
	return out
}

// Transactions is a pass-through to the store's transaction query.
func (e *Engine) Transactions(ctx context.Context, address string, limit, offset int64) ([]types.Transaction, error) {
	return e.store.QueryTransactions(ctx, address, limit, offset)
}
