// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scanner walks confirmed Solana blocks, matches transfers
// against the watched address set, and fans matched transactions out
// to the store, the message bus, and live subscribers.
//
// The Engine owns the scan cursor and the fetch concurrency budget.
// The Classifier turns a block's parsed instructions into normalized
// transaction records. The Dispatcher delivers each record to the
// three sinks with per-sink failure isolation.
package scanner

import (
	"context"

	"github.com/ava-labs/solwatch/bus"
	"github.com/ava-labs/solwatch/chain"
	"github.com/ava-labs/solwatch/store"
	"github.com/ava-labs/solwatch/types"
)

//go:generate mockgen -source=scanner.go -destination=mocks_test.go -package=scanner

// Chain is the node surface the engine polls.
type Chain interface {
	// Slot returns the latest confirmed slot.
	Slot(ctx context.Context) (uint64, error)
	// Block fetches one slot; chain.ErrSlotSkipped marks slots that
	// never produced a block.
	Block(ctx context.Context, slot uint64) (*chain.Block, error)
}

// TxStore is the persistence surface the dispatcher needs. The full
// store contract lives in the store package; the dispatcher only ever
// inserts.
type TxStore interface {
	InsertTransaction(ctx context.Context, tx *types.Transaction) error
}

// TxPublisher pushes matched transactions onto the message bus.
type TxPublisher interface {
	Publish(ctx context.Context, tx *types.Transaction) error
}

// Notifier fans a matched transaction out to live subscribers.
type Notifier interface {
	Notify(tx *types.Transaction)
}

var (
	_ Chain       = (*chain.Client)(nil)
	_ TxStore     = (store.Store)(nil)
	_ TxPublisher = (bus.Publisher)(nil)
)
