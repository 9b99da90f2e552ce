// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store persists watched addresses, matched transactions, and
// the scanner's progress record.
package store

import (
	"context"
	"errors"

	"github.com/ava-labs/solwatch/types"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateAddress   = errors.New("address already watched")
	ErrDuplicateSignature = errors.New("transaction signature already stored")
)

// Store is the persistence contract the rest of the service builds on.
// Implementations must return the package sentinels so callers can
// branch on duplicates and misses without knowing the backend.
type Store interface {
	InsertAddress(ctx context.Context, addr *types.WalletAddress) error
	ActiveAddresses(ctx context.Context) ([]types.WalletAddress, error)
	DeactivateAddress(ctx context.Context, address string) error

	InsertTransaction(ctx context.Context, tx *types.Transaction) error
	FindTransaction(ctx context.Context, signature string) (*types.Transaction, error)
	QueryTransactions(ctx context.Context, address string, limit, offset int64) ([]types.Transaction, error)

	ScanStatus(ctx context.Context) (*types.ScanStatus, error)
	UpsertScanStatus(ctx context.Context, status *types.ScanStatus) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
