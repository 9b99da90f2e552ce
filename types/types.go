// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types defines the records the address-watch service persists,
// publishes, and pushes to subscribers.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// TransactionType classifies a matched transfer.
type TransactionType string

const (
	TransactionTypeNative TransactionType = "native"
	TransactionTypeToken  TransactionType = "token"
	TransactionTypeNFT    TransactionType = "nft"
)

// TransactionStatus mirrors the chain's view of a transaction.
type TransactionStatus string

const (
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusPending   TransactionStatus = "pending"
)

// ScanStatusID is the fixed document id of the scan-progress singleton.
const ScanStatusID = "scan_status"

// ErrInvalidAddress marks strings that are not base58-encoded 32-byte
// public keys.
var ErrInvalidAddress = errors.New("invalid solana address")

// ValidateAddress checks that s is a plausible Solana public key.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	if _, err := solana.PublicKeyFromBase58(s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return nil
}

// WalletAddress is one watched address. At most one active record may
// exist per address; removal deactivates rather than deletes.
type WalletAddress struct {
	ID        string    `json:"id" bson:"id"`
	Address   string    `json:"address" bson:"address"`
	Label     *string   `json:"label" bson:"label"`
	IsActive  bool      `json:"is_active" bson:"is_active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// NewWalletAddress returns an active record with a fresh id and both
// timestamps set to now.
func NewWalletAddress(address string, label *string) *WalletAddress {
	now := time.Now().UTC()
	return &WalletAddress{
		ID:        uuid.NewString(),
		Address:   address,
		Label:     label,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transaction is a normalized transfer that touched a watched address.
// Records are immutable once created; signature is the unique identity.
type Transaction struct {
	ID              string                 `json:"id" bson:"id"`
	Signature       string                 `json:"signature" bson:"signature"`
	BlockNumber     uint64                 `json:"block_number" bson:"block_number"`
	TransactionType TransactionType        `json:"transaction_type" bson:"transaction_type"`
	FromAddress     string                 `json:"from_address" bson:"from_address"`
	ToAddress       *string                `json:"to_address" bson:"to_address"`
	Amount          float64                `json:"amount" bson:"amount"`
	TokenMint       *string                `json:"token_mint" bson:"token_mint"`
	TokenSymbol     *string                `json:"token_symbol" bson:"token_symbol"`
	Fee             float64                `json:"fee" bson:"fee"`
	Timestamp       time.Time              `json:"timestamp" bson:"timestamp"`
	Status          TransactionStatus      `json:"status" bson:"status"`
	RawData         map[string]interface{} `json:"raw_data" bson:"raw_data"`
}

// NewTransaction builds a record with a fresh id and the ingestion
// wall-clock timestamp. Block time is deliberately not consulted.
func NewTransaction(
	signature string,
	blockNumber uint64,
	txType TransactionType,
	from string,
	to *string,
	amount float64,
	tokenMint *string,
	fee float64,
	status TransactionStatus,
) *Transaction {
	return &Transaction{
		ID:              uuid.NewString(),
		Signature:       signature,
		BlockNumber:     blockNumber,
		TransactionType: txType,
		FromAddress:     from,
		ToAddress:       to,
		Amount:          amount,
		TokenMint:       tokenMint,
		Fee:             fee,
		Timestamp:       time.Now().UTC(),
		Status:          status,
	}
}

// ScanStatus is the singleton progress record. LastScannedBlock only
// ever moves forward and always names a slot below which every slot has
// completed.
type ScanStatus struct {
	ID                       string    `json:"id" bson:"_id"`
	LastScannedBlock         uint64    `json:"last_scanned_block" bson:"last_scanned_block"`
	LastScanTime             time.Time `json:"last_scan_time" bson:"last_scan_time"`
	TotalTransactionsScanned uint64    `json:"total_transactions_scanned" bson:"total_transactions_scanned"`
	IsScanning               bool      `json:"is_scanning" bson:"is_scanning"`
}
