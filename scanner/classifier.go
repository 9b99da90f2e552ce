// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scanner

import (
	"encoding/json"
	"math"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/ava-labs/solwatch/chain"
	"github.com/ava-labs/solwatch/metrics"
	"github.com/ava-labs/solwatch/types"
	"github.com/ava-labs/solwatch/utils"
)

const (
	programSystem       = "system"
	programSPLToken     = "spl-token"
	programSPLToken2022 = "spl-token-2022"

	typeTransfer        = "transfer"
	typeTransferChecked = "transferChecked"

	lamportsPerSOL = 1_000_000_000
)

// Classifier extracts normalized transfer records from parsed blocks.
// It is stateless; the watched set is passed per block so every
// envelope observes one consistent snapshot.
type Classifier struct {
	log *zap.Logger
}

func NewClassifier(logger *zap.Logger) *Classifier {
	return &Classifier{log: logger}
}

// ClassifyBlock returns one record per matching instruction, in block
// order. Envelopes whose account keys never touch the watched set are
// discarded before any instruction work.
func (c *Classifier) ClassifyBlock(slot uint64, blk *chain.Block, watched mapset.Set[string]) []*types.Transaction {
	if blk == nil {
		return nil
	}
	var out []*types.Transaction
	for i := range blk.Transactions {
		out = append(out, c.classifyEnvelope(slot, &blk.Transactions[i], watched)...)
	}
	return out
}

func (c *Classifier) classifyEnvelope(slot uint64, env *chain.TxEnvelope, watched mapset.Set[string]) []*types.Transaction {
	if len(env.Transaction.Signatures) == 0 {
		return nil
	}
	if !touchesWatched(env.Transaction.Message.AccountKeys, watched) {
		return nil
	}

	signature := env.Transaction.Signatures[0]
	fee := feeSOL(env.Meta)
	status := types.TransactionStatusConfirmed
	if env.Meta.Failed() {
		status = types.TransactionStatusFailed
	}

	var out []*types.Transaction
	for i := range env.Transaction.Message.Instructions {
		in := &env.Transaction.Message.Instructions[i]
		tx := c.classifyInstruction(slot, signature, fee, status, in, watched)
		if tx == nil {
			continue
		}
		metrics.TransactionsMatched.WithLabelValues(string(tx.TransactionType)).Inc()
		out = append(out, tx)
	}
	return out
}

func (c *Classifier) classifyInstruction(
	slot uint64,
	signature string,
	fee float64,
	status types.TransactionStatus,
	in *chain.Instruction,
	watched mapset.Set[string],
) *types.Transaction {
	if in.Parsed == nil {
		// Raw instruction the node could not decode.
		return nil
	}
	var parsed chain.ParsedInstruction
	if err := json.Unmarshal(in.Parsed, &parsed); err != nil {
		// Memo-style programs parse to a bare string; nothing to match.
		c.log.Debug("skipping undecodable parsed instruction",
			zap.String("signature", signature),
			zap.String("program", in.Program),
		)
		return nil
	}

	switch {
	case in.Program == programSystem && parsed.Type == typeTransfer:
		return c.nativeTransfer(slot, signature, fee, status, in, parsed.Info, watched)
	case (in.Program == programSPLToken || in.Program == programSPLToken2022) &&
		(parsed.Type == typeTransfer || parsed.Type == typeTransferChecked):
		return c.tokenTransfer(slot, signature, fee, status, in, parsed.Info, watched)
	}
	return nil
}

type systemTransferInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    uint64 `json:"lamports"`
}

func (c *Classifier) nativeTransfer(
	slot uint64,
	signature string,
	fee float64,
	status types.TransactionStatus,
	in *chain.Instruction,
	info json.RawMessage,
	watched mapset.Set[string],
) *types.Transaction {
	var ti systemTransferInfo
	if err := json.Unmarshal(info, &ti); err != nil {
		c.log.Warn("malformed system transfer info",
			zap.String("signature", signature), zap.Error(err))
		return nil
	}

	var to *string
	if ti.Destination != "" {
		to = utils.Ptr(ti.Destination)
	}
	if !isWatched(ti.Source, to, watched) {
		return nil
	}

	amount := float64(ti.Lamports) / lamportsPerSOL
	tx := types.NewTransaction(signature, slot, types.TransactionTypeNative,
		ti.Source, to, amount, nil, fee, status)
	tx.RawData = in.Raw
	return tx
}

type tokenTransferInfo struct {
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Mint        string          `json:"mint"`
	Amount      json.RawMessage `json:"amount"`
	Decimals    uint32          `json:"decimals"`
}

func (c *Classifier) tokenTransfer(
	slot uint64,
	signature string,
	fee float64,
	status types.TransactionStatus,
	in *chain.Instruction,
	info json.RawMessage,
	watched mapset.Set[string],
) *types.Transaction {
	var ti tokenTransferInfo
	if err := json.Unmarshal(info, &ti); err != nil {
		c.log.Warn("malformed token transfer info",
			zap.String("signature", signature), zap.Error(err))
		return nil
	}

	var to, mint *string
	if ti.Destination != "" {
		to = utils.Ptr(ti.Destination)
	}
	if ti.Mint != "" {
		mint = utils.Ptr(ti.Mint)
	}
	if !isWatched(ti.Source, to, watched) {
		return nil
	}

	amount := parseAmount(ti.Amount)
	if ti.Decimals > 0 {
		amount /= math.Pow10(int(ti.Decimals))
	}

	// A transfer of exactly one indivisible unit is a collectible.
	// Without a mint the record could not satisfy the NFT contract, so
	// such transfers stay plain token moves.
	typ := types.TransactionTypeToken
	if ti.Decimals == 0 && amount == 1 && mint != nil {
		typ = types.TransactionTypeNFT
	}

	tx := types.NewTransaction(signature, slot, typ, ti.Source, to, amount, mint, fee, status)
	tx.RawData = in.Raw
	return tx
}

// parseAmount accepts the three encodings token programs emit for
// amounts: a quoted decimal string, a JSON integer, or a JSON float.
// Anything unusable becomes 0.
func parseAmount(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var amount float64
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		amount, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
	} else if err := json.Unmarshal(raw, &amount); err != nil {
		return 0
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return amount
}

func touchesWatched(keys []chain.AccountKey, watched mapset.Set[string]) bool {
	for _, k := range keys {
		if watched.Contains(k.Pubkey) {
			return true
		}
	}
	return false
}

func isWatched(from string, to *string, watched mapset.Set[string]) bool {
	return watched.Contains(from) || (to != nil && watched.Contains(*to))
}

func feeSOL(m *chain.Meta) float64 {
	if m == nil {
		return 0
	}
	return float64(m.Fee) / lamportsPerSOL
}
