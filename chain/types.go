// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import "encoding/json"

// Block is the jsonParsed form of a confirmed block.
type Block struct {
	Blockhash    string       `json:"blockhash"`
	ParentSlot   uint64       `json:"parentSlot"`
	BlockHeight  *uint64      `json:"blockHeight"`
	BlockTime    *int64       `json:"blockTime"`
	Transactions []TxEnvelope `json:"transactions"`
}

// TxEnvelope pairs a transaction with its execution metadata.
type TxEnvelope struct {
	Transaction Tx    `json:"transaction"`
	Meta        *Meta `json:"meta"`
}

type Tx struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

type Message struct {
	AccountKeys  []AccountKey  `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// AccountKey is one entry of message.accountKeys.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Instruction keeps the decoded fields alongside the original JSON
// object. Raw is carried through to stored transactions untouched.
// Instructions the node could not parse leave Parsed nil.
type Instruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`

	Raw map[string]interface{} `json:"-"`
}

func (in *Instruction) UnmarshalJSON(data []byte) error {
	type wire Instruction
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*in = Instruction(w)
	in.Raw = raw
	return nil
}

// ParsedInstruction is the object form of an instruction's parsed
// field. Some programs (memo) parse to a bare string instead; those
// fail this decode and are not classified.
type ParsedInstruction struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

// Meta is the subset of transaction metadata the scanner reads.
type Meta struct {
	Err json.RawMessage `json:"err"`
	Fee uint64          `json:"fee"`
}

// Failed reports whether the transaction errored on chain.
func (m *Meta) Failed() bool {
	return m != nil && len(m.Err) > 0 && string(m.Err) != "null"
}
