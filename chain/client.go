// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain is a minimal JSON-RPC 2.0 client for the two Solana
// node calls the scanner needs, with the block payload decoded from
// the node's jsonParsed encoding.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	requestTimeout = 30 * time.Second

	// Codes the node returns for slots that never produced a block:
	// -32007 (slot was skipped) and -32009 (skipped, or missing from
	// long-term storage).
	codeSlotSkipped         = -32007
	codeSlotSkippedLongTerm = -32009
)

var (
	// ErrSlotSkipped marks a slot that has no block and never will.
	// Callers treat such slots as scanned.
	ErrSlotSkipped = errors.New("slot skipped")

	// ErrRateLimited marks requests the node shed. The slot stays
	// incomplete and is retried on a later tick.
	ErrRateLimited = errors.New("rate limited by rpc node")
)

// Client talks to a single Solana RPC endpoint.
type Client struct {
	url     string
	httpc   *http.Client
	limiter *rate.Limiter
	reqID   atomic.Uint64
}

// NewClient returns a client for url. ratePerSec > 0 caps outgoing
// requests per second; 0 leaves them unthrottled.
func NewClient(url string, ratePerSec int) *Client {
	c := &Client{
		url:   url,
		httpc: &http.Client{Timeout: requestTimeout},
	}
	if ratePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Slot returns the latest confirmed slot.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	params := []interface{}{map[string]string{"commitment": "confirmed"}}
	var slot uint64
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}
	return slot, nil
}

// blockConfig mirrors the getBlock configuration object. The zero
// MaxSupportedTransactionVersion is required on the wire; without it
// the node rejects blocks holding versioned transactions.
type blockConfig struct {
	Encoding                       string `json:"encoding"`
	TransactionDetails             string `json:"transactionDetails"`
	Rewards                        bool   `json:"rewards"`
	Commitment                     string `json:"commitment"`
	MaxSupportedTransactionVersion int    `json:"maxSupportedTransactionVersion"`
}

// Block fetches one slot in jsonParsed form. Slots the chain reports
// as skipped, and null results, come back as ErrSlotSkipped.
func (c *Client) Block(ctx context.Context, slot uint64) (*Block, error) {
	params := []interface{}{slot, blockConfig{
		Encoding:           "jsonParsed",
		TransactionDetails: "full",
		Rewards:            false,
		Commitment:         "confirmed",
	}}
	var blk *Block
	err := c.call(ctx, "getBlock", params, &blk)

	var rpcErr *rpcError
	switch {
	case errors.As(err, &rpcErr) &&
		(rpcErr.Code == codeSlotSkipped || rpcErr.Code == codeSlotSkippedLongTerm):
		return nil, fmt.Errorf("slot %d: %w", slot, ErrSlotSkipped)
	case err != nil:
		return nil, fmt.Errorf("getBlock %d: %w", slot, err)
	case blk == nil:
		// A null result without an error code; the slot is still gone.
		return nil, fmt.Errorf("slot %d: %w", slot, ErrSlotSkipped)
	}
	return blk, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		// Null results leave the caller's value zeroed.
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}
