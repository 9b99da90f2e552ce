// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scanner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/solwatch/types"
	"github.com/ava-labs/solwatch/ws"
)

func TestScanPipeline(t *testing.T) {
	RunSpecs(t, "Scan Pipeline Suite")
}

// pipeline is the whole service minus the HTTP surfaces: fake chain
// and store underneath the real classifier, dispatcher, engine, and
// subscription registry.
type pipeline struct {
	chain      *fakeChain
	store      *fakeStore
	pub        *fakePublisher
	registry   *ws.Registry
	dispatcher *Dispatcher
	engine     *Engine
}

func newPipeline(head uint64) *pipeline {
	p := &pipeline{
		chain:    newFakeChain(head),
		store:    newFakeStore(),
		pub:      &fakePublisher{},
		registry: ws.NewRegistry(zap.NewNop()),
	}
	p.dispatcher = NewDispatcher(p.store, p.pub, p.registry, zap.NewNop())
	p.engine = NewEngine(Config{
		MaxConcurrentRequests: 4,
		MaxAddresses:          10,
	}, p.chain, p.store, p.dispatcher, zap.NewNop())
	p.engine.tick = 5 * time.Millisecond
	return p
}

// run starts the engine and registers its shutdown as cleanup.
func (p *pipeline) run() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer GinkgoRecover()
		defer close(done)
		require.NoError(GinkgoT(), p.engine.Start(ctx))
	}()
	DeferCleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			Fail("engine did not stop")
		}
	})
}

func (p *pipeline) waitCursor(t require.TestingT, slot uint64) {
	require.Eventually(t, func() bool {
		cur := p.store.currentStatus()
		return cur != nil && cur.LastScannedBlock >= slot
	}, 5*time.Second, 10*time.Millisecond)
}

func (p *pipeline) drain(t require.TestingT) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.dispatcher.Drain(ctx))
}

func receiveFrame(t require.TestingT, ch <-chan []byte) types.Transaction {
	var tx types.Transaction
	select {
	case payload := <-ch:
		require.NoError(t, json.Unmarshal(payload, &tx))
	case <-time.After(5 * time.Second):
		Fail("no frame delivered")
	}
	return tx
}

var _ = Describe("scan pipeline", func() {
	It("persists and publishes an exact native transfer record", func() {
		t := GinkgoT()
		p := newPipeline(3)
		p.store.addActive(alice)
		p.chain.setBlock(2, instructionBlock(t, []string{alice, bob},
			systemTransferInstruction(alice, bob, "2500000000")))
		p.run()
		p.waitCursor(t, 3)
		p.drain(t)

		stored, err := p.store.FindTransaction(context.Background(), testSignature)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), stored.BlockNumber)
		assert.Equal(t, types.TransactionTypeNative, stored.TransactionType)
		assert.Equal(t, alice, stored.FromAddress)
		require.NotNil(t, stored.ToAddress)
		assert.Equal(t, bob, *stored.ToAddress)
		assert.Equal(t, 2.5, stored.Amount)
		assert.Equal(t, 0.000005, stored.Fee)
		assert.Equal(t, types.TransactionStatusConfirmed, stored.Status)
		assert.NotNil(t, stored.RawData)

		published := p.pub.published()
		require.Len(t, published, 1)
		assert.Equal(t, testSignature, published[0].Signature)
	})

	It("admits one record per signature across the fan-out", func() {
		t := GinkgoT()
		p := newPipeline(3)
		p.store.addActive(carol)
		// Two transfers inside one transaction share its signature.
		p.chain.setBlock(2, instructionBlock(t, []string{carol, dave, tokenProgramID},
			transferCheckedInstruction(carol, dave, nftMint, `"1"`, 0),
			transferCheckedInstruction(carol, dave, usdcMint, `"250000000"`, 6)))

		frames := make(chan []byte, 8)
		p.registry.AddConnection("conn-1", frames)
		require.NoError(t, p.registry.Subscribe("conn-1", carol))

		p.run()
		p.waitCursor(t, 3)
		p.drain(t)

		assert.Len(t, p.store.storedSignatures(), 1)
		require.Len(t, p.pub.published(), 1)
		assert.Equal(t, testSignature, p.pub.published()[0].Signature)

		frame := receiveFrame(t, frames)
		assert.Equal(t, testSignature, frame.Signature)
		select {
		case <-frames:
			Fail("duplicate signature reached a subscriber")
		case <-time.After(50 * time.Millisecond):
		}
	})

	It("notifies subscribed connections and nobody else", func() {
		t := GinkgoT()
		p := newPipeline(3)
		p.store.addActive(alice)
		p.chain.setBlock(2, instructionBlock(t, []string{alice, bob},
			systemTransferInstruction(alice, bob, "1000000000")))

		bobFrames := make(chan []byte, 8)
		carolFrames := make(chan []byte, 8)
		p.registry.AddConnection("conn-bob", bobFrames)
		p.registry.AddConnection("conn-carol", carolFrames)
		require.NoError(t, p.registry.Subscribe("conn-bob", bob))
		require.NoError(t, p.registry.Subscribe("conn-carol", carol))

		p.run()
		p.waitCursor(t, 3)
		p.drain(t)

		frame := receiveFrame(t, bobFrames)
		assert.Equal(t, testSignature, frame.Signature)
		assert.Equal(t, alice, frame.FromAddress)
		assert.Equal(t, 1.0, frame.Amount)

		select {
		case <-carolFrames:
			Fail("connection without a matching subscription received a frame")
		case <-time.After(50 * time.Millisecond):
		}
	})

	It("applies watch changes without a restart", func() {
		t := GinkgoT()
		p := newPipeline(5)
		p.run()
		p.waitCursor(t, 5)
		assert.Empty(t, p.store.storedSignatures())

		require.NoError(t, p.engine.AddWatched(context.Background(), alice, nil))
		p.chain.setBlock(6, instructionBlock(t, []string{alice, bob},
			systemTransferInstruction(alice, bob, "1000")))
		p.chain.setHead(6)
		require.Eventually(t, func() bool {
			return len(p.store.storedSignatures()) == 1
		}, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, p.engine.RemoveWatched(context.Background(), alice))
		p.chain.setBlock(7, signedBlock(t, testSignature2, []string{alice, bob},
			systemTransferInstruction(alice, bob, "1000")))
		p.chain.setHead(7)
		p.waitCursor(t, 7)
		p.drain(t)

		assert.Equal(t, []string{testSignature}, p.store.storedSignatures())
	})
})
