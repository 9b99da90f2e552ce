// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ava-labs/solwatch/chain"
	"github.com/ava-labs/solwatch/store"
	"github.com/ava-labs/solwatch/types"
)

// fakeChain is a scriptable Chain: canned blocks and errors per slot,
// plus gates that hold a fetch open until the test releases it.
type fakeChain struct {
	mu      sync.Mutex
	head    uint64
	headErr error
	blocks  map[uint64]*chain.Block
	errs    map[uint64]error
	gates   map[uint64]chan struct{}
	fetched []uint64

	// served receives each slot whose fetch has returned.
	served chan uint64
}

func newFakeChain(head uint64) *fakeChain {
	return &fakeChain{
		head:   head,
		blocks: make(map[uint64]*chain.Block),
		errs:   make(map[uint64]error),
		gates:  make(map[uint64]chan struct{}),
		served: make(chan uint64, 1024),
	}
}

func (f *fakeChain) Slot(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeChain) Block(ctx context.Context, slot uint64) (*chain.Block, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, slot)
	gate := f.gates[slot]
	err := f.errs[slot]
	blk := f.blocks[slot]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	defer func() {
		select {
		case f.served <- slot:
		default:
		}
	}()

	if err != nil {
		return nil, err
	}
	if blk != nil {
		return blk, nil
	}
	return &chain.Block{Blockhash: fmt.Sprintf("hash-%d", slot)}, nil
}

func (f *fakeChain) setHead(head uint64) {
	f.mu.Lock()
	f.head = head
	f.mu.Unlock()
}

func (f *fakeChain) setHeadErr(err error) {
	f.mu.Lock()
	f.headErr = err
	f.mu.Unlock()
}

func (f *fakeChain) setBlock(slot uint64, blk *chain.Block) {
	f.mu.Lock()
	f.blocks[slot] = blk
	f.mu.Unlock()
}

func (f *fakeChain) setErr(slot uint64, err error) {
	f.mu.Lock()
	f.errs[slot] = err
	f.mu.Unlock()
}

func (f *fakeChain) clearErr(slot uint64) {
	f.mu.Lock()
	delete(f.errs, slot)
	f.mu.Unlock()
}

// gate makes fetches of slot block until the returned release func is
// called. Install before the engine starts.
func (f *fakeChain) gate(slot uint64) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[slot] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeChain) fetchCounts() map[uint64]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint64]int, len(f.fetched))
	for _, s := range f.fetched {
		out[s]++
	}
	return out
}

// fakeStore is an in-memory store.Store with the same sentinel
// behavior as the Mongo implementation and a log of every persisted
// cursor value.
type fakeStore struct {
	mu        sync.Mutex
	addrs     map[string]*types.WalletAddress
	txs       map[string]types.Transaction
	txOrder   []string
	status    *types.ScanStatus
	statusLog []uint64

	statusErr   error
	activeErr   error
	insertTxErr error
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		addrs: make(map[string]*types.WalletAddress),
		txs:   make(map[string]types.Transaction),
	}
}

func (s *fakeStore) InsertAddress(_ context.Context, addr *types.WalletAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.addrs[addr.Address]; ok && cur.IsActive {
		return store.ErrDuplicateAddress
	}
	cp := *addr
	s.addrs[addr.Address] = &cp
	return nil
}

func (s *fakeStore) ActiveAddresses(context.Context) ([]types.WalletAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	var out []types.WalletAddress
	for _, a := range s.addrs {
		if a.IsActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeStore) DeactivateAddress(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.addrs[address]
	if !ok || !cur.IsActive {
		return store.ErrNotFound
	}
	cur.IsActive = false
	return nil
}

func (s *fakeStore) InsertTransaction(_ context.Context, tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertTxErr != nil {
		return s.insertTxErr
	}
	if _, ok := s.txs[tx.Signature]; ok {
		return store.ErrDuplicateSignature
	}
	s.txs[tx.Signature] = *tx
	s.txOrder = append(s.txOrder, tx.Signature)
	return nil
}

func (s *fakeStore) FindTransaction(_ context.Context, signature string) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[signature]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &tx, nil
}

func (s *fakeStore) QueryTransactions(_ context.Context, address string, limit, offset int64) ([]types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []types.Transaction
	for i := len(s.txOrder) - 1; i >= 0; i-- {
		tx := s.txs[s.txOrder[i]]
		if address != "" && tx.FromAddress != address &&
			(tx.ToAddress == nil || *tx.ToAddress != address) {
			continue
		}
		all = append(all, tx)
	}
	if offset >= int64(len(all)) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && int64(len(all)) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *fakeStore) ScanStatus(context.Context) (*types.ScanStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	if s.status == nil {
		return nil, store.ErrNotFound
	}
	cp := *s.status
	return &cp, nil
}

func (s *fakeStore) UpsertScanStatus(_ context.Context, status *types.ScanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *status
	cp.ID = types.ScanStatusID
	s.status = &cp
	s.statusLog = append(s.statusLog, status.LastScannedBlock)
	return nil
}

func (s *fakeStore) Ping(context.Context) error  { return nil }
func (s *fakeStore) Close(context.Context) error { return nil }

func (s *fakeStore) seedStatus(last, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &types.ScanStatus{
		ID:                       types.ScanStatusID,
		LastScannedBlock:         last,
		TotalTransactionsScanned: total,
		IsScanning:               false,
	}
}

func (s *fakeStore) addActive(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[address] = types.NewWalletAddress(address, nil)
}

func (s *fakeStore) setActiveErr(err error) {
	s.mu.Lock()
	s.activeErr = err
	s.mu.Unlock()
}

func (s *fakeStore) setStatusErr(err error) {
	s.mu.Lock()
	s.statusErr = err
	s.mu.Unlock()
}

func (s *fakeStore) setInsertTxErr(err error) {
	s.mu.Lock()
	s.insertTxErr = err
	s.mu.Unlock()
}

// statuses returns every persisted cursor value in persist order.
func (s *fakeStore) statuses() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.statusLog))
	copy(out, s.statusLog)
	return out
}

func (s *fakeStore) currentStatus() *types.ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return nil
	}
	cp := *s.status
	return &cp
}

func (s *fakeStore) storedSignatures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.txOrder))
	copy(out, s.txOrder)
	return out
}

type fakePublisher struct {
	mu  sync.Mutex
	txs []types.Transaction
	err error
}

func (p *fakePublisher) Publish(_ context.Context, tx *types.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.txs = append(p.txs, *tx)
	return nil
}

func (p *fakePublisher) published() []types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Transaction, len(p.txs))
	copy(out, p.txs)
	return out
}

type fakeNotifier struct {
	mu  sync.Mutex
	txs []types.Transaction
}

func (n *fakeNotifier) Notify(tx *types.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txs = append(n.txs, *tx)
}

func (n *fakeNotifier) notified() []types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Transaction, len(n.txs))
	copy(out, n.txs)
	return out
}
