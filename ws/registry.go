// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ws pushes matched transactions to WebSocket subscribers and
// keeps the registry that routes each transaction to the connections
// interested in its addresses.
package ws

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/ava-labs/solwatch/metrics"
	"github.com/ava-labs/solwatch/types"
)

// ErrUnknownConnection marks operations against a connection id that
// was never added or has already been removed.
var ErrUnknownConnection = errors.New("unknown connection")

type connection struct {
	send  chan []byte
	addrs mapset.Set[string] // guarded by Registry.mu
}

// Registry is the dual index between connections and the addresses
// they subscribe to: conn id → subscriptions and address → subscriber
// ids. Both maps mutate together under one lock, so readers never
// observe a half-applied change and notify stays an O(1) lookup per
// address.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection
	subs  map[string]mapset.Set[string]
	log   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*connection),
		subs:  make(map[string]mapset.Set[string]),
		log:   logger,
	}
}

// AddConnection registers a connection and the channel its frames are
// queued on. The caller keeps the receive side; the registry never
// closes the channel.
func (r *Registry) AddConnection(id string, send chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connection{
		send:  send,
		addrs: mapset.NewThreadUnsafeSet[string](),
	}
	metrics.WSConnections.Set(float64(len(r.conns)))
	r.log.Info("connection added", zap.String("conn_id", id))
}

// RemoveConnection drops a connection and every subscription it
// holds, pruning subscriber sets that become empty. Unknown ids are a
// no-op.
func (r *Registry) RemoveConnection(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	conn.addrs.Each(func(addr string) bool {
		r.dropSubscriber(addr, id)
		return false
	})
	metrics.WSConnections.Set(float64(len(r.conns)))
	r.log.Info("connection removed", zap.String("conn_id", id))
}

// dropSubscriber must run under the write lock.
func (r *Registry) dropSubscriber(address, id string) {
	set, ok := r.subs[address]
	if !ok {
		return
	}
	set.Remove(id)
	if set.Cardinality() == 0 {
		delete(r.subs, address)
	}
}

// Subscribe adds address to the connection's subscriptions and the
// connection to the address's subscriber set, atomically.
func (r *Registry) Subscribe(id, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	conn.addrs.Add(address)
	set, ok := r.subs[address]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		r.subs[address] = set
	}
	set.Add(id)
	r.log.Info("subscribed",
		zap.String("conn_id", id), zap.String("address", address))
	return nil
}

// Unsubscribe retracts one subscription. Unsubscribing from an
// address the connection never subscribed to is a no-op.
func (r *Registry) Unsubscribe(id, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	conn.addrs.Remove(address)
	r.dropSubscriber(address, id)
	r.log.Info("unsubscribed",
		zap.String("conn_id", id), zap.String("address", address))
	return nil
}

// Notify fans tx out to every connection subscribed to its from or to
// address; a connection subscribed to both sides receives one frame.
// The payload is serialized once. Enqueueing never blocks: a
// connection whose queue is full misses this frame instead of stalling
// the pipeline on a slow reader.
func (r *Registry) Notify(tx *types.Transaction) {
	payload, err := json.Marshal(tx)
	if err != nil {
		r.log.Error("marshal notification",
			zap.String("signature", tx.Signature), zap.Error(err))
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := mapset.NewThreadUnsafeSet[string]()
	if set, ok := r.subs[tx.FromAddress]; ok {
		targets = targets.Union(set)
	}
	if tx.ToAddress != nil {
		if set, ok := r.subs[*tx.ToAddress]; ok {
			targets = targets.Union(set)
		}
	}

	targets.Each(func(id string) bool {
		conn, ok := r.conns[id]
		if !ok {
			return false
		}
		select {
		case conn.send <- payload:
		default:
			metrics.NotifyDropped.Inc()
			r.log.Warn("subscriber queue full; dropping notification",
				zap.String("conn_id", id),
				zap.String("signature", tx.Signature))
		}
		return false
	})
}

// SubscribedAddresses returns one connection's subscriptions, sorted.
// Unknown ids yield nil.
func (r *Registry) SubscribedAddresses(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := conn.addrs.ToSlice()
	sort.Strings(out)
	return out
}

// Addresses returns every address with at least one subscriber,
// sorted.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := maps.Keys(r.subs)
	sort.Strings(out)
	return out
}

// Connections reports the number of registered connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
