// Package stream implements the realtime price fan-out: per-connection
// subscription state, the websocket hub, and the broadcast scheduler.
package stream

import (
	"sync"

	"github.com/tradesim/paper-api/internal/ledger"
)

// Item identifies one subscribable venue/symbol pair.
type Item struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// Registry maps connection ids to their interest sets. Connections are
// identified by id, never by transport handle, so the registry stays
// decoupled from the websocket layer.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
	}
}

// Subscribe replaces (never merges) the connection's interest set with the
// given items and returns the accepted set. Items missing a venue or
// symbol are dropped silently.
func (r *Registry) Subscribe(connID string, items []Item) []Item {
	accepted := make([]Item, 0, len(items))
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Venue == "" || item.Symbol == "" {
			continue
		}
		key := ledger.Key(item.Venue, item.Symbol)
		if _, dup := set[key]; dup {
			continue
		}
		set[key] = struct{}{}
		accepted = append(accepted, item)
	}

	r.mu.Lock()
	r.conns[connID] = set
	r.mu.Unlock()

	return accepted
}

// Unregister removes the connection's entry entirely; called on
// disconnect.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	delete(r.conns, connID)
	r.mu.Unlock()
}

// WantedKeys returns the union of every connection's interest set.
// Recomputed fresh on each broadcast tick; no incremental index is kept.
func (r *Registry) WantedKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	union := make(map[string]struct{})
	for _, set := range r.conns {
		for key := range set {
			union[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(union))
	for key := range union {
		keys = append(keys, key)
	}
	return keys
}

// ConnIDsFor returns a snapshot of the connections currently interested
// in key.
func (r *Registry) ConnIDsFor(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for connID, set := range r.conns {
		if _, ok := set[key]; ok {
			ids = append(ids, connID)
		}
	}
	return ids
}
