// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus wires AsyncLayer, RoundLayer and an EventSystem into a
// single Node, plus the Gossiper/Registry glue that lets many Nodes in one
// process exchange Data/Vote traffic.
package consensus

import (
	"sync"

	"github.com/luxfi/ids"
)

// Registry resolves node ids to Nodes for Gossiper's cross-node delivery.
// Gossiper holds only ids plus a Registry reference, never a direct *Node
// pointer, so Node ownership stays a clean tree: Node -> Gossiper, never
// Gossiper -> Node.
type Registry struct {
	mu    sync.RWMutex
	nodes map[ids.NodeID]*Node
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[ids.NodeID]*Node)}
}

// Register makes n reachable by its id.
func (r *Registry) Register(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.ID()] = n
}

// Unregister removes id, if present.
func (r *Registry) Unregister(id ids.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}

// Lookup resolves id to its Node.
func (r *Registry) Lookup(id ids.NodeID) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}
