// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/bftcore/event"
	"github.com/luxfi/bftcore/message"
)

// Gossiper forwards one Node's BroadcastData/BroadcastVote output to a set
// of peers, resolved by id through a Registry rather than held as direct
// pointers, avoiding a Node<->Gossiper reference cycle. Delivery here is
// immediate (a zero-delay special case of "may be delayed but must be
// eventually reliable"); duplicates are tolerated because Node dedupes at
// its ReceiveData/ReceiveVote boundary.
type Gossiper struct {
	log      log.Logger
	self     ids.NodeID
	registry *Registry
	peers    []ids.NodeID
}

// NewGossiper subscribes to self's BroadcastData/BroadcastVote output and
// forwards it to peers, looked up through registry at delivery time.
func NewGossiper(logger log.Logger, self *Node, registry *Registry, peers []ids.NodeID) *Gossiper {
	g := &Gossiper{
		log:      logger,
		self:     self.ID(),
		registry: registry,
		peers:    peers,
	}
	self.EventSystem().RegisterHandler(event.TypeBroadcastData, g.handleBroadcastData)
	self.EventSystem().RegisterHandler(event.TypeBroadcastVote, g.handleBroadcastVote)
	return g
}

func (g *Gossiper) handleBroadcastData(ev event.Event) error {
	d, ok := ev.Payload.(*message.Data)
	if !ok {
		return event.ErrInvariantBroken
	}
	for _, peerID := range g.peers {
		peer, ok := g.registry.Lookup(peerID)
		if !ok {
			g.log.Debug("dropping data: peer not in registry", "peer", peerID, "id", d.ID)
			continue
		}
		peer.ReceiveData(d)
	}
	return nil
}

func (g *Gossiper) handleBroadcastVote(ev event.Event) error {
	v, ok := ev.Payload.(*message.Vote)
	if !ok {
		return event.ErrInvariantBroken
	}
	for _, peerID := range g.peers {
		peer, ok := g.registry.Lookup(peerID)
		if !ok {
			g.log.Debug("dropping vote: peer not in registry", "peer", peerID, "id", v.ID)
			continue
		}
		peer.ReceiveVote(v)
	}
	return nil
}

// AddPeer extends the forwarding set.
func (g *Gossiper) AddPeer(id ids.NodeID) {
	g.peers = append(g.peers, id)
}
