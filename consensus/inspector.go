// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/bftcore/round"
)

// Snapshot is a read-only view of a Node's internal state at the instant
// Snapshot was called. The dispatch loop is the only writer of the
// underlying fields; Node.snapshot and round.Layer.State copy them out
// under their own locks, so calling Snapshot from any goroutine is safe,
// though the result may be stale by the time the caller observes it if
// the dispatch loop has since advanced.
type Snapshot struct {
	NodeID       ids.NodeID
	EpochNum     uint64
	RoundNum     uint64
	CandidateID  ids.ID
	CandidateNum uint64
	RoundState   round.State
	Voters       []ids.NodeID
	QuorumNum    int
}

// Inspector exposes read-only Snapshots of a Node.
type Inspector struct {
	node *Node
}

// NewInspector wraps node for inspection.
func NewInspector(node *Node) *Inspector {
	return &Inspector{node: node}
}

// Snapshot copies out node's current round/epoch/candidate state.
func (i *Inspector) Snapshot() Snapshot {
	n := i.node
	s := n.snapshot()
	return Snapshot{
		NodeID:       n.id,
		EpochNum:     s.epochNum,
		RoundNum:     s.roundNum,
		CandidateID:  s.candidateID,
		CandidateNum: s.candidateNum,
		RoundState:   n.round.State(),
		Voters:       s.voters,
		QuorumNum:    s.quorumNum,
	}
}
