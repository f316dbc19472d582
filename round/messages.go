// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/bftcore/message"
	"github.com/luxfi/bftcore/utils/bag"
)

// Messages aggregates the Data and Vote traffic of exactly one round and
// computes its result. It is constructed at round_start and abandoned
// (not explicitly destroyed, Go's GC reclaims it) when the next
// round_start replaces Layer.messages.
type Messages struct {
	quorumNum int

	dataByID map[ids.ID]*message.Data
	noneData *message.Data
	lazyData *message.Data

	votesByVoter map[ids.NodeID]*message.Vote
	tally        bag.Bag[ids.ID]

	determinative bool
	result        *message.Data
}

// NewMessages constructs an empty Messages requiring quorumNum votes in a
// single bucket to become determinative.
func NewMessages(quorumNum int) *Messages {
	return &Messages{
		quorumNum:    quorumNum,
		dataByID:     make(map[ids.ID]*message.Data),
		votesByVoter: make(map[ids.NodeID]*message.Vote),
		tally:        bag.New[ids.ID](),
	}
}

// AddData records d, remembering it as the round's canonical None/Lazy
// placeholder if it is one, then recomputes the result.
func (m *Messages) AddData(d *message.Data) {
	m.dataByID[d.ID] = d
	switch {
	case d.IsNone():
		m.noneData = d
	case d.IsLazy():
		m.lazyData = d
	}
	m.recompute()
}

// AddVote records v if it is the first vote seen from v.VoterID; later
// votes from the same voter are accepted without error but do not affect
// the tally, then recomputes the result.
func (m *Messages) AddVote(v *message.Vote) {
	if _, seen := m.votesByVoter[v.VoterID]; seen {
		return
	}
	m.votesByVoter[v.VoterID] = v
	bucket := message.NoneDataID
	if v.IsReal() {
		bucket = v.DataID
	}
	m.tally.Add(bucket)
	m.recompute()
}

// recompute selects the round's result: once determinative, the result
// never changes, even as more votes arrive.
func (m *Messages) recompute() {
	if m.determinative {
		return
	}
	for _, bucket := range m.tally.List() {
		if m.tally.Count(bucket) < m.quorumNum {
			continue
		}
		if bucket == message.NoneDataID {
			if m.noneData == nil {
				continue
			}
			m.determinative = true
			m.result = m.noneData
			return
		}
		if d, ok := m.dataByID[bucket]; ok {
			m.determinative = true
			m.result = d
			return
		}
		// Quorum reached for a data id we have not received yet; not yet
		// determinative, wait for the Data itself.
	}
}

// Determinative reports whether Result is final for this round.
func (m *Messages) Determinative() bool { return m.determinative }

// Result returns the round's winning Data, or nil if not yet determinative.
func (m *Messages) Result() *message.Data { return m.result }

// VotesByVoter returns the first-recorded vote per voter, keyed by voter
// id, the set a leader projects via Epoch.ProjectVotes into its next
// proposal's prev_votes.
func (m *Messages) VotesByVoter() map[ids.NodeID]*message.Vote {
	return m.votesByVoter
}
