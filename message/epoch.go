// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"fmt"

	"github.com/luxfi/ids"
)

// Epoch is a configuration period with a fixed ordered voter set and
// quorum. Leader rotation and vote positions are both derived from the
// order of Voters.
type Epoch struct {
	Num       uint64
	Voters    []ids.NodeID
	QuorumNum int

	index map[ids.NodeID]int
}

// MinQuorum returns the minimum safe quorum (⌊2n/3⌋+1) for n voters.
func MinQuorum(n int) int {
	return (2*n)/3 + 1
}

// NewEpoch builds an Epoch and validates the caller-supplied quorum against
// the minimum BFT safety threshold. A quorum below the minimum is an
// invariant violation: a fatal assertion indicating a bug upstream.
func NewEpoch(num uint64, voters []ids.NodeID, quorumNum int) (*Epoch, error) {
	if len(voters) == 0 {
		return nil, ErrEmptyVoterSet
	}
	if quorumNum < MinQuorum(len(voters)) || quorumNum > len(voters) {
		return nil, fmt.Errorf("%w: got %d, need %d..%d for %d voters",
			ErrInvalidQuorum, quorumNum, MinQuorum(len(voters)), len(voters), len(voters))
	}

	index := make(map[ids.NodeID]int, len(voters))
	for i, v := range voters {
		index[v] = i
	}

	return &Epoch{
		Num:       num,
		Voters:    voters,
		QuorumNum: quorumNum,
		index:     index,
	}, nil
}

// GetProposerID returns the leader of roundNum: voters[round_num mod n].
func (e *Epoch) GetProposerID(roundNum uint64) ids.NodeID {
	n := uint64(len(e.Voters))
	return e.Voters[roundNum%n]
}

// VoterIndex returns the position of id in the voter ordering.
func (e *Epoch) VoterIndex(id ids.NodeID) (int, bool) {
	i, ok := e.index[id]
	return i, ok
}

// VerifyProposer checks that nodeID is the expected leader of roundNum.
func (e *Epoch) VerifyProposer(nodeID ids.NodeID, roundNum uint64) error {
	if e.GetProposerID(roundNum) != nodeID {
		return ErrWrongProposer
	}
	return nil
}

// VerifyData checks the epoch-scoped invariants of a Data: the epoch number
// matches and, for Real data, the proposer is the rightful leader of its
// round. It does not check parent/number continuity; that is RoundLayer's
// job, since it needs the live candidate pointer, which Epoch does not
// have.
func (e *Epoch) VerifyData(d *Data) error {
	if d.EpochNum != e.Num {
		return ErrEpochMismatch
	}
	if d.IsReal() {
		return e.VerifyProposer(d.ProposerID, d.RoundNum)
	}
	return nil
}

// VerifyVote checks that a vote belongs to this epoch and was cast by a
// known voter.
func (e *Epoch) VerifyVote(v *Vote) error {
	if v.EpochNum != e.Num {
		return ErrEpochMismatch
	}
	if _, ok := e.index[v.VoterID]; !ok {
		return ErrUnknownVoter
	}
	return nil
}

// ProjectVotes orders votes (keyed by voter id) into a slice positioned by
// voter index, with absent voters left nil: the representation
// Data.PrevVotes and leader proposal construction require.
func (e *Epoch) ProjectVotes(byVoter map[ids.NodeID]*Vote) []*Vote {
	projected := make([]*Vote, len(e.Voters))
	for voter, v := range byVoter {
		if i, ok := e.index[voter]; ok {
			projected[i] = v
		}
	}
	return projected
}
