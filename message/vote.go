// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"fmt"

	"github.com/luxfi/ids"
)

// Vote is cast by exactly one voter, at most once per round (per
// RoundLayer's "vote exactly once" invariant).
type Vote struct {
	ID       ids.ID
	DataID   ids.ID // the Data voted for, or NoneDataID
	CommitID ids.ID // the voter's candidate at the time of voting
	VoterID  ids.NodeID
	EpochNum uint64
	RoundNum uint64
	Kind     VoteKind
}

// IsReal reports whether this vote is for a specific Real data id.
func (v *Vote) IsReal() bool { return v.Kind.IsReal() }

// IsNone reports whether this vote is for the NONE sentinel.
func (v *Vote) IsNone() bool { return v.Kind.IsNone() }

func (v *Vote) String() string {
	if v == nil {
		return "Vote(<nil>)"
	}
	return fmt.Sprintf("Vote(id=%s kind=%s data=%s voter=%s epoch=%d round=%d)",
		v.ID, v.Kind, v.DataID, v.VoterID, v.EpochNum, v.RoundNum)
}
