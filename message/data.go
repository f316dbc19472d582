// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"fmt"

	"github.com/luxfi/ids"
)

// Data is a proposal: either a genuine block (Real) or one of two synthetic
// placeholders (None, Lazy). See message.DataKind.
//
// Invariant: Kind == DataReal implies PrevID refers to a known Data.
type Data struct {
	ID         ids.ID
	PrevID     ids.ID
	ProposerID ids.NodeID
	Number     uint64
	EpochNum   uint64
	RoundNum   uint64
	Kind       DataKind

	// PrevVotes is ordered by voter position in the epoch that produced the
	// parent Data: PrevVotes[i] is the vote cast by Epoch.Voters[i], or nil
	// if that voter's vote was never observed.
	PrevVotes []*Vote
}

// IsReal reports whether this Data is a genuine proposal.
func (d *Data) IsReal() bool { return d.Kind.IsReal() }

// IsNone reports whether this Data is the NONE placeholder.
func (d *Data) IsNone() bool { return d.Kind.IsNone() }

// IsLazy reports whether this Data is the LAZY placeholder.
func (d *Data) IsLazy() bool { return d.Kind.IsLazy() }

func (d *Data) String() string {
	if d == nil {
		return "Data(<nil>)"
	}
	return fmt.Sprintf("Data(id=%s kind=%s number=%d epoch=%d round=%d proposer=%s prev=%s)",
		d.ID, d.Kind, d.Number, d.EpochNum, d.RoundNum, d.ProposerID, d.PrevID)
}

// NoneDataID is the sentinel identity used by RoundMessages to tally votes
// for "no data" (the NONE bucket). It never collides with a real Data id
// because DataFactory-minted ids are never equal to ids.Empty.
var NoneDataID = ids.Empty
