// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"context"

	"github.com/luxfi/ids"
)

// DataFactory mints and verifies Data values. Signing is external: a real
// implementation wraps network key material behind these calls. Every
// method is a suspension point: implementations may block on I/O or
// cryptography, so callers always go through a context.Context.
type DataFactory interface {
	// CreateData builds a genuine (Real) proposal.
	CreateData(ctx context.Context, number uint64, prevID ids.ID, epochNum, roundNum uint64, prevVotes []*Vote) (*Data, error)
	// CreateNoneData builds the NONE placeholder for a round whose leader
	// produced nothing.
	CreateNoneData(ctx context.Context, epochNum, roundNum uint64, proposerID ids.NodeID) (*Data, error)
	// CreateLazyData builds the LAZY placeholder for a round whose leader
	// timed out waiting on its own dependencies.
	CreateLazyData(ctx context.Context, epochNum, roundNum uint64, proposerID ids.NodeID) (*Data, error)
	// CreateDataVerifier returns a verifier for externally-originated Real
	// proposals.
	CreateDataVerifier() DataVerifier
}

// DataVerifier checks application-level validity of a Real Data; payload
// semantics are out of scope here, this is the opaque verification
// predicate the rest of the engine calls through.
type DataVerifier interface {
	Verify(ctx context.Context, d *Data) error
}

// VoteFactory mints votes.
type VoteFactory interface {
	// CreateVote builds a Real vote for dataID, recording the voter's
	// current candidate as commitID.
	CreateVote(ctx context.Context, dataID, commitID ids.ID, epochNum, roundNum uint64) (*Vote, error)
	// CreateNoneVote builds a NONE vote. voterID is supplied when the vote
	// is synthesized on behalf of another voter (liveness timers); it is
	// the empty NodeID when the caller is voting for itself.
	CreateNoneVote(ctx context.Context, voterID ids.NodeID, epochNum, roundNum uint64) (*Vote, error)
}
