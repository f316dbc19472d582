// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package testfactory provides a deterministic, non-cryptographic
// DataFactory/VoteFactory/DataVerifier used by bftcore's own tests and the
// cmd/bftnode demo. Real deployments plug in a signing-backed factory;
// nothing in this package should be reused outside tests.
package testfactory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync/atomic"

	"github.com/luxfi/ids"

	"github.com/luxfi/bftcore/message"
)

// Factory mints Data/Vote values whose ids are a deterministic hash, so
// repeated runs of the same test produce the same ids without any real
// cryptography. Real data and all votes hash their fields plus a monotonic
// counter; NONE and LAZY placeholder data hash their fields only, so every
// node derives the same placeholder id for a round.
type Factory struct {
	Self    ids.NodeID
	counter uint64

	// FailVerify, when set, makes every CreateDataVerifier().Verify call
	// fail, used to drive RoundLayer's verification-failure -> NONE-vote
	// path in tests.
	FailVerify bool
}

// New returns a Factory that signs as self.
func New(self ids.NodeID) *Factory {
	return &Factory{Self: self}
}

func (f *Factory) next() uint64 {
	return atomic.AddUint64(&f.counter, 1)
}

func hashID(parts ...any) ids.ID {
	h := sha256.New()
	var buf [8]byte
	for _, p := range parts {
		switch v := p.(type) {
		case uint64:
			binary.BigEndian.PutUint64(buf[:], v)
			h.Write(buf[:])
		case ids.ID:
			h.Write(v[:])
		case ids.NodeID:
			h.Write(v.Bytes())
		case string:
			h.Write([]byte(v))
		case byte:
			h.Write([]byte{v})
		}
	}
	var id ids.ID
	copy(id[:], h.Sum(nil))
	return id
}

// CreateData implements message.DataFactory.
func (f *Factory) CreateData(_ context.Context, number uint64, prevID ids.ID, epochNum, roundNum uint64, prevVotes []*message.Vote) (*message.Data, error) {
	n := f.next()
	d := &message.Data{
		PrevID:     prevID,
		ProposerID: f.Self,
		Number:     number,
		EpochNum:   epochNum,
		RoundNum:   roundNum,
		Kind:       message.DataReal,
		PrevVotes:  prevVotes,
	}
	d.ID = hashID(n, "data-real", prevID, f.Self, number, epochNum, roundNum)
	return d, nil
}

// CreateNoneData implements message.DataFactory.
func (f *Factory) CreateNoneData(_ context.Context, epochNum, roundNum uint64, proposerID ids.NodeID) (*message.Data, error) {
	return &message.Data{
		ID:         hashID("data-none", proposerID, epochNum, roundNum),
		ProposerID: proposerID,
		EpochNum:   epochNum,
		RoundNum:   roundNum,
		Kind:       message.DataNone,
	}, nil
}

// CreateLazyData implements message.DataFactory.
func (f *Factory) CreateLazyData(_ context.Context, epochNum, roundNum uint64, proposerID ids.NodeID) (*message.Data, error) {
	return &message.Data{
		ID:         hashID("data-lazy", proposerID, epochNum, roundNum),
		ProposerID: proposerID,
		EpochNum:   epochNum,
		RoundNum:   roundNum,
		Kind:       message.DataLazy,
	}, nil
}

// CreateDataVerifier implements message.DataFactory.
func (f *Factory) CreateDataVerifier() message.DataVerifier {
	return verifier{fail: f.FailVerify}
}

type verifier struct{ fail bool }

func (v verifier) Verify(_ context.Context, d *message.Data) error {
	if v.fail {
		return message.ErrExternalVerify
	}
	return nil
}

// CreateVote implements message.VoteFactory.
func (f *Factory) CreateVote(_ context.Context, dataID, commitID ids.ID, epochNum, roundNum uint64) (*message.Vote, error) {
	n := f.next()
	return &message.Vote{
		ID:       hashID(n, "vote-real", dataID, f.Self, epochNum, roundNum),
		DataID:   dataID,
		CommitID: commitID,
		VoterID:  f.Self,
		EpochNum: epochNum,
		RoundNum: roundNum,
		Kind:     message.VoteReal,
	}, nil
}

// CreateNoneVote implements message.VoteFactory. When voterID is the empty
// NodeID the vote is attributed to f.Self.
func (f *Factory) CreateNoneVote(_ context.Context, voterID ids.NodeID, epochNum, roundNum uint64) (*message.Vote, error) {
	voter := voterID
	if voter == (ids.NodeID{}) {
		voter = f.Self
	}
	n := f.next()
	return &message.Vote{
		ID:       hashID(n, "vote-none", voter, epochNum, roundNum),
		DataID:   message.NoneDataID,
		VoterID:  voter,
		EpochNum: epochNum,
		RoundNum: roundNum,
		Kind:     message.VoteNone,
	}, nil
}

var (
	_ message.DataFactory = (*Factory)(nil)
	_ message.VoteFactory = (*Factory)(nil)
)
