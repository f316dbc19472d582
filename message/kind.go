// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package message defines the wire-level Data/Vote/Epoch abstractions the
// consensus engine operates on. Signing, verification and payload
// semantics are external concerns (see DataVerifier); this package only
// fixes identity, ordering attributes and the Real/None/Lazy
// discriminator.
package message

// DataKind discriminates what a Data value represents.
type DataKind uint8

const (
	// DataReal is a genuine proposal authored by the round's leader.
	DataReal DataKind = iota
	// DataNone asserts "the proposer did not produce a proposal this round".
	DataNone
	// DataLazy asserts "the proposer timed out waiting on its own dependencies".
	DataLazy
)

func (k DataKind) String() string {
	switch k {
	case DataReal:
		return "real"
	case DataNone:
		return "none"
	case DataLazy:
		return "lazy"
	default:
		return "unknown"
	}
}

// IsReal reports whether k is DataReal.
func (k DataKind) IsReal() bool { return k == DataReal }

// IsNone reports whether k is DataNone.
func (k DataKind) IsNone() bool { return k == DataNone }

// IsLazy reports whether k is DataLazy.
func (k DataKind) IsLazy() bool { return k == DataLazy }

// VoteKind discriminates what a Vote represents.
type VoteKind uint8

const (
	// VoteReal is a vote for a specific Real data id.
	VoteReal VoteKind = iota
	// VoteNone is a vote for the NONE sentinel: the round should fail.
	VoteNone
)

func (k VoteKind) String() string {
	if k == VoteReal {
		return "real"
	}
	return "none"
}

// IsReal reports whether k is VoteReal.
func (k VoteKind) IsReal() bool { return k == VoteReal }

// IsNone reports whether k is VoteNone.
func (k VoteKind) IsNone() bool { return k == VoteNone }
