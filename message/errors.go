// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import "errors"

// Epoch construction and verification failures. These are ordinary values,
// never panics; the caller decides the consequence: AsyncLayer drops Data
// that fails Epoch.VerifyData and treats a failed Epoch.VerifyVote or an
// invalid Epoch as fatal, while RoundLayer turns an external verification
// failure into a NONE vote.
var (
	ErrEpochMismatch   = errors.New("message: epoch number mismatch")
	ErrWrongProposer   = errors.New("message: proposer is not the expected leader for this round")
	ErrUnknownVoter    = errors.New("message: voter is not a member of this epoch")
	ErrInvalidQuorum   = errors.New("message: quorum_num is outside the valid range for this voter set")
	ErrEmptyVoterSet   = errors.New("message: epoch has no voters")
	ErrWrongParent     = errors.New("message: data's prev_id does not match the expected candidate")
	ErrWrongNumber     = errors.New("message: data's number does not follow the candidate")
	ErrLazyRejected    = errors.New("message: lazy data is never accepted as a proposal")
	ErrExternalVerify  = errors.New("message: external data verification failed")
)
