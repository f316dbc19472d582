// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the tunable timing/quorum knobs a Node is built
// with, separated from the wiring in package consensus so presets can be
// chosen without constructing anything.
package config

import "time"

// Parameters bundles the consensus engine's timing and quorum-policy
// knobs: propose/vote liveness timeouts and the round-start delay.
type Parameters struct {
	// TimeoutPropose is how long AsyncLayer waits for a round's Real
	// proposal before synthesizing a NONE data for itself.
	TimeoutPropose time.Duration
	// TimeoutVote is how long AsyncLayer waits, once quorum_num voters'
	// first votes in a round are Real (whichever data ids they name),
	// before synthesizing NONE votes for voters that never weighed in.
	TimeoutVote time.Duration
	// RoundStartDelay is this preset's gap between DoneRound and the next
	// StartRound. consensus.Node does not read it: Node always waits
	// consensus.StartRoundDelay.
	RoundStartDelay time.Duration

	// QuorumNumerator/QuorumDenominator express the default quorum
	// policy as a fraction of the voter set; MinQuorumFor resolves it to
	// an absolute count no smaller than message.MinQuorum.
	QuorumNumerator   int
	QuorumDenominator int
}

// MinQuorumFor resolves p's quorum policy against n voters, never
// returning less than the BFT-safe minimum (⌊2n/3⌋+1).
func (p Parameters) MinQuorumFor(n int) int {
	safe := (2*n)/3 + 1
	policy := (n*p.QuorumNumerator + p.QuorumDenominator - 1) / p.QuorumDenominator
	if policy < safe {
		return safe
	}
	if policy > n {
		return n
	}
	return policy
}

// Mainnet returns production timing: generous timeouts, the BFT-minimum
// quorum.
func Mainnet() Parameters {
	return Parameters{
		TimeoutPropose:    2 * time.Second,
		TimeoutVote:       2 * time.Second,
		RoundStartDelay:   500 * time.Millisecond,
		QuorumNumerator:   2,
		QuorumDenominator: 3,
	}
}

// Testnet returns shorter timeouts for faster round turnover under
// controlled conditions.
func Testnet() Parameters {
	return Parameters{
		TimeoutPropose:    1 * time.Second,
		TimeoutVote:       1 * time.Second,
		RoundStartDelay:   250 * time.Millisecond,
		QuorumNumerator:   2,
		QuorumDenominator: 3,
	}
}

// Local returns aggressive timing for in-process tests and demos, where
// there is no real network latency to absorb.
func Local() Parameters {
	return Parameters{
		TimeoutPropose:    100 * time.Millisecond,
		TimeoutVote:       100 * time.Millisecond,
		RoundStartDelay:   10 * time.Millisecond,
		QuorumNumerator:   2,
		QuorumDenominator: 3,
	}
}
