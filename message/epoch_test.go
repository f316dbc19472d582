// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func nodeIDs(n int) []ids.NodeID {
	out := make([]ids.NodeID, n)
	for i := range out {
		out[i][0] = byte(i + 1)
	}
	return out
}

func TestMinQuorum(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{n: 1, want: 1},
		{n: 3, want: 3},
		{n: 4, want: 3},
		{n: 7, want: 5},
		{n: 100, want: 67},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, MinQuorum(tt.n))
	}
}

func TestNewEpoch(t *testing.T) {
	voters := nodeIDs(4)

	t.Run("rejects empty voter set", func(t *testing.T) {
		_, err := NewEpoch(0, nil, 1)
		require.ErrorIs(t, err, ErrEmptyVoterSet)
	})

	t.Run("rejects below-minimum quorum", func(t *testing.T) {
		_, err := NewEpoch(0, voters, 2)
		require.ErrorIs(t, err, ErrInvalidQuorum)
	})

	t.Run("rejects quorum above voter count", func(t *testing.T) {
		_, err := NewEpoch(0, voters, 5)
		require.ErrorIs(t, err, ErrInvalidQuorum)
	})

	t.Run("accepts minimum safe quorum", func(t *testing.T) {
		e, err := NewEpoch(0, voters, 3)
		require.NoError(t, err)
		require.Equal(t, 3, e.QuorumNum)
	})
}

func TestEpochGetProposerID(t *testing.T) {
	voters := nodeIDs(4)
	e, err := NewEpoch(0, voters, 3)
	require.NoError(t, err)

	require.Equal(t, voters[0], e.GetProposerID(0))
	require.Equal(t, voters[1], e.GetProposerID(1))
	require.Equal(t, voters[3], e.GetProposerID(3))
	require.Equal(t, voters[0], e.GetProposerID(4))
}

func TestEpochVerifyData(t *testing.T) {
	voters := nodeIDs(4)
	e, err := NewEpoch(7, voters, 3)
	require.NoError(t, err)

	t.Run("wrong epoch", func(t *testing.T) {
		d := &Data{EpochNum: 6, Kind: DataReal, ProposerID: voters[0], RoundNum: 0}
		require.ErrorIs(t, e.VerifyData(d), ErrEpochMismatch)
	})

	t.Run("wrong proposer", func(t *testing.T) {
		d := &Data{EpochNum: 7, Kind: DataReal, ProposerID: voters[1], RoundNum: 0}
		require.ErrorIs(t, e.VerifyData(d), ErrWrongProposer)
	})

	t.Run("accepts rightful leader", func(t *testing.T) {
		d := &Data{EpochNum: 7, Kind: DataReal, ProposerID: voters[0], RoundNum: 0}
		require.NoError(t, e.VerifyData(d))
	})

	t.Run("none data skips proposer check", func(t *testing.T) {
		d := &Data{EpochNum: 7, Kind: DataNone, ProposerID: voters[1], RoundNum: 0}
		require.NoError(t, e.VerifyData(d))
	})
}

func TestEpochVerifyVote(t *testing.T) {
	voters := nodeIDs(4)
	e, err := NewEpoch(1, voters, 3)
	require.NoError(t, err)

	require.ErrorIs(t, e.VerifyVote(&Vote{EpochNum: 2, VoterID: voters[0]}), ErrEpochMismatch)

	var unknown ids.NodeID
	unknown[0] = 0xFF
	require.ErrorIs(t, e.VerifyVote(&Vote{EpochNum: 1, VoterID: unknown}), ErrUnknownVoter)

	require.NoError(t, e.VerifyVote(&Vote{EpochNum: 1, VoterID: voters[2]}))
}

func TestEpochProjectVotes(t *testing.T) {
	voters := nodeIDs(3)
	e, err := NewEpoch(0, voters, 3)
	require.NoError(t, err)

	byVoter := map[ids.NodeID]*Vote{
		voters[2]: {VoterID: voters[2], Kind: VoteReal},
	}
	projected := e.ProjectVotes(byVoter)
	require.Len(t, projected, 3)
	require.Nil(t, projected[0])
	require.Nil(t, projected[1])
	require.NotNil(t, projected[2])
	require.Equal(t, voters[2], projected[2].VoterID)
}
