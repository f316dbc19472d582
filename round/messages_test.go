// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bftcore/message"
)

func nodeID(b byte) ids.NodeID {
	var id ids.NodeID
	id[0] = b
	return id
}

func dataID(b byte) ids.ID {
	var id ids.ID
	id[0] = b
	return id
}

func TestMessagesRealQuorum(t *testing.T) {
	m := NewMessages(3)
	none := &message.Data{ID: dataID(0xAA), Kind: message.DataNone}
	m.AddData(none)

	real := &message.Data{ID: dataID(1), Kind: message.DataReal}
	m.AddData(real)
	require.False(t, m.Determinative())

	voters := []ids.NodeID{nodeID(1), nodeID(2), nodeID(3), nodeID(4)}
	m.AddVote(&message.Vote{ID: dataID(10), DataID: real.ID, VoterID: voters[0], Kind: message.VoteReal})
	m.AddVote(&message.Vote{ID: dataID(11), DataID: real.ID, VoterID: voters[1], Kind: message.VoteReal})
	require.False(t, m.Determinative())

	m.AddVote(&message.Vote{ID: dataID(12), DataID: real.ID, VoterID: voters[2], Kind: message.VoteReal})
	require.True(t, m.Determinative())
	require.Equal(t, real, m.Result())
}

func TestMessagesNoneQuorum(t *testing.T) {
	m := NewMessages(3)
	none := &message.Data{ID: dataID(0xAA), Kind: message.DataNone}
	m.AddData(none)

	voters := []ids.NodeID{nodeID(1), nodeID(2), nodeID(3)}
	for _, v := range voters {
		m.AddVote(&message.Vote{ID: dataID(byte(v[0]) + 100), VoterID: v, Kind: message.VoteNone})
	}
	require.True(t, m.Determinative())
	require.Equal(t, none, m.Result())
	require.False(t, m.Result().IsReal())
}

func TestMessagesFirstVotePerVoterIsAuthoritative(t *testing.T) {
	m := NewMessages(2)
	none := &message.Data{ID: dataID(0xAA), Kind: message.DataNone}
	m.AddData(none)
	real := &message.Data{ID: dataID(1), Kind: message.DataReal}
	m.AddData(real)

	voter := nodeID(1)
	m.AddVote(&message.Vote{ID: dataID(10), DataID: real.ID, VoterID: voter, Kind: message.VoteReal})
	// A later vote from the same voter, for a different bucket, must not
	// move the tally.
	m.AddVote(&message.Vote{ID: dataID(11), VoterID: voter, Kind: message.VoteNone})

	other := nodeID(2)
	m.AddVote(&message.Vote{ID: dataID(12), DataID: real.ID, VoterID: other, Kind: message.VoteReal})

	require.True(t, m.Determinative())
	require.Equal(t, real, m.Result())
}

func TestMessagesDeterminativeIsSticky(t *testing.T) {
	m := NewMessages(1)
	real := &message.Data{ID: dataID(1), Kind: message.DataReal}
	m.AddData(real)
	m.AddVote(&message.Vote{ID: dataID(10), DataID: real.ID, VoterID: nodeID(1), Kind: message.VoteReal})
	require.True(t, m.Determinative())

	other := &message.Data{ID: dataID(2), Kind: message.DataReal}
	m.AddData(other)
	m.AddVote(&message.Vote{ID: dataID(11), DataID: other.ID, VoterID: nodeID(2), Kind: message.VoteReal})
	require.Equal(t, real, m.Result(), "result must not change once determinative")
}

func TestMessagesQuorumBeforeDataArrives(t *testing.T) {
	m := NewMessages(1)
	real := &message.Data{ID: dataID(1), Kind: message.DataReal}
	m.AddVote(&message.Vote{ID: dataID(10), DataID: real.ID, VoterID: nodeID(1), Kind: message.VoteReal})
	require.False(t, m.Determinative(), "quorum reached for an id we have not received yet")

	m.AddData(real)
	require.True(t, m.Determinative())
	require.Equal(t, real, m.Result())
}
