// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package async

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bftcore/event"
	"github.com/luxfi/bftcore/message"
	"github.com/luxfi/bftcore/message/testfactory"
)

func testVoters(n int) []ids.NodeID {
	out := make([]ids.NodeID, n)
	for i := range out {
		out[i][0] = byte(i + 1)
	}
	return out
}

// newTestLayer wires a Layer against a real, running EventSystem, with the
// liveness timers pushed far enough out that they never fire within a
// test's lifetime.
func newTestLayer(t *testing.T) (*Layer, *event.EventSystem, ids.NodeID) {
	t.Helper()
	voters := testVoters(4)
	self := voters[0]
	es := event.NewEventSystem(log.NewNoOpLogger())
	RegisterDecoders(es)

	delayed := event.NewDelayedEventMediator("delayed", es)
	es.SetMediator(delayed)

	l, err := New(Config{
		Log:            log.NewNoOpLogger(),
		EventSystem:    es,
		NodeID:         self,
		DataFactory:    testfactory.New(self),
		VoteFactory:    testfactory.New(self),
		Delayed:        delayed,
		Registerer:     prometheus.NewRegistry(),
		TimeoutPropose: time.Hour,
		TimeoutVote:    time.Hour,
	})
	require.NoError(t, err)

	go es.Run()
	t.Cleanup(es.Close)

	return l, es, self
}

func initialize(es *event.EventSystem, voters []ids.NodeID) {
	es.RaiseEvent(event.TypeInitialize, &InitializePayload{
		EpochNum:  0,
		RoundNum:  0,
		Voters:    voters,
		QuorumNum: 3,
	})
}

func captureProposeSequence(es *event.EventSystem) chan *message.Data {
	ch := make(chan *message.Data, 8)
	es.RegisterHandler(event.TypeProposeSequence, func(ev event.Event) error {
		ch <- ev.Payload.(*message.Data)
		return nil
	})
	return ch
}

func TestAsyncLayerAdmitsCurrentRoundProposal(t *testing.T) {
	l, es, self := newTestLayer(t)
	voters := testVoters(4)
	proposed := captureProposeSequence(es)
	initialize(es, voters)

	d := &message.Data{
		ID:         dataID(1),
		ProposerID: self,
		Number:     1,
		EpochNum:   0,
		RoundNum:   0,
		Kind:       message.DataReal,
	}
	es.RaiseEvent(event.TypeReceivedData, d)

	select {
	case got := <-proposed:
		require.Equal(t, d.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ProposeSequence")
	}
	require.Equal(t, float64(1), testutil.ToFloat64(l.metrics.admittedData))
}

func TestAsyncLayerRejectsDuplicateData(t *testing.T) {
	l, es, self := newTestLayer(t)
	voters := testVoters(4)
	proposed := captureProposeSequence(es)
	initialize(es, voters)

	d := &message.Data{ID: dataID(2), ProposerID: self, Number: 1, EpochNum: 0, RoundNum: 0, Kind: message.DataReal}
	es.RaiseEvent(event.TypeReceivedData, d)
	<-proposed

	es.RaiseEvent(event.TypeReceivedData, d)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(l.metrics.rejectedData) == 1
	}, time.Second, 10*time.Millisecond, "duplicate id must be rejected exactly once")
}

func TestAsyncLayerRejectsStaleRound(t *testing.T) {
	l, es, _ := newTestLayer(t)
	voters := testVoters(4)
	initialize(es, voters)
	es.RaiseEvent(event.TypeStartRound, &StartRoundPayload{EpochNum: 0, RoundNum: 1, Voters: voters, QuorumNum: 3})

	stale := &message.Data{ID: dataID(4), ProposerID: voters[0], Number: 1, EpochNum: 0, RoundNum: 0, Kind: message.DataReal}
	es.RaiseEvent(event.TypeReceivedData, stale)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(l.metrics.rejectedData) == 1
	}, time.Second, 10*time.Millisecond)
}

// TestAsyncLayerLookAheadBuffersThenFlushesAcrossRoundBoundary covers the
// look-ahead case: a proposal for round_num+1/candidate_num+2 arrives
// while the layer is still on round_num. It must be admitted and buffered
// but not delivered to RoundLayer (no ProposeSequence) until the round
// actually advances, at which point flushRound delivers it without
// needing retransmission.
func TestAsyncLayerLookAheadBuffersThenFlushesAcrossRoundBoundary(t *testing.T) {
	l, es, _ := newTestLayer(t)
	voters := testVoters(4)
	proposed := captureProposeSequence(es)
	initialize(es, voters)

	lookAhead := &message.Data{
		ID:         dataID(7),
		ProposerID: voters[1], // round 1's leader
		Number:     2,         // candidate_num(0) + 2
		EpochNum:   0,
		RoundNum:   1, // round_num(0) + 1
		Kind:       message.DataReal,
	}
	es.RaiseEvent(event.TypeReceivedData, lookAhead)

	select {
	case got := <-proposed:
		t.Fatalf("look-ahead data must not be delivered before its round starts, got %v", got)
	case <-time.After(100 * time.Millisecond):
	}
	require.Equal(t, float64(1), testutil.ToFloat64(l.metrics.admittedData))
	require.Equal(t, float64(1), testutil.ToFloat64(l.metrics.lookAheads))

	es.RaiseEvent(event.TypeStartRound, &StartRoundPayload{EpochNum: 0, RoundNum: 1, Voters: voters, QuorumNum: 3})

	select {
	case got := <-proposed:
		require.Equal(t, lookAhead.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flushed look-ahead data after round transition")
	}
}

// TestAsyncLayerVoteTimeoutArmsOnQuorumOfRealVotes covers the vote-timeout
// arming rule: once quorum_num Real votes have arrived for a round, the
// layer arms a NONE vote for every voter (admission then drops the ones
// who already voted), regardless of whether it also ends the round
// through the ordinary RoundLayer quorum path. The count is taken over
// all Real votes globally, not per data-id bucket.
func TestAsyncLayerVoteTimeoutArmsOnQuorumOfRealVotes(t *testing.T) {
	l, es, self := newTestLayer(t)
	voters := testVoters(4)
	initialize(es, voters)

	d := &message.Data{ID: dataID(9), ProposerID: self, Number: 1, EpochNum: 0, RoundNum: 0, Kind: message.DataReal}
	es.RaiseEvent(event.TypeReceivedData, d)

	for i, voter := range voters[:3] {
		v := &message.Vote{
			ID:       voteID(byte(i + 1)),
			DataID:   d.ID,
			VoterID:  voter,
			EpochNum: 0,
			RoundNum: 0,
			Kind:     message.VoteReal,
		}
		es.RaiseEvent(event.TypeReceivedVote, v)
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(l.metrics.voteTimeouts) == float64(len(voters))
	}, time.Second, 10*time.Millisecond, "vote timeout must arm for every voter once quorum of Real votes is seen")
}

func dataID(b byte) ids.ID {
	var id ids.ID
	id[0] = b
	return id
}

func voteID(b byte) ids.ID {
	var id ids.ID
	id[0] = 0xF0
	id[1] = b
	return id
}
