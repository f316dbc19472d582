// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package round implements RoundLayer, the per-round decision rule that
// owns proposal verification, single-vote emission and quorum-triggered
// termination.
package round

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/bftcore/async"
	"github.com/luxfi/bftcore/event"
	"github.com/luxfi/bftcore/message"
)

// State is one of Idle/Started/Voted/Ended, the round state machine.
type State uint8

const (
	Idle State = iota
	Started
	Voted
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Started:
		return "Started"
	case Voted:
		return "Voted"
	case Ended:
		return "Ended"
	default:
		return "Unknown"
	}
}

// Layer is RoundLayer for one Node.
type Layer struct {
	log  log.Logger
	es   *event.EventSystem
	node ids.NodeID

	dataFactory  message.DataFactory
	voteFactory  message.VoteFactory
	dataVerifier message.DataVerifier

	metrics *layerMetrics

	epoch        *message.Epoch
	roundNum     uint64
	candidateID  ids.ID
	candidateNum uint64
	candidateVotes map[ids.NodeID]*message.Vote

	stateMu sync.RWMutex
	state   State

	messages  *Messages
	startedAt time.Time
}

// Config bundles Layer's construction-time dependencies.
type Config struct {
	Log         log.Logger
	EventSystem *event.EventSystem
	NodeID      ids.NodeID
	DataFactory message.DataFactory
	VoteFactory message.VoteFactory
	Registerer  prometheus.Registerer
}

// New builds a Layer and registers its handlers on cfg.EventSystem.
func New(cfg Config) (*Layer, error) {
	m, err := newLayerMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	l := &Layer{
		log:          cfg.Log,
		es:           cfg.EventSystem,
		node:         cfg.NodeID,
		dataFactory:  cfg.DataFactory,
		voteFactory:  cfg.VoteFactory,
		dataVerifier: cfg.DataFactory.CreateDataVerifier(),
		metrics:      m,
	}

	cfg.EventSystem.RegisterHandler(event.TypeInitialize, l.handleInitialize)
	cfg.EventSystem.RegisterHandler(event.TypeStartRound, l.handleStartRound)
	cfg.EventSystem.RegisterHandler(event.TypeDoneRound, l.handleDoneRound)
	cfg.EventSystem.RegisterHandler(event.TypeProposeSequence, l.handleReceiveData)
	cfg.EventSystem.RegisterHandler(event.TypeVoteSequence, l.handleReceiveVote)

	return l, nil
}

// State exposes the current round state for inspection. Safe to call from
// any goroutine; the dispatch loop holds stateMu only for the duration of
// each assignment.
func (l *Layer) State() State {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

func (l *Layer) setState(s State) {
	l.stateMu.Lock()
	l.state = s
	l.stateMu.Unlock()
}

func (l *Layer) handleInitialize(ev event.Event) error {
	p, ok := ev.Payload.(*async.InitializePayload)
	if !ok {
		return event.ErrInvariantBroken
	}
	l.candidateNum = 0
	l.candidateID = ids.Empty
	if p.CandidateData != nil {
		l.candidateNum = p.CandidateData.Number
		l.candidateID = p.CandidateData.ID
	}
	return l.roundStart(p.EpochNum, p.RoundNum, p.Voters, p.QuorumNum)
}

func (l *Layer) handleStartRound(ev event.Event) error {
	p, ok := ev.Payload.(*async.StartRoundPayload)
	if !ok {
		return event.ErrInvariantBroken
	}
	return l.roundStart(p.EpochNum, p.RoundNum, p.Voters, p.QuorumNum)
}

func (l *Layer) handleDoneRound(ev event.Event) error {
	p, ok := ev.Payload.(*async.DoneRoundPayload)
	if !ok {
		return event.ErrInvariantBroken
	}
	if p.CandidateData != nil {
		if p.CandidateData.Number > l.candidateNum {
			l.candidateNum = p.CandidateData.Number
		}
		l.candidateID = p.CandidateData.ID
	}
	l.candidateVotes = p.Votes
	return nil
}

// roundStart is "Idle --round_start(epoch, round_num)--> Started".
func (l *Layer) roundStart(epochNum, roundNum uint64, voters []ids.NodeID, quorumNum int) error {
	epoch, err := message.NewEpoch(epochNum, voters, quorumNum)
	if err != nil {
		return &event.FatalError{Cause: err}
	}
	l.epoch = epoch
	l.roundNum = roundNum
	l.setState(Started)
	l.messages = NewMessages(epoch.QuorumNum)
	l.startedAt = time.Now()

	ctx := context.Background()
	proposerID := epoch.GetProposerID(roundNum)

	noneData, err := l.dataFactory.CreateNoneData(ctx, epoch.Num, roundNum, proposerID)
	if err != nil {
		return &event.FatalError{Cause: err}
	}
	l.messages.AddData(noneData)

	lazyData, err := l.dataFactory.CreateLazyData(ctx, epoch.Num, roundNum, proposerID)
	if err != nil {
		return &event.FatalError{Cause: err}
	}
	l.messages.AddData(lazyData)

	if proposerID == l.node {
		projected := epoch.ProjectVotes(l.candidateVotes)
		proposal, err := l.dataFactory.CreateData(ctx, l.candidateNum+1, l.candidateID, epoch.Num, roundNum, projected)
		if err != nil {
			return &event.FatalError{Cause: err}
		}
		l.metrics.proposalsBuilt.Inc()
		l.es.RaiseEvent(event.TypeBroadcastData, proposal)
		l.es.RaiseEvent(event.TypeReceiveData, proposal)
	}
	return nil
}

// handleReceiveData is "Started --receive_data(d)--> Started|Voted".
func (l *Layer) handleReceiveData(ev event.Event) error {
	d, ok := ev.Payload.(*message.Data)
	if !ok {
		return event.ErrInvariantBroken
	}
	if l.state == Ended {
		return nil
	}
	l.messages.AddData(d)

	if l.state == Started {
		vote, err := l.voteFor(d)
		if err != nil {
			return &event.FatalError{Cause: err}
		}
		l.setState(Voted)
		l.metrics.votesCast.Inc()
		l.es.RaiseEvent(event.TypeBroadcastVote, vote)
		l.es.RaiseEvent(event.TypeReceiveVote, vote)
	}

	return l.maybeEnd()
}

// handleReceiveVote is "Started|Voted --receive_vote(v)--> ...|Ended".
func (l *Layer) handleReceiveVote(ev event.Event) error {
	v, ok := ev.Payload.(*message.Vote)
	if !ok {
		return event.ErrInvariantBroken
	}
	if l.state == Ended {
		return nil
	}
	l.messages.AddVote(v)
	return l.maybeEnd()
}

func (l *Layer) maybeEnd() error {
	if l.state == Ended || !l.messages.Determinative() {
		return nil
	}
	result := l.messages.Result()
	l.setState(Ended)

	payload := &EndPayload{
		Success:  result.IsReal(),
		EpochNum: l.epoch.Num,
		RoundNum: l.roundNum,
	}
	if result.IsReal() {
		payload.CandidateID = result.ID
		payload.CommitID = result.PrevID
		payload.Candidate = result
		payload.Votes = l.votesForWinner(result.ID)
	}
	l.metrics.roundsEnded.Inc()
	if !l.startedAt.IsZero() {
		l.metrics.roundLatency.Observe(time.Since(l.startedAt).Seconds())
	}
	l.log.Debug("round ended", "epoch", l.epoch.Num, "round", l.roundNum, "success", payload.Success, "candidate_id", payload.CandidateID)
	l.es.RaiseEvent(event.TypeRoundEnd, payload)
	return nil
}

// votesForWinner returns the first-per-voter votes cast for dataID, the
// set a future leader projects into prev_votes.
func (l *Layer) votesForWinner(dataID ids.ID) map[ids.NodeID]*message.Vote {
	out := make(map[ids.NodeID]*message.Vote)
	for voter, v := range l.messages.VotesByVoter() {
		if v.IsReal() && v.DataID == dataID {
			out[voter] = v
		}
	}
	return out
}

// voteFor verifies a proposal and casts Real on acceptance, NONE on
// rejection.
func (l *Layer) voteFor(d *message.Data) (*message.Vote, error) {
	ctx := context.Background()
	if l.verifyData(ctx, d) {
		return l.voteFactory.CreateVote(ctx, d.ID, l.candidateID, l.epoch.Num, l.roundNum)
	}
	return l.voteFactory.CreateNoneVote(ctx, ids.EmptyNodeID, l.epoch.Num, l.roundNum)
}

func (l *Layer) verifyData(ctx context.Context, d *message.Data) bool {
	if d.ProposerID == l.node {
		return true
	}
	if d.PrevID != l.candidateID {
		l.log.Debug("rejecting data: prev_id does not match candidate", "id", d.ID, "prev_id", d.PrevID, "candidate_id", l.candidateID)
		return false
	}
	if l.candidateNum+1 != d.Number {
		l.log.Debug("rejecting data: number does not follow candidate", "id", d.ID, "number", d.Number, "candidate_num", l.candidateNum)
		return false
	}
	if d.IsLazy() {
		l.log.Debug("rejecting data: lazy data is never accepted as a proposal", "id", d.ID)
		return false
	}
	if err := l.dataVerifier.Verify(ctx, d); err != nil {
		l.log.Debug("rejecting data: external verification failed", "id", d.ID, "error", err)
		return false
	}
	return true
}
