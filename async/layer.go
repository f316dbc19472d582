// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package async

import (
	"context"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/bftcore/event"
	"github.com/luxfi/bftcore/message"
	"github.com/luxfi/bftcore/utils/linked"
)

// Default liveness timer durations. A faulty or silent leader is bridged
// by TimeoutPropose; a stalled vote round is bridged by TimeoutVote.
const (
	DefaultTimeoutPropose = 2 * time.Second
	DefaultTimeoutVote    = 2 * time.Second
)

// Layer is AsyncLayer: admission, buffering and liveness for one Node. It
// owns no network I/O; it is driven entirely by events raised on es and
// raises ProposeSequence/VoteSequence for RoundLayer in turn.
type Layer struct {
	log  log.Logger
	es   *event.EventSystem
	node ids.NodeID

	dataFactory message.DataFactory
	voteFactory message.VoteFactory
	delayed     *event.DelayedEventMediator

	timeoutPropose time.Duration
	timeoutVote    time.Duration

	metrics *metrics

	epoch        *message.Epoch
	roundNum     uint64
	candidateNum uint64
	candidateID  ids.ID

	dataByRound map[uint64]*linked.Hashmap[ids.ID, *message.Data]
	voteByRound map[uint64]map[ids.NodeID]*linked.Hashmap[ids.ID, *message.Vote]

	voteTimeoutStarted map[uint64]bool
}

// Config bundles Layer's construction-time dependencies.
type Config struct {
	Log            log.Logger
	EventSystem    *event.EventSystem
	NodeID         ids.NodeID
	DataFactory    message.DataFactory
	VoteFactory    message.VoteFactory
	Delayed        *event.DelayedEventMediator
	Registerer     prometheus.Registerer
	TimeoutPropose time.Duration
	TimeoutVote    time.Duration
}

// New builds a Layer and registers its handlers on cfg.EventSystem.
func New(cfg Config) (*Layer, error) {
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	timeoutPropose := cfg.TimeoutPropose
	if timeoutPropose == 0 {
		timeoutPropose = DefaultTimeoutPropose
	}
	timeoutVote := cfg.TimeoutVote
	if timeoutVote == 0 {
		timeoutVote = DefaultTimeoutVote
	}

	l := &Layer{
		log:                cfg.Log,
		es:                 cfg.EventSystem,
		node:               cfg.NodeID,
		dataFactory:        cfg.DataFactory,
		voteFactory:        cfg.VoteFactory,
		delayed:            cfg.Delayed,
		timeoutPropose:     timeoutPropose,
		timeoutVote:        timeoutVote,
		metrics:            m,
		dataByRound:        make(map[uint64]*linked.Hashmap[ids.ID, *message.Data]),
		voteByRound:        make(map[uint64]map[ids.NodeID]*linked.Hashmap[ids.ID, *message.Vote]),
		voteTimeoutStarted: make(map[uint64]bool),
	}

	cfg.EventSystem.RegisterHandler(event.TypeInitialize, l.handleInitialize)
	cfg.EventSystem.RegisterHandler(event.TypeStartRound, l.handleStartRound)
	cfg.EventSystem.RegisterHandler(event.TypeDoneRound, l.handleDoneRound)
	cfg.EventSystem.RegisterHandler(event.TypeReceivedData, l.handleReceivedData)
	cfg.EventSystem.RegisterHandler(event.TypeReceivedVote, l.handleReceivedVote)

	return l, nil
}

func (l *Layer) handleInitialize(ev event.Event) error {
	p, ok := ev.Payload.(*InitializePayload)
	if !ok {
		return event.ErrInvariantBroken
	}
	l.candidateNum = 0
	l.candidateID = ids.Empty
	if p.CandidateData != nil {
		l.candidateNum = p.CandidateData.Number
		l.candidateID = p.CandidateData.ID
	}
	return l.startRound(p.EpochNum, p.RoundNum, p.Voters, p.QuorumNum)
}

func (l *Layer) handleStartRound(ev event.Event) error {
	p, ok := ev.Payload.(*StartRoundPayload)
	if !ok {
		return event.ErrInvariantBroken
	}
	return l.startRound(p.EpochNum, p.RoundNum, p.Voters, p.QuorumNum)
}

func (l *Layer) handleDoneRound(ev event.Event) error {
	p, ok := ev.Payload.(*DoneRoundPayload)
	if !ok {
		return event.ErrInvariantBroken
	}
	if p.CandidateData != nil {
		if p.CandidateData.Number > l.candidateNum {
			l.candidateNum = p.CandidateData.Number
		}
		l.candidateID = p.CandidateData.ID
	}
	return nil
}

// startRound performs the round transition shared by Initialize and
// StartRound.
func (l *Layer) startRound(epochNum, roundNum uint64, voters []ids.NodeID, quorumNum int) error {
	epoch, err := message.NewEpoch(epochNum, voters, quorumNum)
	if err != nil {
		return &event.FatalError{Cause: err}
	}
	epochChanged := l.epoch == nil || l.epoch.Num != epoch.Num
	l.epoch = epoch
	l.roundNum = roundNum
	delete(l.voteTimeoutStarted, roundNum)

	if epochChanged {
		l.dataByRound = make(map[uint64]*linked.Hashmap[ids.ID, *message.Data])
		l.voteByRound = make(map[uint64]map[ids.NodeID]*linked.Hashmap[ids.ID, *message.Vote])
		l.voteTimeoutStarted = make(map[uint64]bool)
	} else {
		l.trimBefore(roundNum)
	}

	l.flushRound(roundNum)

	if epoch.GetProposerID(roundNum) != l.node {
		l.armProposeTimeout(roundNum)
	}
	return nil
}

func (l *Layer) trimBefore(roundNum uint64) {
	for r := range l.dataByRound {
		if r < roundNum {
			delete(l.dataByRound, r)
		}
	}
	for r := range l.voteByRound {
		if r < roundNum {
			delete(l.voteByRound, r)
		}
	}
	for r := range l.voteTimeoutStarted {
		if r < roundNum {
			delete(l.voteTimeoutStarted, r)
		}
	}
}

// flushRound delivers every buffered Data/Vote for round directly to
// RoundLayer, bypassing the admission dedup check (the entries are already
// admitted). The candidate_num window is not rechecked: every buffered entry
// of round is delivered, Data subject only to deliverData's epoch
// verification. This is how look-ahead data admitted under the
// candidate_num+2 rule eventually reaches RoundLayer once the intervening
// StartRound arrives.
func (l *Layer) flushRound(round uint64) {
	if dm, ok := l.dataByRound[round]; ok {
		dm.Iterate(func(_ ids.ID, d *message.Data) bool {
			l.deliverData(d)
			return true
		})
	}
	if vm, ok := l.voteByRound[round]; ok {
		for _, hm := range vm {
			hm.Iterate(func(_ ids.ID, v *message.Vote) bool {
				l.deliverVote(v)
				return true
			})
		}
	}
}

// handleReceivedData runs the admission check, followed by either
// delivery to RoundLayer (current round) or look-ahead buffering.
func (l *Layer) handleReceivedData(ev event.Event) error {
	d, ok := ev.Payload.(*message.Data)
	if !ok {
		return event.ErrInvariantBroken
	}
	if !l.admitData(d) {
		l.metrics.rejectedData.Inc()
		return nil
	}
	l.storeData(d)
	l.metrics.admittedData.Inc()
	l.es.RaiseEvent(event.TypeReceivedConsensusData, d)

	switch {
	case d.RoundNum == l.roundNum && (d.Number == l.candidateNum || d.Number == l.candidateNum+1):
		l.deliverData(d)
	case d.Number == l.candidateNum+2 && d.RoundNum == l.roundNum+1:
		l.metrics.lookAheads.Inc()
		if d.IsReal() {
			if err := l.epoch.VerifyData(d); err != nil {
				l.log.Debug("look-ahead data failed epoch verification", "error", err)
				return nil
			}
		}
		for _, v := range d.PrevVotes {
			if v != nil {
				l.es.RaiseEvent(event.TypeReceivedVote, v)
			}
		}
	}
	return nil
}

// deliverData verifies d at the epoch level and, if it passes, raises
// ProposeSequence for RoundLayer. Epoch-level verification failure here is
// an admission-style rejection: the proposer was not the rightful leader
// of the epoch, which RoundLayer never gets a chance to convert into a
// NONE vote because it never saw the proposal.
func (l *Layer) deliverData(d *message.Data) {
	if d.IsReal() {
		if err := l.epoch.VerifyData(d); err != nil {
			l.log.Debug("data failed epoch verification", "id", d.ID, "error", err)
			return
		}
	}
	l.es.RaiseEvent(event.TypeProposeSequence, d)
}

func (l *Layer) deliverVote(v *message.Vote) {
	l.es.RaiseEvent(event.TypeVoteSequence, v)
}

// handleReceivedVote runs the admission check for an incoming vote.
func (l *Layer) handleReceivedVote(ev event.Event) error {
	v, ok := ev.Payload.(*message.Vote)
	if !ok {
		return event.ErrInvariantBroken
	}
	if !l.admitVote(v) {
		l.metrics.rejectedVotes.Inc()
		return nil
	}
	if err := l.epoch.VerifyVote(v); err != nil {
		return &event.FatalError{Cause: err}
	}
	l.storeVote(v)
	l.metrics.admittedVotes.Inc()
	l.es.RaiseEvent(event.TypeReceivedConsensusVote, v)

	if v.RoundNum == l.roundNum {
		l.deliverVote(v)
	}
	if !l.voteTimeoutStarted[v.RoundNum] && l.roundReachedQuorum(v.RoundNum) {
		l.voteTimeoutStarted[v.RoundNum] = true
		l.armVoteTimeout(v.RoundNum)
	}
	return nil
}

// admitData reports whether d passes the data admissibility predicate.
func (l *Layer) admitData(d *message.Data) bool {
	if l.epoch == nil || d.EpochNum != l.epoch.Num {
		return false
	}
	if d.RoundNum < l.roundNum {
		return false
	}
	if d.Number < l.candidateNum {
		return false
	}
	dm := l.dataByRound[d.RoundNum]
	if dm != nil {
		if _, exists := dm.Get(d.ID); exists {
			return false
		}
		if d.IsNone() && dm.Len() > 0 {
			return false
		}
	}
	return true
}

// admitVote reports whether v passes the vote admissibility predicate.
func (l *Layer) admitVote(v *message.Vote) bool {
	if l.epoch == nil || v.EpochNum != l.epoch.Num {
		return false
	}
	if v.RoundNum < l.roundNum {
		return false
	}
	vm := l.voteByRound[v.RoundNum]
	if vm != nil {
		if hm, ok := vm[v.VoterID]; ok {
			if _, exists := hm.Get(v.ID); exists {
				return false
			}
			if v.IsNone() && hm.Len() > 0 {
				return false
			}
		}
	}
	return true
}

func (l *Layer) storeData(d *message.Data) {
	dm, ok := l.dataByRound[d.RoundNum]
	if !ok {
		dm = linked.NewHashmap[ids.ID, *message.Data]()
		l.dataByRound[d.RoundNum] = dm
	}
	dm.Put(d.ID, d)
}

func (l *Layer) storeVote(v *message.Vote) {
	vm, ok := l.voteByRound[v.RoundNum]
	if !ok {
		vm = make(map[ids.NodeID]*linked.Hashmap[ids.ID, *message.Vote])
		l.voteByRound[v.RoundNum] = vm
	}
	hm, ok := vm[v.VoterID]
	if !ok {
		hm = linked.NewHashmap[ids.ID, *message.Vote]()
		vm[v.VoterID] = hm
	}
	hm.Put(v.ID, v)
}

// roundReachedQuorum tallies, for round, only the first-recorded vote per
// voter and reports whether at least quorum_num Real votes have arrived,
// regardless of whether they agree on a single data id. This is
// deliberately not "one bucket reached quorum": a genuine split vote
// (e.g. 2-2 across two proposals) must still arm the vote timeout so the
// stalled voters who never weighed in get synthesized NONE votes and the
// round can terminate.
func (l *Layer) roundReachedQuorum(round uint64) bool {
	vm, ok := l.voteByRound[round]
	if !ok {
		return false
	}
	count := 0
	for _, hm := range vm {
		_, first, ok := hm.OldestEntry()
		if !ok {
			continue
		}
		if first.IsReal() {
			count++
		}
	}
	return count >= l.epoch.QuorumNum
}

func (l *Layer) armProposeTimeout(round uint64) {
	ctx := context.Background()
	noneData, err := l.dataFactory.CreateNoneData(ctx, l.epoch.Num, round, l.epoch.GetProposerID(round))
	if err != nil {
		l.log.Error("failed to synthesize NONE data for propose timeout", "round", round, "error", err)
		return
	}
	l.metrics.proposeTimeouts.Inc()
	l.delayed.Execute(l.timeoutPropose, event.TypeReceiveData, noneData)
}

func (l *Layer) armVoteTimeout(round uint64) {
	ctx := context.Background()
	for _, voterID := range l.epoch.Voters {
		noneVote, err := l.voteFactory.CreateNoneVote(ctx, voterID, l.epoch.Num, round)
		if err != nil {
			l.log.Error("failed to synthesize NONE vote for vote timeout", "round", round, "voter", voterID, "error", err)
			continue
		}
		l.metrics.voteTimeouts.Inc()
		l.delayed.Execute(l.timeoutVote, event.TypeReceiveVote, noneVote)
	}
}
