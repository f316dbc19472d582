// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

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
	"github.com/luxfi/bftcore/round"
	"github.com/luxfi/bftcore/utils/set"
)

// StartRoundDelay is the gap Node waits after DoneRound before raising the
// next StartRound.
const StartRoundDelay = 500 * time.Millisecond

// Node hosts one Consensus stack: an EventSystem, an async.Layer, a
// round.Layer and their shared DelayedEventMediator. Its own handlers are
// limited to boundary dedup and round/epoch bookkeeping needed to raise the
// next StartRound.
type Node struct {
	log log.Logger
	id  ids.NodeID

	es      *event.EventSystem
	delayed *event.DelayedEventMediator
	async   *async.Layer
	round   *round.Layer

	seenData set.Set[ids.ID]
	seenVote set.Set[ids.ID]

	// stateMu guards the fields below. They are written only from the
	// dispatch loop's handlers but read by Inspector from whatever
	// goroutine calls Snapshot.
	stateMu      sync.RWMutex
	epochNum     uint64
	roundNum     uint64
	voters       []ids.NodeID
	quorumNum    int
	candidateID  ids.ID
	candidateNum uint64

	metrics *nodeMetrics
}

// snapshotState is the fields Inspector.Snapshot needs, copied out under
// stateMu.
type snapshotState struct {
	epochNum     uint64
	roundNum     uint64
	voters       []ids.NodeID
	quorumNum    int
	candidateID  ids.ID
	candidateNum uint64
}

func (n *Node) snapshot() snapshotState {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	voters := make([]ids.NodeID, len(n.voters))
	copy(voters, n.voters)
	return snapshotState{
		epochNum:     n.epochNum,
		roundNum:     n.roundNum,
		voters:       voters,
		quorumNum:    n.quorumNum,
		candidateID:  n.candidateID,
		candidateNum: n.candidateNum,
	}
}

// Config bundles Node's construction-time dependencies.
type Config struct {
	Log         log.Logger
	NodeID      ids.NodeID
	DataFactory message.DataFactory
	VoteFactory message.VoteFactory
	Registerer  prometheus.Registerer

	TimeoutPropose time.Duration
	TimeoutVote    time.Duration
}

// New builds a fully-wired Node: an EventSystem, a DelayedEventMediator,
// an async.Layer and a round.Layer, all registered against each other.
func New(cfg Config) (*Node, error) {
	es := event.NewEventSystem(cfg.Log)
	async.RegisterDecoders(es)
	round.RegisterDecoders(es)

	delayed := event.NewDelayedEventMediator("delayed", es)
	es.SetMediator(delayed)

	n := &Node{
		log:      cfg.Log,
		id:       cfg.NodeID,
		es:       es,
		delayed:  delayed,
		seenData: set.NewSet[ids.ID](0),
		seenVote: set.NewSet[ids.ID](0),
	}

	m, err := newNodeMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	n.metrics = m

	asyncLayer, err := async.New(async.Config{
		Log:            cfg.Log,
		EventSystem:    es,
		NodeID:         cfg.NodeID,
		DataFactory:    cfg.DataFactory,
		VoteFactory:    cfg.VoteFactory,
		Delayed:        delayed,
		Registerer:     cfg.Registerer,
		TimeoutPropose: cfg.TimeoutPropose,
		TimeoutVote:    cfg.TimeoutVote,
	})
	if err != nil {
		return nil, err
	}
	n.async = asyncLayer

	roundLayer, err := round.New(round.Config{
		Log:         cfg.Log,
		EventSystem: es,
		NodeID:      cfg.NodeID,
		DataFactory: cfg.DataFactory,
		VoteFactory: cfg.VoteFactory,
		Registerer:  cfg.Registerer,
	})
	if err != nil {
		return nil, err
	}
	n.round = roundLayer

	es.RegisterHandler(event.TypeInitialize, n.handleInitialize)
	es.RegisterHandler(event.TypeStartRound, n.handleStartRound)
	es.RegisterHandler(event.TypeReceiveData, n.handleReceiveData)
	es.RegisterHandler(event.TypeReceiveVote, n.handleReceiveVote)
	es.RegisterHandler(event.TypeRoundEnd, n.handleRoundEnd)

	return n, nil
}

// ID returns this Node's identity.
func (n *Node) ID() ids.NodeID { return n.id }

// EventSystem exposes the underlying dispatcher, for Run/Stop/Close,
// StartRecord/StartReplay and Gossiper wiring.
func (n *Node) EventSystem() *event.EventSystem { return n.es }

// Initialize raises the Initialize event that starts round_num's
// processing on both AsyncLayer and round.Layer.
func (n *Node) Initialize(epochNum, roundNum uint64, voters []ids.NodeID, quorumNum int, candidate *message.Data) {
	n.es.RaiseEvent(event.TypeInitialize, &async.InitializePayload{
		EpochNum:      epochNum,
		RoundNum:      roundNum,
		Voters:        voters,
		QuorumNum:     quorumNum,
		CandidateData: candidate,
	})
}

func (n *Node) handleInitialize(ev event.Event) error {
	p, ok := ev.Payload.(*async.InitializePayload)
	if !ok {
		return event.ErrInvariantBroken
	}
	n.stateMu.Lock()
	n.epochNum = p.EpochNum
	n.roundNum = p.RoundNum
	n.voters = p.Voters
	n.quorumNum = p.QuorumNum
	if p.CandidateData != nil {
		n.candidateID = p.CandidateData.ID
		n.candidateNum = p.CandidateData.Number
	}
	n.stateMu.Unlock()
	return nil
}

func (n *Node) handleStartRound(ev event.Event) error {
	p, ok := ev.Payload.(*async.StartRoundPayload)
	if !ok {
		return event.ErrInvariantBroken
	}
	n.stateMu.Lock()
	n.epochNum = p.EpochNum
	n.roundNum = p.RoundNum
	n.voters = p.Voters
	n.quorumNum = p.QuorumNum
	n.stateMu.Unlock()
	return nil
}

// handleReceiveData is the boundary dedup: the ReceivedData/Vote dedup
// sets on Node are the only state touched across layer boundaries and
// are append-only within a run.
func (n *Node) handleReceiveData(ev event.Event) error {
	d, ok := ev.Payload.(*message.Data)
	if !ok {
		return event.ErrInvariantBroken
	}
	if n.seenData.Contains(d.ID) {
		n.metrics.dupData.Inc()
		return nil
	}
	n.seenData.Add(d.ID)
	n.es.RaiseEvent(event.TypeReceivedData, d)
	return nil
}

func (n *Node) handleReceiveVote(ev event.Event) error {
	v, ok := ev.Payload.(*message.Vote)
	if !ok {
		return event.ErrInvariantBroken
	}
	if n.seenVote.Contains(v.ID) {
		n.metrics.dupVote.Inc()
		return nil
	}
	n.seenVote.Add(v.ID)
	n.es.RaiseEvent(event.TypeReceivedVote, v)
	return nil
}

// handleRoundEnd converts RoundLayer's RoundEnd into a Node-level DoneRound
// (consumed by AsyncLayer and round.Layer to update their candidate
// pointer) and schedules the next StartRound after StartRoundDelay.
func (n *Node) handleRoundEnd(ev event.Event) error {
	p, ok := ev.Payload.(*round.EndPayload)
	if !ok {
		return event.ErrInvariantBroken
	}

	done := &async.DoneRoundPayload{}
	n.stateMu.Lock()
	if p.Success {
		done.CandidateData = p.Candidate
		done.Votes = p.Votes
		n.candidateID = p.Candidate.ID
		n.candidateNum = p.Candidate.Number
	}
	n.roundNum = p.RoundNum + 1
	next := &async.StartRoundPayload{
		EpochNum:  n.epochNum,
		RoundNum:  n.roundNum,
		Voters:    n.voters,
		QuorumNum: n.quorumNum,
	}
	n.stateMu.Unlock()

	n.log.Debug("round transition", "round", p.RoundNum, "success", p.Success, "next_round", next.RoundNum)
	n.es.RaiseEvent(event.TypeDoneRound, done)
	n.delayed.Execute(StartRoundDelay, event.TypeStartRound, next)
	return nil
}

// ReceiveData is Gossiper's delivery entry point for data originating at a
// peer.
func (n *Node) ReceiveData(d *message.Data) {
	n.es.RaiseEvent(event.TypeReceiveData, d)
}

// ReceiveVote is Gossiper's delivery entry point for votes originating at a
// peer.
func (n *Node) ReceiveVote(v *message.Vote) {
	n.es.RaiseEvent(event.TypeReceiveVote, v)
}

// Run drives this Node's EventSystem until Stop/Close. It is typically
// called on its own goroutine.
func (n *Node) Run(_ context.Context) error {
	return n.es.Run()
}

// Stop requests the dispatch loop exit and blocks until it has.
func (n *Node) Stop() { n.es.Stop() }

// Close stops the loop and releases the delayed mediator's timers.
func (n *Node) Close() { n.es.Close() }
