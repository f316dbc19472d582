// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package event implements a single-threaded cooperative dispatcher with
// deterministic record/replay: EventSystem.
package event

import "fmt"

// Type names an event. The constants below are the exact input/output
// surface the consensus engine's layers communicate over.
type Type string

const (
	// Input events.
	TypeInitialize            Type = "Initialize"
	TypeReceiveData           Type = "ReceiveData"
	TypeReceiveVote           Type = "ReceiveVote"
	TypeReceivedData          Type = "ReceivedData"
	TypeReceivedVote          Type = "ReceivedVote"
	TypeReceivedConsensusData Type = "ReceivedConsensusData"
	TypeReceivedConsensusVote Type = "ReceivedConsensusVote"
	TypeStartRound            Type = "StartRound"
	TypeDoneRound             Type = "DoneRound"

	// Output events.
	TypeBroadcastData   Type = "BroadcastData"
	TypeBroadcastVote   Type = "BroadcastVote"
	TypeProposeSequence Type = "ProposeSequence"
	TypeVoteSequence    Type = "VoteSequence"
	TypeRoundEnd        Type = "RoundEnd"
)

// Event is the unit of work the dispatcher moves through its FIFO queue.
//
// Deterministic marks whether replay reconstructs this event by reissuing
// it from the main record log (true) or whether it was produced by a
// Mediator and must be reconstructed by that mediator's own replayed
// output (false).
type Event struct {
	Type          Type
	Payload       any
	Deterministic bool
}

func (e Event) String() string {
	return fmt.Sprintf("Event(%s, deterministic=%t)", e.Type, e.Deterministic)
}

// Handler processes one Event. Handlers never return out of the dispatch
// loop on a domain failure: errors returned here are reserved for the
// fatal categories (replay mismatch, invariant violation) and will abort
// the run.
type Handler func(ev Event) error
