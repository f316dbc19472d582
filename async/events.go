// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package async implements AsyncLayer, the admission/buffering/liveness
// layer. It is the only consumer of ReceiveData/ReceiveVote's promoted
// form (ReceivedData/ReceivedVote) and the only producer of
// ProposeSequence/VoteSequence, the events RoundLayer consumes.
package async

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/bftcore/codec"
	"github.com/luxfi/bftcore/event"
	"github.com/luxfi/bftcore/message"
)

// InitializePayload is Event.Payload for event.TypeInitialize.
type InitializePayload struct {
	EpochNum      uint64
	RoundNum      uint64
	Voters        []ids.NodeID
	QuorumNum     int
	CandidateData *message.Data // nil if there is no prior candidate
}

// StartRoundPayload is Event.Payload for event.TypeStartRound.
type StartRoundPayload struct {
	EpochNum  uint64
	RoundNum  uint64
	Voters    []ids.NodeID
	QuorumNum int
}

// DoneRoundPayload is Event.Payload for event.TypeDoneRound.
type DoneRoundPayload struct {
	CandidateData *message.Data                 // nil if the round did not produce a new candidate
	Votes         map[ids.NodeID]*message.Vote // first-per-voter votes backing CandidateData, for the next leader's prev_votes projection
}

// RegisterDecoders teaches es how to reconstruct every payload type this
// package raises, so replay can reissue them as concrete Go values instead
// of json.RawMessage.
func RegisterDecoders(es *event.EventSystem) {
	es.RegisterDecoder(event.TypeInitialize, decodeInitialize)
	es.RegisterDecoder(event.TypeStartRound, decodeStartRound)
	es.RegisterDecoder(event.TypeDoneRound, decodeDoneRound)
	es.RegisterDecoder(event.TypeReceiveData, decodeData)
	es.RegisterDecoder(event.TypeReceivedData, decodeData)
	es.RegisterDecoder(event.TypeReceiveVote, decodeVote)
	es.RegisterDecoder(event.TypeReceivedVote, decodeVote)
	es.RegisterDecoder(event.TypeReceivedConsensusData, decodeData)
	es.RegisterDecoder(event.TypeReceivedConsensusVote, decodeVote)
}

func decodeInitialize(raw json.RawMessage) (any, error) {
	var p InitializePayload
	if _, err := codec.Codec.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("async: decode Initialize: %w", err)
	}
	return &p, nil
}

func decodeStartRound(raw json.RawMessage) (any, error) {
	var p StartRoundPayload
	if _, err := codec.Codec.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("async: decode StartRound: %w", err)
	}
	return &p, nil
}

func decodeDoneRound(raw json.RawMessage) (any, error) {
	var p DoneRoundPayload
	if _, err := codec.Codec.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("async: decode DoneRound: %w", err)
	}
	return &p, nil
}

func decodeData(raw json.RawMessage) (any, error) {
	var d message.Data
	if _, err := codec.Codec.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("async: decode Data: %w", err)
	}
	return &d, nil
}

func decodeVote(raw json.RawMessage) (any, error) {
	var v message.Vote
	if _, err := codec.Codec.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("async: decode Vote: %w", err)
	}
	return &v, nil
}
