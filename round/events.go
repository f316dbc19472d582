// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/bftcore/codec"
	"github.com/luxfi/bftcore/event"
	"github.com/luxfi/bftcore/message"
)

// EndPayload is Event.Payload for event.TypeRoundEnd.
type EndPayload struct {
	Success     bool
	EpochNum    uint64
	RoundNum    uint64
	CandidateID ids.ID // result.id, or ids.Empty when !Success
	CommitID    ids.ID // result.prev_id, or ids.Empty when !Success
	Candidate   *message.Data
	Votes       map[ids.NodeID]*message.Vote // first-per-voter votes backing the result
}

// RegisterDecoders teaches es how to reconstruct this package's payload
// types during replay.
func RegisterDecoders(es *event.EventSystem) {
	es.RegisterDecoder(event.TypeRoundEnd, decodeEnd)
	es.RegisterDecoder(event.TypeProposeSequence, decodeData)
	es.RegisterDecoder(event.TypeVoteSequence, decodeVote)
}

func decodeEnd(raw json.RawMessage) (any, error) {
	var p EndPayload
	if _, err := codec.Codec.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("round: decode RoundEnd: %w", err)
	}
	return &p, nil
}

func decodeData(raw json.RawMessage) (any, error) {
	var d message.Data
	if _, err := codec.Codec.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("round: decode Data: %w", err)
	}
	return &d, nil
}

func decodeVote(raw json.RawMessage) (any, error) {
	var v message.Vote
	if _, err := codec.Codec.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("round: decode Vote: %w", err)
	}
	return &v, nil
}
