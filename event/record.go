// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/luxfi/bftcore/codec"
)

// RecordEntry is one line of the record/replay log. Contents is the
// native JSON encoding of the payload for
// ordinary results; for failures it is a base64-wrapped opaque blob and
// Type is the literal string "exception".
type RecordEntry struct {
	Number   uint64          `json:"number"`
	Type     string          `json:"type"`
	Contents json.RawMessage `json:"contents"`

	// Deterministic and Mediator are carried on the EventSystem's main log
	// only (mediator_ios entries never set them): Deterministic mirrors
	// Event.Deterministic, and Mediator names the mediator that produced
	// the event when Deterministic is false, so a replaying loop knows to
	// ask that mediator to reconstruct it rather than reissuing Contents
	// directly.
	Deterministic bool   `json:"deterministic,omitempty"`
	Mediator      string `json:"mediator,omitempty"`
}

const exceptionType = "exception"

// exceptionContents is what RecordEntry.Contents decodes to when
// Type == "exception".
type exceptionContents struct {
	Message string `json:"message"`
	Blob    string `json:"blob"` // base64
}

// writer appends RecordEntry lines to an io.Writer, assigning strictly
// increasing sequence numbers. One writer backs the EventSystem's main log;
// one more backs each mediator's own log (the mediator_ios of
// start_record/start_replay).
type writer struct {
	w   *bufio.Writer
	seq uint64
}

func newWriter(w io.Writer) *writer {
	return &writer{w: bufio.NewWriter(w)}
}

// WriteValue marshals v as ordinary contents under typeTag, through the
// shared versioned codec so the wire format can evolve independently of
// the EventSystem's own plumbing.
func (wr *writer) WriteValue(typeTag string, v any) (uint64, error) {
	contents, err := codec.Codec.Marshal(codec.CurrentVersion, v)
	if err != nil {
		return 0, fmt.Errorf("event: marshal %s: %w", typeTag, err)
	}
	return wr.writeRaw(typeTag, contents)
}

// WriteException records a failure as an opaque base64 blob, preserving it
// without requiring it to be a concrete Go type the replayer knows about.
func (wr *writer) WriteException(blob []byte, message string) (uint64, error) {
	contents, err := json.Marshal(exceptionContents{
		Message: message,
		Blob:    base64.StdEncoding.EncodeToString(blob),
	})
	if err != nil {
		return 0, fmt.Errorf("event: marshal exception: %w", err)
	}
	return wr.writeRaw(exceptionType, contents)
}

// WriteEvent records ev on the main log, carrying its Deterministic flag and,
// for a mediator-produced event, the name of that mediator.
func (wr *writer) WriteEvent(ev Event, mediator string) (uint64, error) {
	contents, err := codec.Codec.Marshal(codec.CurrentVersion, ev.Payload)
	if err != nil {
		return 0, fmt.Errorf("event: marshal %s: %w", ev.Type, err)
	}
	return wr.writeEntry(RecordEntry{Type: string(ev.Type), Contents: contents, Deterministic: ev.Deterministic, Mediator: mediator})
}

func (wr *writer) writeRaw(typeTag string, contents json.RawMessage) (uint64, error) {
	return wr.writeEntry(RecordEntry{Type: typeTag, Contents: contents})
}

// writeEntry assigns entry the next sequence number and appends it.
func (wr *writer) writeEntry(entry RecordEntry) (uint64, error) {
	wr.seq++
	entry.Number = wr.seq
	line, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("event: marshal record entry: %w", err)
	}
	if _, err := wr.w.Write(line); err != nil {
		return 0, err
	}
	if err := wr.w.WriteByte('\n'); err != nil {
		return 0, err
	}
	return entry.Number, wr.w.Flush()
}

// reader scans RecordEntry lines in order and fails if a requested sequence
// number is missed.
type reader struct {
	sc      *bufio.Scanner
	nextSeq uint64
	done    bool
}

func newReader(r io.Reader) *reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &reader{sc: sc, nextSeq: 1}
}

// Next returns the next entry in sequence order, or io.EOF once the log is
// exhausted.
func (r *reader) Next() (RecordEntry, error) {
	if r.done {
		return RecordEntry{}, io.EOF
	}
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return RecordEntry{}, err
		}
		r.done = true
		return RecordEntry{}, io.EOF
	}
	var entry RecordEntry
	if err := json.Unmarshal(r.sc.Bytes(), &entry); err != nil {
		return RecordEntry{}, fmt.Errorf("event: decode record entry: %w", err)
	}
	if entry.Number != r.nextSeq {
		return RecordEntry{}, fmt.Errorf("%w: expected %d, got %d", ErrMissingSequence, r.nextSeq, entry.Number)
	}
	r.nextSeq++
	return entry, nil
}

// DecodeException extracts the original blob+message from an exception
// entry.
func DecodeException(entry RecordEntry) (blob []byte, message string, err error) {
	if entry.Type != exceptionType {
		return nil, "", fmt.Errorf("event: entry %d is not an exception", entry.Number)
	}
	var c exceptionContents
	if err := json.Unmarshal(entry.Contents, &c); err != nil {
		return nil, "", err
	}
	blob, err = base64.StdEncoding.DecodeString(c.Blob)
	return blob, c.Message, err
}
