// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/luxfi/log"
)

// queued pairs an Event with the name of the Mediator that produced it, if
// any. Events raised by ordinary handler code (via RaiseEvent) carry an
// empty mediator and Event.Deterministic == true; events a Mediator pushes
// onto the queue (a fired timer, for instance) carry its Name() and
// Event.Deterministic == false.
type queued struct {
	ev       Event
	mediator string
}

// mediatorIO is one mediator's own record/replay stream, supplied alongside
// the main log to StartRecord/StartReplay.
type mediatorIO struct {
	w io.Writer
	r io.Reader
}

// EventSystem is a single-threaded cooperative dispatcher. One goroutine,
// the dispatch loop started by Run, owns all handler
// state; everything else (timers firing, a peer Gossiper forwarding into a
// different Node's EventSystem) reaches it only by pushing onto the
// mutex-guarded ingress queue, never by calling a handler directly. That
// queue is plumbing, not business logic: the mutex is never held across a
// handler call.
type EventSystem struct {
	log log.Logger

	mu    sync.Mutex
	queue []queued
	wake  chan struct{}

	handlers map[Type][]Handler

	mediators   map[string]Mediator
	mediatorIOs map[string]mediatorIO

	payloadDecoders map[Type]func(json.RawMessage) (any, error)

	mode Mode
	rec  *writer
	rep  *reader

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	closed  bool
}

// NewEventSystem constructs an EventSystem in ModeLive.
func NewEventSystem(logger log.Logger) *EventSystem {
	return &EventSystem{
		log:             logger,
		wake:            make(chan struct{}, 1),
		handlers:        make(map[Type][]Handler),
		mediators:       make(map[string]Mediator),
		mediatorIOs:     make(map[string]mediatorIO),
		payloadDecoders: make(map[Type]func(json.RawMessage) (any, error)),
		mode:            ModeLive,
	}
}

// RegisterHandler subscribes h to every event of type t. Handlers run in
// registration order on the dispatch loop goroutine.
func (es *EventSystem) RegisterHandler(t Type, h Handler) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.handlers[t] = append(es.handlers[t], h)
}

// RegisterDecoder teaches the EventSystem how to reconstruct a concrete
// payload type for t from its JSON encoding during replay. Without a
// decoder, a replayed event of type t carries its Contents as
// json.RawMessage, which will fail a handler's type assertion; every layer
// that raises a typed payload (message.Data, message.Vote, ...) must
// register one.
func (es *EventSystem) RegisterDecoder(t Type, dec func(json.RawMessage) (any, error)) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.payloadDecoders[t] = dec
}

// RaiseEvent enqueues ev for dispatch. Called from handler code running on
// the dispatch loop goroutine, or from any other goroutine (a Gossiper
// delivering to a peer, test code priming the queue before Run).
// Deterministic is set true: this is the ordinary, main-log path.
func (es *EventSystem) RaiseEvent(t Type, payload any) {
	es.raise(queued{ev: Event{Type: t, Payload: payload, Deterministic: true}})
}

// raiseFromMediator is called by a Mediator's live/record executor to push
// a non-deterministic event (a fired timer) onto the queue.
func (es *EventSystem) raiseFromMediator(mediatorName string, t Type, payload any) {
	es.raise(queued{ev: Event{Type: t, Payload: payload, Deterministic: false}, mediator: mediatorName})
}

func (es *EventSystem) raise(q queued) {
	es.mu.Lock()
	es.queue = append(es.queue, q)
	es.mu.Unlock()
	select {
	case es.wake <- struct{}{}:
	default:
	}
}

func (es *EventSystem) pop() (queued, bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.queue) == 0 {
		return queued{}, false
	}
	q := es.queue[0]
	es.queue = es.queue[1:]
	return q, true
}

// StartRecord switches the EventSystem and every currently-registered
// mediator into ModeRecord: w receives the main log, mediatorIOs gives each
// named mediator its own log.
func (es *EventSystem) StartRecord(w io.Writer, mediatorIOs map[string]io.Writer) {
	es.mu.Lock()
	es.mode = ModeRecord
	es.rec = newWriter(w)
	for name, mw := range mediatorIOs {
		es.mediatorIOs[name] = mediatorIO{w: mw}
		if m, ok := es.mediators[name]; ok {
			m.setMode(ModeRecord, mw, nil)
		}
	}
	es.mu.Unlock()
}

// StartReplay switches the EventSystem and every currently-registered
// mediator into ModeReplay.
func (es *EventSystem) StartReplay(r io.Reader, mediatorIOs map[string]io.Reader) {
	es.mu.Lock()
	es.mode = ModeReplay
	es.rep = newReader(r)
	for name, mr := range mediatorIOs {
		es.mediatorIOs[name] = mediatorIO{r: mr}
		if m, ok := es.mediators[name]; ok {
			m.setMode(ModeReplay, nil, mr)
		}
	}
	es.mu.Unlock()
}

// Run drives the dispatch loop until Stop is called, the replay log is
// exhausted in replay mode, or a fatal error occurs. It returns a *FatalError on an
// unrecoverable replay mismatch or invariant violation; it returns nil on a
// clean Stop.
func (es *EventSystem) Run() error {
	es.mu.Lock()
	if es.closed {
		es.mu.Unlock()
		return ErrSystemClosed
	}
	es.running = true
	es.stopCh = make(chan struct{})
	es.doneCh = make(chan struct{})
	mode := es.mode
	es.mu.Unlock()
	defer close(es.doneCh)

	if mode == ModeReplay {
		return es.runReplay()
	}
	return es.runLiveOrRecord()
}

func (es *EventSystem) runLiveOrRecord() error {
	for {
		select {
		case <-es.stopCh:
			return nil
		default:
		}
		q, ok := es.pop()
		if !ok {
			select {
			case <-es.wake:
				continue
			case <-es.stopCh:
				return nil
			}
		}
		if err := es.dispatchOne(q); err != nil {
			return err
		}
	}
}

// runReplay drains the main log entry by entry. For a deterministic entry
// it reissues the event directly from the log's Contents (decoded through
// any registered decoder). For a non-deterministic entry it first asks the
// named mediator to reconstruct its next output from the mediator's own
// log, appends that output to the live queue, then pops and validates it
// against the log entry's Type; a mismatch is a fatal ErrTypeTagMismatch.
func (es *EventSystem) runReplay() error {
	for {
		select {
		case <-es.stopCh:
			return nil
		default:
		}
		entry, err := es.rep.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &FatalError{Cause: err}
		}

		if entry.Deterministic {
			payload, derr := es.decodePayload(Type(entry.Type), entry.Contents)
			if derr != nil {
				return &FatalError{Cause: derr, Seq: entry.Number}
			}
			q := queued{ev: Event{Type: Type(entry.Type), Payload: payload, Deterministic: true}}
			if err := es.dispatchOne(q); err != nil {
				return err
			}
			continue
		}

		es.mu.Lock()
		m, ok := es.mediators[entry.Mediator]
		es.mu.Unlock()
		if !ok {
			return &FatalError{Cause: fmt.Errorf("%w: %s", ErrUnknownMediator, entry.Mediator), Seq: entry.Number}
		}
		// Events raised by handlers during replay are already on the log;
		// drop them so the pop below sees only the mediator's output.
		es.mu.Lock()
		es.queue = nil
		es.mu.Unlock()
		if replayer, ok := m.(replayProducer); ok {
			replayer.replayNext()
		}
		q, ok := es.pop()
		if !ok {
			return &FatalError{Cause: fmt.Errorf("event: mediator %s produced no event for sequence %d", entry.Mediator, entry.Number), Seq: entry.Number}
		}
		if string(q.ev.Type) != entry.Type {
			return &FatalError{Cause: ErrTypeTagMismatch, Seq: entry.Number}
		}
		if err := es.dispatchOne(q); err != nil {
			return err
		}
	}
}

// replayProducer is implemented by mediators whose replay executor needs an
// explicit nudge (rather than a background goroutine) to produce its next
// queued event. DelayedEventMediator implements it.
type replayProducer interface {
	replayNext()
}

func (es *EventSystem) decodePayload(t Type, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	es.mu.Lock()
	dec, ok := es.payloadDecoders[t]
	es.mu.Unlock()
	if !ok {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return dec(raw)
}

func (es *EventSystem) dispatchOne(q queued) error {
	es.mu.Lock()
	hs := append([]Handler(nil), es.handlers[q.ev.Type]...)
	mode := es.mode
	rec := es.rec
	es.mu.Unlock()

	if mode == ModeRecord && rec != nil {
		if _, err := rec.WriteEvent(q.ev, q.mediator); err != nil {
			return &FatalError{Cause: err}
		}
	}

	for _, h := range hs {
		if err := h(q.ev); err != nil {
			es.log.Error("handler returned fatal error", "type", q.ev.Type, "error", err)
			return &FatalError{Cause: err}
		}
	}
	return nil
}

// Stop requests the dispatch loop exit after its current event finishes,
// and blocks until it has.
func (es *EventSystem) Stop() {
	es.mu.Lock()
	running := es.running
	stopCh := es.stopCh
	doneCh := es.doneCh
	es.mu.Unlock()
	if !running {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-doneCh
	es.mu.Lock()
	es.running = false
	es.mu.Unlock()
}

// Close stops the loop if running and releases every registered mediator.
// The EventSystem is not usable afterwards.
func (es *EventSystem) Close() {
	es.Stop()
	es.mu.Lock()
	mediators := make([]Mediator, 0, len(es.mediators))
	for _, m := range es.mediators {
		mediators = append(mediators, m)
	}
	es.closed = true
	es.mu.Unlock()
	for _, m := range mediators {
		m.Close()
	}
}
