// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// pendingDelay is one outstanding Execute call: an event scheduled to be
// raised once delay has elapsed.
type pendingDelay struct {
	id       uint64
	typ      Type
	payload  any
	delay    time.Duration
	armedAt  time.Time
	timer    *time.Timer
	canceled bool
}

// DelayedEventMediator is the Mediator wrapping the engine's liveness
// timers (TIMEOUT_PROPOSE, TIMEOUT_VOTE) and the 0.5s DoneRound->StartRound
// scheduling gap, the canonical non-deterministic side effect that must go
// through a mediator rather than firing directly.
// Pause cancels every outstanding timer but remembers how much of its
// delay was left; Resume re-arms each from the current clock for that
// remaining duration, so a paused-then-resumed EventSystem reproduces the
// same relative ordering rather than the same wall-clock instants.
type DelayedEventMediator struct {
	name string
	es   *EventSystem

	mu      sync.Mutex
	mode    Mode
	paused  bool
	nextID  uint64
	pending map[uint64]*pendingDelay

	rec  *writer
	repR *reader
}

// NewDelayedEventMediator constructs a DelayedEventMediator named name,
// raising events through es.
func NewDelayedEventMediator(name string, es *EventSystem) *DelayedEventMediator {
	return &DelayedEventMediator{
		name:    name,
		es:      es,
		pending: make(map[uint64]*pendingDelay),
	}
}

func (m *DelayedEventMediator) Name() string { return m.name }

// Execute schedules payload to be raised as a t event after delay elapses.
func (m *DelayedEventMediator) Execute(delay time.Duration, t Type, payload any) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	pd := &pendingDelay{id: id, typ: t, payload: payload, delay: delay, armedAt: m.now()}
	m.pending[id] = pd
	mode := m.mode
	paused := m.paused
	m.mu.Unlock()

	if paused {
		return
	}
	switch mode {
	case ModeReplay:
		// produced on demand by replayNext, driven by the dispatch loop.
	default:
		m.arm(pd)
	}
}

func (m *DelayedEventMediator) now() time.Time { return timeNow() }

// timeNow is a package-level indirection so tests can't accidentally call
// time.Now() in a replay path; it is always the real clock outside tests.
var timeNow = time.Now

func (m *DelayedEventMediator) arm(pd *pendingDelay) {
	pd.timer = time.AfterFunc(pd.delay, func() {
		m.fire(pd)
	})
}

func (m *DelayedEventMediator) fire(pd *pendingDelay) {
	m.mu.Lock()
	if pd.canceled {
		m.mu.Unlock()
		return
	}
	delete(m.pending, pd.id)
	if m.mode == ModeRecord && m.rec != nil {
		if contents, err := json.Marshal(pd.payload); err == nil {
			m.rec.writeRaw(string(pd.typ), contents)
		}
	}
	m.mu.Unlock()

	m.es.raiseFromMediator(m.name, pd.typ, pd.payload)
}

// replayNext satisfies replayProducer: it reads this mediator's own log for
// its next recorded firing and raises it onto the EventSystem's queue.
func (m *DelayedEventMediator) replayNext() {
	m.mu.Lock()
	r := m.repR
	m.mu.Unlock()
	if r == nil {
		return
	}
	entry, err := r.Next()
	if err != nil {
		return
	}
	payload, err := m.es.decodePayload(Type(entry.Type), entry.Contents)
	if err != nil {
		return
	}
	m.es.raiseFromMediator(m.name, Type(entry.Type), payload)
}

// Pause cancels every outstanding timer, recording how much delay remained
// so Resume can re-arm it.
func (m *DelayedEventMediator) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	m.paused = true
	now := m.now()
	for _, pd := range m.pending {
		if pd.timer != nil {
			pd.timer.Stop()
			pd.timer = nil
		}
		elapsed := now.Sub(pd.armedAt)
		remaining := pd.delay - elapsed
		if remaining < 0 {
			remaining = 0
		}
		pd.delay = remaining
	}
}

// Resume re-arms every outstanding timer for its remaining delay, rebased
// from the current clock.
func (m *DelayedEventMediator) Resume() {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = false
	mode := m.mode
	pendings := make([]*pendingDelay, 0, len(m.pending))
	for _, pd := range m.pending {
		pd.armedAt = m.now()
		pendings = append(pendings, pd)
	}
	m.mu.Unlock()

	if mode == ModeReplay {
		return
	}
	for _, pd := range pendings {
		m.arm(pd)
	}
}

// Close cancels every outstanding timer permanently.
func (m *DelayedEventMediator) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pd := range m.pending {
		pd.canceled = true
		if pd.timer != nil {
			pd.timer.Stop()
		}
	}
	m.pending = make(map[uint64]*pendingDelay)
}

func (m *DelayedEventMediator) setMode(mode Mode, w io.Writer, r io.Reader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.rec = nil
	if w != nil {
		m.rec = newWriter(w)
	}
	if r != nil {
		m.repR = newReader(r)
	} else {
		m.repR = nil
	}
	if mode == ModeReplay {
		for _, pd := range m.pending {
			if pd.timer != nil {
				pd.timer.Stop()
				pd.timer = nil
			}
		}
	}
}

var _ Mediator = (*DelayedEventMediator)(nil)
var _ replayProducer = (*DelayedEventMediator)(nil)
var _ fmt.Stringer = Event{}
