// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import "io"

// Mode is the EventSystem's current execution mode, also the mode every
// registered Mediator is driven in.
type Mode uint8

const (
	// ModeLive calls through to the real side effect and returns directly.
	ModeLive Mode = iota
	// ModeRecord calls through to the real side effect and additionally
	// logs its output.
	ModeRecord
	// ModeReplay returns the recorded output instead of touching the real
	// side effect.
	ModeReplay
)

// Mediator wraps a non-deterministic side effect (a timer, the wall clock,
// a source of randomness) behind a surface with three interchangeable
// executors: Instant (live), Recorder (live + log), Replayer (log only),
// so that its callers are unaware of which mode the EventSystem is in.
type Mediator interface {
	// Name identifies this mediator for get_mediator/set_mediator and for
	// looking it up in a mediator_ios map.
	Name() string

	// Pause cancels any outstanding scheduled work but retains enough
	// state (e.g. remaining durations) to re-arm it from Resume.
	Pause()
	// Resume re-arms work cancelled by Pause, rebasing relative delays
	// from the current clock.
	Resume()
	// Close releases resources permanently; the mediator is not usable
	// afterwards.
	Close()

	// setMode switches the mediator's executor. w is non-nil only when
	// mode == ModeRecord; r is non-nil only when mode == ModeReplay.
	setMode(mode Mode, w io.Writer, r io.Reader)
}

// GetMediator returns the mediator registered under name.
func (es *EventSystem) GetMediator(name string) (Mediator, bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	m, ok := es.mediators[name]
	return m, ok
}

// SetMediator registers m, replacing any mediator previously registered
// under the same name. If the EventSystem is currently recording or
// replaying, the new mediator is immediately switched into that mode using
// the same mediator_ios stream the previous occupant (if any) would have
// used; callers that set mediators before start()/start_record/start_replay
// avoid this entirely.
func (es *EventSystem) SetMediator(m Mediator) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.mediators == nil {
		es.mediators = make(map[string]Mediator)
	}
	es.mediators[m.Name()] = m
	if es.mode != ModeLive {
		if rw, ok := es.mediatorIOs[m.Name()]; ok {
			m.setMode(es.mode, rw.w, rw.r)
		}
	}
}
