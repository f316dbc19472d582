// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"io"
	"sync"
	"time"
)

// ClockMediator wraps wall-clock reads (time.Now) behind the same
// Instant/Recorder/Replayer executor switch as DelayedEventMediator, so
// that any handler needing "now" for a log field or a deadline computation
// gets a replay-stable value instead of calling time.Now() directly.
type ClockMediator struct {
	name string

	mu   sync.Mutex
	mode Mode
	rec  *writer
	repR *reader
}

func NewClockMediator(name string) *ClockMediator {
	return &ClockMediator{name: name}
}

func (c *ClockMediator) Name() string { return c.name }

// Now returns the current time in ModeLive/ModeRecord, logging it when
// recording; in ModeReplay it returns the next logged value instead of
// touching the real clock.
func (c *ClockMediator) Now() time.Time {
	c.mu.Lock()
	mode := c.mode
	w := c.rec
	r := c.repR
	c.mu.Unlock()

	if mode == ModeReplay && r != nil {
		entry, err := r.Next()
		if err == nil {
			var t time.Time
			if jsonErr := t.UnmarshalJSON(entry.Contents); jsonErr == nil {
				return t
			}
		}
	}

	now := time.Now()
	if mode == ModeRecord && w != nil {
		contents, _ := now.MarshalJSON()
		w.writeRaw("ClockNow", contents)
	}
	return now
}

func (c *ClockMediator) Pause() {}
func (c *ClockMediator) Resume() {}
func (c *ClockMediator) Close()  {}

func (c *ClockMediator) setMode(mode Mode, w io.Writer, r io.Reader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	c.rec = nil
	if w != nil {
		c.rec = newWriter(w)
	}
	if r != nil {
		c.repR = newReader(r)
	} else {
		c.repR = nil
	}
}

var _ Mediator = (*ClockMediator)(nil)
