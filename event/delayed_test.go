// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func TestDelayedEventMediatorFiresAfterDelay(t *testing.T) {
	es := NewEventSystem(log.NewNoOpLogger())
	d := NewDelayedEventMediator("delayed", es)
	es.SetMediator(d)

	fired := make(chan string, 1)
	es.RegisterHandler("fire", func(ev Event) error {
		fired <- ev.Payload.(string)
		return nil
	})

	go es.Run()
	defer es.Close()

	d.Execute(20*time.Millisecond, "fire", "payload")

	select {
	case got := <-fired:
		require.Equal(t, "payload", got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delayed event")
	}
}

func TestDelayedEventMediatorPauseCancelsTimer(t *testing.T) {
	es := NewEventSystem(log.NewNoOpLogger())
	d := NewDelayedEventMediator("delayed", es)
	es.SetMediator(d)

	fired := make(chan struct{}, 1)
	es.RegisterHandler("fire", func(Event) error {
		fired <- struct{}{}
		return nil
	})

	go es.Run()
	defer es.Close()

	d.Execute(50*time.Millisecond, "fire", nil)
	d.Pause()

	select {
	case <-fired:
		t.Fatal("paused timer must not fire")
	case <-time.After(100 * time.Millisecond):
	}

	d.Resume()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("resumed timer never fired")
	}
}

func TestDelayedEventMediatorCloseCancelsAll(t *testing.T) {
	es := NewEventSystem(log.NewNoOpLogger())
	d := NewDelayedEventMediator("delayed", es)
	es.SetMediator(d)

	fired := make(chan struct{}, 1)
	es.RegisterHandler("fire", func(Event) error {
		fired <- struct{}{}
		return nil
	})

	go es.Run()
	defer es.Close()

	d.Execute(50*time.Millisecond, "fire", nil)
	d.Close()

	select {
	case <-fired:
		t.Fatal("closed timer must not fire")
	case <-time.After(150 * time.Millisecond):
	}
}
