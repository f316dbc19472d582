// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package event

import (
	"bytes"
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func TestEventSystemDispatchesInFIFOOrder(t *testing.T) {
	es := NewEventSystem(log.NewNoOpLogger())

	var got []string
	es.RegisterHandler("greet", func(ev Event) error {
		got = append(got, ev.Payload.(string))
		return nil
	})

	es.RaiseEvent("greet", "a")
	es.RaiseEvent("greet", "b")
	es.RaiseEvent("greet", "c")

	go es.Run()
	require.Eventually(t, func() bool { return len(got) == 3 }, time.Second, time.Millisecond)
	es.Close()

	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestEventSystemMultipleHandlersRunInRegistrationOrder(t *testing.T) {
	es := NewEventSystem(log.NewNoOpLogger())

	var order []int
	es.RegisterHandler("x", func(Event) error { order = append(order, 1); return nil })
	es.RegisterHandler("x", func(Event) error { order = append(order, 2); return nil })

	go es.Run()
	es.RaiseEvent("x", nil)
	require.Eventually(t, func() bool { return len(order) == 2 }, time.Second, time.Millisecond)
	es.Close()

	require.Equal(t, []int{1, 2}, order)
}

func TestEventSystemRecordReplay(t *testing.T) {
	var buf bytes.Buffer

	recorded := NewEventSystem(log.NewNoOpLogger())
	var got1 []string
	recorded.RegisterHandler("greet", func(ev Event) error {
		got1 = append(got1, ev.Payload.(string))
		return nil
	})
	recorded.StartRecord(&buf, nil)
	go recorded.Run()
	recorded.RaiseEvent("greet", "hello")
	recorded.RaiseEvent("greet", "world")
	require.Eventually(t, func() bool { return len(got1) == 2 }, time.Second, time.Millisecond)
	recorded.Close()

	replayed := NewEventSystem(log.NewNoOpLogger())
	var got2 []string
	replayed.RegisterHandler("greet", func(ev Event) error {
		got2 = append(got2, ev.Payload.(string))
		return nil
	})
	replayed.StartReplay(bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, replayed.Run())

	require.Equal(t, got1, got2)
}

func TestEventSystemStopIsIdempotentAndBlocksUntilDone(t *testing.T) {
	es := NewEventSystem(log.NewNoOpLogger())
	go es.Run()
	require.Eventually(t, func() bool {
		es.mu.Lock()
		running := es.running
		es.mu.Unlock()
		return running
	}, time.Second, time.Millisecond)

	es.Stop()
	es.Stop() // must not deadlock or panic
}
