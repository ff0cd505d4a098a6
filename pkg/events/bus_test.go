package events

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/session"
)

func TestEmitInRegistrationOrder(t *testing.T) {
	bus := NewBus(logger.Noop())

	var calls []string
	bus.On(NameSyncRequested, func(Event) { calls = append(calls, "first") })
	bus.On(NameSyncRequested, func(Event) { calls = append(calls, "second") })
	bus.On(NameSessionEndedByOtherTab, func(Event) { calls = append(calls, "other") })

	bus.Emit(SyncRequested{})

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(logger.ToWriter(&buf))

	reached := false
	bus.On(NameSyncRequested, func(Event) { panic("boom") })
	bus.On(NameSyncRequested, func(Event) { reached = true })

	assert.NotPanics(t, func() { bus.Emit(SyncRequested{}) })
	assert.True(t, reached)
	assert.Contains(t, buf.String(), "event handler panicked")
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(logger.Noop())

	count := 0
	sub := bus.On(NameSyncRequested, func(Event) { count++ })
	bus.Emit(SyncRequested{})

	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Emit(SyncRequested{})

	assert.Equal(t, 1, count)
	assert.Zero(t, bus.HandlerCount(NameSyncRequested))
	assert.Equal(t, NameSyncRequested, sub.Name())
}

func TestOffIgnoresForeignSubscriptions(t *testing.T) {
	a := NewBus(logger.Noop())
	b := NewBus(logger.Noop())

	sub := a.On(NameSyncRequested, func(Event) {})
	b.Off(sub)
	b.Off(nil)
	assert.Equal(t, 1, a.HandlerCount(NameSyncRequested))

	a.Off(sub)
	assert.Zero(t, a.HandlerCount(NameSyncRequested))
}

func TestUnsubscribeDuringEmit(t *testing.T) {
	bus := NewBus(logger.Noop())

	count := 0
	var sub *Subscription
	sub = bus.On(NameSyncRequested, func(Event) {
		count++
		sub.Unsubscribe()
	})
	bus.On(NameSyncRequested, func(Event) { count++ })

	bus.Emit(SyncRequested{})
	bus.Emit(SyncRequested{})

	assert.Equal(t, 3, count)
}

func TestTypedSubscribe(t *testing.T) {
	bus := NewBus(logger.Noop())

	var got []string
	sub := Subscribe(bus, func(e SessionEndedByOtherTab) {
		got = append(got, e.Notice.SessionCode)
	})
	defer sub.Unsubscribe()

	bus.Emit(SessionEndedByOtherTab{FromTab: "tab_x", Notice: session.EndNotice{SessionCode: "4821"}})
	bus.Emit(SessionUpdatedByOtherTab{})

	require.Len(t, got, 1)
	assert.Equal(t, "4821", got[0])
}

func TestClear(t *testing.T) {
	bus := NewBus(logger.Noop())
	for _, name := range Names {
		bus.On(name, func(Event) {})
	}

	bus.Clear()

	for _, name := range Names {
		assert.Zero(t, bus.HandlerCount(name))
	}
}

func TestEventNames(t *testing.T) {
	assert.Equal(t, NameSessionUpdatedByOtherTab, SessionUpdatedByOtherTab{}.Name())
	assert.Equal(t, NameSessionEndedByOtherTab, SessionEndedByOtherTab{}.Name())
	assert.Equal(t, NameGameStateChangedByOtherTab, GameStateChangedByOtherTab{}.Name())
	assert.Equal(t, NameSyncRequested, SyncRequested{}.Name())
}
