package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/session"
	"github.com/0xmhha/session-keeper/pkg/storage"
)

// fakeSDK is a collaborator whose server answers with a fixed verdict.
type fakeSDK struct {
	mu sync.Mutex

	// verdict is nil for a server that never answers.
	verdict *bool
	sendErr error
	async   bool
	noise   bool

	subs     map[int]func(protocol.Inbound)
	nextSub  int
	sent     []protocol.Message
	identity session.Identity
	state    string
	sensors  map[string]bool
}

func newFakeSDK(verdict *bool) *fakeSDK {
	return &fakeSDK{
		verdict: verdict,
		subs:    make(map[int]func(protocol.Inbound)),
		sensors: make(map[string]bool),
	}
}

func verdict(v bool) *bool { return &v }

func (f *fakeSDK) Send(_ context.Context, msg protocol.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	err := f.sendErr
	v := f.verdict
	f.mu.Unlock()

	if err != nil || v == nil {
		return err
	}

	reply := func() {
		if f.noise {
			f.deliver(protocol.Inbound{Type: "player:joined", Raw: json.RawMessage(`{"type":"player:joined"}`)})
		}
		in, encErr := protocol.EncodeInbound(protocol.ValidationResult{Type: protocol.TypeValidationResult, IsValid: *v})
		if encErr == nil {
			f.deliver(in)
		}
	}
	if f.async {
		go func() {
			time.Sleep(10 * time.Millisecond)
			reply()
		}()
	} else {
		reply()
	}
	return nil
}

func (f *fakeSDK) deliver(in protocol.Inbound) {
	f.mu.Lock()
	subs := make([]func(protocol.Inbound), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(in)
	}
}

func (f *fakeSDK) Subscribe(fn func(protocol.Inbound)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSub++
	id := f.nextSub
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeSDK) SetIdentity(id session.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = id
}

func (f *fakeSDK) SetState(state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func (f *fakeSDK) SetSensorConnected(id string, connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sensors[id] = connected
}

func (f *fakeSDK) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func newStore(t *testing.T) (session.Store, *storage.MemoryOrigin) {
	t.Helper()

	origin := storage.NewMemoryOrigin(0)
	store, err := session.New(session.Config{}, session.Dependencies{
		Adapter: storage.NewAdapter(origin.Context(), "", logger.Noop()),
	}, logger.Noop())
	require.NoError(t, err)
	return store, origin
}

func saveSample(t *testing.T, store session.Store) {
	t.Helper()

	require.True(t, store.SaveSession(&session.Record{
		Identity: session.Identity{
			SessionCode: "4821",
			SessionID:   "sid-1",
			GameType:    "solo",
			RoomID:      "room-1",
		},
		State:             session.StatePlaying,
		SensorConnections: []string{"sensor-2", "sensor-1"},
		GameState:         json.RawMessage(`{"score":12}`),
	}))
}

func TestNoSavedSession(t *testing.T) {
	store, _ := newStore(t)
	sdk := newFakeSDK(verdict(true))

	res := New(store, Config{}, logger.Noop()).Attempt(context.Background(), sdk, Callbacks{})

	assert.False(t, res.Success)
	assert.Equal(t, ReasonNoSavedSession, res.Reason)
	assert.Empty(t, sdk.sent, "nothing sent without a session")
}

func TestRecoverValidSession(t *testing.T) {
	for _, async := range []bool{false, true} {
		store, _ := newStore(t)
		saveSample(t, store)

		sdk := newFakeSDK(verdict(true))
		sdk.async = async
		sdk.noise = true

		now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		var recovered *session.Record
		var reconnected []string
		var restored json.RawMessage

		c := New(store, Config{Clock: clock.NewManual(now)}, logger.Noop())
		res := c.Attempt(context.Background(), sdk, Callbacks{
			OnSessionRecovered:  func(rec *session.Record) { recovered = rec },
			OnSensorReconnected: func(id string) { reconnected = append(reconnected, id) },
			OnGameStateRestored: func(state json.RawMessage) { restored = state },
		})

		require.True(t, res.Success, "async=%v", async)
		assert.Equal(t, ReasonRecovered, res.Reason)
		assert.Equal(t, now, res.RecoveredAt)
		require.NotNil(t, res.Session)
		assert.Equal(t, res.Session, recovered)

		assert.Equal(t, "4821", sdk.identity.SessionCode)
		assert.Equal(t, "room-1", sdk.identity.RoomID)
		assert.Equal(t, session.StatePlaying, sdk.state)
		assert.Equal(t, map[string]bool{"sensor-1": true, "sensor-2": true}, sdk.sensors)
		assert.Equal(t, []string{"sensor-1", "sensor-2"}, reconnected)
		assert.JSONEq(t, `{"score":12}`, string(restored))

		require.Len(t, sdk.sent, 1)
		req, ok := sdk.sent[0].(protocol.ValidateRequest)
		require.True(t, ok)
		assert.Equal(t, protocol.NewValidateRequest("4821", "sid-1", session.StatePlaying), req)

		assert.Zero(t, sdk.subscribers(), "handler removed after the verdict")
		assert.True(t, store.HasActiveSession())
	}
}

func TestServerRejectsSession(t *testing.T) {
	store, origin := newStore(t)
	saveSample(t, store)

	res := New(store, Config{}, logger.Noop()).Attempt(context.Background(), newFakeSDK(verdict(false)), Callbacks{
		OnSessionRecovered: func(*session.Record) { t.Fatal("must not recover") },
	})

	assert.False(t, res.Success)
	assert.Equal(t, ReasonSessionInvalidOnServer, res.Reason)
	assert.ErrorIs(t, res.Err, ErrServerRejected)
	assert.NotContains(t, origin.Snapshot(), "activeSession")
}

func TestValidationTimeoutFailsClosed(t *testing.T) {
	store, _ := newStore(t)
	saveSample(t, store)
	sdk := newFakeSDK(nil)

	start := time.Now()
	res := New(store, Config{ValidationTimeout: 50 * time.Millisecond}, logger.Noop()).
		Attempt(context.Background(), sdk, Callbacks{})

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonSessionInvalidOnServer, res.Reason)
	assert.True(t, IsTimeout(res))
	assert.False(t, store.HasActiveSession())
	assert.Zero(t, sdk.subscribers())
}

func TestDefaultValidationTimeout(t *testing.T) {
	store, _ := newStore(t)
	c := New(store, Config{}, logger.Noop())
	assert.Equal(t, 5*time.Second, c.config.ValidationTimeout)
}

func TestSendFailureIsInvalid(t *testing.T) {
	store, _ := newStore(t)
	saveSample(t, store)
	sdk := newFakeSDK(verdict(true))
	sdk.sendErr = errors.New("socket closed")

	res := New(store, Config{}, logger.Noop()).Attempt(context.Background(), sdk, Callbacks{})

	assert.Equal(t, ReasonSessionInvalidOnServer, res.Reason)
	assert.ErrorContains(t, res.Err, "socket closed")
	assert.Zero(t, sdk.subscribers())
}

func TestCancelledContextKeepsRecord(t *testing.T) {
	store, _ := newStore(t)
	saveSample(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(store, Config{}, logger.Noop()).Attempt(ctx, newFakeSDK(nil), Callbacks{})

	assert.False(t, res.Success)
	assert.Equal(t, ReasonRecoveryError, res.Reason)
	assert.ErrorIs(t, res.Err, ErrInterrupted)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NotNil(t, store.LoadSession(), "cancellation is not a server verdict")
}

func TestCancelWhileWaitingKeepsRecord(t *testing.T) {
	store, _ := newStore(t)
	saveSample(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	defer cancel()

	c := New(store, Config{ValidationTimeout: 5 * time.Second}, logger.Noop())
	res := c.Attempt(ctx, newFakeSDK(nil), Callbacks{})

	assert.Equal(t, ReasonRecoveryError, res.Reason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, IsTimeout(res))
	assert.False(t, c.InProgress())

	rec := store.LoadSession()
	require.NotNil(t, rec)
	assert.Equal(t, "4821", rec.SessionCode)
}

func TestCallbackPanicIsReported(t *testing.T) {
	store, _ := newStore(t)
	saveSample(t, store)

	c := New(store, Config{}, logger.Noop())
	var res Result
	assert.NotPanics(t, func() {
		res = c.Attempt(context.Background(), newFakeSDK(verdict(true)), Callbacks{
			OnGameStateRestored: func(json.RawMessage) { panic("bad payload") },
		})
	})

	assert.False(t, res.Success)
	assert.Equal(t, ReasonRecoveryError, res.Reason)
	assert.ErrorIs(t, res.Err, ErrPanicked)
	assert.False(t, c.InProgress())
}

func TestNilCollaborator(t *testing.T) {
	store, _ := newStore(t)

	res := New(store, Config{}, logger.Noop()).Attempt(context.Background(), nil, Callbacks{})

	assert.Equal(t, ReasonRecoveryError, res.Reason)
	assert.ErrorIs(t, res.Err, ErrNoCollaborator)
}

func TestConcurrentAttemptRefused(t *testing.T) {
	store, _ := newStore(t)
	saveSample(t, store)

	c := New(store, Config{ValidationTimeout: 200 * time.Millisecond}, logger.Noop())

	done := make(chan Result, 1)
	go func() { done <- c.Attempt(context.Background(), newFakeSDK(nil), Callbacks{}) }()

	require.Eventually(t, c.InProgress, time.Second, time.Millisecond)
	res := c.Attempt(context.Background(), newFakeSDK(verdict(true)), Callbacks{})
	assert.ErrorIs(t, res.Err, ErrInProgress)

	first := <-done
	assert.Equal(t, ReasonSessionInvalidOnServer, first.Reason)
}
