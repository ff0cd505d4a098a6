package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records changes delivered to a watcher.
type collector struct {
	mu      sync.Mutex
	changes []Change
}

func (c *collector) add(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
}

func (c *collector) snapshot() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.changes...)
}

func (c *collector) len() int {
	return len(c.snapshot())
}

func TestMemoryGetSetRemove(t *testing.T) {
	tab := NewMemoryOrigin(0).Context()

	_, ok, err := tab.Get("activeSession")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tab.Set("activeSession", `{"sessionCode":"ABCD"}`))
	v, ok, err := tab.Get("activeSession")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"sessionCode":"ABCD"}`, v)

	require.NoError(t, tab.Remove("activeSession"))
	require.NoError(t, tab.Remove("activeSession"), "removing absent key is not an error")

	keys, err := tab.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, tab.Set("", "x"), ErrInvalidKey)
}

func TestMemoryPeersSeeChangesSelfDoesNot(t *testing.T) {
	origin := NewMemoryOrigin(0)
	tabA := origin.Context()
	tabB := origin.Context()

	var seenA, seenB collector
	_, err := tabA.Watch(seenA.add)
	require.NoError(t, err)
	_, err = tabB.Watch(seenB.add)
	require.NoError(t, err)

	require.NoError(t, tabA.Set("k", "v1"))
	require.NoError(t, tabA.Set("k", "v1"), "unchanged value fires nothing")
	require.NoError(t, tabA.Set("k", "v2"))
	require.NoError(t, tabA.Remove("k"))

	require.Eventually(t, func() bool { return seenB.len() == 3 }, time.Second, 5*time.Millisecond)
	got := seenB.snapshot()
	assert.Equal(t, Change{Key: "k", NewValue: "v1", Origin: "memory-1"}, got[0])
	assert.Equal(t, "v1", got[1].OldValue)
	assert.Equal(t, "v2", got[1].NewValue)
	assert.True(t, got[2].Removed())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, seenA.len())
}

func TestMemoryWatchCancel(t *testing.T) {
	origin := NewMemoryOrigin(0)
	tabA := origin.Context()
	tabB := origin.Context()

	var seen collector
	cancel, err := tabB.Watch(seen.add)
	require.NoError(t, err)
	cancel()

	require.NoError(t, tabA.Set("k", "v"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, seen.len())
}

func TestMemoryQuota(t *testing.T) {
	origin := NewMemoryOrigin(20)
	tab := origin.Context()

	require.NoError(t, tab.Set("a", "0123456789"))
	assert.ErrorIs(t, tab.Set("b", "0123456789"), ErrQuotaExceeded)

	// Replacing an existing value only counts the difference.
	require.NoError(t, tab.Set("a", "0123456789abcdefgh"))
	assert.Equal(t, map[string]string{"a": "0123456789abcdefgh"}, origin.Snapshot())
}

func TestMemoryUnavailable(t *testing.T) {
	origin := NewMemoryOrigin(0)
	tab := origin.Context()
	origin.SetUnavailable(true)

	assert.ErrorIs(t, tab.Set("k", "v"), ErrUnavailable)
	_, _, err := tab.Get("k")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = tab.Keys()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryClosedHandle(t *testing.T) {
	origin := NewMemoryOrigin(0)
	tabA := origin.Context()
	tabB := origin.Context()

	require.NoError(t, tabB.Close())
	require.NoError(t, tabB.Close())

	assert.ErrorIs(t, tabB.Set("k", "v"), ErrClosed)
	_, err := tabB.Watch(func(Change) {})
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, tabA.Set("k", "v"), "writes still succeed with a closed peer")
}
