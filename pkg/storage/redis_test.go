package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/session-keeper/pkg/logger"
)

// openRedis connects to the test server named by SESSION_KEEPER_TEST_REDIS_URL.
func openRedis(t *testing.T, namespace string) *RedisSubstrate {
	t.Helper()

	url := os.Getenv("SESSION_KEEPER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SESSION_KEEPER_TEST_REDIS_URL not set")
	}

	s, err := OpenRedis(context.Background(), RedisOptions{URL: url, Namespace: namespace}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if keys, err := s.Keys(); err == nil {
			for _, k := range keys {
				_ = s.Remove(k) //nolint:errcheck // test cleanup
			}
		}
		_ = s.Close() //nolint:errcheck // test cleanup
	})
	return s
}

func TestOpenRedisRequiresURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisOptions{}, logger.Noop())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenRedisBadURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisOptions{URL: "://nope"}, logger.Noop())
	assert.Error(t, err)
}

func TestRedisGetSetRemove(t *testing.T) {
	s := openRedis(t, "test-"+uuid.NewString())

	require.NoError(t, s.Set("activeSession", "v1"))
	v, ok, err := s.Get("activeSession")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"activeSession"}, keys)

	require.NoError(t, s.Remove("activeSession"))
	require.NoError(t, s.Remove("activeSession"))
	_, ok, err = s.Get("activeSession")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisPeerChanges(t *testing.T) {
	ns := "test-" + uuid.NewString()
	tabA := openRedis(t, ns)
	tabB := openRedis(t, ns)

	var seenA, seenB collector
	_, err := tabA.Watch(seenA.add)
	require.NoError(t, err)
	_, err = tabB.Watch(seenB.add)
	require.NoError(t, err)

	require.NoError(t, tabA.Set("tabCommunication", "msg"))

	require.Eventually(t, func() bool { return seenB.len() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "msg", seenB.snapshot()[0].NewValue)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, seenA.len())
}
