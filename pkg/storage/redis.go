package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/0xmhha/session-keeper/pkg/logger"
)

// RedisOptions configures a RedisSubstrate.
type RedisOptions struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// Namespace prefixes every key and the change channel.
	// Default: "session-keeper".
	Namespace string

	// OpTimeout bounds each round-trip. Default: 2s.
	OpTimeout time.Duration

	// QuotaBytes limits the size of a single key/value pair; Redis has no
	// cheap per-namespace total. 0 means DefaultQuotaBytes, negative disables.
	QuotaBytes int
}

// redisChange is the JSON published on the change channel.
type redisChange struct {
	Key    string `json:"key"`
	Old    string `json:"old,omitempty"`
	New    string `json:"new,omitempty"`
	Origin string `json:"origin"`
}

// RedisSubstrate is a Substrate kept in a Redis namespace.
//
// Every mutation is published on "<namespace>:changes"; Watch subscribes to
// that channel and drops the changes this handle published itself.
type RedisSubstrate struct {
	client     *redis.Client
	ownsClient bool
	ns         string
	handle     string
	opts       RedisOptions
	logger     logger.Logger

	mu     sync.Mutex
	closed bool

	watchMu  sync.Mutex
	nextW    uint64
	watchers map[uint64]func(Change)
	pubsub   *redis.PubSub
	wg       sync.WaitGroup
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions, log logger.Logger) (*RedisSubstrate, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: redis url is empty", ErrUnavailable)
	}

	clientOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(clientOpts)
	s := NewRedis(client, opts, log)
	s.ownsClient = true

	pingCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("%w: failed to connect to redis: %v", ErrUnavailable, err)
	}

	log.Info("redis substrate opened", "addr", clientOpts.Addr, "namespace", s.ns, "handle", s.handle)
	return s, nil
}

// NewRedis wraps an existing client. The caller keeps ownership of client.
func NewRedis(client *redis.Client, opts RedisOptions, log logger.Logger) *RedisSubstrate {
	if opts.Namespace == "" {
		opts.Namespace = "session-keeper"
	}
	if opts.OpTimeout == 0 {
		opts.OpTimeout = 2 * time.Second
	}
	if opts.QuotaBytes == 0 {
		opts.QuotaBytes = DefaultQuotaBytes
	}

	return &RedisSubstrate{
		client:   client,
		ns:       opts.Namespace,
		handle:   "redis-" + uuid.NewString()[:8],
		opts:     opts,
		logger:   log,
		watchers: make(map[uint64]func(Change)),
	}
}

// Get implements Substrate.Get.
func (s *RedisSubstrate) Get(key string) (string, bool, error) {
	ctx, cancel, err := s.op()
	if err != nil {
		return "", false, err
	}
	defer cancel()

	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, true, nil
}

// Set implements Substrate.Set.
func (s *RedisSubstrate) Set(key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if s.opts.QuotaBytes > 0 && entrySize(key, value) > s.opts.QuotaBytes {
		return fmt.Errorf("%w: entry of %d bytes over %d limit", ErrQuotaExceeded, entrySize(key, value), s.opts.QuotaBytes)
	}

	ctx, cancel, err := s.op()
	if err != nil {
		return err
	}
	defer cancel()

	old, err := s.client.SetArgs(ctx, s.key(key), value, redis.SetArgs{Get: true}).Result()
	existed := true
	if errors.Is(err, redis.Nil) {
		existed = false
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if existed && old == value {
		return nil
	}

	return s.publish(ctx, redisChange{Key: key, Old: old, New: value, Origin: s.handle})
}

// Remove implements Substrate.Remove.
func (s *RedisSubstrate) Remove(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	ctx, cancel, err := s.op()
	if err != nil {
		return err
	}
	defer cancel()

	old, err := s.client.GetDel(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return s.publish(ctx, redisChange{Key: key, Old: old, Origin: s.handle})
}

// Keys implements Substrate.Keys.
func (s *RedisSubstrate) Keys() ([]string, error) {
	ctx, cancel, err := s.op()
	if err != nil {
		return nil, err
	}
	defer cancel()

	prefix := s.key("")
	var keys []string

	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return keys, nil
}

// Watch implements Substrate.Watch.
func (s *RedisSubstrate) Watch(fn func(Change)) (func(), error) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.isClosed() {
		return nil, ErrClosed
	}

	if s.pubsub == nil {
		if err := s.subscribe(); err != nil {
			return nil, err
		}
	}

	s.nextW++
	id := s.nextW
	s.watchers[id] = fn

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}, nil
}

// Close implements Substrate.Close.
func (s *RedisSubstrate) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.watchMu.Lock()
	ps := s.pubsub
	s.watchers = make(map[uint64]func(Change))
	s.watchMu.Unlock()

	var closeErr error
	if ps != nil {
		if err := ps.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close subscription: %w", err)
		}
		s.wg.Wait()
	}

	if s.ownsClient {
		if err := s.client.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("failed to close redis client: %w", err)
		}
	}

	s.logger.Info("redis substrate closed", "namespace", s.ns, "handle", s.handle)
	return closeErr
}

// subscribe starts the change feed. Caller holds watchMu.
func (s *RedisSubstrate) subscribe() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
	defer cancel()

	ps := s.client.Subscribe(ctx, s.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close() //nolint:errcheck // best effort cleanup
		return fmt.Errorf("%w: failed to subscribe: %v", ErrUnavailable, err)
	}
	s.pubsub = ps

	s.wg.Add(1)
	go s.follow(ps.Channel())

	s.logger.Debug("subscribed to change feed", "channel", s.channel())
	return nil
}

// follow dispatches published changes from other handles.
func (s *RedisSubstrate) follow(ch <-chan *redis.Message) {
	defer s.wg.Done()

	for msg := range ch {
		var rc redisChange
		if err := json.Unmarshal([]byte(msg.Payload), &rc); err != nil {
			s.logger.Warn("skipping malformed change message", "error", err)
			continue
		}
		if rc.Origin == s.handle {
			continue
		}

		s.watchMu.Lock()
		fns := make([]func(Change), 0, len(s.watchers))
		for _, fn := range s.watchers {
			fns = append(fns, fn)
		}
		s.watchMu.Unlock()

		change := Change{Key: rc.Key, OldValue: rc.Old, NewValue: rc.New, Origin: rc.Origin}
		for _, fn := range fns {
			fn(change)
		}
	}
}

// publish announces a change to peers.
func (s *RedisSubstrate) publish(ctx context.Context, rc redisChange) error {
	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel(), data).Err(); err != nil {
		// The write itself succeeded; peers just will not hear about it.
		s.logger.Warn("failed to publish change", "key", rc.Key, "error", err)
	}
	return nil
}

// op returns a per-operation context.
func (s *RedisSubstrate) op() (context.Context, context.CancelFunc, error) {
	if s.isClosed() {
		return nil, nil, ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
	return ctx, cancel, nil
}

// isClosed reports whether Close has been called.
func (s *RedisSubstrate) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// key maps a substrate key into the namespace.
func (s *RedisSubstrate) key(k string) string {
	return s.ns + ":kv:" + k
}

// channel is the namespace's change feed.
func (s *RedisSubstrate) channel() string {
	return s.ns + ":changes"
}
