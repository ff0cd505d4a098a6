package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xmhha/session-keeper/pkg/logger"
)

// Options selects and configures a substrate for Open.
type Options struct {
	// Backend is memory, bolt or redis.
	Backend string

	// Bolt configures the bolt backend.
	Bolt BoltOptions

	// Redis configures the redis backend.
	Redis RedisOptions

	// MemoryQuota limits the memory backend; 0 means unlimited.
	MemoryQuota int
}

// Open creates the substrate named by opts.Backend.
//
// The memory backend is private to the returned handle's origin, so it
// only shares data with handles from the same process.
func Open(ctx context.Context, opts Options, log logger.Logger) (Substrate, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendMemory:
		return NewMemoryOrigin(opts.MemoryQuota).Context(), nil
	case BackendBolt, "":
		return OpenBolt(opts.Bolt, log)
	case BackendRedis:
		return OpenRedis(ctx, opts.Redis, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
