package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/protocol"
)

// Adapter guards every access to a Substrate.
//
// The first call to IsAvailable probes the substrate with a throwaway
// write and remove; the result is cached for the adapter's lifetime. When
// the probe fails every operation becomes a no-op that reports failure
// without panicking. Malformed JSON found on read is treated as absent and
// the offending key is removed.
//
// An optional namespace prefixes every key, so several logical origins can
// share one substrate.
type Adapter struct {
	sub    Substrate
	prefix string
	logger logger.Logger

	once      sync.Once
	available bool
}

// NewAdapter wraps sub. An empty namespace uses the bare key names.
func NewAdapter(sub Substrate, namespace string, log logger.Logger) *Adapter {
	prefix := ""
	if namespace != "" {
		prefix = namespace + "."
	}
	return &Adapter{
		sub:    sub,
		prefix: prefix,
		logger: log,
	}
}

// IsAvailable reports whether the substrate accepted a probe write.
func (a *Adapter) IsAvailable() bool {
	a.once.Do(func() {
		if a.sub == nil {
			a.logger.Warn("storage unavailable", "reason", "no substrate")
			return
		}

		probe := a.Key(protocol.KeyStorageProbe)
		if err := a.sub.Set(probe, protocol.KeyStorageProbe); err != nil {
			a.logger.Warn("storage unavailable", "reason", "probe write failed", "error", err)
			return
		}
		if err := a.sub.Remove(probe); err != nil {
			a.logger.Warn("storage unavailable", "reason", "probe remove failed", "error", err)
			return
		}
		a.available = true
	})
	return a.available
}

// Key returns the substrate key for name.
func (a *Adapter) Key(name string) string {
	return a.prefix + name
}

// Get returns the raw value stored under name.
func (a *Adapter) Get(name string) (string, bool) {
	if !a.IsAvailable() {
		return "", false
	}

	value, ok, err := a.sub.Get(a.Key(name))
	if err != nil {
		a.logger.Warn("storage read failed", "key", name, "error", err)
		return "", false
	}
	return value, ok
}

// Set stores a raw value under name.
func (a *Adapter) Set(name, value string) error {
	if !a.IsAvailable() {
		return ErrUnavailable
	}

	if err := a.sub.Set(a.Key(name), value); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			a.logger.Warn("storage quota exceeded", "key", name, "bytes", len(value))
		} else {
			a.logger.Warn("storage write failed", "key", name, "error", err)
		}
		return err
	}
	return nil
}

// Remove deletes name. Removing an absent key is a no-op.
func (a *Adapter) Remove(name string) {
	if !a.IsAvailable() {
		return
	}

	if err := a.sub.Remove(a.Key(name)); err != nil {
		a.logger.Warn("storage remove failed", "key", name, "error", err)
	}
}

// GetJSON decodes the value under name into dst.
//
// Returns false if the key is absent, storage is unavailable, or the value
// is malformed; a malformed value is removed.
func (a *Adapter) GetJSON(name string, dst interface{}) bool {
	raw, ok := a.Get(name)
	if !ok || raw == "" {
		return false
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		a.logger.Warn("purging malformed stored value", "key", name, "error", err)
		a.Remove(name)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under name.
func (a *Adapter) SetJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a.Set(name, string(data))
}

// Watch registers fn for peer changes to keys in this adapter's namespace.
// Keys passed to fn have the namespace stripped.
func (a *Adapter) Watch(fn func(Change)) (func(), error) {
	if !a.IsAvailable() {
		return nil, ErrUnavailable
	}

	return a.sub.Watch(func(c Change) {
		if !strings.HasPrefix(c.Key, a.prefix) {
			return
		}
		c.Key = strings.TrimPrefix(c.Key, a.prefix)
		fn(c)
	})
}

// Usage reports the keys and bytes stored in this adapter's namespace.
func (a *Adapter) Usage() Usage {
	var u Usage
	if !a.IsAvailable() {
		return u
	}

	keys, err := a.sub.Keys()
	if err != nil {
		a.logger.Warn("failed to list storage keys", "error", err)
		return u
	}

	for _, k := range keys {
		if !strings.HasPrefix(k, a.prefix) {
			continue
		}
		v, ok, err := a.sub.Get(k)
		if err != nil || !ok {
			continue
		}
		u.Keys++
		u.Bytes += entrySize(k, v)
	}
	return u
}
