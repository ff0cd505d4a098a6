// Package storage provides the shared key-value substrate that every tab of
// an origin reads and writes, plus a guarded Adapter over it.
//
// A Substrate behaves like browser local storage: string keys, string
// values, synchronous operations, a size limit, and change notifications
// that reach every OTHER handle on the same origin but never the handle
// that made the change.
//
// Three substrates are provided:
//   - MemoryOrigin: in-process, one handle per context (tests, embedding)
//   - BoltSubstrate: a bbolt file shared by processes on one host
//   - RedisSubstrate: a Redis namespace shared by processes on many hosts
//
// Example usage:
//
//	sub, err := storage.OpenBolt(storage.BoltOptions{Path: "~/.local/share/keeper/origin.db"}, log)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Close()
//
//	adapter := storage.NewAdapter(sub, "", log)
//	if !adapter.IsAvailable() {
//	    // every higher feature degrades to a no-op
//	}
package storage

// Substrate is a synchronous, string-keyed store shared by every context
// of an origin.
type Substrate interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	//
	// Returns ErrQuotaExceeded if the write would exceed the size limit.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Keys lists every key currently stored.
	Keys() ([]string, error)

	// Watch registers fn for changes made through OTHER handles.
	//
	// Returns a cancel function that deregisters fn.
	Watch(fn func(Change)) (cancel func(), err error)

	// Close releases the handle. Safe to call multiple times.
	Close() error
}

// Change describes one mutation observed by a peer.
type Change struct {
	// Key is the mutated key.
	Key string

	// OldValue is the previous value ("" if the key was absent).
	OldValue string

	// NewValue is the new value ("" if the key was removed).
	NewValue string

	// Origin identifies the handle that made the change.
	Origin string
}

// Removed reports whether the change deleted the key.
func (c Change) Removed() bool {
	return c.NewValue == ""
}

// Usage reports how much of the substrate is in use.
type Usage struct {
	// Keys is the number of stored keys.
	Keys int `json:"keys"`

	// Bytes is the total length of keys and values.
	Bytes int `json:"bytes"`
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// entrySize is the quota cost of one key/value pair.
func entrySize(key, value string) int {
	return len(key) + len(value)
}
