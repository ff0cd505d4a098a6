package storage

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryOrigin is an in-process origin shared by several contexts.
//
// Each call to Context returns a separate handle; a change made through one
// handle is delivered to the watchers of every other handle, asynchronously
// and in order, the way a browser delivers storage events to other tabs.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryOrigin struct {
	mu          sync.Mutex
	data        map[string]string
	size        int
	quota       int
	unavailable bool
	nextHandle  uint64
	handles     map[uint64]*memoryHandle
}

// memoryHandle is one context's view of a MemoryOrigin.
type memoryHandle struct {
	id     uint64
	name   string
	origin *MemoryOrigin

	mu       sync.Mutex
	closed   bool
	nextW    uint64
	watchers map[uint64]func(Change)
	queue    chan Change
	done     chan struct{}
	started  bool
}

// NewMemoryOrigin creates an empty origin.
//
// quotaBytes limits the total size of keys and values; 0 means unlimited.
func NewMemoryOrigin(quotaBytes int) *MemoryOrigin {
	return &MemoryOrigin{
		data:    make(map[string]string),
		quota:   quotaBytes,
		handles: make(map[uint64]*memoryHandle),
	}
}

// Context returns a new handle on the origin.
func (o *MemoryOrigin) Context() Substrate {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextHandle++
	h := &memoryHandle{
		id:       o.nextHandle,
		name:     fmt.Sprintf("memory-%d", o.nextHandle),
		origin:   o,
		watchers: make(map[uint64]func(Change)),
		queue:    make(chan Change, 256),
		done:     make(chan struct{}),
	}
	o.handles[h.id] = h
	return h
}

// SetUnavailable makes every operation fail with ErrUnavailable,
// simulating disabled storage or private browsing.
func (o *MemoryOrigin) SetUnavailable(unavailable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unavailable = unavailable
}

// Snapshot returns a copy of the stored data.
func (o *MemoryOrigin) Snapshot() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]string, len(o.data))
	for k, v := range o.data {
		out[k] = v
	}
	return out
}

// mutate applies a change and fans it out to the other handles.
func (o *MemoryOrigin) mutate(from *memoryHandle, key string, value string, remove bool) error {
	if key == "" {
		return ErrInvalidKey
	}

	o.mu.Lock()
	if o.unavailable {
		o.mu.Unlock()
		return ErrUnavailable
	}

	old, existed := o.data[key]
	if remove {
		if !existed {
			o.mu.Unlock()
			return nil
		}
		delete(o.data, key)
		o.size -= entrySize(key, old)
	} else {
		if existed && old == value {
			o.mu.Unlock()
			return nil
		}
		next := o.size + entrySize(key, value)
		if existed {
			next -= entrySize(key, old)
		}
		if o.quota > 0 && next > o.quota {
			o.mu.Unlock()
			return fmt.Errorf("%w: %d bytes over %d limit", ErrQuotaExceeded, next, o.quota)
		}
		o.data[key] = value
		o.size = next
	}

	change := Change{Key: key, OldValue: old, NewValue: value, Origin: from.name}
	peers := make([]*memoryHandle, 0, len(o.handles))
	for id, h := range o.handles {
		if id != from.id {
			peers = append(peers, h)
		}
	}
	o.mu.Unlock()

	for _, h := range peers {
		h.enqueue(change)
	}
	return nil
}

// Get implements Substrate.Get.
func (h *memoryHandle) Get(key string) (string, bool, error) {
	if err := h.check(); err != nil {
		return "", false, err
	}

	h.origin.mu.Lock()
	defer h.origin.mu.Unlock()

	if h.origin.unavailable {
		return "", false, ErrUnavailable
	}
	v, ok := h.origin.data[key]
	return v, ok, nil
}

// Set implements Substrate.Set.
func (h *memoryHandle) Set(key, value string) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.origin.mutate(h, key, value, false)
}

// Remove implements Substrate.Remove.
func (h *memoryHandle) Remove(key string) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.origin.mutate(h, key, "", true)
}

// Keys implements Substrate.Keys.
func (h *memoryHandle) Keys() ([]string, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	h.origin.mu.Lock()
	defer h.origin.mu.Unlock()

	if h.origin.unavailable {
		return nil, ErrUnavailable
	}
	keys := make([]string, 0, len(h.origin.data))
	for k := range h.origin.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch implements Substrate.Watch.
func (h *memoryHandle) Watch(fn func(Change)) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	h.nextW++
	id := h.nextW
	h.watchers[id] = fn

	if !h.started {
		h.started = true
		go h.deliver()
	}

	return func() {
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}, nil
}

// Close implements Substrate.Close.
func (h *memoryHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.watchers = make(map[uint64]func(Change))
	close(h.done)
	h.mu.Unlock()

	h.origin.mu.Lock()
	delete(h.origin.handles, h.id)
	h.origin.mu.Unlock()
	return nil
}

// check fails on a closed handle.
func (h *memoryHandle) check() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	return nil
}

// enqueue hands a change to the delivery goroutine. Handles that never
// called Watch have no goroutine and drop the change.
func (h *memoryHandle) enqueue(c Change) {
	h.mu.Lock()
	listening := h.started && !h.closed
	h.mu.Unlock()

	if !listening {
		return
	}

	select {
	case h.queue <- c:
	case <-h.done:
	}
}

// deliver dispatches queued changes to the current watchers in order.
func (h *memoryHandle) deliver() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.queue:
			h.mu.Lock()
			fns := make([]func(Change), 0, len(h.watchers))
			for _, fn := range h.watchers {
				fns = append(fns, fn)
			}
			h.mu.Unlock()

			for _, fn := range fns {
				fn(c)
			}
		}
	}
}
