package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/watcher"
)

// Bucket names.
var (
	bucketKV      = []byte("kv")      // key -> value
	bucketChanges = []byte("changes") // seq -> journalEntry
)

// DefaultQuotaBytes mirrors the per-origin limit of browser local storage.
const DefaultQuotaBytes = 5 << 20

// errNoChange aborts a write transaction that would not change anything.
var errNoChange = errors.New("no change")

// BoltOptions configures a BoltSubstrate.
type BoltOptions struct {
	// Path is the bolt file shared by every process of the origin.
	Path string

	// Timeout bounds the wait for the file lock held by another process.
	// Default: 1s.
	Timeout time.Duration

	// QuotaBytes limits the total size of keys and values.
	// Default: DefaultQuotaBytes. Negative disables the limit.
	QuotaBytes int

	// JournalSize is the number of changes kept for peers to replay.
	// Default: 256.
	JournalSize int

	// Debounce coalesces file events from a single commit.
	// Default: 25ms.
	Debounce time.Duration

	// PollInterval re-reads the journal even without file events, for
	// filesystems that do not deliver inotify events. Default: 500ms.
	PollInterval time.Duration
}

// journalEntry is one mutation recorded for peers.
type journalEntry struct {
	Seq    uint64 `json:"seq"`
	Key    string `json:"key"`
	Old    string `json:"old,omitempty"`
	New    string `json:"new,omitempty"`
	Origin string `json:"origin"`
}

// BoltSubstrate is a Substrate stored in a bbolt file.
//
// bbolt holds an exclusive file lock while a database is open, so each
// operation opens the file, runs one transaction and closes it again; that
// is what lets several processes share the file. Every mutation is also
// appended to a journal bucket tagged with the writing handle, and Watch
// replays journal entries written by other handles whenever the file
// changes.
type BoltSubstrate struct {
	path   string
	handle string
	opts   BoltOptions
	logger logger.Logger

	mu     sync.Mutex // serializes file access from this handle
	closed bool

	watchMu  sync.Mutex
	nextW    uint64
	watchers map[uint64]func(Change)
	lastSeq  uint64
	fsw      watcher.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// OpenBolt opens (creating if needed) a bolt-backed substrate.
//
// Parameters:
//   - opts: Substrate options
//   - log: Logger instance
//
// Returns:
//   - Configured BoltSubstrate
//   - Error if the file cannot be created or opened
func OpenBolt(opts BoltOptions, log logger.Logger) (*BoltSubstrate, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: bolt path is empty", ErrUnavailable)
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	if opts.QuotaBytes == 0 {
		opts.QuotaBytes = DefaultQuotaBytes
	}
	if opts.JournalSize <= 0 {
		opts.JournalSize = 256
	}
	if opts.Debounce == 0 {
		opts.Debounce = 25 * time.Millisecond
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 500 * time.Millisecond
	}

	path := expandHome(opts.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &BoltSubstrate{
		path:     path,
		handle:   "bolt-" + uuid.NewString()[:8],
		opts:     opts,
		logger:   log,
		watchers: make(map[uint64]func(Change)),
	}

	if err := s.update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketKV); err != nil {
			return fmt.Errorf("failed to create kv bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketChanges); err != nil {
			return fmt.Errorf("failed to create changes bucket: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	log.Info("bolt substrate opened", "path", path, "handle", s.handle)
	return s, nil
}

// Path returns the bolt file path.
func (s *BoltSubstrate) Path() string {
	return s.path
}

// Handle returns the identifier recorded on this handle's journal entries.
func (s *BoltSubstrate) Handle() string {
	return s.handle
}

// Get implements Substrate.Get.
func (s *BoltSubstrate) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketKV).Get([]byte(key))
		if data != nil {
			value = string(data)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Set implements Substrate.Set.
func (s *BoltSubstrate) Set(key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}

	err := s.update(func(tx *bolt.Tx) error {
		kv := tx.Bucket(bucketKV)

		oldData := kv.Get([]byte(key))
		old := string(oldData)
		if oldData != nil && old == value {
			return errNoChange
		}

		if s.opts.QuotaBytes > 0 {
			next := usedBytes(kv) + entrySize(key, value)
			if oldData != nil {
				next -= entrySize(key, old)
			}
			if next > s.opts.QuotaBytes {
				return fmt.Errorf("%w: %d bytes over %d limit", ErrQuotaExceeded, next, s.opts.QuotaBytes)
			}
		}

		if err := kv.Put([]byte(key), []byte(value)); err != nil {
			return fmt.Errorf("failed to store value: %w", err)
		}

		return s.appendJournal(tx, journalEntry{Key: key, Old: old, New: value, Origin: s.handle})
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// Remove implements Substrate.Remove.
func (s *BoltSubstrate) Remove(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	err := s.update(func(tx *bolt.Tx) error {
		kv := tx.Bucket(bucketKV)

		oldData := kv.Get([]byte(key))
		if oldData == nil {
			return errNoChange
		}
		old := string(oldData)

		if err := kv.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete value: %w", err)
		}

		return s.appendJournal(tx, journalEntry{Key: key, Old: old, Origin: s.handle})
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// Keys implements Substrate.Keys.
func (s *BoltSubstrate) Keys() ([]string, error) {
	var keys []string

	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Watch implements Substrate.Watch.
func (s *BoltSubstrate) Watch(fn func(Change)) (func(), error) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.isClosed() {
		return nil, ErrClosed
	}

	if s.cancel == nil {
		if err := s.startWatching(); err != nil {
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
func (s *BoltSubstrate) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.watchMu.Lock()
	cancel := s.cancel
	fsw := s.fsw
	s.watchers = make(map[uint64]func(Change))
	s.watchMu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}

	var closeErr error
	if fsw != nil {
		if err := fsw.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close watcher: %w", err)
		}
	}

	s.logger.Info("bolt substrate closed", "path", s.path, "handle", s.handle)
	return closeErr
}

// startWatching begins following the journal. Caller holds watchMu.
func (s *BoltSubstrate) startWatching() error {
	seq, err := s.currentSeq()
	if err != nil {
		return err
	}
	s.lastSeq = seq

	fsw, err := watcher.New(watcher.Config{
		Path:     s.path,
		Debounce: s.opts.Debounce,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := fsw.Start(ctx); err != nil {
		cancel()
		_ = fsw.Close() //nolint:errcheck // best effort cleanup
		return fmt.Errorf("failed to watch storage directory: %w", err)
	}

	s.fsw = fsw
	s.cancel = cancel

	s.wg.Add(1)
	go s.follow(ctx, fsw)

	s.logger.Debug("following bolt journal", "path", s.path, "from_seq", seq)
	return nil
}

// follow replays the journal on file events and on every poll tick.
func (s *BoltSubstrate) follow(ctx context.Context, fsw watcher.Watcher) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-fsw.Changes():
			if !ok {
				return
			}
			s.replay()

		case err, ok := <-fsw.Errors():
			if !ok {
				return
			}
			s.logger.Warn("storage file watcher error", "error", err)

		case <-ticker.C:
			s.replay()
		}
	}
}

// replay delivers journal entries written by other handles since lastSeq.
func (s *BoltSubstrate) replay() {
	s.watchMu.Lock()
	from := s.lastSeq
	s.watchMu.Unlock()

	var entries []journalEntry
	err := s.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChanges).Cursor()
		for k, v := c.Seek(itob(from + 1)); k != nil; k, v = c.Next() {
			var e journalEntry
			if err := json.Unmarshal(v, &e); err != nil {
				s.logger.Warn("skipping malformed journal entry", "seq", btoi(k), "error", err)
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrClosed) {
			s.logger.Warn("failed to read storage journal", "error", err)
		}
		return
	}
	if len(entries) == 0 {
		return
	}

	if entries[0].Seq > from+1 && from > 0 {
		s.logger.Warn("storage journal overrun, some peer changes were missed",
			"last_seen", from,
			"first_available", entries[0].Seq)
	}

	s.watchMu.Lock()
	s.lastSeq = entries[len(entries)-1].Seq
	fns := make([]func(Change), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, e := range entries {
		if e.Origin == s.handle {
			continue
		}
		change := Change{Key: e.Key, OldValue: e.Old, NewValue: e.New, Origin: e.Origin}
		for _, fn := range fns {
			fn(change)
		}
	}
}

// currentSeq returns the last journal sequence number.
func (s *BoltSubstrate) currentSeq() (uint64, error) {
	var seq uint64
	err := s.view(func(tx *bolt.Tx) error {
		seq = tx.Bucket(bucketChanges).Sequence()
		return nil
	})
	return seq, err
}

// appendJournal records a mutation and trims old entries.
func (s *BoltSubstrate) appendJournal(tx *bolt.Tx, e journalEntry) error {
	b := tx.Bucket(bucketChanges)

	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to allocate journal sequence: %w", err)
	}
	e.Seq = seq

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if err := b.Put(itob(seq), data); err != nil {
		return fmt.Errorf("failed to store journal entry: %w", err)
	}

	keep := uint64(s.opts.JournalSize)
	if seq <= keep {
		return nil
	}
	cutoff := seq - keep

	// Collect first: deleting under a live cursor skips entries.
	var stale [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil && btoi(k) <= cutoff; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return fmt.Errorf("failed to trim journal: %w", err)
		}
	}
	return nil
}

// view runs fn in a read transaction.
func (s *BoltSubstrate) view(fn func(*bolt.Tx) error) error {
	return s.withDB(func(db *bolt.DB) error {
		return db.View(fn)
	})
}

// update runs fn in a write transaction.
func (s *BoltSubstrate) update(fn func(*bolt.Tx) error) error {
	return s.withDB(func(db *bolt.DB) error {
		return db.Update(fn)
	})
}

// withDB opens the file for the duration of fn.
func (s *BoltSubstrate) withDB(fn func(*bolt.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: s.opts.Timeout})
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", ErrUnavailable, s.path, err)
	}

	fnErr := fn(db)

	if closeErr := db.Close(); closeErr != nil {
		s.logger.Error("failed to close bolt file", "path", s.path, "error", closeErr)
		if fnErr == nil {
			fnErr = fmt.Errorf("failed to close database: %w", closeErr)
		}
	}
	return fnErr
}

// isClosed reports whether Close has been called.
func (s *BoltSubstrate) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// usedBytes sums the size of every stored pair.
func usedBytes(b *bolt.Bucket) int {
	total := 0
	_ = b.ForEach(func(k, v []byte) error { //nolint:errcheck // callback never fails
		total += len(k) + len(v)
		return nil
	})
	return total
}

// itob encodes a sequence number as a sortable key.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// btoi decodes a sequence key.
func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
