package session

import (
	"encoding/json"
	"time"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/scheduler"
)

// tempCleanupGrace pushes the scheduled cleanup past the expiry instant,
// since expiry requires an age strictly greater than MaxTempAge.
const tempCleanupGrace = time.Second

// SaveTempData implements Store.SaveTempData.
func (s *store) SaveTempData(key string, data interface{}) bool {
	if key == "" {
		s.logger.Warn("rejecting temp data without key")
		return false
	}

	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("failed to encode temp data", "key", key, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readTemp()
	entries[key] = TempEntry{
		Data:    raw,
		SavedAt: clock.Millis(s.clock.Now()),
		TabID:   s.identity.ID(),
	}

	if err := s.adapter.SetJSON(protocol.KeyTempData, entries); err != nil {
		s.logger.Warn("failed to save temp data", "key", key, "error", err)
		return false
	}

	s.scheduleTempCleanup(key)
	return true
}

// LoadTempData implements Store.LoadTempData.
func (s *store) LoadTempData(key string, dst interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readTemp()
	entry, ok := entries[key]
	if !ok {
		return false
	}

	if s.tempExpired(entry) {
		delete(entries, key)
		s.writeTemp(entries)
		s.logger.Debug("temp data expired", "key", key)
		return false
	}

	if dst == nil {
		return true
	}
	if !json.Valid(entry.Data) {
		s.logger.Warn("purging corrupt temp data", "key", key)
		delete(entries, key)
		s.writeTemp(entries)
		return false
	}
	if err := json.Unmarshal(entry.Data, dst); err != nil {
		s.logger.Debug("temp data does not fit destination", "key", key, "error", err)
		return false
	}
	return true
}

// ClearTempData implements Store.ClearTempData.
func (s *store) ClearTempData(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		for k, task := range s.tempTasks {
			task.Cancel()
			delete(s.tempTasks, k)
		}
		s.adapter.Remove(protocol.KeyTempData)
		return
	}

	s.cancelTempCleanup(key)

	entries := s.readTemp()
	if _, ok := entries[key]; !ok {
		return
	}
	delete(entries, key)
	s.writeTemp(entries)
}

// CleanupTempData implements Store.CleanupTempData.
func (s *store) CleanupTempData() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepTemp()
}

// sweepTemp removes expired entries. Caller must hold s.mu.
func (s *store) sweepTemp() int {
	entries := s.readTemp()

	removed := 0
	for key, entry := range entries {
		if s.tempExpired(entry) {
			delete(entries, key)
			removed++
		}
	}

	if removed > 0 {
		s.writeTemp(entries)
		s.logger.Debug("temp data swept", "removed", removed)
	}
	return removed
}

func (s *store) tempExpired(entry TempEntry) bool {
	return s.clock.Now().Sub(clock.FromMillis(entry.SavedAt)) > s.config.MaxTempAge
}

func (s *store) readTemp() map[string]TempEntry {
	var entries map[string]TempEntry
	if !s.adapter.GetJSON(protocol.KeyTempData, &entries) || entries == nil {
		return make(map[string]TempEntry)
	}
	return entries
}

// writeTemp rewrites the whole map, removing the key once it is empty.
func (s *store) writeTemp(entries map[string]TempEntry) {
	if len(entries) == 0 {
		s.adapter.Remove(protocol.KeyTempData)
		return
	}
	if err := s.adapter.SetJSON(protocol.KeyTempData, entries); err != nil {
		s.logger.Warn("failed to write temp data", "error", err)
	}
}

// scheduleTempCleanup replaces any pending cleanup for key.
// Caller must hold s.mu.
func (s *store) scheduleTempCleanup(key string) {
	if s.sched == nil {
		return
	}

	s.cancelTempCleanup(key)

	// The callback blocks on s.mu until task is assigned below.
	var task scheduler.Task
	task, err := s.sched.After("temp-cleanup:"+key, s.config.MaxTempAge+tempCleanupGrace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.tempTasks[key] == task {
			delete(s.tempTasks, key)
		}
		s.sweepTemp()
	})
	if err != nil {
		s.logger.Debug("temp cleanup not scheduled", "key", key, "error", err)
		return
	}
	s.tempTasks[key] = task
}

func (s *store) cancelTempCleanup(key string) {
	if task, ok := s.tempTasks[key]; ok {
		task.Cancel()
		delete(s.tempTasks, key)
	}
}
