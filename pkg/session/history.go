package session

import (
	"github.com/0xmhha/session-keeper/pkg/protocol"
)

// AddToHistory implements Store.AddToHistory.
func (s *store) AddToHistory(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendHistory(entry, false)
}

// GetSessionHistory implements Store.GetSessionHistory.
func (s *store) GetSessionHistory() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readHistory()
}

// ClearHistory implements Store.ClearHistory.
func (s *store) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adapter.Remove(protocol.KeySessionHistory)
}

// readHistory returns the stored ring, empty on any failure.
func (s *store) readHistory() []HistoryEntry {
	var entries []HistoryEntry
	if !s.adapter.GetJSON(protocol.KeySessionHistory, &entries) || entries == nil {
		return []HistoryEntry{}
	}
	return entries
}

// appendHistory appends entry and trims the ring to HistoryLimit.
// With collapse set, an entry for the session already open at the tail is
// not added again. Caller must hold s.mu.
func (s *store) appendHistory(entry HistoryEntry, collapse bool) {
	entries := s.readHistory()

	if collapse && len(entries) > 0 {
		last := entries[len(entries)-1]
		if last.SessionCode == entry.SessionCode && last.EndedAt == 0 {
			return
		}
	}

	entries = append(entries, entry)
	if over := len(entries) - s.config.HistoryLimit; over > 0 {
		entries = entries[over:]
	}

	if err := s.adapter.SetJSON(protocol.KeySessionHistory, entries); err != nil {
		s.logger.Warn("failed to write session history", "error", err)
	}
}

// markEnded stamps EndedAt on the newest open entry for code.
// Caller must hold s.mu.
func (s *store) markEnded(code string, endedAt int64) {
	entries := s.readHistory()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].SessionCode != code {
			continue
		}
		if entries[i].EndedAt != 0 {
			return
		}
		entries[i].EndedAt = endedAt
		if err := s.adapter.SetJSON(protocol.KeySessionHistory, entries); err != nil {
			s.logger.Warn("failed to write session history", "error", err)
		}
		return
	}
}

// SavePreferences implements Store.SavePreferences.
func (s *store) SavePreferences(prefs Preferences) bool {
	if prefs == nil {
		prefs = Preferences{}
	}
	if err := s.adapter.SetJSON(protocol.KeyUserPreferences, prefs); err != nil {
		s.logger.Warn("failed to save preferences", "error", err)
		return false
	}
	return true
}

// LoadPreferences implements Store.LoadPreferences.
func (s *store) LoadPreferences() Preferences {
	var prefs Preferences
	if !s.adapter.GetJSON(protocol.KeyUserPreferences, &prefs) || prefs == nil {
		return Preferences{}
	}
	return prefs
}
