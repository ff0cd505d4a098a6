package session

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/0xmhha/session-keeper/pkg/clock"
)

// Merge applies p over base and returns the result. base is not modified.
//
// Groups are applied in a fixed order and each one replaces the stored
// group wholesale; nothing is merged below group level:
//
//  1. Identity: each non-empty field replaces the stored field.
//  2. State: replaces the tag and stamps StateChangedAt with now.
//  3. Sensors: replaces the connected set and recomputes SensorCount.
//  4. GameState: replaces the payload when non-nil.
//
// LastUpdated is always stamped with now.
func Merge(base *Record, p Patch, now time.Time) *Record {
	out := base.Clone()
	if out == nil {
		out = &Record{}
	}

	if id := p.Identity; id != nil {
		if id.SessionCode != "" {
			out.SessionCode = id.SessionCode
		}
		if id.SessionID != "" {
			out.SessionID = id.SessionID
		}
		if id.GameType != "" {
			out.GameType = id.GameType
		}
		if id.RoomID != "" {
			out.RoomID = id.RoomID
		}
	}

	if p.State != nil {
		out.State = p.State.State
		out.StateChangedAt = clock.Millis(now)
	}

	if p.Sensors != nil {
		out.SensorConnections = normalizeSensors(p.Sensors.Connected)
		out.SensorCount = len(out.SensorConnections)
	}

	if p.GameState != nil {
		out.GameState = append(json.RawMessage(nil), p.GameState...)
	}

	out.LastUpdated = clock.Millis(now)
	return out
}

// ConnectedSensors returns the ids whose value is true, sorted.
func ConnectedSensors(sensors map[string]bool) []string {
	ids := make([]string, 0, len(sensors))
	for id, connected := range sensors {
		if connected {
			ids = append(ids, id)
		}
	}
	return normalizeSensors(ids)
}

// normalizeSensors sorts ids and drops empties and duplicates.
func normalizeSensors(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
