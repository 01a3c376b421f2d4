package models

import (
	"encoding/json"
	"fmt"

	"github.com/MMR-MINGriyue/focusflow/internal/persist"
)

// StateMigrations is the schema migration chain for AppState snapshots.
//
//	1.0 -> 1.1  sessions stored duration in minutes under duration_min
//	1.1 -> 2.0  stats block added, derived from completed focus sessions
func StateMigrations() []persist.MigrationRule {
	return []persist.MigrationRule{
		{FromVersion: "1.0", ToVersion: "1.1", Transform: migrateDurations},
		{FromVersion: "1.1", ToVersion: "2.0", Transform: migrateStats},
	}
}

func migrateDurations(payload json.RawMessage) (json.RawMessage, error) {
	var state map[string]json.RawMessage
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	var sessions []map[string]any
	if raw, ok := state["sessions"]; ok {
		if err := json.Unmarshal(raw, &sessions); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
	}
	for _, s := range sessions {
		if min, ok := s["duration_min"].(float64); ok {
			s["duration_sec"] = min * 60
			delete(s, "duration_min")
		}
	}

	raw, err := json.Marshal(sessions)
	if err != nil {
		return nil, err
	}
	state["sessions"] = raw
	return json.Marshal(state)
}

func migrateStats(payload json.RawMessage) (json.RawMessage, error) {
	var state map[string]json.RawMessage
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	var sessions []FocusSession
	if raw, ok := state["sessions"]; ok {
		if err := json.Unmarshal(raw, &sessions); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
	}

	var stats Stats
	for _, s := range sessions {
		if s.Kind != SessionFocus || s.Interrupted {
			continue
		}
		stats.TotalSessions++
		stats.TotalFocusSeconds += int64(s.DurationSec)
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	state["stats"] = raw
	return json.Marshal(state)
}
