// Package models defines the FocusFlow entity types the engine persists
// and syncs. Operation payloads are typed per entity rather than opaque
// blobs, so merge and conflict logic can switch exhaustively.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity type tags carried on sync operations.
const (
	EntityTask     = "task"
	EntitySession  = "session"
	EntitySettings = "settings"
)

// KnownEntityType reports whether t is an entity type the engine syncs.
func KnownEntityType(t string) bool {
	switch t {
	case EntityTask, EntitySession, EntitySettings:
		return true
	}
	return false
}

// Task is a unit of work the user focuses on.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Notes         string     `json:"notes,omitempty"`
	Completed     bool       `json:"completed"`
	PomodorosDone int        `json:"pomodoros_done"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// SessionKind distinguishes focus periods from breaks.
type SessionKind string

const (
	SessionFocus      SessionKind = "focus"
	SessionShortBreak SessionKind = "short_break"
	SessionLongBreak  SessionKind = "long_break"
)

// FocusSession is one completed timer run.
type FocusSession struct {
	ID          string      `json:"id"`
	TaskID      string      `json:"task_id,omitempty"`
	Kind        SessionKind `json:"kind"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     time.Time   `json:"ended_at"`
	DurationSec int         `json:"duration_sec"`
	Interrupted bool        `json:"interrupted"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Settings holds user preferences. A single logical row per client.
type Settings struct {
	FocusMinutes      int       `json:"focus_minutes"`
	ShortBreakMinutes int       `json:"short_break_minutes"`
	LongBreakMinutes  int       `json:"long_break_minutes"`
	SessionsPerCycle  int       `json:"sessions_per_cycle"`
	SoundEnabled      bool      `json:"sound_enabled"`
	Theme             string    `json:"theme"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Stats are derived counters kept in the durable state so the UI can
// render them without replaying sessions.
type Stats struct {
	TotalFocusSeconds int64 `json:"total_focus_seconds"`
	TotalSessions     int   `json:"total_sessions"`
	CurrentStreakDays int   `json:"current_streak_days"`
	LongestStreakDays int   `json:"longest_streak_days"`
}

// AppState is the durable root snapshot of the application.
type AppState struct {
	Tasks    []Task         `json:"tasks"`
	Sessions []FocusSession `json:"sessions"`
	Settings Settings       `json:"settings"`
	Stats    Stats          `json:"stats"`
}

// DecodePayload unmarshals an operation payload into its typed form
// based on the entity type tag.
func DecodePayload(entityType string, payload json.RawMessage) (any, error) {
	switch entityType {
	case EntityTask:
		var t Task
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, fmt.Errorf("decode task payload: %w", err)
		}
		return t, nil
	case EntitySession:
		var s FocusSession
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("decode session payload: %w", err)
		}
		return s, nil
	case EntitySettings:
		var s Settings
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("decode settings payload: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}
