package syncengine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ResolveConflict applies the record's strategy (or the override) and
// re-dispatches the winning payload. Manual resolution requires the
// caller-supplied payload. The record is removed on success; when no
// conflicts remain the manager leaves the Conflict state.
func (m *Manager) ResolveConflict(id string, override *Strategy, manual json.RawMessage) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}

	idx := -1
	for i := range m.conflicts {
		if m.conflicts[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConflictUnknown, id)
	}

	c := m.conflicts[idx]
	strategy := c.Strategy
	if override != nil {
		strategy = *override
	}

	m.conflicts = append(m.conflicts[:idx], m.conflicts[idx+1:]...)
	if err := m.resolveLocked(c, strategy, manual); err != nil {
		// Resolution failed; put the record back.
		m.conflicts = append(m.conflicts, c)
		m.mu.Unlock()
		return err
	}

	if err := m.persistConflictsLocked(); err != nil {
		slog.Warn("persist conflicts", "err", err)
	}
	if len(m.conflicts) == 0 && m.state == InConflict {
		m.state = Idle
	}
	m.notifyLocked(nil)
	online := m.monitor == nil || m.monitor.Status()
	m.mu.Unlock()

	if online {
		go m.Sync()
	}
	return nil
}

// resolveLocked computes the winning payload and queues it for
// dispatch. The caller holds m.mu and has already detached the record.
func (m *Manager) resolveLocked(c Conflict, strategy Strategy, manual json.RawMessage) error {
	winner, err := resolveWinner(c, strategy, manual)
	if err != nil {
		return err
	}

	m.queue = append(m.queue, Operation{
		ID:          c.ID + "-resolved",
		Kind:        OpUpdate,
		EntityType:  c.EntityType,
		EntityID:    c.EntityID,
		Payload:     winner,
		EnqueuedAt:  time.Now().UTC(),
		MaxAttempts: m.opts.MaxAttempts,
	})
	if err := m.persistQueueLocked(); err != nil {
		slog.Warn("persist queue", "err", err)
	}
	slog.Info("conflict resolved", "conflict", c.ID, "strategy", strategy)
	return nil
}

// resolveWinner is the deterministic core of conflict resolution: the
// same record and strategy always yield the same payload.
func resolveWinner(c Conflict, strategy Strategy, manual json.RawMessage) (json.RawMessage, error) {
	switch strategy {
	case ClientWins:
		return c.LocalPayload, nil
	case ServerWins:
		return c.RemotePayload, nil
	case LastWriteWins:
		// Local wins ties.
		if c.RemoteTimestamp.After(c.LocalTimestamp) {
			return c.RemotePayload, nil
		}
		return c.LocalPayload, nil
	case Merge:
		return shallowMerge(c)
	case Manual:
		if len(manual) == 0 {
			return nil, ErrManualRequired
		}
		return manual, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

// shallowMerge merges the two payloads field by field, biased toward
// the side with the newer timestamp; on equal timestamps the local
// side wins. Non-object payloads fall back to the newer side wholesale.
func shallowMerge(c Conflict) (json.RawMessage, error) {
	newer, older := c.LocalPayload, c.RemotePayload
	if c.RemoteTimestamp.After(c.LocalTimestamp) {
		newer, older = c.RemotePayload, c.LocalPayload
	}

	var base, overlay map[string]any
	if err := json.Unmarshal(older, &base); err != nil {
		return newer, nil
	}
	if err := json.Unmarshal(newer, &overlay); err != nil {
		return newer, nil
	}

	for k, v := range overlay {
		base[k] = v
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal merged payload: %w", err)
	}
	return merged, nil
}
