// Package syncengine queues local mutations and reconciles them with a
// remote authority: batched dispatch in enqueue order, bounded retry,
// conflict detection and resolution, and a status subscription for UI
// observers. Queue and conflict records are persisted through a
// storage.Adapter under the sync/ namespace, so a restart resumes
// pending work and a corrupt queue cannot touch the state snapshot.
package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MMR-MINGriyue/focusflow/internal/netmon"
	"github.com/MMR-MINGriyue/focusflow/internal/storage"
	"github.com/google/uuid"
)

// Adapter keys for the sync engine's durable records.
const (
	DefaultQueueKey     = "sync/queue"
	DefaultConflictsKey = "sync/conflicts"
)

// maxRecordedFailures bounds the hard-failure history kept in memory.
const maxRecordedFailures = 50

// Options configures a Manager.
type Options struct {
	// BatchSize is the number of operations dispatched per sync round.
	BatchSize int
	// MaxAttempts is the per-operation retry ceiling before the
	// operation is dropped as a hard failure.
	MaxAttempts int
	// SyncInterval is the periodic sync period while online. Zero
	// disables the periodic timer.
	SyncInterval time.Duration
	// RetryInterval delays the automatic retry after a failed round.
	RetryInterval time.Duration
	// DefaultStrategy is stamped on new conflicts.
	DefaultStrategy Strategy
	// AutoResolve resolves every non-Manual conflict on creation.
	AutoResolve bool
	// SyncOnConnect triggers a sync on the offline-to-online edge.
	SyncOnConnect bool
	// QueueKey/ConflictsKey override the default adapter keys.
	QueueKey     string
	ConflictsKey string
}

func (o *Options) withDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 30 * time.Second
	}
	if o.DefaultStrategy == "" {
		o.DefaultStrategy = LastWriteWins
	}
	if o.QueueKey == "" {
		o.QueueKey = DefaultQueueKey
	}
	if o.ConflictsKey == "" {
		o.ConflictsKey = DefaultConflictsKey
	}
}

// Manager owns the sync operation queue and conflict records.
type Manager struct {
	adapter   storage.Adapter
	transport Transport
	monitor   *netmon.Monitor
	opts      Options

	mu        sync.Mutex
	state     State
	queue     []Operation
	conflicts []Conflict
	failures  []Failure
	destroyed bool

	nextSub int
	subs    map[int]func(StatusEvent)

	retryTimer *time.Timer
	unsubNet   func()
	tickStop   chan struct{}
	tickDone   chan struct{}
}

// New creates a Manager, restoring any persisted queue and conflicts.
// The periodic timer and connectivity subscription start immediately;
// call Destroy on teardown or the timers leak.
func New(adapter storage.Adapter, transport Transport, monitor *netmon.Monitor, opts Options) *Manager {
	opts.withDefaults()

	m := &Manager{
		adapter:   adapter,
		transport: transport,
		monitor:   monitor,
		opts:      opts,
		state:     Idle,
		subs:      make(map[int]func(StatusEvent)),
	}
	m.restore()

	if monitor != nil {
		m.unsubNet = monitor.Subscribe(func(online bool) {
			if online && m.opts.SyncOnConnect {
				slog.Debug("online edge, triggering sync")
				go m.Sync()
			}
		})
	}

	if opts.SyncInterval > 0 {
		m.tickStop = make(chan struct{})
		m.tickDone = make(chan struct{})
		go m.runPeriodic()
	}

	return m
}

func (m *Manager) runPeriodic() {
	defer close(m.tickDone)
	ticker := time.NewTicker(m.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.tickStop:
			return
		case <-ticker.C:
			if m.monitor == nil || m.monitor.Status() {
				m.Sync()
			}
		}
	}
}

// Enqueue appends a mutation to the queue, persists it, and triggers an
// asynchronous sync attempt when online. Never blocks on the network.
func (m *Manager) Enqueue(kind OpKind, entityType, entityID string, payload json.RawMessage) (Operation, error) {
	op := Operation{
		ID:          uuid.NewString(),
		Kind:        kind,
		EntityType:  entityType,
		EntityID:    entityID,
		Payload:     payload,
		EnqueuedAt:  time.Now().UTC(),
		MaxAttempts: m.opts.MaxAttempts,
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return Operation{}, ErrDestroyed
	}
	m.queue = append(m.queue, op)
	err := m.persistQueueLocked()
	m.notifyLocked(nil)
	online := m.monitor == nil || m.monitor.Status()
	m.mu.Unlock()

	if err != nil {
		return op, err
	}
	if online {
		go m.Sync()
	}
	return op, nil
}

// Sync drains the queue in batches. It is a no-op when offline, already
// syncing, or destroyed. Batches run strictly in enqueue order; each
// operation's outcome is success (removed), retryable failure
// (attempts incremented, dropped at the ceiling), or conflict (a
// Conflict record is created and the manager ends the round in the
// Conflict state).
func (m *Manager) Sync() {
	m.mu.Lock()
	if m.destroyed || m.state == Syncing {
		m.mu.Unlock()
		return
	}
	if m.monitor != nil && !m.monitor.Status() {
		m.mu.Unlock()
		return
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.state = Syncing
	pending := make([]Operation, len(m.queue))
	copy(pending, m.queue)
	m.notifyLocked(nil)
	m.mu.Unlock()

	anyFailed := false
	for start := 0; start < len(pending); start += m.opts.BatchSize {
		end := min(start+m.opts.BatchSize, len(pending))
		if m.dispatchBatch(pending[start:end]) {
			anyFailed = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	switch {
	case len(m.conflicts) > 0:
		m.state = InConflict
	case anyFailed:
		m.state = ErrState
		m.scheduleRetryLocked()
	default:
		m.state = Idle
	}
	// Ops enqueued while the round ran (auto-resolved winners, concurrent
	// Enqueue calls racing the Syncing guard) would otherwise wait for
	// the next timer; dispatch them now.
	again := m.state == Idle && len(m.queue) > 0 &&
		(m.monitor == nil || m.monitor.Status())
	m.notifyLocked(nil)
	if again {
		go m.Sync()
	}
}

// dispatchBatch sends one batch and applies the per-operation results.
// Reports whether any operation failed transport and stays queued.
func (m *Manager) dispatchBatch(batch []Operation) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	results, err := m.transport.Send(ctx, batch)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return false
	}

	anyFailed := false
	if err != nil {
		slog.Warn("batch transport failed", "ops", len(batch), "err", err)
		for _, op := range batch {
			if m.recordAttemptLocked(op.ID, err) {
				anyFailed = true
			}
		}
	} else {
		byID := make(map[string]Result, len(results))
		for _, r := range results {
			byID[r.OperationID] = r
		}
		for _, op := range batch {
			r, ok := byID[op.ID]
			if !ok {
				// No acknowledgement for this operation counts as a
				// transport failure.
				if m.recordAttemptLocked(op.ID, fmt.Errorf("no acknowledgement")) {
					anyFailed = true
				}
				continue
			}
			switch r.Status {
			case ResultOK:
				m.removeOpLocked(op.ID)
			case ResultConflict:
				m.removeOpLocked(op.ID)
				m.recordConflictLocked(op, r)
			case ResultFailed:
				if m.recordAttemptLocked(op.ID, r.Err) {
					anyFailed = true
				}
			}
		}
	}

	if err := m.persistQueueLocked(); err != nil {
		slog.Warn("persist queue", "err", err)
	}
	if err := m.persistConflictsLocked(); err != nil {
		slog.Warn("persist conflicts", "err", err)
	}
	return anyFailed
}

// recordAttemptLocked increments the operation's attempt count. At the
// ceiling the operation is dropped and reported as a hard failure;
// reports true while the operation remains queued for retry.
func (m *Manager) recordAttemptLocked(opID string, cause error) bool {
	for i := range m.queue {
		if m.queue[i].ID != opID {
			continue
		}
		m.queue[i].Attempts++
		if m.queue[i].Attempts >= m.queue[i].MaxAttempts {
			op := m.queue[i]
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			f := Failure{
				Operation: op,
				Reason:    fmt.Sprintf("dropped after %d attempts: %v", op.Attempts, cause),
				FailedAt:  time.Now().UTC(),
			}
			m.failures = append(m.failures, f)
			if len(m.failures) > maxRecordedFailures {
				m.failures = m.failures[len(m.failures)-maxRecordedFailures:]
			}
			slog.Warn("operation dropped", "op", op.ID, "entity", op.EntityID, "attempts", op.Attempts)
			m.notifyLocked(&f)
			return false
		}
		return true
	}
	return false
}

func (m *Manager) removeOpLocked(opID string) {
	for i := range m.queue {
		if m.queue[i].ID == opID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Manager) recordConflictLocked(op Operation, r Result) {
	c := Conflict{
		ID:              uuid.NewString(),
		EntityType:      op.EntityType,
		EntityID:        op.EntityID,
		LocalPayload:    op.Payload,
		RemotePayload:   r.RemotePayload,
		LocalTimestamp:  op.EnqueuedAt,
		RemoteTimestamp: r.RemoteTimestamp,
		Strategy:        m.opts.DefaultStrategy,
	}
	slog.Info("conflict detected", "entity", op.EntityID, "type", op.EntityType)

	if m.opts.AutoResolve && c.Strategy != Manual {
		if err := m.resolveLocked(c, c.Strategy, nil); err != nil {
			slog.Warn("auto-resolve failed, keeping conflict", "conflict", c.ID, "err", err)
			m.conflicts = append(m.conflicts, c)
		}
		return
	}
	m.conflicts = append(m.conflicts, c)
}

func (m *Manager) scheduleRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = time.AfterFunc(m.opts.RetryInterval, func() {
		m.mu.Lock()
		m.retryTimer = nil
		destroyed := m.destroyed
		m.mu.Unlock()
		if !destroyed {
			m.Sync()
		}
	})
	slog.Debug("retry scheduled", "after", m.opts.RetryInterval)
}

// PendingCount reports the number of queued operations.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// State reports the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GetConflicts returns the open conflict records.
func (m *Manager) GetConflicts() []Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Conflict, len(m.conflicts))
	copy(out, m.conflicts)
	return out
}

// LastFailures returns the recorded hard failures, oldest first.
func (m *Manager) LastFailures() []Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Failure, len(m.failures))
	copy(out, m.failures)
	return out
}

// Subscribe registers a status observer and returns its unsubscribe
// func. Events are delivered synchronously; none are dropped.
func (m *Manager) Subscribe(fn func(StatusEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// notifyLocked fans the current status out to subscribers. The caller
// holds m.mu; callbacks must not call back into the manager.
func (m *Manager) notifyLocked(failure *Failure) {
	ev := StatusEvent{
		State:     m.state,
		Pending:   len(m.queue),
		Conflicts: len(m.conflicts),
		Failure:   failure,
	}
	for _, fn := range m.subs {
		fn(ev)
	}
}

// Destroy cancels the retry and periodic timers and the connectivity
// subscription. Idempotent; the manager refuses further work after.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	unsub := m.unsubNet
	m.unsubNet = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if m.tickStop != nil {
		close(m.tickStop)
		<-m.tickDone
	}
}

// restore loads the persisted queue and conflicts. Corrupt records are
// discarded with a warning; they must never block startup.
func (m *Manager) restore() {
	if data, found, err := m.adapter.Get(m.opts.QueueKey); err != nil {
		slog.Warn("read sync queue", "err", err)
	} else if found {
		if err := json.Unmarshal(data, &m.queue); err != nil {
			slog.Warn("sync queue corrupt, starting empty", "err", err)
			m.queue = nil
		}
	}
	if data, found, err := m.adapter.Get(m.opts.ConflictsKey); err != nil {
		slog.Warn("read conflicts", "err", err)
	} else if found {
		if err := json.Unmarshal(data, &m.conflicts); err != nil {
			slog.Warn("conflict records corrupt, starting empty", "err", err)
			m.conflicts = nil
		}
	}
	if len(m.conflicts) > 0 {
		m.state = InConflict
	}
}

func (m *Manager) persistQueueLocked() error {
	data, err := json.Marshal(m.queue)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	if err := m.adapter.Set(m.opts.QueueKey, data); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

func (m *Manager) persistConflictsLocked() error {
	data, err := json.Marshal(m.conflicts)
	if err != nil {
		return fmt.Errorf("marshal conflicts: %w", err)
	}
	if err := m.adapter.Set(m.opts.ConflictsKey, data); err != nil {
		return fmt.Errorf("persist conflicts: %w", err)
	}
	return nil
}
