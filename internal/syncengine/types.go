package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// OpKind is the mutation kind carried by a queued operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is a queued remote-bound mutation. It leaves the queue on
// remote acknowledgement, on conflict (becoming a Conflict record), or
// when Attempts reaches MaxAttempts (becoming a hard failure).
type Operation struct {
	ID          string          `json:"id"`
	Kind        OpKind          `json:"kind"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"payload"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
}

// Strategy selects how a conflict resolves.
type Strategy string

const (
	ClientWins    Strategy = "client_wins"
	ServerWins    Strategy = "server_wins"
	LastWriteWins Strategy = "last_write_wins"
	Merge         Strategy = "merge"
	Manual        Strategy = "manual"
)

// Conflict records a version clash reported by the remote. It is
// removed once resolved.
type Conflict struct {
	ID              string          `json:"id"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	LocalPayload    json.RawMessage `json:"local_payload"`
	RemotePayload   json.RawMessage `json:"remote_payload"`
	LocalTimestamp  time.Time       `json:"local_timestamp"`
	RemoteTimestamp time.Time       `json:"remote_timestamp"`
	Strategy        Strategy        `json:"strategy"`
}

// State is the manager's lifecycle state. Error and Conflict both
// return to Idle once resolved; there is no terminal state.
type State string

const (
	Idle       State = "idle"
	Syncing    State = "syncing"
	ErrState   State = "error"
	InConflict State = "conflict"
)

// Failure is an operation dropped after exhausting its retry budget.
type Failure struct {
	Operation Operation `json:"operation"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// StatusEvent is the single channel through which observers learn
// about state transitions, pending counts, and hard failures.
type StatusEvent struct {
	State     State
	Pending   int
	Conflicts int
	// Failure is set when this event reports a dropped operation.
	Failure *Failure
}

// ResultStatus classifies the remote's acknowledgement of one operation.
type ResultStatus int

const (
	ResultOK ResultStatus = iota
	ResultFailed
	ResultConflict
)

// Result is the per-operation outcome of a batch dispatch.
type Result struct {
	OperationID string
	Status      ResultStatus
	// Err describes a retryable transport failure (ResultFailed).
	Err error
	// RemotePayload/RemoteTimestamp carry the remote's current value
	// on a structured conflict response (ResultConflict).
	RemotePayload   json.RawMessage
	RemoteTimestamp time.Time
}

// Transport dispatches one batch of operations to the remote. The
// error return means the whole batch failed transport (every operation
// counts one attempt); otherwise Results reports per-operation outcomes.
type Transport interface {
	Send(ctx context.Context, ops []Operation) ([]Result, error)
}

// Sentinel errors.
var (
	ErrManualRequired  = errors.New("manual conflict requires a resolved payload")
	ErrConflictUnknown = errors.New("unknown conflict id")
	ErrDestroyed       = errors.New("sync manager destroyed")
)
