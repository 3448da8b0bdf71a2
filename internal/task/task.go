package task

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Task is one unit of scheduled work.
//
// scheduledAt is immutable; re-scheduling means remove + add.
type Task struct {
	id          ID
	scriptRef   string
	scheduledAt time.Time
	createdAt   time.Time

	status     Status
	startedAt  time.Time
	finishedAt time.Time
	outcome    *Outcome

	// cancellation handle
	disarm         func()
	abort          context.CancelFunc
	abortRequested bool
	removeOnAck    bool
}

// New creates a WAITING task. The caller validates scheduledAt.
func New(scriptRef string, scheduledAt, now time.Time) *Task {
	return &Task{
		id:          NewID(),
		scriptRef:   strings.TrimSpace(scriptRef),
		scheduledAt: scheduledAt,
		createdAt:   now,
		status:      Waiting,
	}
}

func (t *Task) ID() ID                 { return t.id }
func (t *Task) ScriptRef() string      { return t.scriptRef }
func (t *Task) ScheduledAt() time.Time { return t.scheduledAt }
func (t *Task) Status() Status         { return t.status }
func (t *Task) AbortRequested() bool   { return t.abortRequested }

// RemoveOnAck reports whether the task must leave the registry once its
// abort is acknowledged.
func (t *Task) RemoveOnAck() bool { return t.removeOnAck }

// Arm installs the timer disarm hook.
func (t *Task) Arm(disarm func()) { t.disarm = disarm }

// Start moves WAITING -> RUNNING and installs the abort half of the
// cancellation handle.
func (t *Task) Start(now time.Time, abort context.CancelFunc) error {
	if t.status != Waiting {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status, Running)
	}
	t.status = Running
	t.startedAt = now
	t.disarm = nil
	t.abort = abort
	return nil
}

// Complete records the executor outcome: RUNNING -> DONE, or
// RUNNING -> CANCELLED when an abort was requested and acknowledged.
func (t *Task) Complete(o Outcome) (Status, error) {
	if t.status != Running {
		return t.status, fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, t.status)
	}
	if t.abortRequested && o.Kind == Aborted {
		t.status = Cancelled
	} else {
		t.status = Done
	}
	t.finishedAt = o.Finished
	if t.finishedAt.IsZero() {
		t.finishedAt = time.Now()
	}
	oc := o
	t.outcome = &oc
	if t.abort != nil {
		t.abort()
		t.abort = nil
	}
	return t.status, nil
}

// Cancel is idempotent.
//
//   - WAITING: disarms the timer, status -> CANCELLED.
//   - RUNNING: signals abort if canAbort; the status changes on Complete.
//   - DONE/CANCELLED or abort already pending: no-op.
func (t *Task) Cancel(now time.Time, canAbort bool) CancelResult {
	switch t.status {
	case Waiting:
		if t.disarm != nil {
			t.disarm()
			t.disarm = nil
		}
		t.status = Cancelled
		t.finishedAt = now
		return CancelDisarmed
	case Running:
		if t.abortRequested {
			return CancelNoOp
		}
		if !canAbort || t.abort == nil {
			return CancelAbortUnsupported
		}
		t.abortRequested = true
		t.abort()
		return CancelAbortRequested
	default:
		return CancelNoOp
	}
}

// RequestRemoval marks a RUNNING task for removal after its abort is
// acknowledged. It cancels first, like Cancel.
func (t *Task) RequestRemoval(now time.Time, canAbort bool) CancelResult {
	r := t.Cancel(now, canAbort)
	if t.status == Running && t.abortRequested {
		t.removeOnAck = true
		if r == CancelNoOp {
			r = CancelAbortRequested
		}
	}
	return r
}

// Snapshot is an immutable copy safe to hand out of the registry.
type Snapshot struct {
	ID          ID        `json:"id"`
	ScriptRef   string    `json:"script_ref"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	AbortReq    bool      `json:"abort_requested,omitempty"`
	LastOutcome *Outcome  `json:"last_outcome,omitempty"`
}

func (t *Task) Snapshot() Snapshot {
	s := Snapshot{
		ID:          t.id,
		ScriptRef:   t.scriptRef,
		ScheduledAt: t.scheduledAt,
		CreatedAt:   t.createdAt,
		Status:      t.status,
		StartedAt:   t.startedAt,
		FinishedAt:  t.finishedAt,
		AbortReq:    t.abortRequested,
	}
	if t.outcome != nil {
		oc := *t.outcome
		s.LastOutcome = &oc
	}
	return s
}
