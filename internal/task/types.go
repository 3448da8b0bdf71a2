package task

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid task status transition")

// ID is a generated surrogate key; script paths may repeat.
type ID string

func NewID() ID { return ID(uuid.NewString()) }

// Short returns the 8-char prefix used in tables and prompts.
func (id ID) Short() string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

type Status int

const (
	Waiting Status = iota
	Running
	Done
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Running:
		return "RUNNING"
	case Done:
		return "DONE"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Final reports whether no further transition is possible.
func (s Status) Final() bool { return s == Done || s == Cancelled }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseStatus is the inverse of Status.String (case-insensitive).
func ParseStatus(v string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "WAITING":
		return Waiting, true
	case "RUNNING":
		return Running, true
	case "DONE":
		return Done, true
	case "CANCELLED", "CANCELED":
		return Cancelled, true
	}
	return 0, false
}

type OutcomeKind int

const (
	Success OutcomeKind = iota + 1
	Failure
	Aborted
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Aborted:
		return "aborted"
	default:
		return ""
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Outcome is the result of one execution. It is recorded on the task but
// does not change the observable Status values: Success and Failure both
// end in DONE.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	ExitCode int         `json:"exit_code"`
	Reason   string      `json:"reason,omitempty"`
	Output   string      `json:"output,omitempty"`
	Started  time.Time   `json:"started"`
	Finished time.Time   `json:"finished"`
}

func (o Outcome) Duration() time.Duration {
	if o.Started.IsZero() || o.Finished.Before(o.Started) {
		return 0
	}
	return o.Finished.Sub(o.Started)
}

// CancelResult describes what Cancel did.
type CancelResult int

const (
	// CancelNoOp: task already final, or abort already requested.
	CancelNoOp CancelResult = iota
	// CancelDisarmed: a WAITING task was disarmed and is now CANCELLED.
	CancelDisarmed
	// CancelAbortRequested: a RUNNING task was signalled; it becomes
	// CANCELLED when the executor acknowledges.
	CancelAbortRequested
	// CancelAbortUnsupported: the task is RUNNING and its executor cannot abort.
	CancelAbortUnsupported
)

func (r CancelResult) String() string {
	switch r {
	case CancelNoOp:
		return "no-op"
	case CancelDisarmed:
		return "cancelled"
	case CancelAbortRequested:
		return "abort requested"
	case CancelAbortUnsupported:
		return "abort unsupported"
	default:
		return "unknown"
	}
}
