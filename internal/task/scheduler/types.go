package scheduler

import (
	"errors"
	"time"

	"scriptsched/internal/runtime/supervisor"
)

var (
	ErrPastTime    = errors.New("scheduled time must be in the future")
	ErrNotFound    = errors.New("task not found")
	ErrEmptyScript = errors.New("script path required")
	ErrStopped     = errors.New("scheduler is stopping")
)

// Config controls the scheduler service.
type Config struct {
	Timezone    string // IANA TZ used to interpret wall-clock input, e.g. "Europe/Berlin"
	StopTimeout time.Duration
}

// RemoveResult is the outcome of RemoveTask.
type RemoveResult int

const (
	Removed RemoveResult = iota + 1
	CannotRemoveRunning
	NotFound
	// AbortRequested: the running task was signalled and leaves the
	// registry once the executor acknowledges.
	AbortRequested
	AbortUnsupported
)

func (r RemoveResult) String() string {
	switch r {
	case Removed:
		return "removed"
	case CannotRemoveRunning:
		return "cannot remove running"
	case NotFound:
		return "not found"
	case AbortRequested:
		return "abort requested"
	case AbortUnsupported:
		return "abort unsupported"
	default:
		return "unknown"
	}
}

// RemoveOptions tunes RemoveTaskOpt.
type RemoveOptions struct {
	// AbortRunning lets a RUNNING task be aborted and removed instead of
	// refusing with CannotRemoveRunning.
	AbortRunning bool
}

// Stats is a point-in-time summary for status lines.
type Stats struct {
	Running   bool
	Timezone  string
	Total     int
	Waiting   int
	Active    int
	Done      int
	Cancelled int
	Armed     int // entries in the deadline heap
	Routines  supervisor.Counters
}
