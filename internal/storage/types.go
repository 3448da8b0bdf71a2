package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, no dependencies
//   - "sqlite": SQLite database file (pure Go driver)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one lifecycle event of one task. Keep it flat and schema-stable.
type Record struct {
	At          time.Time `json:"at"`
	Event       string    `json:"event"`
	TaskID      string    `json:"task_id"`
	Script      string    `json:"script"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	Outcome     string    `json:"outcome,omitempty"`
	ExitCode    int       `json:"exit_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
}
