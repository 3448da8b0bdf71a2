package storage

import (
	"context"
	"fmt"
	"strings"

	logx "scriptsched/pkg/logx"
)

// Store is the history API used by the app recorder and the console.
type Store interface {
	Append(ctx context.Context, r Record) error
	// Recent returns up to limit records, oldest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
