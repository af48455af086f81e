package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "tickwork/pkg/logx"
)

// Store is the persistence API used by the daemon.
type Store interface {
	// AppendRun stores r, assigning an ID when empty, and returns it.
	AppendRun(ctx context.Context, r Run) (Run, error)
	// ListRuns returns matching runs, newest first.
	ListRuns(ctx context.Context, q Query) ([]Run, error)
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
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
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func prepareRun(r Run) Run {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.ID == "" {
		r.ID = NewRunID(r.StartedAt)
	}
	return r
}
