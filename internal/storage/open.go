package storage

import (
	"context"
	"errors"
	"strings"

	logx "adlytics/pkg/logx"
)

// Store is the persistence API used by ingestion.
type Store interface {
	PutSnapshot(ctx context.Context, s Snapshot) error
	// LatestSnapshot returns the newest snapshot of source; ok is false when
	// none exists.
	LatestSnapshot(ctx context.Context, source string) (s Snapshot, ok bool, err error)
	// History returns up to limit snapshots of source, newest first.
	History(ctx context.Context, source string, limit int) ([]Snapshot, error)
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
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultKeep
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(context.Background(), cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
