package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "adlytics/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	keep int

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Debug("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("sqlite storage opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log, keep: cfg.Keep, pruneEvery: 50}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutSnapshot(ctx context.Context, snap Snapshot) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(snap.Source) == "" {
		return errors.New("snapshot source is required")
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots(source, fetched_at, status, is_json, data) VALUES(?,?,?,?,?)`,
		snap.Source, snap.FetchedAt.UnixMilli(), snap.Status, boolInt(snap.IsJSON), snap.Data,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		if perr := s.prune(ctx); perr != nil {
			s.log.Debug("snapshot prune failed", logx.Err(perr))
		}
	}
	return err
}

func (s *sqliteStore) LatestSnapshot(ctx context.Context, source string) (Snapshot, bool, error) {
	list, err := s.History(ctx, source, 1)
	if err != nil || len(list) == 0 {
		return Snapshot{}, false, err
	}
	return list[0], true, nil
}

func (s *sqliteStore) History(ctx context.Context, source string, limit int) ([]Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = s.keep
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, fetched_at, status, is_json, data FROM snapshots
		 WHERE source = ? ORDER BY id DESC LIMIT ?`, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap   Snapshot
			ms     int64
			isJSON int
		)
		if err := rows.Scan(&snap.Source, &ms, &snap.Status, &isJSON, &snap.Data); err != nil {
			return nil, err
		}
		snap.FetchedAt = time.UnixMilli(ms)
		snap.IsJSON = isJSON != 0
		out = append(out, snap)
	}
	return out, rows.Err()
}

// prune drops all but the newest keep snapshots of every source.
func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY source ORDER BY id DESC) AS rn FROM snapshots
			) WHERE rn > ?
		)`, s.keep)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
