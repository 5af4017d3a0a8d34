package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "adlytics/pkg/logx"
)

// fileStore keeps snapshots in <prefix>.snapshots.jsonl.
//
// The journal is append-only. On open it is replayed into a per-source
// in-memory window of the newest keep entries; every compactEvery writes the
// journal is rewritten from that window.
type fileStore struct {
	log  logx.Logger
	keep int

	mu      sync.Mutex
	path    string
	journal *os.File
	bySrc   map[string][]Snapshot // oldest first
	writes  int

	compactEvery int
}

type fileRecord struct {
	Source    string          `json:"source"`
	FetchedAt int64           `json:"fetched_at"`
	Status    int             `json:"status"`
	JSON      json.RawMessage `json:"json,omitempty"`
	Text      string          `json:"text,omitempty"`
}

func toRecord(s Snapshot) fileRecord {
	r := fileRecord{Source: s.Source, FetchedAt: s.FetchedAt.UnixMilli(), Status: s.Status}
	if s.IsJSON && json.Valid(s.Data) {
		r.JSON = json.RawMessage(s.Data)
	} else {
		r.Text = string(s.Data)
	}
	return r
}

func (r fileRecord) snapshot() Snapshot {
	s := Snapshot{Source: r.Source, FetchedAt: time.UnixMilli(r.FetchedAt), Status: r.Status}
	if len(r.JSON) > 0 {
		s.IsJSON = true
		s.Data = []byte(r.JSON)
	} else {
		s.Data = []byte(r.Text)
	}
	return s
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	journalPath := filepath.Join(dir, base) + ".snapshots.jsonl"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		keep:         cfg.Keep,
		path:         journalPath,
		bySrc:        map[string][]Snapshot{},
		compactEvery: 1000,
	}
	if err := s.replay(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	log.Info("file storage opened", logx.String("path", journalPath))
	return s, nil
}

func (s *fileStore) replay() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	skipped := 0
	for sc.Scan() {
		var r fileRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Source == "" {
			skipped++
			continue
		}
		s.appendLocked(r.snapshot())
	}
	if skipped > 0 {
		s.log.Warn("skipped unreadable snapshot records", logx.Int("count", skipped))
	}
	return sc.Err()
}

func (s *fileStore) appendLocked(snap Snapshot) {
	list := append(s.bySrc[snap.Source], snap)
	if len(list) > s.keep {
		list = append([]Snapshot(nil), list[len(list)-s.keep:]...)
	}
	s.bySrc[snap.Source] = list
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) PutSnapshot(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snap.Source) == "" {
		return errors.New("snapshot source is required")
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("snapshot journal closed")
	}
	if err := json.NewEncoder(s.journal).Encode(toRecord(snap)); err != nil {
		return err
	}
	// keep the stored copy independent of the caller's buffer
	snap.Data = append([]byte(nil), snap.Data...)
	s.appendLocked(snap)

	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("snapshot compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) LatestSnapshot(ctx context.Context, source string) (Snapshot, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.bySrc[source]
	if len(list) == 0 {
		return Snapshot{}, false, nil
	}
	return list[len(list)-1], true, nil
}

func (s *fileStore) History(ctx context.Context, source string, limit int) ([]Snapshot, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.bySrc[source]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Snapshot, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// compactLocked rewrites the journal from the in-memory windows.
func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, list := range s.bySrc {
		for _, snap := range list {
			if err := enc.Encode(toRecord(snap)); err != nil {
				_ = f.Close()
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := s.journal.Close(); err != nil {
		return err
	}
	renameErr := os.Rename(tmp, s.path)
	jf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		s.journal = nil
		return err
	}
	s.journal = jf
	return renameErr
}
