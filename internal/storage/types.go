package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DefaultKeep is the per-source retention when Config.Keep is zero.
const DefaultKeep = 100

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines journal next to Path
//   - "sqlite": SQLite database file (modernc, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Keep        int
}

// Snapshot is one normalized response of a source.
type Snapshot struct {
	Source    string
	FetchedAt time.Time
	Status    int
	// IsJSON reports whether Data holds a JSON document rather than text.
	IsJSON bool
	Data   []byte
}
