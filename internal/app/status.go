package app

import (
	"context"
	"time"

	"adlytics/internal/runtime/supervisor"
)

// Status is the JSON body of the ops /status endpoint.
type Status struct {
	Uptime        string             `json:"uptime"`
	Channels      []string           `json:"channels"`
	Sources       []SourceStatus     `json:"sources"`
	Goroutines    []supervisor.Stats `json:"goroutines"`
	EventsDropped uint64             `json:"events_dropped"`
	Storage       bool               `json:"storage"`
}

type SourceStatus struct {
	Name      string    `json:"name"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Status    int       `json:"status,omitempty"`
	Bytes     int       `json:"bytes,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Status reports channels, the latest snapshot per source and supervised
// goroutines.
func (a *App) Status(ctx context.Context) Status {
	st := Status{
		Channels:      a.disp.Channels(),
		EventsDropped: a.bus.Dropped(),
		Storage:       a.store != nil,
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Round(time.Second).String()
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Stats()
	}
	for _, name := range a.poller.Sources() {
		ss := SourceStatus{Name: name}
		if a.store != nil {
			snap, ok, err := a.store.LatestSnapshot(ctx, name)
			switch {
			case err != nil:
				ss.Error = err.Error()
			case ok:
				ss.FetchedAt, ss.Status, ss.Bytes = snap.FetchedAt, snap.Status, len(snap.Data)
			}
		}
		st.Sources = append(st.Sources, ss)
	}
	return st
}
