package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"adlytics/internal/eventbus"
	"adlytics/internal/storage"
	logx "adlytics/pkg/logx"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrRunning       = errors.New("poller already running")
)

// Poller fetches sources on their cron schedules. Overlapping runs of the
// same source are skipped.
type Poller struct {
	sources map[string]*Source
	store   storage.Store
	bus     eventbus.Publisher
	log     logx.Logger
	loc     *time.Location
	parser  cron.Parser

	mu        sync.Mutex
	c         *cron.Cron
	runCancel context.CancelFunc
}

// NewPoller wires sources to an optional store and bus (either may be nil).
// loc nil means local time.
func NewPoller(sources []*Source, store storage.Store, bus eventbus.Publisher, log logx.Logger, loc *time.Location) *Poller {
	m := make(map[string]*Source, len(sources))
	for _, s := range sources {
		m[s.Name()] = s
	}
	if loc == nil {
		loc = time.Local
	}
	return &Poller{
		sources: m,
		store:   store,
		bus:     bus,
		log:     log.With(logx.String("comp", "ingestion")),
		loc:     loc,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Sources lists source names in sorted order.
func (p *Poller) Sources() []string {
	out := make([]string, 0, len(p.sources))
	for n := range p.sources {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NormalizeSchedule turns a bare Go duration into "@every <d>"; other specs
// pass through.
func NormalizeSchedule(spec string) string {
	spec = strings.TrimSpace(spec)
	if d, err := time.ParseDuration(spec); err == nil && d > 0 {
		return "@every " + d.String()
	}
	return spec
}

// Start registers every source and starts the cron loop. Scheduled runs use
// ctx; they stop when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return ErrRunning
	}

	cl := cronLogger{log: p.log}
	c := cron.New(
		cron.WithParser(p.parser),
		cron.WithLocation(p.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	runCtx, cancel := context.WithCancel(ctx)

	for _, name := range p.Sources() {
		src := p.sources[name]
		spec := NormalizeSchedule(src.Schedule())
		if _, err := c.AddFunc(spec, func() { _, _ = p.run(runCtx, src) }); err != nil {
			cancel()
			return fmt.Errorf("source %s: schedule %q: %w", name, src.Schedule(), err)
		}
		p.log.Debug("source scheduled", logx.String("source", name), logx.String("schedule", spec))
	}

	c.Start()
	p.c, p.runCancel = c, cancel
	p.log.Info("ingestion started", logx.Int("sources", len(p.sources)), logx.String("tz", p.loc.String()))
	return nil
}

// Stop halts scheduling, cancels in-flight fetches and waits for them to
// return or for ctx to expire. Source sessions are closed either way, so Stop
// also releases a poller that was only used through RunOnce.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	c, cancel := p.c, p.runCancel
	p.c, p.runCancel = nil, nil
	p.mu.Unlock()

	var err error
	if c != nil {
		done := c.Stop()
		cancel()
		select {
		case <-done.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		p.log.Info("ingestion stopped")
	}
	for _, s := range p.sources {
		_ = s.Close()
	}
	return err
}

// RunOnce fetches the named source immediately, outside the schedule.
func (p *Poller) RunOnce(ctx context.Context, name string) (storage.Snapshot, error) {
	src, ok := p.sources[name]
	if !ok {
		return storage.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return p.run(ctx, src)
}

func (p *Poller) run(ctx context.Context, src *Source) (storage.Snapshot, error) {
	start := time.Now()
	snap, err := src.Fetch(ctx)
	if err == nil && p.store != nil {
		if serr := p.store.PutSnapshot(ctx, snap); serr != nil {
			err = fmt.Errorf("store snapshot: %w", serr)
		}
	}
	took := time.Since(start)

	if err != nil {
		p.log.Warn("source fetch failed", logx.String("source", src.Name()), logx.Duration("took", took), logx.Err(err))
		p.publish(eventbus.IngestFailed, eventbus.IngestEvent{Source: src.Name(), Duration: took, Error: err.Error()})
		return storage.Snapshot{}, err
	}
	p.log.Info("source fetched",
		logx.String("source", src.Name()),
		logx.Int("status", snap.Status),
		logx.Int("bytes", len(snap.Data)),
		logx.Duration("took", took),
	)
	p.publish(eventbus.IngestFetched, eventbus.IngestEvent{Source: src.Name(), Status: snap.Status, Bytes: len(snap.Data), Duration: took})
	return snap, nil
}

func (p *Poller) publish(typ string, ev eventbus.IngestEvent) {
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: typ, Data: ev})
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
