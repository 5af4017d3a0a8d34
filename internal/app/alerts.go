package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"adlytics/internal/config"
	"adlytics/internal/eventbus"
	"adlytics/internal/notify"
	logx "adlytics/pkg/logx"
)

const defaultAlertCooldown = 15 * time.Minute

// alertBridge turns ingestion failures into notifications for the configured
// alert target. Each failing source alerts at most once per cooldown and
// gets a single recovery notice on its next successful fetch.
type alertBridge struct {
	disp   *notify.Dispatcher
	target func() *config.AlertTarget
	log    logx.Logger

	failing map[string]*rate.Sometimes
}

func newAlertBridge(disp *notify.Dispatcher, target func() *config.AlertTarget, log logx.Logger) *alertBridge {
	return &alertBridge{
		disp:    disp,
		target:  target,
		log:     log.With(logx.String("comp", "alerts")),
		failing: map[string]*rate.Sometimes{},
	}
}

func alertCooldown(t *config.AlertTarget) time.Duration {
	if strings.TrimSpace(t.Cooldown) == "" {
		return defaultAlertCooldown
	}
	d, err := config.ParseDurationField("notify.alert.cooldown", t.Cooldown)
	if err != nil {
		return defaultAlertCooldown
	}
	return d
}

func (b *alertBridge) run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			b.handle(ctx, e)
		}
	}
}

func (b *alertBridge) handle(ctx context.Context, e eventbus.Event) {
	ev, ok := e.Data.(eventbus.IngestEvent)
	if !ok {
		return
	}
	t := b.target()
	if t == nil {
		return
	}

	switch e.Type {
	case eventbus.IngestFailed:
		s := b.failing[ev.Source]
		if s == nil {
			s = &rate.Sometimes{Interval: alertCooldown(t)}
			if s.Interval == 0 {
				s.Every = 1
			}
			b.failing[ev.Source] = s
		}
		s.Do(func() {
			b.send(ctx, t, fmt.Sprintf("source %s failed", ev.Source),
				fmt.Sprintf("Ingestion of source %q failed after %s: %s", ev.Source, ev.Duration.Round(time.Millisecond), ev.Error))
		})
	case eventbus.IngestFetched:
		if _, was := b.failing[ev.Source]; !was {
			return
		}
		delete(b.failing, ev.Source)
		b.send(ctx, t, fmt.Sprintf("source %s recovered", ev.Source),
			fmt.Sprintf("Ingestion of source %q recovered (status %d).", ev.Source, ev.Status))
	}
}

func (b *alertBridge) send(ctx context.Context, t *config.AlertTarget, subject, content string) {
	if s := strings.TrimSpace(t.Subject); s != "" {
		subject = s + ": " + subject
	}
	m := notify.Message{
		To:      t.To,
		Content: content,
		Channel: strings.ToLower(strings.TrimSpace(t.Channel)),
		Subject: subject,
	}
	if !b.disp.Send(ctx, m) {
		b.log.Warn("alert not delivered", logx.String("channel", t.Channel), logx.String("to", t.To))
	}
}
