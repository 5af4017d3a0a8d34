package ingestion

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"adlytics/internal/config"
	"adlytics/internal/httpclient"
	"adlytics/internal/storage"
	logx "adlytics/pkg/logx"
)

// Source is one configured upstream endpoint.
type Source struct {
	name     string
	schedule string
	endpoint string
	params   map[string]string
	client   *httpclient.Client
}

// NewSource builds the client for cfg. opts are passed to httpclient.New.
func NewSource(cfg config.SourceConfig, log logx.Logger, opts ...httpclient.Option) (*Source, error) {
	name := strings.TrimSpace(cfg.Name)
	path := "ingestion.sources[" + name + "]"

	period, err := config.ParseDurationField(path+".rate_period", cfg.RatePeriod)
	if err != nil {
		return nil, err
	}
	timeout, err := config.ParseDurationField(path+".timeout", cfg.Timeout)
	if err != nil {
		return nil, err
	}
	norm, err := ParseNormalizer(cfg.Normalizer)
	if err != nil {
		return nil, fmt.Errorf("%s.normalizer: %w", path, err)
	}

	opts = append([]httpclient.Option{httpclient.WithLogger(log.With(logx.String("source", name)))}, opts...)
	client, err := httpclient.New(httpclient.Config{
		BaseURL:     cfg.BaseURL,
		Token:       cfg.Token,
		Headers:     cfg.Headers,
		MaxRate:     cfg.MaxRate,
		RatePeriod:  period,
		MaxAttempts: cfg.MaxAttempts,
		Timeout:     timeout,
	}, norm, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Source{
		name:     name,
		schedule: strings.TrimSpace(cfg.Schedule),
		endpoint: cfg.Endpoint,
		params:   maps.Clone(cfg.Params),
		client:   client,
	}, nil
}

func (s *Source) Name() string     { return s.name }
func (s *Source) Schedule() string { return s.schedule }

// Fetch requests the endpoint once and returns the normalized snapshot.
func (s *Source) Fetch(ctx context.Context) (storage.Snapshot, error) {
	body, err := s.client.Get(ctx, s.endpoint, s.params, nil)
	if err != nil {
		return storage.Snapshot{}, err
	}
	body, err = s.client.Normalize(ctx, body)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("normalize %s: %w", s.name, err)
	}
	return storage.Snapshot{
		Source:    s.name,
		FetchedAt: time.Now(),
		Status:    body.Status,
		IsJSON:    body.IsJSON(),
		Data:      body.Raw,
	}, nil
}

func (s *Source) Close() error { return s.client.Close() }

// BuildSources constructs every configured source, failing on the first error.
func BuildSources(cfgs []config.SourceConfig, log logx.Logger, opts ...httpclient.Option) ([]*Source, error) {
	out := make([]*Source, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := NewSource(c, log, opts...)
		if err != nil {
			for _, built := range out {
				_ = built.Close()
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
