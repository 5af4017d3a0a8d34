package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	logx "adlytics/pkg/logx"
)

var (
	ErrNilNormalizer = errors.New("httpclient: normalizer is required")
	ErrBodyConflict  = errors.New("httpclient: json and data bodies are mutually exclusive")
)

type Option func(*Client)

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		if p != nil {
			c.retry = p
		}
	}
}

// Client is a rate-limited, retrying HTTP client bound to one base URL.
// It is safe for concurrent use; all callers share the limiter and session.
type Client struct {
	cfg     Config
	norm    Normalizer
	limiter *rate.Limiter
	log     logx.Logger
	retry   RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	sess *Session
}

func New(cfg Config, norm Normalizer, opts ...Option) (*Client, error) {
	if norm == nil {
		return nil, ErrNilNormalizer
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:     cfg,
		norm:    norm,
		limiter: rate.NewLimiter(rate.Every(cfg.RatePeriod/time.Duration(cfg.MaxRate)), cfg.MaxRate),
		retry:   DefaultRetryPolicy,
		sleep:   sleepCtx,
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	c.log = c.log.With(logx.String("comp", "httpclient"), logx.String("base_url", cfg.BaseURL))
	return c, nil
}

func (c *Client) Config() Config { return c.cfg }

// Session returns the current session, which may be nil or closed.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) ensureSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Closed() {
		c.sess = newSession(c.cfg.Timeout, restyLogger{log: c.log})
		c.log.Debug("http session opened")
	}
	return c.sess
}

// Open ensures a usable session exists.
func (c *Client) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.ensureSession()
	return nil
}

// Close closes the session if it is open.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if !s.Closed() {
		s.Close()
		c.log.Debug("http session closed")
	}
	return nil
}

// Scope runs fn with an open session and closes it afterwards, including when
// fn returns an error or panics.
func (c *Client) Scope(ctx context.Context, fn func(ctx context.Context, c *Client) error) error {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func (c *Client) Normalize(ctx context.Context, b Body) (Body, error) {
	return c.norm.Normalize(ctx, b)
}

func (c *Client) Get(ctx context.Context, endpoint string, params, headers map[string]string) (Body, error) {
	return c.request(ctx, http.MethodGet, endpoint, params, headers, nil)
}

// Post sends json (marshaled) or data (raw bytes) as the request body.
func (c *Client) Post(ctx context.Context, endpoint string, json any, data []byte, headers map[string]string) (Body, error) {
	if json != nil && data != nil {
		return Body{}, ErrBodyConflict
	}
	var body any
	switch {
	case json != nil:
		body = json
		if !hasHeader(headers, "Content-Type") {
			headers = mergeHeaders(map[string]string{"Content-Type": "application/json"}, headers)
		}
	case data != nil:
		body = data
	}
	return c.request(ctx, http.MethodPost, endpoint, nil, headers, body)
}

func (c *Client) request(ctx context.Context, method, endpoint string, params, headers map[string]string, body any) (Body, error) {
	url := JoinURL(c.cfg.BaseURL, endpoint)
	hdr := mergeHeaders(c.cfg.Headers, headers)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		sess := c.ensureSession()
		if err := c.limiter.Wait(ctx); err != nil {
			return Body{}, fmt.Errorf("httpclient: rate limiter: %w", err)
		}

		req := sess.request().SetContext(ctx).SetHeaders(hdr)
		if len(params) > 0 {
			req.SetQueryParams(params)
		}
		if body != nil {
			req.SetBody(body)
		}

		start := time.Now()
		resp, err := req.Execute(method, url)
		if err == nil && resp.StatusCode() < 400 {
			c.log.Trace("http request ok",
				logx.String("method", method),
				logx.String("url", url),
				logx.Int("status", resp.StatusCode()),
				logx.Duration("took", time.Since(start)),
			)
			return newBody(resp.StatusCode(), resp.Header().Get("Content-Type"), resp.Body()), nil
		}

		if err != nil {
			resp = nil
			lastErr = fmt.Errorf("%s %s: %w", method, url, err)
		} else {
			lastErr = &HTTPError{Method: method, URL: url, StatusCode: resp.StatusCode(), Body: resp.String()}
		}

		if attempt >= c.cfg.MaxAttempts || !c.retry(ctx, resp, err) {
			return Body{}, lastErr
		}

		delay := retryDelay(c.cfg.RetryBase, c.cfg.RetryMaxDelay, attempt)
		c.log.Debug("http request failed; retrying",
			logx.String("method", method),
			logx.String("url", url),
			logx.Int("attempt", attempt),
			logx.Int("max", c.cfg.MaxAttempts),
			logx.Duration("backoff", delay),
			logx.Err(lastErr),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return Body{}, lastErr
		}
	}
	return Body{}, lastErr
}

// mergeHeaders returns base overlaid with override. Keys are matched
// case-insensitively and override wins.
func mergeHeaders(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		for ek := range out {
			if strings.EqualFold(ek, k) {
				delete(out, ek)
			}
		}
		out[k] = v
	}
	return out
}

// restyLogger routes resty's internal warnings into logx.
type restyLogger struct{ log logx.Logger }

func (l restyLogger) Errorf(format string, v ...any) { l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...))) }
func (l restyLogger) Warnf(format string, v ...any)  { l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, v...))) }
func (l restyLogger) Debugf(format string, v ...any) { l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...))) }

var _ resty.Logger = restyLogger{}
