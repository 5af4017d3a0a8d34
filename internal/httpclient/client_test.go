package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, base string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{BaseURL: base, MaxRate: 100, RatePeriod: time.Second, MaxAttempts: 3, Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, Identity)
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestJoinURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		base, endpoint, want string
	}{
		{"https://api.x.com", "v1/items", "https://api.x.com/v1/items"},
		{"https://api.x.com/", "/v1/items", "https://api.x.com/v1/items"},
		{"https://api.x.com///", "///v1/items", "https://api.x.com/v1/items"},
		{"https://api.x.com/base", "", "https://api.x.com/base/"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, JoinURL(tt.base, tt.endpoint), "JoinURL(%q, %q)", tt.base, tt.endpoint)
	}
}

func TestNewRejectsNilNormalizer(t *testing.T) {
	t.Parallel()
	_, err := New(Config{BaseURL: "http://x"}, nil)
	require.ErrorIs(t, err, ErrNilNormalizer)

	_, err = New(Config{}, Identity)
	require.Error(t, err)
}

func TestGetJoinsPathAndDecodesJSON(t *testing.T) {
	t.Parallel()
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, `{"items":[1,2],"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/", nil)
	b, err := c.Get(context.Background(), "/v1/items", map[string]string{"page": "2"}, nil)
	require.NoError(t, err)
	require.Equal(t, "/api/v1/items", gotPath)
	require.Equal(t, "page=2", gotQuery)
	require.True(t, b.IsJSON())
	m, ok := b.JSON.(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, m["ok"])
}

func TestGetReturnsTextForNonJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "hello")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	b, err := c.Get(context.Background(), "x", nil, nil)
	require.NoError(t, err)
	require.False(t, b.IsJSON())
	require.Equal(t, "hello", b.Text())
}

func TestMalformedJSONFallsBackToText(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	b, err := c.Get(context.Background(), "x", nil, nil)
	require.NoError(t, err)
	require.False(t, b.IsJSON())
	require.Equal(t, "{not json", b.Text())
}

func TestClientErrorIsTerminal(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "missing")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Get(context.Background(), "x", nil, nil)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusNotFound, he.StatusCode)
	require.Equal(t, "missing", he.Body)
	require.EqualValues(t, 1, calls.Load())
}

func TestServerErrorRetriedThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	b, err := c.Get(context.Background(), "x", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", b.Text())
	require.EqualValues(t, 3, calls.Load())
	require.Len(t, delays, 2)
}

func TestServerErrorExhaustsAttempts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxAttempts = 4 })
	_, err := c.Get(context.Background(), "x", nil, nil)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusServiceUnavailable, he.StatusCode)
	require.EqualValues(t, 4, calls.Load())
}

func TestTransportErrorRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("hijack unsupported")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		_, _ = io.WriteString(w, "recovered")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	b, err := c.Get(context.Background(), "x", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "recovered", b.Text())
	require.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestUnreachableHostSurfacesLastError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, func(cfg *Config) { cfg.MaxAttempts = 2 })
	attempts := 0
	c.retry = func(ctx context.Context, _ *resty.Response, err error) bool {
		attempts++
		return DefaultRetryPolicy(ctx, nil, err)
	}
	_, err := c.Get(context.Background(), "x", nil, nil)
	require.Error(t, err)
	var he *HTTPError
	require.False(t, errors.As(err, &he))
	require.Equal(t, 1, attempts)
}

func TestCancelledContextNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	_, err := c.Get(ctx, "x", nil, nil)
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestHeadersAndToken(t *testing.T) {
	t.Parallel()
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Token = "secret"
		cfg.Headers = map[string]string{"X-App": "adlytics", "X-Env": "prod"}
	})
	_, err := c.Get(context.Background(), "x", nil, map[string]string{"x-env": "test"})
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", got.Get("Authorization"))
	require.Equal(t, "adlytics", got.Get("X-App"))
	require.Equal(t, "test", got.Get("X-Env"))

	// an explicit Authorization header is not replaced by the token
	c2 := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Token = "secret"
		cfg.Headers = map[string]string{"authorization": "Basic abc"}
	})
	_, err = c2.Get(context.Background(), "x", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "Basic abc", got.Get("Authorization"))
}

func TestPostBodies(t *testing.T) {
	t.Parallel()
	var ct string
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct = r.Header.Get("Content-Type")
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	b, err := c.Post(context.Background(), "send", map[string]string{"to": "+1"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, b.Status)
	require.Contains(t, ct, "application/json")
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, "+1", m["to"])

	_, err = c.Post(context.Background(), "send", nil, []byte("a=b"), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	require.NoError(t, err)
	require.Equal(t, "a=b", string(raw))
	require.Equal(t, "application/x-www-form-urlencoded", ct)

	_, err = c.Post(context.Background(), "send", map[string]string{}, []byte("x"), nil)
	require.ErrorIs(t, err, ErrBodyConflict)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "http://127.0.0.1:1", nil)
	require.Nil(t, c.Session())

	require.NoError(t, c.Open(context.Background()))
	s1 := c.Session()
	require.False(t, s1.Closed())

	require.NoError(t, c.Open(context.Background()))
	require.Same(t, s1, c.Session())

	require.NoError(t, c.Close())
	require.True(t, s1.Closed())
	require.NoError(t, c.Close())

	require.NoError(t, c.Open(context.Background()))
	s2 := c.Session()
	require.NotSame(t, s1, s2)
	require.False(t, s2.Closed())
}

func TestScopeClosesSession(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "http://127.0.0.1:1", nil)

	boom := errors.New("boom")
	err := c.Scope(context.Background(), func(_ context.Context, c *Client) error {
		require.False(t, c.Session().Closed())
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, c.Session().Closed())

	require.Panics(t, func() {
		_ = c.Scope(context.Background(), func(context.Context, *Client) error { panic("scope panic") })
	})
	require.True(t, c.Session().Closed())
}

func TestLimiterSpacesRequests(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.MaxRate = 2
		cfg.RatePeriod = 200 * time.Millisecond
	})
	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := c.Get(context.Background(), "x", nil, nil)
		require.NoError(t, err)
	}
	// burst of 2, then one slot per 100ms
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "http://127.0.0.1:1", func(cfg *Config) {
		cfg.MaxRate = 1
		cfg.RatePeriod = time.Hour
	})
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, "x", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limiter")
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(100*time.Millisecond, time.Second, attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, time.Second)
	}
}
