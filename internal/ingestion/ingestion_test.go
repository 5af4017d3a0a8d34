package ingestion

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adlytics/internal/config"
	"adlytics/internal/eventbus"
	"adlytics/internal/httpclient"
	"adlytics/internal/storage"
	logx "adlytics/pkg/logx"
)

const campaigns = `{"data":{"campaigns":[{"id":"c1","spend":12.5},{"id":"c2","spend":3}]},"meta":{"page":1}}`

func newAPI(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/v1/campaigns":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, campaigns)
		case "/v1/health":
			_, _ = io.WriteString(w, "OK")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sourceCfg(base, name, endpoint, norm string) config.SourceConfig {
	return config.SourceConfig{
		Name:        name,
		BaseURL:     base + "/v1/",
		Token:       "tok",
		Endpoint:    endpoint,
		Schedule:    "@every 1h",
		MaxRate:     50,
		MaxAttempts: 1,
		Timeout:     "2s",
		Normalizer:  norm,
	}
}

func TestParseNormalizer(t *testing.T) {
	t.Parallel()
	for _, spec := range []string{"", "passthrough", "PASSTHROUGH", "pluck:a.b", "feed", "feed:3"} {
		n, err := ParseNormalizer(spec)
		require.NoError(t, err, spec)
		require.NotNil(t, n)
	}
	for _, spec := range []string{"pluck:", "xml", "jq:.a", "feed:0", "feed:x"} {
		_, err := ParseNormalizer(spec)
		require.Error(t, err, spec)
	}
}

func TestPluck(t *testing.T) {
	t.Parallel()
	var v any
	body := httpclient.Body{Status: 200, Raw: []byte(campaigns)}
	require.NoError(t, body.Decode(&v))
	body.JSON = v

	out, err := Pluck("data.campaigns.1.id").Normalize(context.Background(), body)
	require.NoError(t, err)
	require.Equal(t, "c2", out.JSON)
	require.Equal(t, `"c2"`, out.Text())
	require.Equal(t, 200, out.Status)

	_, err = Pluck("data.missing").Normalize(context.Background(), body)
	require.ErrorContains(t, err, `key "data.missing" not found`)

	_, err = Pluck("data.campaigns.9").Normalize(context.Background(), body)
	require.ErrorContains(t, err, "out of range")

	_, err = Pluck("a").Normalize(context.Background(), httpclient.Body{Raw: []byte("text")})
	require.ErrorIs(t, err, ErrNotJSON)
}

func TestSourceFetch(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newAPI(t, &hits)

	src, err := NewSource(sourceCfg(srv.URL, "ads", "/campaigns", "pluck:data.campaigns"), logx.Nop())
	require.NoError(t, err)
	defer src.Close()

	snap, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ads", snap.Source)
	require.True(t, snap.IsJSON)
	require.JSONEq(t, `[{"id":"c1","spend":12.5},{"id":"c2","spend":3}]`, string(snap.Data))

	txt, err := NewSource(sourceCfg(srv.URL, "health", "health", ""), logx.Nop())
	require.NoError(t, err)
	defer txt.Close()
	snap, err = txt.Fetch(context.Background())
	require.NoError(t, err)
	require.False(t, snap.IsJSON)
	require.Equal(t, "OK", string(snap.Data))
}

func TestNewSourceRejectsBadConfig(t *testing.T) {
	t.Parallel()
	_, err := NewSource(config.SourceConfig{Name: "x", BaseURL: "http://x", Normalizer: "nope"}, logx.Nop())
	require.Error(t, err)
	_, err = NewSource(config.SourceConfig{Name: "x", BaseURL: "http://x", Timeout: "soon"}, logx.Nop())
	require.Error(t, err)
	_, err = BuildSources([]config.SourceConfig{
		{Name: "ok", BaseURL: "http://x"},
		{Name: "bad", BaseURL: ""},
	}, logx.Nop())
	require.Error(t, err)
}

func TestNormalizeSchedule(t *testing.T) {
	t.Parallel()
	require.Equal(t, "@every 5m0s", NormalizeSchedule("5m"))
	require.Equal(t, "*/5 * * * *", NormalizeSchedule(" */5 * * * * "))
	require.Equal(t, "@hourly", NormalizeSchedule("@hourly"))
}

func TestPollerRunOnceStoresAndPublishes(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newAPI(t, &hits)

	srcs, err := BuildSources([]config.SourceConfig{
		sourceCfg(srv.URL, "ads", "campaigns", "passthrough"),
		sourceCfg(srv.URL, "broken", "nope", ""),
	}, logx.Nop())
	require.NoError(t, err)

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "snap.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	p := NewPoller(srcs, st, bus, logx.Nop(), nil)
	require.Equal(t, []string{"ads", "broken"}, p.Sources())

	snap, err := p.RunOnce(context.Background(), "ads")
	require.NoError(t, err)
	require.True(t, snap.IsJSON)

	latest, ok, err := st.LatestSnapshot(context.Background(), "ads")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, campaigns, string(latest.Data))

	e := <-events
	require.Equal(t, eventbus.IngestFetched, e.Type)
	require.Equal(t, "ads", e.Data.(eventbus.IngestEvent).Source)

	_, err = p.RunOnce(context.Background(), "broken")
	var he *httpclient.HTTPError
	require.ErrorAs(t, err, &he)
	e = <-events
	require.Equal(t, eventbus.IngestFailed, e.Type)
	require.NotEmpty(t, e.Data.(eventbus.IngestEvent).Error)

	_, err = p.RunOnce(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestPollerSchedules(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := newAPI(t, &hits)

	cfg := sourceCfg(srv.URL, "health", "health", "")
	cfg.Schedule = "@every 1s"
	srcs, err := BuildSources([]config.SourceConfig{cfg}, logx.Nop())
	require.NoError(t, err)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, eventbus.IngestFetched)
	defer unsub()

	p := NewPoller(srcs, nil, bus, logx.Nop(), time.UTC)
	require.NoError(t, p.Start(context.Background()))
	require.ErrorIs(t, p.Start(context.Background()), ErrRunning)

	select {
	case e := <-events:
		require.Equal(t, "health", e.Data.(eventbus.IngestEvent).Source)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled fetch did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	require.NoError(t, p.Stop(ctx))
}

func TestPollerStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	cfg := config.SourceConfig{Name: "x", BaseURL: "http://127.0.0.1:1", Schedule: "every tuesday"}
	srcs, err := BuildSources([]config.SourceConfig{cfg}, logx.Nop())
	require.NoError(t, err)
	p := NewPoller(srcs, nil, nil, logx.Nop(), nil)
	require.Error(t, p.Start(context.Background()))
}
