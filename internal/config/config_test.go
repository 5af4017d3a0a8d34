package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "file-token"
notify:
  channels: [telegram, sms]
sms:
  provider_url: "https://sms.example.com/api/send"
  api_token: "t"
  sender_id: "ADL"
logging:
  level: debug
  console: true
ingestion:
  sources:
    - name: ads
      base_url: "https://api.example.com/v1/"
      endpoint: "/campaigns"
      schedule: "*/5 * * * *"
      max_rate: 2
      rate_period: "1s"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDecodeYAMLAndJSON(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode yaml: %v", err)
	}
	if cfg.Telegram.Token != "file-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Ingestion.Sources) != 1 || cfg.Ingestion.Sources[0].MaxRate != 2 {
		t.Fatalf("unexpected sources: %+v", cfg.Ingestion.Sources)
	}

	cfg, err = Decode("c.json", []byte(`{"notify":{"channels":["email"]}}`))
	if err != nil {
		t.Fatalf("Decode json: %v", err)
	}
	if len(cfg.Notify.Channels) != 1 || cfg.Notify.Channels[0] != "email" {
		t.Fatalf("channels = %v", cfg.Notify.Channels)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"nope":1}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
	if _, err := Decode("c.yml", []byte("")); err != nil {
		t.Fatalf("empty yaml should decode: %v", err)
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USE_TLS", "true")
	t.Setenv("LOG_FILE_PATH", "/tmp/x.log")
	t.Setenv("SQLITE_DB_PATH", "data/n.db")

	cfg := &Config{Telegram: TelegramConfig{Token: "file-token"}}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, want env-token", cfg.Telegram.Token)
	}
	if cfg.SMTP.Port != 2525 || !cfg.SMTP.UseTLS {
		t.Fatalf("smtp = %+v", cfg.SMTP)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "/tmp/x.log" {
		t.Fatalf("logging.file = %+v", cfg.Logging.File)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "data/n.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("SMTP_PORT", "25x")
	t.Setenv("SMTP_USE_TLS", "maybe")

	cfg := &Config{SMTP: SMTPConfig{Port: 587}}
	err := ApplyEnv(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"SMTP_PORT", "SMTP_USE_TLS"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
	if cfg.SMTP.Port != 587 {
		t.Fatalf("port = %d, want file value kept", cfg.SMTP.Port)
	}
}

func TestManagerLoadFailsOnBadEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("SMTP_PORT", "25x")
	p := writeFile(t, "config.yaml", sampleYAML)
	if _, err := NewManager(p).Load(); err == nil || !strings.Contains(err.Error(), "SMTP_PORT") {
		t.Fatalf("Load() = %v, want SMTP_PORT error", err)
	}
}

func TestCacheTTLAcceptsSeconds(t *testing.T) {
	t.Setenv("REDIS_CACHE_TTL", "300")
	cfg := &Config{}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	d, err := ParseSecondsOrDuration("cache.ttl", cfg.Cache.TTL)
	if err != nil || d != 5*time.Minute {
		t.Fatalf("ttl = %v, %v", d, err)
	}
	if d, err := ParseSecondsOrDuration("cache.ttl", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("ttl = %v, %v", d, err)
	}
	if _, err := ParseSecondsOrDuration("cache.ttl", "-5"); err == nil {
		t.Fatal("expected negative error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty ok", cfg: Config{}},
		{name: "unknown channel", cfg: Config{Notify: NotifyConfig{Channels: []string{"pager"}}}, wantErr: "unknown channel"},
		{name: "telegram without token", cfg: Config{Notify: NotifyConfig{Channels: []string{"telegram"}}}, wantErr: "telegram.token"},
		{
			name:    "email missing host",
			cfg:     Config{Notify: NotifyConfig{Channels: []string{"email"}}, SMTP: SMTPConfig{Port: 25, FromEmail: "a@b.c"}},
			wantErr: "smtp.host",
		},
		{
			name:    "sms bad url",
			cfg:     Config{Notify: NotifyConfig{Channels: []string{"sms"}}, SMS: SMSConfig{ProviderURL: "ftp://x", APIToken: "t", SenderID: "s"}},
			wantErr: "unsupported scheme",
		},
		{
			name:    "sms url with credentials",
			cfg:     Config{Notify: NotifyConfig{Channels: []string{"sms"}}, SMS: SMSConfig{ProviderURL: "https://u:p@sms.example.com/send", APIToken: "t", SenderID: "s"}},
			wantErr: "credentials in url",
		},
		{
			name: "alert on disabled channel",
			cfg: Config{
				Telegram: TelegramConfig{Token: "x"},
				Notify:   NotifyConfig{Channels: []string{"telegram"}, Alert: &AlertTarget{Channel: "email", To: "a@b.c"}},
			},
			wantErr: "not enabled",
		},
		{
			name: "duplicate source",
			cfg: Config{Ingestion: IngestionConfig{Sources: []SourceConfig{
				{Name: "a", BaseURL: "https://x", Schedule: "1m"},
				{Name: "a", BaseURL: "https://x", Schedule: "1m"},
			}}},
			wantErr: "duplicate source",
		},
		{
			name: "bad source timeout",
			cfg: Config{Ingestion: IngestionConfig{Sources: []SourceConfig{
				{Name: "a", BaseURL: "https://x", Schedule: "1m", Timeout: "soon"},
			}}},
			wantErr: "invalid duration",
		},
		{
			name:    "bad timezone",
			cfg:     Config{Ingestion: IngestionConfig{Timezone: "Mars/Olympus"}},
			wantErr: "ingestion.timezone",
		},
		{
			name:    "bad ops addr",
			cfg:     Config{Ops: &OpsConfig{Enabled: true, Addr: "6060"}},
			wantErr: "ops.addr",
		},
		{
			name: "bad alert cooldown",
			cfg: Config{
				Telegram: TelegramConfig{Token: "x"},
				Notify:   NotifyConfig{Channels: []string{"telegram"}, Alert: &AlertTarget{Channel: "telegram", To: "1", Cooldown: "often"}},
			},
			wantErr: "notify.alert.cooldown",
		},
		{name: "disabled ops ignores addr", cfg: Config{Ops: &OpsConfig{Addr: "6060"}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected negative duration error")
	}
}

func TestManagerLoadAndReload(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	p := writeFile(t, "config.yaml", sampleYAML)

	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the loaded config")
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	changed, err := m.Reload()
	if err != nil || changed {
		t.Fatalf("Reload unchanged = %v, %v", changed, err)
	}

	updated := strings.Replace(sampleYAML, "level: debug", "level: warn", 1)
	if err := os.WriteFile(p, []byte(updated), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	changed, err = m.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload changed = %v, %v", changed, err)
	}
	select {
	case got := <-ch:
		if got.Logging.Level != "warn" {
			t.Fatalf("published level = %q", got.Logging.Level)
		}
	default:
		t.Fatal("expected a published config")
	}
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	p := writeFile(t, "config.yaml", sampleYAML)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.WriteFile(p, []byte("notify:\n  channels: [pager]\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := m.Reload(); err == nil {
		t.Fatal("expected validation error")
	}
	if m.Get().Telegram.Token != "file-token" {
		t.Fatal("previous config should stay committed")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := &Config{Ingestion: IngestionConfig{Sources: []SourceConfig{{Name: "a", Schedule: "1m"}, {Name: "b"}}}}
	b := &Config{
		Logging:   LoggingConfig{Level: "debug"},
		Ingestion: IngestionConfig{Sources: []SourceConfig{{Name: "a", Schedule: "2m"}, {Name: "c"}}},
	}
	sections, _, sources := SummarizeChange(a, b)
	if strings.Join(sections, ",") != "logging,ingestion" {
		t.Fatalf("sections = %v", sections)
	}
	if strings.Join(sources, ",") != "a,b,c" {
		t.Fatalf("sources = %v", sources)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/adlytics.yaml")
	if got := ResolvePath("x.yaml"); got != "x.yaml" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got := ResolvePath(""); got != "/etc/adlytics.yaml" {
		t.Fatalf("env path = %q", got)
	}
}
