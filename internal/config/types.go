package config

// Config is the root runtime configuration.
//
// Secrets may be left empty in the file and supplied through the environment
// (see ApplyEnv).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	SMTP      SMTPConfig      `json:"smtp"`
	SMS       SMSConfig       `json:"sms"`
	Notify    NotifyConfig    `json:"notify"`
	Broker    BrokerConfig    `json:"broker"`
	Cache     CacheConfig     `json:"cache"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Ingestion IngestionConfig `json:"ingestion"`
	Ops       *OpsConfig      `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// APIURL overrides the Bot API endpoint (defaults to https://api.telegram.org).
	APIURL string `json:"api_url,omitempty"`
	// Timeout is a Go duration string (e.g. "10s").
	Timeout string `json:"timeout,omitempty"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	User      string `json:"user"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
	UseTLS    bool   `json:"use_tls"`
	// Timeout is a Go duration string. Default: "15s".
	Timeout string `json:"timeout,omitempty"`
}

type SMSConfig struct {
	ProviderURL string `json:"provider_url"`
	APIToken    string `json:"api_token"`
	SenderID    string `json:"sender_id"`
}

// NotifyConfig selects which channels the dispatcher registers.
//
// Example:
//
//	"notify": { "channels": ["telegram", "email"], "alert": {"channel": "telegram", "to": "-100123"} }
type NotifyConfig struct {
	Channels []string     `json:"channels"`
	Alert    *AlertTarget `json:"alert,omitempty"`
}

// AlertTarget routes ingestion failures to a notification channel.
type AlertTarget struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	// Cooldown suppresses repeated alerts for the same failing source.
	// Go duration string. Default: "15m"; "0s" alerts on every failure.
	Cooldown string `json:"cooldown,omitempty"`
}

// BrokerConfig is kept for deployment parity; no broker client is built from it.
type BrokerConfig struct {
	KafkaURL           string `json:"kafka_url"`
	TopicNotifications string `json:"topic_notifications"`
	TopicFailed        string `json:"topic_failed"`
}

// CacheConfig is kept for deployment parity; no cache client is built from it.
type CacheConfig struct {
	RedisURL string `json:"redis_url"`
	// TTL is integer seconds or a Go duration string. Default: 300.
	TTL string `json:"ttl,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls snapshot persistence for ingestion.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "data/notifications.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Keep is the number of snapshots retained per source. Default: 100.
	Keep int `json:"keep,omitempty"`
}

type IngestionConfig struct {
	// Timezone for cron schedules. Default: local time.
	Timezone string         `json:"timezone,omitempty"`
	Sources  []SourceConfig `json:"sources"`
}

// SourceConfig describes one external API polled on a schedule.
//
// All durations are Go duration strings. Defaults (when omitted/zero):
//   - max_rate: 5, rate_period: "1s"
//   - max_attempts: 3
//   - timeout: "30s"
//   - normalizer: "passthrough"
type SourceConfig struct {
	Name        string            `json:"name"`
	BaseURL     string            `json:"base_url"`
	Token       string            `json:"token,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Endpoint    string            `json:"endpoint"`
	Params      map[string]string `json:"params,omitempty"`
	Schedule    string            `json:"schedule"`
	MaxRate     int               `json:"max_rate,omitempty"`
	RatePeriod  string            `json:"rate_period,omitempty"`
	MaxAttempts int               `json:"max_attempts,omitempty"`
	Timeout     string            `json:"timeout,omitempty"`
	Normalizer  string            `json:"normalizer,omitempty"`
}

// OpsConfig controls the operational HTTP listener (/healthz, /status, pprof).
//
// Example:
//
//	"ops": { "enabled": true, "addr": "127.0.0.1:6060", "pprof": true }
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Token is required when Addr is not a loopback address, unless
	// AllowInsecure is set.
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
