package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Channel names accepted in notify.channels.
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
)

// Validate checks that every enabled feature has the values it needs.
// It is called once at startup and again before a hot reload is committed.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	enabled := map[string]bool{}
	for _, ch := range c.Notify.Channels {
		name := strings.ToLower(strings.TrimSpace(ch))
		switch name {
		case ChannelTelegram, ChannelEmail, ChannelSMS:
		default:
			errs = append(errs, fmt.Errorf("notify.channels: unknown channel %q", ch))
			continue
		}
		if enabled[name] {
			errs = append(errs, fmt.Errorf("notify.channels: duplicate channel %q", name))
		}
		enabled[name] = true
	}

	if enabled[ChannelTelegram] {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			errs = append(errs, errors.New("telegram.token is required (or TELEGRAM_BOT_TOKEN)"))
		}
		if _, err := ParseDurationField("telegram.timeout", c.Telegram.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if enabled[ChannelEmail] {
		if strings.TrimSpace(c.SMTP.Host) == "" {
			errs = append(errs, errors.New("smtp.host is required"))
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			errs = append(errs, fmt.Errorf("smtp.port: invalid port %d", c.SMTP.Port))
		}
		if strings.TrimSpace(c.SMTP.FromEmail) == "" {
			errs = append(errs, errors.New("smtp.from_email is required"))
		}
		if _, err := ParseDurationField("smtp.timeout", c.SMTP.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if enabled[ChannelSMS] {
		if err := validateURL("sms.provider_url", c.SMS.ProviderURL); err != nil {
			errs = append(errs, err)
		}
		if strings.TrimSpace(c.SMS.APIToken) == "" {
			errs = append(errs, errors.New("sms.api_token is required"))
		}
		if strings.TrimSpace(c.SMS.SenderID) == "" {
			errs = append(errs, errors.New("sms.sender_id is required"))
		}
	}

	if a := c.Notify.Alert; a != nil {
		ch := strings.ToLower(strings.TrimSpace(a.Channel))
		if !enabled[ch] {
			errs = append(errs, fmt.Errorf("notify.alert.channel %q is not enabled", a.Channel))
		}
		if strings.TrimSpace(a.To) == "" {
			errs = append(errs, errors.New("notify.alert.to is required"))
		}
		if _, err := ParseDurationField("notify.alert.cooldown", a.Cooldown); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := ParseSecondsOrDuration("cache.ttl", c.Cache.TTL); err != nil {
		errs = append(errs, err)
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, errors.New("storage.path is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		if s.Keep < 0 {
			errs = append(errs, errors.New("storage.keep must be >= 0"))
		}
	}

	if o := c.Ops; o != nil && o.Enabled && strings.TrimSpace(o.Addr) != "" {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(o.Addr)); err != nil {
			errs = append(errs, fmt.Errorf("ops.addr: %w", err))
		}
	}

	if tz := strings.TrimSpace(c.Ingestion.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("ingestion.timezone: invalid %q: %w", tz, err))
		}
	}

	seen := map[string]bool{}
	for i, src := range c.Ingestion.Sources {
		path := fmt.Sprintf("ingestion.sources[%d]", i)
		name := strings.TrimSpace(src.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate source %q", path, name))
		}
		seen[name] = true
		if err := validateURL(path+".base_url", src.BaseURL); err != nil {
			errs = append(errs, err)
		}
		if strings.TrimSpace(src.Schedule) == "" {
			errs = append(errs, fmt.Errorf("%s.schedule is required", path))
		}
		if src.MaxRate < 0 {
			errs = append(errs, fmt.Errorf("%s.max_rate must be >= 0", path))
		}
		if src.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("%s.max_attempts must be >= 0", path))
		}
		if _, err := ParseDurationField(path+".rate_period", src.RatePeriod); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField(path+".timeout", src.Timeout); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ChannelEnabled reports whether name is listed in notify.channels.
func (c *Config) ChannelEnabled(name string) bool {
	for _, ch := range c.Notify.Channels {
		if strings.EqualFold(strings.TrimSpace(ch), name) {
			return true
		}
	}
	return false
}

func validateURL(path, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s is required", path)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", path, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", path)
	}
	if u.User != nil {
		return fmt.Errorf("%s: credentials in url are not supported", path)
	}
	return nil
}
