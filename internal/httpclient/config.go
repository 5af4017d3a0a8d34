package httpclient

import (
	"errors"
	"maps"
	"net/url"
	"strings"
	"time"
)

// Defaults applied by New when a Config field is zero.
const (
	DefaultMaxRate       = 5
	DefaultRatePeriod    = time.Second
	DefaultMaxAttempts   = 3
	DefaultTimeout       = 30 * time.Second
	DefaultRetryBase     = 500 * time.Millisecond
	DefaultRetryMaxDelay = 10 * time.Second
)

// Config describes one upstream API.
type Config struct {
	// BaseURL is joined with request endpoints. Trailing slashes are stripped.
	BaseURL string
	// Token is sent as "Authorization: Bearer <token>" unless Headers sets Authorization.
	Token   string
	Headers map[string]string

	// MaxRate requests are admitted per RatePeriod.
	MaxRate    int
	RatePeriod time.Duration

	// MaxAttempts is the total number of attempts per request, including the first.
	MaxAttempts int
	// Timeout bounds a single attempt.
	Timeout time.Duration

	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() (Config, error) {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return c, errors.New("httpclient: base URL must be set")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return c, err
	}

	headers := make(map[string]string, len(c.Headers)+1)
	maps.Copy(headers, c.Headers)
	if tok := strings.TrimSpace(c.Token); tok != "" && !hasHeader(headers, "Authorization") {
		headers["Authorization"] = "Bearer " + tok
	}
	c.Headers = headers

	if c.MaxRate <= 0 {
		c.MaxRate = DefaultMaxRate
	}
	if c.RatePeriod <= 0 {
		c.RatePeriod = DefaultRatePeriod
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	return c, nil
}

func hasHeader(h map[string]string, name string) bool {
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// JoinURL joins base and endpoint with exactly one slash between them.
func JoinURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
