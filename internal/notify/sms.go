package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"adlytics/internal/httpclient"
	logx "adlytics/pkg/logx"
)

const smsTimeout = 10 * time.Second

type SMSConfig struct {
	ProviderURL string
	APIToken    string
	SenderID    string
}

type smsPayload struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

// SmsSender posts messages to an HTTP SMS gateway.
type SmsSender struct {
	client   *httpclient.Client
	endpoint string
	from     string
	log      logx.Logger
}

func NewSmsSender(cfg SMSConfig, log logx.Logger, opts ...httpclient.Option) (*SmsSender, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.ProviderURL))
	if err != nil {
		return nil, fmt.Errorf("sms provider url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("sms provider url must be absolute")
	}
	if u.User != nil {
		return nil, errors.New("sms provider url must not carry credentials; use the api token")
	}
	log = log.With(logx.String("comp", "sender.sms"))
	opts = append([]httpclient.Option{httpclient.WithLogger(log)}, opts...)
	client, err := httpclient.New(httpclient.Config{
		BaseURL:     u.Scheme + "://" + u.Host,
		Token:       cfg.APIToken,
		Headers:     map[string]string{"Accept": "application/json"},
		MaxAttempts: 1,
		Timeout:     smsTimeout,
	}, httpclient.Identity, opts...)
	if err != nil {
		return nil, err
	}
	return &SmsSender{client: client, endpoint: u.RequestURI(), from: cfg.SenderID, log: log}, nil
}

func (s *SmsSender) Deliver(ctx context.Context, m Message) bool {
	if !m.hasRecipientAndContent() {
		s.log.Warn("sms missing recipient or content")
		return false
	}
	body, err := s.client.Post(ctx, s.endpoint, smsPayload{To: m.To, From: s.from, Text: m.Content}, nil, nil)
	if err != nil {
		s.log.Error("sms send failed", logx.String("to", m.To), logx.Err(err))
		return false
	}
	if body.Status != http.StatusOK && body.Status != http.StatusCreated {
		s.log.Warn("sms gateway returned unexpected status", logx.String("to", m.To), logx.Int("status", body.Status))
		return false
	}
	s.log.Info("sms sent", logx.String("to", m.To), logx.Int("status", body.Status))
	return true
}

func (s *SmsSender) Close() error { return s.client.Close() }
