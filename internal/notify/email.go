package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	logx "adlytics/pkg/logx"
)

const defaultSubject = "No subject"

// Email is a single outgoing mail.
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Mailer submits an Email to a mail server.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// UseTLS requires STARTTLS; otherwise the session stays plain.
	UseTLS  bool
	Timeout time.Duration
}

// SMTPMailer sends mail with go-mail, one connection per message.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithTimeout(m.cfg.Timeout)}
	if m.cfg.Port > 0 {
		opts = append(opts, mail.WithPort(m.cfg.Port))
	}
	if m.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if m.cfg.User != "" && m.cfg.Password != "" {
		auth := mail.SMTPAuthPlain
		if !m.cfg.UseTLS {
			auth = mail.SMTPAuthPlainNoEnc
		}
		opts = append(opts,
			mail.WithSMTPAuth(auth),
			mail.WithUsername(m.cfg.User),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	msg, err := buildMsg(e)
	if err != nil {
		return err
	}
	c, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMsg(e Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", e.From, err)
	}
	if err := msg.To(e.To); err != nil {
		return nil, fmt.Errorf("to %q: %w", e.To, err)
	}
	msg.Subject(e.Subject)
	ct := mail.TypeTextPlain
	if e.HTML {
		ct = mail.TypeTextHTML
	}
	msg.SetBodyString(ct, e.Body)
	return msg, nil
}

// EmailSender delivers messages by mail. Type "html" sends an HTML body.
type EmailSender struct {
	mailer Mailer
	from   string
	log    logx.Logger
}

func NewEmailSender(mailer Mailer, from string, log logx.Logger) *EmailSender {
	return &EmailSender{mailer: mailer, from: from, log: log.With(logx.String("comp", "sender.email"))}
}

func (s *EmailSender) Deliver(ctx context.Context, m Message) bool {
	if !m.hasRecipientAndContent() {
		s.log.Warn("email missing recipient or content")
		return false
	}
	subject := m.Subject
	if strings.TrimSpace(subject) == "" {
		subject = defaultSubject
	}
	e := Email{
		From:    s.from,
		To:      strings.TrimSpace(m.To),
		Subject: subject,
		Body:    m.Content,
		HTML:    m.Type == "html",
	}
	if err := s.mailer.Send(ctx, e); err != nil {
		s.log.Error("email send failed", logx.String("to", e.To), logx.Err(err))
		return false
	}
	s.log.Info("email sent", logx.String("to", e.To), logx.Bool("html", e.HTML))
	return true
}
