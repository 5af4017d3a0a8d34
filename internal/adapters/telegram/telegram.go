package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"adlytics/internal/notify"
	logx "adlytics/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API base URL.
	APIURL  string
	Timeout time.Duration
}

// Bot sends outbound messages through the Telegram Bot API. It never polls
// for updates.
type Bot struct {
	bot *tele.Bot
	log logx.Logger
}

var _ notify.ChatBot = (*Bot)(nil)

func New(cfg Config, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Bot{bot: b, log: log.With(logx.String("comp", "telegram"))}, nil
}

// chat addresses a chat by numeric ID or @username.
type chat string

func (c chat) Recipient() string { return string(c) }

func (b *Bot) send(ctx context.Context, chatID string, what any) (err error) {
	// telebot dereferences reply fields it expects; a malformed reply panics.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("telegram: send panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return errors.New("telegram: empty chat id")
	}
	msg, err := b.bot.Send(chat(chatID), what)
	if err != nil {
		var flood tele.FloodError
		if errors.As(err, &flood) {
			b.log.Warn("telegram flood limit", logx.String("chat_id", chatID), logx.Int("retry_after", flood.RetryAfter))
		}
		return err
	}
	if msg != nil {
		b.log.Debug("telegram message sent", logx.String("chat_id", chatID), logx.Int("message_id", msg.ID))
	}
	return nil
}

func (b *Bot) SendText(ctx context.Context, chatID, text string) error {
	return b.send(ctx, chatID, text)
}

func (b *Bot) SendPhoto(ctx context.Context, chatID, photo string) error {
	return b.send(ctx, chatID, &tele.Photo{File: inputFile(photo)})
}

func (b *Bot) SendDocument(ctx context.Context, chatID, document string) error {
	doc := &tele.Document{File: inputFile(document)}
	if !isURL(document) {
		doc.FileName = filepath.Base(document)
	}
	return b.send(ctx, chatID, doc)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// inputFile picks a remote URL or a local path.
func inputFile(ref string) tele.File {
	ref = strings.TrimSpace(ref)
	if isURL(ref) {
		return tele.FromURL(ref)
	}
	return tele.FromDisk(ref)
}

// Lazy builds its Bot on first use. Construction runs at most once; a failed
// construction is reported by every later call.
type Lazy struct {
	build func() (*Bot, error)

	once sync.Once
	bot  *Bot
	err  error
}

var _ notify.ChatBot = (*Lazy)(nil)

func NewLazy(cfg Config, log logx.Logger) *Lazy {
	return &Lazy{build: func() (*Bot, error) { return New(cfg, log) }}
}

func (l *Lazy) get() (*Bot, error) {
	l.once.Do(func() { l.bot, l.err = l.build() })
	return l.bot, l.err
}

func (l *Lazy) SendText(ctx context.Context, chatID, text string) error {
	b, err := l.get()
	if err != nil {
		return err
	}
	return b.SendText(ctx, chatID, text)
}

func (l *Lazy) SendPhoto(ctx context.Context, chatID, photo string) error {
	b, err := l.get()
	if err != nil {
		return err
	}
	return b.SendPhoto(ctx, chatID, photo)
}

func (l *Lazy) SendDocument(ctx context.Context, chatID, document string) error {
	b, err := l.get()
	if err != nil {
		return err
	}
	return b.SendDocument(ctx, chatID, document)
}
