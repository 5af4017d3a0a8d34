package notify

import (
	"context"
	"fmt"

	logx "adlytics/pkg/logx"
)

// ChatKind is the delivery variant of a chat message.
type ChatKind int

const (
	ChatText ChatKind = iota
	ChatPhoto
	ChatDocument
)

func (k ChatKind) String() string {
	switch k {
	case ChatText:
		return "text"
	case ChatPhoto:
		return "photo"
	case ChatDocument:
		return "document"
	default:
		return fmt.Sprintf("ChatKind(%d)", int(k))
	}
}

// ParseChatKind maps a message type to a ChatKind. Empty means text; names
// are matched exactly.
func ParseChatKind(s string) (ChatKind, bool) {
	switch s {
	case "", "text":
		return ChatText, true
	case "photo":
		return ChatPhoto, true
	case "document":
		return ChatDocument, true
	default:
		return 0, false
	}
}

// ChatBot is the bot API surface ChatSender needs. For photo and document,
// content is a URL or a local file path.
type ChatBot interface {
	SendText(ctx context.Context, chatID, text string) error
	SendPhoto(ctx context.Context, chatID, photo string) error
	SendDocument(ctx context.Context, chatID, document string) error
}

// ChatSender delivers messages through a chat bot.
type ChatSender struct {
	bot ChatBot
	log logx.Logger
}

func NewChatSender(bot ChatBot, log logx.Logger) *ChatSender {
	return &ChatSender{bot: bot, log: log.With(logx.String("comp", "sender.telegram"))}
}

func (s *ChatSender) Deliver(ctx context.Context, m Message) bool {
	if !m.hasRecipientAndContent() {
		s.log.Warn("chat message missing recipient or content")
		return false
	}
	kind, ok := ParseChatKind(m.Type)
	if !ok {
		s.log.Warn("unsupported chat message type", logx.String("type", m.Type))
		return false
	}
	if s.bot == nil {
		s.log.Error("chat bot not configured")
		return false
	}

	var err error
	switch kind {
	case ChatText:
		err = s.bot.SendText(ctx, m.To, m.Content)
	case ChatPhoto:
		err = s.bot.SendPhoto(ctx, m.To, m.Content)
	case ChatDocument:
		err = s.bot.SendDocument(ctx, m.To, m.Content)
	}
	if err != nil {
		s.log.Error("chat send failed", logx.String("to", m.To), logx.String("type", kind.String()), logx.Err(err))
		return false
	}
	s.log.Info("chat message sent", logx.String("to", m.To), logx.String("type", kind.String()))
	return true
}
