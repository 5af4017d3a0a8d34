package app

import (
	"fmt"
	"io"
	"strings"

	"adlytics/internal/adapters/telegram"
	"adlytics/internal/config"
	"adlytics/internal/notify"
	logx "adlytics/pkg/logx"
)

// buildSenders constructs one sender per enabled channel. Closers release
// sender-owned sessions on shutdown.
func buildSenders(cfg *config.Config, log logx.Logger, lazyTelegram bool) (map[string]notify.Sender, []io.Closer, error) {
	senders := make(map[string]notify.Sender, len(cfg.Notify.Channels))
	var closers []io.Closer

	for _, raw := range cfg.Notify.Channels {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case config.ChannelTelegram:
			tc, err := mapTelegramConfig(cfg)
			if err != nil {
				return nil, closers, err
			}
			var bot notify.ChatBot
			if lazyTelegram {
				bot = telegram.NewLazy(tc, log)
			} else {
				b, err := telegram.New(tc, log)
				if err != nil {
					return nil, closers, fmt.Errorf("telegram: %w", err)
				}
				bot = b
			}
			senders[name] = notify.NewChatSender(bot, log)

		case config.ChannelEmail:
			sc, err := mapSMTPConfig(cfg)
			if err != nil {
				return nil, closers, err
			}
			senders[name] = notify.NewEmailSender(notify.NewSMTPMailer(sc), sc.From, log)

		case config.ChannelSMS:
			s, err := notify.NewSmsSender(mapSMSConfig(cfg), log)
			if err != nil {
				return nil, closers, fmt.Errorf("sms: %w", err)
			}
			senders[name] = s
			closers = append(closers, s)

		default:
			return nil, closers, fmt.Errorf("unknown channel %q", raw)
		}
	}
	return senders, closers, nil
}
