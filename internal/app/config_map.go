package app

import (
	"strings"
	"time"

	"adlytics/internal/adapters/telegram"
	"adlytics/internal/config"
	"adlytics/internal/notify"
	"adlytics/internal/observability/ops"
	"adlytics/internal/storage"
	logx "adlytics/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Keep:        sc.Keep,
	}, true, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:   cfg.Telegram.Token,
		APIURL:  cfg.Telegram.APIURL,
		Timeout: timeout,
	}, nil
}

func mapSMTPConfig(cfg *config.Config) (notify.SMTPConfig, error) {
	timeout, err := config.ParseDurationOrDefault("smtp.timeout", cfg.SMTP.Timeout, 15*time.Second)
	if err != nil {
		return notify.SMTPConfig{}, err
	}
	return notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.FromEmail,
		UseTLS:   cfg.SMTP.UseTLS,
		Timeout:  timeout,
	}, nil
}

func mapSMSConfig(cfg *config.Config) notify.SMSConfig {
	return notify.SMSConfig{
		ProviderURL: cfg.SMS.ProviderURL,
		APIToken:    cfg.SMS.APIToken,
		SenderID:    cfg.SMS.SenderID,
	}
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func mapOpsConfig(cfg *config.Config) (ops.Config, bool) {
	o := cfg.Ops
	if o == nil || !o.Enabled {
		return ops.Config{}, false
	}
	return ops.Config{
		Addr:          strings.TrimSpace(o.Addr),
		Token:         strings.TrimSpace(o.Token),
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
	}, true
}
