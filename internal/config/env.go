package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvConfigPath names the variable that points at the config file.
const EnvConfigPath = "ADLYTICS_CONFIG"

// ApplyEnv injects environment-provided settings on top of file config.
// Non-empty variables win over file values. A malformed numeric or boolean
// variable is an error; every bad variable is reported.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var errs []error

	setString(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")

	setString(&cfg.SMTP.Host, "SMTP_HOST")
	errs = append(errs, setInt(&cfg.SMTP.Port, "SMTP_PORT"))
	setString(&cfg.SMTP.User, "SMTP_USER")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.FromEmail, "SMTP_FROM_EMAIL")
	errs = append(errs, setBool(&cfg.SMTP.UseTLS, "SMTP_USE_TLS"))

	setString(&cfg.SMS.ProviderURL, "SMS_PROVIDER_URL")
	setString(&cfg.SMS.APIToken, "SMS_API_TOKEN")
	setString(&cfg.SMS.SenderID, "SMS_SENDER_ID")

	setString(&cfg.Broker.KafkaURL, "KAFKA_BROKER_URL")
	setString(&cfg.Broker.TopicNotifications, "KAFKA_TOPIC_NOTIFICATIONS")
	setString(&cfg.Broker.TopicFailed, "KAFKA_TOPIC_FAILED")
	setString(&cfg.Cache.RedisURL, "REDIS_URL")
	setString(&cfg.Cache.TTL, "REDIS_CACHE_TTL")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if v := env("LOG_FILE_PATH"); v != "" {
		cfg.Logging.File.Enabled = true
		cfg.Logging.File.Path = v
	}

	if v := env("OPS_TOKEN"); v != "" && cfg.Ops != nil {
		cfg.Ops.Token = v
	}

	if v := env("SQLITE_DB_PATH"); v != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.Path = v
	}
	return errors.Join(errs...)
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}
