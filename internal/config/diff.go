package config

import (
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "adlytics/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections, safe structured
// attrs for logging (never secrets), and the names of sources that changed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.String("telegram.timeout", newCfg.Telegram.Timeout),
		)
	}
	if oldCfg.SMTP != newCfg.SMTP {
		changed = append(changed, "smtp")
		attrs = append(attrs,
			logx.String("smtp.host", newCfg.SMTP.Host),
			logx.Int("smtp.port", newCfg.SMTP.Port),
			logx.Bool("smtp.use_tls", newCfg.SMTP.UseTLS),
		)
	}
	if oldCfg.SMS != newCfg.SMS {
		changed = append(changed, "sms")
		attrs = append(attrs, logx.Bool("sms.token_set", strings.TrimSpace(newCfg.SMS.APIToken) != ""))
	}
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.channels", strings.Join(newCfg.Notify.Channels, ",")),
			logx.Bool("notify.alert", newCfg.Notify.Alert != nil),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}

	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		changed = append(changed, "ops")
		if newCfg.Ops != nil {
			attrs = append(attrs,
				logx.Bool("ops.enabled", newCfg.Ops.Enabled),
				logx.String("ops.addr", newCfg.Ops.Addr),
				logx.Bool("ops.pprof", newCfg.Ops.Pprof),
			)
		}
	}

	sources := diffSources(oldCfg.Ingestion.Sources, newCfg.Ingestion.Sources)
	if len(sources) > 0 || oldCfg.Ingestion.Timezone != newCfg.Ingestion.Timezone {
		changed = append(changed, "ingestion")
		attrs = append(attrs,
			logx.Int("ingestion.sources", len(newCfg.Ingestion.Sources)),
			logx.Int("ingestion.sources_changed", len(sources)),
		)
	}

	return changed, attrs, sources
}

func diffSources(oldS, newS []SourceConfig) []string {
	index := func(in []SourceConfig) map[string]SourceConfig {
		m := make(map[string]SourceConfig, len(in))
		for _, s := range in {
			m[s.Name] = s
		}
		return m
	}
	om, nm := index(oldS), index(newS)

	var out []string
	for name, n := range nm {
		o, ok := om[name]
		if !ok || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	for name := range om {
		if _, ok := nm[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
