package config

import (
	"reflect"
	"strings"

	logx "trendwatch/pkg/logx"
)

// SummarizeChange returns the names of the sections that differ between
// two configs and safe log fields describing the new values. Secrets (the
// bot token) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""))
	}
	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs, logx.String("source.kind", newCfg.Source.Kind))
	}
	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.interval", newCfg.Poll.Interval),
			logx.String("poll.fetch_timeout", newCfg.Poll.FetchTimeout),
		)
	}
	if !reflect.DeepEqual(oldCfg.Channels, newCfg.Channels) {
		changed = append(changed, "channels")
		attrs = append(attrs,
			logx.Int("channels.alert", len(newCfg.Channels.Alert)),
			logx.Int("channels.log", len(newCfg.Channels.Log)),
			logx.Bool("channels.backup_set", strings.TrimSpace(newCfg.Channels.Backup) != ""),
		)
	}
	if oldCfg.Render != newCfg.Render {
		changed = append(changed, "render")
		attrs = append(attrs, logx.String("render.mode", newCfg.Render.Mode))
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.send_timeout", newCfg.Dispatch.SendTimeout),
			logx.Int("dispatch.retry_max", newCfg.Dispatch.RetryMax),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Liveness, newCfg.Liveness) {
		changed = append(changed, "liveness")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	return changed, attrs
}
