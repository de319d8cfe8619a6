package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables understood on top of the config file.
const (
	EnvToken    = "API_KEY"
	EnvAlert    = "ALERT_CHAT_ID"
	EnvLog      = "LOG_CHAT_ID"
	EnvBackup   = "CHAT_ID"
	EnvInterval = "TRENDWATCH_INTERVAL"
	EnvPort     = "PORT"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. lookup is os.LookupEnv
// in production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookupNonEmpty(lookup, EnvToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvAlert); ok {
		cfg.Channels.Alert = splitList(v)
	}
	if v, ok := lookupNonEmpty(lookup, EnvLog); ok {
		cfg.Channels.Log = splitList(v)
	}
	if v, ok := lookupNonEmpty(lookup, EnvBackup); ok {
		cfg.Channels.Backup = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvInterval); ok {
		cfg.Poll.Interval = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvPort); ok {
		cfg.Liveness.Addr = ":" + strings.TrimPrefix(v, ":")
	}
}

func lookupNonEmpty(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
