package config

import (
	"errors"
	"fmt"
	"strings"

	"trendwatch/internal/transport"
	logx "trendwatch/pkg/logx"
)

// ChannelError reports an unusable channel id. It disables that id only.
type ChannelError struct {
	Role string
	ID   string
	Err  error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channels.%s: %q: %v", e.Role, e.ID, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ChannelSet is the parsed routing table.
type ChannelSet struct {
	Alert  []transport.ChatTarget
	Log    []transport.ChatTarget
	Backup *transport.ChatTarget
}

func (s ChannelSet) Empty() bool {
	return len(s.Alert) == 0 && len(s.Log) == 0 && s.Backup == nil
}

// ResolveChannels parses every configured id. Invalid ids are skipped and
// returned as *ChannelError; the rest of the set stays usable.
func (c ChannelsConfig) ResolveChannels() (ChannelSet, []error) {
	var (
		set  ChannelSet
		errs []error
	)
	parse := func(role string, ids []string) []transport.ChatTarget {
		out := make([]transport.ChatTarget, 0, len(ids))
		for _, id := range ids {
			t, err := transport.ParseChatTarget(id)
			if err != nil {
				errs = append(errs, &ChannelError{Role: role, ID: id, Err: err})
				continue
			}
			out = append(out, t)
		}
		return out
	}
	set.Alert = parse("alert", c.Alert)
	set.Log = parse("log", c.Log)
	if strings.TrimSpace(c.Backup) != "" {
		if b := parse("backup", []string{c.Backup}); len(b) == 1 {
			set.Backup = &b[0]
		}
	}
	return set, errs
}

// Validate checks everything that can be checked without building
// components. Channel ids are not checked here: a bad id disables itself.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	durations := map[string]string{
		"telegram.request_timeout": c.Telegram.RequestTimeout,
		"poll.fetch_timeout":       c.Poll.FetchTimeout,
		"dispatch.send_timeout":    c.Dispatch.SendTimeout,
		"dispatch.retry_base":      c.Dispatch.RetryBase,
		"dispatch.retry_max_delay": c.Dispatch.RetryMaxDelay,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Source.Kind)) {
	case "", "coingecko":
	case "scrape":
		if strings.TrimSpace(c.Source.URL) == "" {
			return errors.New("source.url is required for kind=scrape")
		}
		if strings.TrimSpace(c.Source.Scrape.Row) == "" || strings.TrimSpace(c.Source.Scrape.Name) == "" {
			return errors.New("source.scrape.row and source.scrape.name are required for kind=scrape")
		}
	default:
		return fmt.Errorf("source.kind: unknown %q (use coingecko or scrape)", c.Source.Kind)
	}

	switch strings.ToLower(strings.TrimSpace(c.Render.Mode)) {
	case "", "html", "plain":
	default:
		return fmt.Errorf("render.mode: unknown %q (use html or plain)", c.Render.Mode)
	}

	if c.Dispatch.RatePerSec < 0 {
		return errors.New("dispatch.rate_per_sec must be >= 0")
	}
	if c.Dispatch.RetryMax < 0 {
		return errors.New("dispatch.retry_max must be >= 0")
	}
	if !logx.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unknown %q", c.Logging.Level)
	}
	if c.Logging.Telegram.Enabled {
		if _, err := transport.ParseChatTarget(c.Logging.Telegram.Chat); err != nil {
			return fmt.Errorf("logging.telegram.chat: %w", err)
		}
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return errors.New("storage.path is required")
			}
		default:
			return fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver)
		}
	}
	return nil
}
