package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const yamlConfig = `
telegram:
  token: "123:abc"
source:
  kind: coingecko
poll:
  interval: 30s
channels:
  alert: ["-1001", "-1002/7"]
  log: ["-1003"]
  backup: "42"
render:
  mode: plain
logging:
  level: debug
  console: true
`

func TestParseYAML(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.yaml", yamlConfig))
	m.SetLookup(noEnv)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "30s", cfg.Poll.Interval)
	assert.Equal(t, []string{"-1001", "-1002/7"}, cfg.Channels.Alert)
	assert.Equal(t, "42", cfg.Channels.Backup)
	assert.Equal(t, "plain", cfg.Render.Mode)
	assert.Same(t, cfg, m.Get())
	require.NoError(t, cfg.Validate())
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.json", `{"poll":{"interval":"1m"},"bogus":1}`))
	m.SetLookup(noEnv)

	_, err := m.Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestParseYAMLRejectsUnknownFields(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.yml", "poll:\n  every: 1m\n"))
	m.SetLookup(noEnv)

	_, err := m.Parse()
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.yaml", yamlConfig))
	m.SetLookup(envMap(map[string]string{
		EnvToken:    "999:zzz",
		EnvAlert:    " -5, ,-6 ",
		EnvBackup:   "77",
		EnvInterval: "cron:*/2 * * * *",
		EnvPort:     "8080",
	}))

	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "999:zzz", cfg.Telegram.Token)
	assert.Equal(t, []string{"-5", "-6"}, cfg.Channels.Alert)
	assert.Equal(t, []string{"-1003"}, cfg.Channels.Log)
	assert.Equal(t, "77", cfg.Channels.Backup)
	assert.Equal(t, "cron:*/2 * * * *", cfg.Poll.Interval)
	assert.Equal(t, ":8080", cfg.Liveness.Addr)
}

func TestEnvOnlyConfig(t *testing.T) {
	m := NewConfigManager("")
	m.SetLookup(envMap(map[string]string{EnvToken: "t", EnvLog: "-9"}))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "t", cfg.Telegram.Token)
	assert.Equal(t, []string{"-9"}, cfg.Channels.Log)
}

func TestLoadDotEnvMissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
	require.NoError(t, LoadDotEnv(""))
}

func TestResolveChannelsIsolatesBadIDs(t *testing.T) {
	set, errs := ChannelsConfig{
		Alert:  []string{"-100", "abc", "-200/3"},
		Log:    []string{"0"},
		Backup: "55",
	}.ResolveChannels()

	require.Len(t, set.Alert, 2)
	assert.Equal(t, int64(-100), set.Alert[0].ChatID)
	assert.Equal(t, 3, set.Alert[1].ThreadID)
	assert.Empty(t, set.Log)
	require.NotNil(t, set.Backup)
	assert.Equal(t, int64(55), set.Backup.ChatID)

	require.Len(t, errs, 2)
	var ce *ChannelError
	require.True(t, errors.As(errs[0], &ce))
	assert.Equal(t, "alert", ce.Role)
	assert.Equal(t, "abc", ce.ID)
	require.True(t, errors.As(errs[1], &ce))
	assert.Equal(t, "log", ce.Role)
}

func TestResolveChannelsEmpty(t *testing.T) {
	set, errs := ChannelsConfig{}.ResolveChannels()
	assert.True(t, set.Empty())
	assert.Empty(t, errs)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(c *Config)
		ok   bool
	}{
		{"zero", func(c *Config) {}, true},
		{"bad duration", func(c *Config) { c.Poll.FetchTimeout = "soon" }, false},
		{"negative duration", func(c *Config) { c.Dispatch.SendTimeout = "-1s" }, false},
		{"unknown source", func(c *Config) { c.Source.Kind = "rss" }, false},
		{"scrape without url", func(c *Config) { c.Source.Kind = "scrape" }, false},
		{"scrape ok", func(c *Config) {
			c.Source = SourceConfig{Kind: "scrape", URL: "http://x", Scrape: ScrapeConfig{Row: "tr", Name: ".n"}}
		}, true},
		{"bad render mode", func(c *Config) { c.Render.Mode = "markdown" }, false},
		{"negative retry", func(c *Config) { c.Dispatch.RetryMax = -1 }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"telegram log without chat", func(c *Config) { c.Logging.Telegram.Enabled = true }, false},
		{"storage without path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, false},
		{"unknown storage", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis", Path: "x"} }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c Config
			tc.mut(&c)
			err := c.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSummarizeChangeOmitsToken(t *testing.T) {
	oldCfg := &Config{Telegram: TelegramConfig{Token: "secret-1"}}
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "secret-2"},
		Channels: ChannelsConfig{Alert: []string{"-1"}},
	}
	changed, attrs := SummarizeChange(oldCfg, newCfg)
	assert.Equal(t, []string{"telegram", "channels"}, changed)
	assert.NotEmpty(t, attrs)

	changed, _ = SummarizeChange(newCfg, newCfg)
	assert.Empty(t, changed)
}

func TestWatchPublishesReload(t *testing.T) {
	path := writeFile(t, "config.yaml", "poll:\n  interval: 1m\n")
	m := NewConfigManager(path)
	m.SetLookup(noEnv)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("poll:\n  interval: 2m\n"), 0o600))

	select {
	case cfg := <-sub:
		assert.Equal(t, "2m", cfg.Poll.Interval)
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	cancel()
	<-done
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := newBackoff(100*time.Millisecond, 300*time.Millisecond)
	first := b.next()
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.LessOrEqual(t, first, 150*time.Millisecond)
	_ = b.next()
	third := b.next()
	assert.GreaterOrEqual(t, third, 300*time.Millisecond)
	b.reset()
	assert.Equal(t, 100*time.Millisecond, b.cur)
}

func TestYAMLToJSON(t *testing.T) {
	j, err := yamlToJSON([]byte(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(j))

	j, err = yamlToJSON([]byte("channels:\n  alert: [\"-1\"]\nmeta:\n  1: one\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"channels":{"alert":["-1"]},"meta":{"1":"one"}}`, string(j))

	_, err = yamlToJSON([]byte("poll: [unclosed"))
	assert.Error(t, err)

	assert.True(t, isYAMLPath("x/CONFIG.YML"))
	assert.False(t, isYAMLPath("config.json"))
}

func TestParseEmptyYAMLUsesEnv(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.yaml", ""))
	m.SetLookup(envMap(map[string]string{EnvToken: "t"}))

	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "t", cfg.Telegram.Token)
}

func TestParseDurationField(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr string
	}{
		{"", 0, ""},
		{" 1m30s ", 90 * time.Second, ""},
		{"soon", 0, "poll.fetch_timeout"},
		{"-1s", 0, "negative"},
	}
	for _, tt := range tests {
		d, err := ParseDurationField("poll.fetch_timeout", tt.raw)
		if tt.wantErr != "" {
			require.Error(t, err, tt.raw)
			assert.Contains(t, err.Error(), tt.wantErr)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, d)
	}

	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
	_, err = ParseDurationOrDefault("x", "bad", 5*time.Second)
	assert.Error(t, err)
}
