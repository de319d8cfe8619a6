package app

import (
	"fmt"
	"strings"
	"time"

	"trendwatch/internal/config"
	"trendwatch/internal/dispatch"
	"trendwatch/internal/fetcher"
	"trendwatch/internal/liveness"
	"trendwatch/internal/render"
	"trendwatch/internal/storage"
	"trendwatch/internal/transport"
	"trendwatch/internal/watcher"
	logx "trendwatch/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	out := logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
	if t, err := transport.ParseChatTarget(lc.Telegram.Chat); err == nil {
		out.Telegram.Target = t
	}
	return out
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	dc := cfg.Dispatch
	sendTimeout, err := config.ParseDurationOrDefault("dispatch.send_timeout", dc.SendTimeout, 10*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	base, err := config.ParseDurationOrDefault("dispatch.retry_base", dc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return dispatch.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("dispatch.retry_max_delay", dc.RetryMaxDelay, 5*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		SendTimeout:   sendTimeout,
		RatePerSec:    dc.RatePerSec,
		RetryMax:      dc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

// mapRoutes drops unusable channel ids and logs each one.
func mapRoutes(cfg *config.Config, log logx.Logger) dispatch.Routes {
	set, errs := cfg.Channels.ResolveChannels()
	for _, err := range errs {
		log.Warn("channel disabled", logx.Err(err))
	}
	r := dispatch.Routes{Alert: set.Alert, Log: set.Log, Backup: set.Backup}
	if r.Empty() {
		log.Warn("no usable channels configured; changes will be tracked but not sent")
	}
	return r
}

func mapRenderer(cfg *config.Config) *render.Renderer {
	mode := render.ModeHTML
	if strings.EqualFold(strings.TrimSpace(cfg.Render.Mode), string(render.ModePlain)) {
		mode = render.ModePlain
	}
	return render.New(render.Options{Mode: mode, ShowChange: cfg.Render.ShowChange})
}

func mapPollConfig(cfg *config.Config) (watcher.Schedule, time.Duration, error) {
	sched, err := watcher.ParseSchedule(cfg.Poll.Interval)
	if err != nil {
		return nil, 0, fmt.Errorf("poll.interval: %w", err)
	}
	fetchTimeout, err := config.ParseDurationOrDefault("poll.fetch_timeout", cfg.Poll.FetchTimeout, 10*time.Second)
	if err != nil {
		return nil, 0, err
	}
	return sched, fetchTimeout, nil
}

func buildFetcher(cfg *config.Config) (fetcher.Fetcher, error) {
	sc := cfg.Source
	opt := fetcher.Options{URL: sc.URL, UserAgent: sc.UserAgent}
	switch strings.ToLower(strings.TrimSpace(sc.Kind)) {
	case "", "coingecko":
		return fetcher.NewCoinGecko(opt), nil
	case "scrape":
		return fetcher.NewScrape(opt, fetcher.Selectors{
			Row:    sc.Scrape.Row,
			Name:   sc.Scrape.Name,
			Symbol: sc.Scrape.Symbol,
			Change: sc.Scrape.Change,
		})
	default:
		return nil, fmt.Errorf("unknown source.kind: %s", sc.Kind)
	}
}

func mapLivenessConfig(cfg *config.Config) (enabled bool, addr string, metrics bool) {
	lc := cfg.Liveness
	enabled = lc.Enabled == nil || *lc.Enabled
	addr = strings.TrimSpace(lc.Addr)
	if addr == "" {
		addr = liveness.DefaultAddr
	}
	return enabled, addr, lc.Metrics
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	path := strings.TrimSpace(cfg.Storage.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: time.Second}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
}

// Validate is the full check run at startup and before committing a reload.
func Validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, _, err := mapPollConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := buildFetcher(cfg); err != nil {
		return err
	}
	_, _, err := mapStorageConfig(cfg)
	return err
}
