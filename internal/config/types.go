package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Source   SourceConfig   `json:"source"`
	Poll     PollConfig     `json:"poll"`
	Channels ChannelsConfig `json:"channels"`
	Render   RenderConfig   `json:"render"`
	Dispatch DispatchConfig `json:"dispatch"`
	Logging  LoggingConfig  `json:"logging"`
	Liveness LivenessConfig `json:"liveness"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied through API_KEY.
	Token string `json:"token"`
	// RequestTimeout bounds each Bot API call (default "10s").
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// SourceConfig selects the fetcher.
//
// Kind values:
//   - "coingecko": the CoinGecko /search/trending JSON API (default)
//   - "scrape": an HTML page parsed with CSS selectors
type SourceConfig struct {
	Kind      string       `json:"kind"`
	URL       string       `json:"url,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
	Scrape    ScrapeConfig `json:"scrape,omitempty"`
}

// ScrapeConfig holds CSS selectors for the "scrape" source. Name, Symbol and
// Change are evaluated inside each Row match.
type ScrapeConfig struct {
	Row    string `json:"row,omitempty"`
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	Change string `json:"change,omitempty"`
}

type PollConfig struct {
	// Interval is a duration ("60s"), HH:MM, or a cron expression
	// ("cron:*/2 * * * *", "@every 1m"). Default "60s".
	Interval     string `json:"interval"`
	FetchTimeout string `json:"fetch_timeout,omitempty"`
}

// ChannelsConfig routes notifications. Ids are "<chat_id>" or
// "<chat_id>/<thread_id>". An empty or invalid id disables only itself.
type ChannelsConfig struct {
	Alert  []string `json:"alert"`
	Log    []string `json:"log"`
	Backup string   `json:"backup,omitempty"`
}

type RenderConfig struct {
	Mode       string `json:"mode,omitempty"` // "html" (default) | "plain"
	ShowChange bool   `json:"show_change,omitempty"`
}

// DispatchConfig tunes channel delivery.
//
// Defaults: send_timeout "10s", rate_per_sec 3, retry_max 0,
// retry_base "500ms", retry_max_delay "5s".
type DispatchConfig struct {
	SendTimeout   string `json:"send_timeout,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	Chat       string `json:"chat"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// LivenessConfig controls the keep-alive HTTP endpoint.
//
// Enabled is a pointer so an omitted section defaults to on.
type LivenessConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default ":10000"
	Metrics bool   `json:"metrics,omitempty"`
	// Pprof exposes /debug/pprof on the same listener. Keep it off on
	// public addresses.
	Pprof bool `json:"pprof,omitempty"`
}

// StorageConfig enables the delivery journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./trendwatch.db" }
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}
