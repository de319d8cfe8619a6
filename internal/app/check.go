package app

import (
	"fmt"
	"io"
	"strings"

	"trendwatch/internal/config"
	"trendwatch/internal/dispatch"
	logx "trendwatch/pkg/logx"
)

// Effective is what a config resolves to after env overrides and validation.
type Effective struct {
	Source   string
	Schedule string
	Render   string
	Channels []dispatch.Channel
	Invalid  []error
	Liveness string
	Journal  string
	TokenSet bool
}

// CheckConfig loads and validates path (empty means environment only).
func CheckConfig(path string) (Effective, error) {
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Parse()
	if err != nil {
		return Effective{}, err
	}
	if err := Validate(cfg); err != nil {
		return Effective{}, err
	}

	f, _ := buildFetcher(cfg)
	sched, _, _ := mapPollConfig(cfg)
	_, invalid := cfg.Channels.ResolveChannels()

	eff := Effective{
		Source:   f.Name(),
		Schedule: sched.String(),
		Render:   string(mapRenderer(cfg).Mode()),
		Channels: mapRoutes(cfg, logx.Nop()).Channels(),
		Invalid:  invalid,
		Liveness: "disabled",
		Journal:  "disabled",
		TokenSet: strings.TrimSpace(cfg.Telegram.Token) != "",
	}
	if enabled, addr, metrics := mapLivenessConfig(cfg); enabled {
		eff.Liveness = addr
		if metrics {
			eff.Liveness += " +/metrics"
		}
		if cfg.Liveness.Pprof {
			eff.Liveness += " +/debug/pprof"
		}
	}
	if sc, enabled, _ := mapStorageConfig(cfg); enabled {
		eff.Journal = sc.Driver + ":" + sc.Path
	}
	return eff, nil
}

func (e Effective) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "source:    %s\n", e.Source)
	fmt.Fprintf(&b, "schedule:  %s\n", e.Schedule)
	fmt.Fprintf(&b, "render:    %s\n", e.Render)
	fmt.Fprintf(&b, "token:     %t\n", e.TokenSet)
	fmt.Fprintf(&b, "liveness:  %s\n", e.Liveness)
	fmt.Fprintf(&b, "journal:   %s\n", e.Journal)
	if len(e.Channels) == 0 {
		b.WriteString("channels:  none (changes are tracked but not sent)\n")
	} else {
		b.WriteString("channels:\n")
		for _, c := range e.Channels {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	for _, err := range e.Invalid {
		fmt.Fprintf(&b, "disabled:  %v\n", err)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
