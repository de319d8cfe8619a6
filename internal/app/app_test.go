package app

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwatch/internal/config"
	"trendwatch/internal/dispatch"
	"trendwatch/internal/watcher"
	logx "trendwatch/pkg/logx"
)

const (
	btcEth  = `{"coins":[{"item":{"name":"Bitcoin","symbol":"BTC"}},{"item":{"name":"Ether","symbol":"ETH"}}]}`
	ethDoge = `{"coins":[{"item":{"name":"Ether","symbol":"ETH"}},{"item":{"name":"Doge","symbol":"DOGE"}}]}`
)

// trendingServer serves bodies in order, repeating the last one.
func trendingServer(t *testing.T, bodies ...string) *httptest.Server {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		i := min(int(n.Add(1))-1, len(bodies)-1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(bodies[i]))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func testConfig(t *testing.T, url string) string {
	journal := filepath.Join(t.TempDir(), "journal.jsonl")
	return writeConfig(t, fmt.Sprintf(`
source:
  kind: coingecko
  url: %q
poll:
  interval: 1m
  fetch_timeout: 2s
channels:
  alert: ["-100"]
  log: ["-200", "not-a-chat"]
  backup: "300"
dispatch:
  rate_per_sec: 50
liveness:
  enabled: false
storage:
  driver: file
  path: %q
`, url, journal))
}

func TestValidate(t *testing.T) {
	cfg := &config.Config{Poll: config.PollConfig{Interval: "cron:*/2 * * * *"}}
	require.NoError(t, Validate(cfg))

	cfg.Poll.Interval = "cron:nonsense"
	assert.Error(t, Validate(cfg))

	cfg = &config.Config{Dispatch: config.DispatchConfig{RetryBase: "soon"}}
	assert.Error(t, Validate(cfg))

	cfg = &config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}}
	assert.Error(t, Validate(cfg))
}

func TestMapRoutesSkipsInvalidIDs(t *testing.T) {
	cfg := &config.Config{Channels: config.ChannelsConfig{
		Alert:  []string{"-100", ""},
		Log:    []string{"x"},
		Backup: "7/3",
	}}
	r := mapRoutes(cfg, logx.Nop())

	require.Len(t, r.Alert, 1)
	assert.Equal(t, int64(-100), r.Alert[0].ChatID)
	assert.Empty(t, r.Log)
	require.NotNil(t, r.Backup)
	assert.Equal(t, 3, r.Backup.ThreadID)
}

func TestMapLivenessDefaults(t *testing.T) {
	enabled, addr, metrics := mapLivenessConfig(&config.Config{})
	assert.True(t, enabled)
	assert.Equal(t, ":10000", addr)
	assert.False(t, metrics)

	off := false
	enabled, _, _ = mapLivenessConfig(&config.Config{Liveness: config.LivenessConfig{Enabled: &off}})
	assert.False(t, enabled)
}

func TestMapRendererMode(t *testing.T) {
	assert.Equal(t, "plain", string(mapRenderer(&config.Config{Render: config.RenderConfig{Mode: "PLAIN"}}).Mode()))
	assert.Equal(t, "html", string(mapRenderer(&config.Config{}).Mode()))
}

func TestNewRequiresTokenUnlessDryRun(t *testing.T) {
	t.Setenv(config.EnvToken, "")
	srv := trendingServer(t, btcEth)
	_, err := New(Options{ConfigPath: testConfig(t, srv.URL)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestDryRunCycles(t *testing.T) {
	srv := trendingServer(t, btcEth, btcEth, ethDoge)
	var out bytes.Buffer
	a, err := New(Options{ConfigPath: testConfig(t, srv.URL), DryRun: true, Stdout: &out})
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	assert.Equal(t, watcher.OutcomeBaseline, a.Loop().RunOnce(ctx).Outcome)
	assert.Empty(t, out.String())

	rep := a.Loop().RunOnce(ctx)
	assert.Equal(t, watcher.OutcomeUnchanged, rep.Outcome)
	assert.NotContains(t, out.String(), "#ALERT")
	assert.Contains(t, out.String(), dispatch.BackupQuiet)

	out.Reset()
	rep = a.Loop().RunOnce(ctx)
	require.Equal(t, watcher.OutcomeChanged, rep.Outcome)
	assert.Contains(t, out.String(), "to=-100")
	assert.Contains(t, out.String(), "#ALERT")
	assert.Contains(t, out.String(), "Doge (DOGE)")

	require.True(t, a.JournalEnabled())
	recs, err := a.Journal(ctx, 10)
	require.NoError(t, err)
	// two quiet sends, three alert-set sends
	assert.Len(t, recs, 5)
	assert.True(t, recs[0].Changed)
}

func TestPreviewDoesNotTouchState(t *testing.T) {
	srv := trendingServer(t, ethDoge)
	var out bytes.Buffer
	a, err := New(Options{ConfigPath: testConfig(t, srv.URL), DryRun: true, Stdout: &out})
	require.NoError(t, err)
	defer a.Close()

	text, err := a.Preview(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "Ether (ETH)")
	assert.Contains(t, text, "Doge (DOGE)")
	assert.Equal(t, watcher.AwaitingFirstSnapshot, a.Loop().Phase())
	assert.Empty(t, out.String())
}

func TestReloadAppliesRoutes(t *testing.T) {
	srv := trendingServer(t, btcEth, ethDoge)
	var out bytes.Buffer
	path := testConfig(t, srv.URL)
	a, err := New(Options{ConfigPath: path, DryRun: true, Stdout: &out})
	require.NoError(t, err)
	defer a.Close()

	cfg := *a.cfgm.Get()
	cfg.Channels = config.ChannelsConfig{Alert: []string{"-999"}}
	a.apply(&cfg, []string{"channels"})

	ctx := context.Background()
	a.Loop().RunOnce(ctx)
	a.Loop().RunOnce(ctx)
	assert.Contains(t, out.String(), "to=-999")
	assert.NotContains(t, out.String(), "to=-100")
}

func TestStartStop(t *testing.T) {
	srv := trendingServer(t, btcEth)
	a, err := New(Options{ConfigPath: testConfig(t, srv.URL), DryRun: true, Stdout: &bytes.Buffer{}})
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool { return a.Loop().Phase() == watcher.Steady }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSignal))
	<-a.Done()
	assert.NoError(t, a.Err())
}

func livenessConfig(t *testing.T, url, addr string) string {
	t.Setenv(config.EnvPort, "")
	return writeConfig(t, fmt.Sprintf(`
source:
  url: %q
poll:
  interval: 1h
channels:
  log: ["-200"]
liveness:
  addr: %q
`, url, addr))
}

func TestStartFailsOnBusyLivenessPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := trendingServer(t, btcEth)
	a, err := New(Options{ConfigPath: livenessConfig(t, srv.URL, busy.Addr().String()), DryRun: true, Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	defer a.Close()

	err = a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liveness listen")
}

func TestLoopSurvivesLivenessFailure(t *testing.T) {
	srv := trendingServer(t, btcEth)
	a, err := New(Options{ConfigPath: livenessConfig(t, srv.URL, "127.0.0.1:0"), DryRun: true, Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.NotNil(t, a.live)

	// closing the listener makes Serve fail
	require.NoError(t, a.live.Close())

	select {
	case <-a.Done():
		t.Fatalf("app stopped after liveness failure: %v", a.Err())
	case <-time.After(300 * time.Millisecond):
	}
	assert.NoError(t, a.Err())
	require.Eventually(t, func() bool { return a.Loop().Phase() == watcher.Steady }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSignal))
}

func TestCheckConfig(t *testing.T) {
	srv := trendingServer(t, btcEth)
	eff, err := CheckConfig(testConfig(t, srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "coingecko", eff.Source)
	assert.Equal(t, "every 1m0s", eff.Schedule)
	assert.Equal(t, "disabled", eff.Liveness)
	assert.True(t, strings.HasPrefix(eff.Journal, "file:"))
	require.Len(t, eff.Channels, 3)
	require.Len(t, eff.Invalid, 1)

	var b strings.Builder
	_, err = eff.WriteTo(&b)
	require.NoError(t, err)
	assert.Contains(t, b.String(), "alert#1")
	assert.Contains(t, b.String(), "not-a-chat")
}
