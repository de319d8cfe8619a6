package app

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwatch/internal/eventbus"
	logx "trendwatch/pkg/logx"
)

func TestCycleStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		ev   eventbus.Event
		want string
	}{
		{eventbus.Event{Type: eventbus.CycleChanged, Time: at, Data: eventbus.CycleData{Items: 7}}, "last cycle 15:04:05: changed, 7 items"},
		{eventbus.Event{Type: eventbus.CycleUnchanged, Time: at, Data: eventbus.CycleData{Items: 7}}, "last cycle 15:04:05: unchanged, 7 items"},
		{eventbus.Event{Type: eventbus.CycleBaseline, Time: at, Data: eventbus.CycleData{Items: 3}}, "last cycle 15:04:05: baseline stored, 3 items"},
		{eventbus.Event{Type: eventbus.CycleFetchFailed, Time: at, Data: eventbus.CycleData{FetchKind: "timeout"}}, "last cycle 15:04:05: fetch failed (timeout)"},
	}
	for _, tt := range tests {
		got, ok := cycleStatus(tt.ev)
		require.True(t, ok, tt.ev.Type)
		assert.Equal(t, tt.want, got)
	}

	_, ok := cycleStatus(eventbus.Event{Type: eventbus.DispatchSent, Data: eventbus.DispatchData{}})
	assert.False(t, ok)
}

func TestReportStatusNotifiesSystemd(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "n.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	require.NoError(t, err)
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", sock)

	a := &App{bus: eventbus.New(), log: logx.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.reportStatus(ctx) }()

	// the subscription is registered asynchronously; publish until one lands
	buf := make([]byte, 256)
	var got string
	require.Eventually(t, func() bool {
		a.bus.Publish(eventbus.Event{Type: eventbus.CycleChanged, Data: eventbus.CycleData{Items: 4}})
		_ = conn.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		n, err := conn.Read(buf)
		if err != nil {
			return false
		}
		got = string(buf[:n])
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, strings.HasPrefix(got, "STATUS=last cycle "), got)
	assert.Contains(t, got, "changed, 4 items")

	cancel()
	assert.NoError(t, <-done)
}
