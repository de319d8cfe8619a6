package systemd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	logx "trendwatch/pkg/logx"
)

func TestNoopOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	Ready(logx.Nop())
	Status(logx.Nop(), "polling")
	Stopping(logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, Watchdog(ctx, logx.Nop()))
	assert.NoError(t, ctx.Err(), "Watchdog should return immediately when disabled")
}
