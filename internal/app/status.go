package app

import (
	"context"
	"fmt"

	"trendwatch/internal/eventbus"
	"trendwatch/pkg/systemd"
)

// cycleStatus is the systemctl status line for a cycle event.
func cycleStatus(ev eventbus.Event) (string, bool) {
	d, ok := ev.Data.(eventbus.CycleData)
	if !ok {
		return "", false
	}
	at := ev.Time.Format("15:04:05")
	switch ev.Type {
	case eventbus.CycleFetchFailed:
		return fmt.Sprintf("last cycle %s: fetch failed (%s)", at, d.FetchKind), true
	case eventbus.CycleBaseline:
		return fmt.Sprintf("last cycle %s: baseline stored, %d items", at, d.Items), true
	case eventbus.CycleChanged:
		return fmt.Sprintf("last cycle %s: changed, %d items", at, d.Items), true
	case eventbus.CycleUnchanged:
		return fmt.Sprintf("last cycle %s: unchanged, %d items", at, d.Items), true
	}
	return "", false
}

// reportStatus mirrors cycle outcomes into the systemd unit status.
func (a *App) reportStatus(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(8)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if s, ok := cycleStatus(ev); ok {
				systemd.Status(a.log, s)
			}
		}
	}
}
