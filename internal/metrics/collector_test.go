package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwatch/internal/eventbus"
)

func TestObserveCounts(t *testing.T) {
	c := New()
	at := time.Unix(1_700_000_000, 0)

	c.Observe(eventbus.Event{Type: eventbus.CycleBaseline, Time: at, Data: eventbus.CycleData{Took: time.Second}})
	c.Observe(eventbus.Event{Type: eventbus.CycleChanged, Time: at, Data: eventbus.CycleData{Took: 2 * time.Second}})
	c.Observe(eventbus.Event{Type: eventbus.CycleFetchFailed, Time: at, Data: eventbus.CycleData{FetchKind: "timeout"}})
	c.Observe(eventbus.Event{Type: eventbus.DispatchSent, Data: eventbus.DispatchData{Role: "alert"}})
	c.Observe(eventbus.Event{Type: eventbus.DispatchFailed, Data: eventbus.DispatchData{Role: "log"}})
	c.Observe(eventbus.Event{Type: "unrelated", Data: 42})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("baseline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("fetch_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchFailures.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sends.WithLabelValues("alert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sends.WithLabelValues("log", "failed")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(c.lastChange))
}

func TestRunConsumesBus(t *testing.T) {
	c := New()
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx, bus)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.CycleUnchanged, Data: eventbus.CycleData{}})
		return testutil.ToFloat64(c.cycles.WithLabelValues("unchanged")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.Observe(eventbus.Event{Type: eventbus.DispatchSent, Data: eventbus.DispatchData{Role: "backup"}})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `trendwatch_sends_total{role="backup",status="ok"} 1`)
}
