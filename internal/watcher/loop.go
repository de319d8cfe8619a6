// Package watcher drives the poll cycle: fetch, diff, render, dispatch,
// sleep. Cycles never overlap, so the loop's state needs no lock.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"trendwatch/internal/dispatch"
	"trendwatch/internal/eventbus"
	"trendwatch/internal/fetcher"
	"trendwatch/internal/render"
	"trendwatch/internal/trend"
	logx "trendwatch/pkg/logx"
)

type Phase int

const (
	AwaitingFirstSnapshot Phase = iota
	Steady
)

func (p Phase) String() string {
	if p == Steady {
		return "steady"
	}
	return "awaiting_first_snapshot"
}

// ErrCyclePanic wraps a panic recovered inside a cycle.
var ErrCyclePanic = errors.New("cycle panic")

type Outcome string

const (
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeBaseline    Outcome = "baseline"
	OutcomeChanged     Outcome = "changed"
	OutcomeUnchanged   Outcome = "unchanged"
)

// CycleReport describes one completed cycle.
type CycleReport struct {
	ID       string
	Outcome  Outcome
	Items    int
	Delta    trend.Delta
	Rendered render.Rendered
	Results  []dispatch.Result
	Err      error // fetch or panic error for OutcomeFetchFailed
	Took     time.Duration
}

// Sender is what the loop needs from the dispatcher.
type Sender interface {
	Dispatch(ctx context.Context, cycleID string, out []dispatch.Outgoing) []dispatch.Result
}

type Config struct {
	Fetcher      fetcher.Fetcher
	Renderer     *render.Renderer
	Dispatcher   Sender
	Routes       dispatch.Routes
	Schedule     Schedule      // nil means DefaultInterval
	FetchTimeout time.Duration // 0 means 10s
	Log          logx.Logger
	Bus          eventbus.Bus
}

// state is the last accepted snapshot. It is read and replaced only by the
// goroutine running cycles.
type state struct {
	last *trend.Snapshot
}

func (s *state) phase() Phase {
	if s.last == nil {
		return AwaitingFirstSnapshot
	}
	return Steady
}

// Loop owns the cycle state.
type Loop struct {
	fetch        fetcher.Fetcher
	dispatcher   Sender
	log          logx.Logger
	bus          eventbus.Bus
	fetchTimeout time.Duration

	st state

	// hot-reloadable settings, read once at the start of each cycle/sleep
	mu       sync.RWMutex
	renderer *render.Renderer
	routes   dispatch.Routes
	schedule Schedule

	now func() time.Time
}

func New(cfg Config) (*Loop, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("watcher: fetcher is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("watcher: dispatcher is required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.New(render.Options{})
	}
	if cfg.Schedule == nil {
		cfg.Schedule = Every(DefaultInterval)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Bus == nil {
		cfg.Bus = eventbus.Nop{}
	}
	return &Loop{
		fetch:        cfg.Fetcher,
		dispatcher:   cfg.Dispatcher,
		log:          cfg.Log,
		bus:          cfg.Bus,
		fetchTimeout: cfg.FetchTimeout,
		renderer:     cfg.Renderer,
		routes:       cfg.Routes,
		schedule:     cfg.Schedule,
		now:          time.Now,
	}, nil
}

func (l *Loop) Phase() Phase { return l.st.phase() }

// SetRoutes takes effect from the next cycle.
func (l *Loop) SetRoutes(r dispatch.Routes) {
	l.mu.Lock()
	l.routes = r
	l.mu.Unlock()
}

// SetRenderer takes effect from the next cycle.
func (l *Loop) SetRenderer(r *render.Renderer) {
	if r == nil {
		return
	}
	l.mu.Lock()
	l.renderer = r
	l.mu.Unlock()
}

// SetSchedule takes effect from the next sleep.
func (l *Loop) SetSchedule(s Schedule) {
	if s == nil {
		return
	}
	l.mu.Lock()
	l.schedule = s
	l.mu.Unlock()
}

func (l *Loop) settings() (*render.Renderer, dispatch.Routes, Schedule) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.renderer, l.routes, l.schedule
}

// Run executes cycles until ctx is canceled. The first cycle starts
// immediately; each following one waits for the schedule after the previous
// cycle completed.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("poll loop started", logx.String("source", l.fetch.Name()))
	for {
		if ctx.Err() != nil {
			return nil
		}
		l.RunOnce(ctx)

		_, _, sched := l.settings()
		wait := sched.Next(l.now()).Sub(l.now())
		l.log.Debug("sleeping", logx.Duration("wait", wait), logx.String("schedule", sched.String()))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			l.log.Info("poll loop stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunOnce executes a single cycle. A panic anywhere in the cycle is
// recovered and reported as a skipped cycle without touching state.
func (l *Loop) RunOnce(ctx context.Context) (rep CycleReport) {
	rep.ID = uuid.NewString()
	start := l.now()
	log := l.log.With(logx.String("cycle", rep.ID))

	defer func() {
		if r := recover(); r != nil {
			rep.Outcome = OutcomeFetchFailed
			rep.Err = fmt.Errorf("%w: %v", ErrCyclePanic, r)
			log.Error("cycle panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		rep.Took = l.now().Sub(start)
		l.publish(rep)
	}()

	renderer, routes, _ := l.settings()

	fctx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	list, err := l.fetch.Fetch(fctx)
	cancel()
	if err == nil && len(list) == 0 {
		err = &fetcher.Error{Source: l.fetch.Name(), Kind: fetcher.KindEmpty}
	}
	if err != nil {
		rep.Outcome, rep.Err = OutcomeFetchFailed, err
		log.Warn("fetch failed; skipping cycle", logx.String("kind", string(fetcher.KindOf(err))), logx.Err(err))
		return rep
	}

	current := trend.FromList(list)
	rep.Items = current.Len()

	if l.st.phase() == AwaitingFirstSnapshot {
		l.st.last = &current
		rep.Outcome = OutcomeBaseline
		log.Info("baseline stored", logx.Int("items", current.Len()))
		return rep
	}

	changed, delta := trend.Diff(current, l.st.last)
	rep.Delta = delta
	rep.Rendered = renderer.Render(current, delta)
	if changed {
		rep.Outcome = OutcomeChanged
		log.Info("trending list changed",
			logx.Int("entered", len(delta.Entered)),
			logx.Int("left", len(delta.Left)),
			logx.Int("moved", len(delta.RankChanged)),
		)
	} else {
		rep.Outcome = OutcomeUnchanged
		log.Debug("trending list unchanged", logx.Int("items", current.Len()))
	}

	// Deliveries that started finish even if ctx is canceled; each send is
	// still bounded by the dispatcher's timeout.
	out := routes.Plan(changed, rep.Rendered)
	rep.Results = l.dispatcher.Dispatch(context.WithoutCancel(ctx), rep.ID, out)

	failed := 0
	for _, r := range rep.Results {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		log.Warn("some channels failed", logx.Int("failed", failed), logx.Int("channels", len(rep.Results)))
	}

	l.st.last = &current
	return rep
}

func (l *Loop) publish(rep CycleReport) {
	data := eventbus.CycleData{CycleID: rep.ID, Items: rep.Items, Took: rep.Took}
	var typ string
	switch rep.Outcome {
	case OutcomeFetchFailed:
		typ = eventbus.CycleFetchFailed
		switch k := fetcher.KindOf(rep.Err); {
		case k != "":
			data.FetchKind = string(k)
		case errors.Is(rep.Err, ErrCyclePanic):
			data.FetchKind = "panic"
		default:
			data.FetchKind = "other"
		}
		if rep.Err != nil {
			data.Err = rep.Err.Error()
		}
	case OutcomeBaseline:
		typ = eventbus.CycleBaseline
	case OutcomeChanged:
		typ = eventbus.CycleChanged
	default:
		typ = eventbus.CycleUnchanged
	}
	l.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
