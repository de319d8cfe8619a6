package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trendwatch/internal/eventbus"
	"trendwatch/internal/storage"
	"trendwatch/internal/transport"
	logx "trendwatch/pkg/logx"
)

// SendError is the failure of one channel. It never stops other channels.
type SendError struct {
	Channel  Channel
	Attempts int
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed after %d attempt(s): %v", e.Channel, e.Attempts, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Result is the outcome for one Outgoing, in input order.
type Result struct {
	Channel  Channel
	Ref      transport.MessageRef
	Took     time.Duration
	Attempts int
	Err      error // *SendError or nil
}

func (r Result) OK() bool { return r.Err == nil }

type Config struct {
	SendTimeout   time.Duration
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 5 * time.Second
	}
	return c
}

type Option func(*Dispatcher)

func WithLogger(log logx.Logger) Option { return func(d *Dispatcher) { d.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(d *Dispatcher) { d.bus = bus } }

// WithJournal records every attempted channel. A nil store disables it.
func WithJournal(st storage.Store) Option { return func(d *Dispatcher) { d.journal = st } }

// Dispatcher delivers Outgoing messages concurrently, each channel under its
// own timeout, sharing one rate limiter.
type Dispatcher struct {
	sender  transport.Sender
	log     logx.Logger
	bus     eventbus.Bus
	journal storage.Store

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
}

func New(sender transport.Sender, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{sender: sender, bus: eventbus.Nop{}}
	for _, o := range opts {
		o(d)
	}
	if d.bus == nil {
		d.bus = eventbus.Nop{}
	}
	d.Apply(cfg)
	return d
}

// Apply swaps timeouts, retry and rate settings. In-flight sends keep the
// values they started with.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limiter == nil || d.cfg.RatePerSec != cfg.RatePerSec {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	d.cfg = cfg
}

func (d *Dispatcher) snapshot() (Config, *rate.Limiter) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg, d.limiter
}

// Dispatch sends every message and waits for all of them. Failures are
// logged, published and returned in the results; they never abort the
// remaining sends.
func (d *Dispatcher) Dispatch(ctx context.Context, cycleID string, out []Outgoing) []Result {
	cfg, lim := d.snapshot()
	results := make([]Result, len(out))

	var wg sync.WaitGroup
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.deliver(ctx, cfg, lim, out[i])
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		d.report(ctx, cycleID, out[i], r)
	}
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, cfg Config, lim *rate.Limiter, o Outgoing) (res Result) {
	res.Channel = o.Channel
	start := time.Now()
	defer func() {
		res.Took = time.Since(start)
		if r := recover(); r != nil {
			res.Err = &SendError{Channel: o.Channel, Attempts: res.Attempts, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	opts := o.Options
	var err error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			if !sleep(sctx, retryDelay(cfg, attempt, err)) {
				break
			}
		}
		if err = lim.Wait(sctx); err != nil {
			break
		}
		res.Attempts++
		res.Ref, err = d.sender.SendText(sctx, o.Channel.Target, o.Text, &opts)
		if err == nil || transport.IsPermanent(err) || sctx.Err() != nil {
			break
		}
	}
	if err != nil {
		res.Err = &SendError{Channel: o.Channel, Attempts: res.Attempts, Err: err}
	}
	return res
}

func (d *Dispatcher) report(ctx context.Context, cycleID string, o Outgoing, r Result) {
	ch := r.Channel
	data := eventbus.DispatchData{
		CycleID: cycleID,
		Channel: ch.Name,
		Role:    string(ch.Role),
		ChatID:  ch.Target.ChatID,
		Took:    r.Took,
	}
	fields := []logx.Field{
		logx.String("cycle", cycleID),
		logx.String("channel", ch.Name),
		logx.String("role", string(ch.Role)),
		logx.String("chat", ch.Target.String()),
		logx.Duration("took", r.Took),
	}
	if r.Err != nil {
		data.Err = r.Err.Error()
		d.log.Error("dispatch failed", append(fields, logx.Int("attempts", r.Attempts), logx.Err(errors.Unwrap(r.Err)))...)
		d.bus.Publish(eventbus.Event{Type: eventbus.DispatchFailed, Data: data})
	} else {
		d.log.Debug("dispatch sent", append(fields, logx.Int("message_id", r.Ref.MessageID))...)
		d.bus.Publish(eventbus.Event{Type: eventbus.DispatchSent, Data: data})
	}

	if d.journal == nil {
		return
	}
	rec := storage.DeliveryRecord{
		At:      time.Now(),
		CycleID: cycleID,
		Channel: ch.Name,
		Role:    string(ch.Role),
		ChatID:  ch.Target.ChatID,
		Thread:  ch.Target.ThreadID,
		Changed: o.Changed,
		OK:      r.Err == nil,
		Error:   data.Err,
		TookMS:  r.Took.Milliseconds(),
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.journal.AppendDelivery(jctx, rec); err != nil {
		d.log.Warn("journal append failed", logx.String("channel", ch.Name), logx.Err(err))
	}
}

// retryDelay is exponential from RetryBase with 20% jitter, capped at
// RetryMaxDelay. A retry-after hint from the transport wins.
func retryDelay(cfg Config, attempt int, err error) time.Duration {
	var ra transport.RetryAfterError
	if errors.As(err, &ra) {
		return min(ra.RetryAfter(), cfg.RetryMaxDelay)
	}
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	j := (rand.Float64()*2 - 1) * 0.2
	return max(time.Duration(float64(d)*(1+j)), 0)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
