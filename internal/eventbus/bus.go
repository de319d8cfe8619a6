// Package eventbus is an in-memory fanout used to report poll cycle and
// delivery outcomes to observers (metrics, tests) without coupling them to
// the loop.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	CycleFetchFailed = "cycle.fetch_failed"
	CycleBaseline    = "cycle.baseline"
	CycleChanged     = "cycle.changed"
	CycleUnchanged   = "cycle.unchanged"
	DispatchSent     = "dispatch.sent"
	DispatchFailed   = "dispatch.failed"
)

// Event is published without blocking. Slow subscribers drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// CycleData accompanies cycle.* events.
type CycleData struct {
	CycleID   string
	Items     int
	Took      time.Duration
	FetchKind string // cycle.fetch_failed only
	Err       string
}

// DispatchData accompanies dispatch.* events.
type DispatchData struct {
	CycleID string
	Channel string
	Role    string
	ChatID  int64
	Took    time.Duration
	Err     string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a bus with no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Publish holds the read lock while sending, so removing under the
			// write lock guarantees no send races the close.
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
