package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: CycleChanged, Data: CycleData{CycleID: "x", Items: 3}})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		assert.Equal(t, CycleChanged, ev.Type)
		assert.False(t, ev.Time.IsZero())
		d, ok := ev.Data.(CycleData)
		require.True(t, ok)
		assert.Equal(t, 3, d.Items)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: DispatchSent})
	b.Publish(Event{Type: DispatchFailed})

	assert.Equal(t, DispatchSent, (<-ch).Type)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q", ev.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: CycleBaseline})
}
