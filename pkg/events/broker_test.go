package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, sub *Subscription, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for len(out) < n {
		select {
		case e, ok := <-sub.Events():
			require.True(t, ok, "subscription closed early after %d events", len(out))
			out = append(out, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestBroker_FIFOPerSubscriber(t *testing.T) {
	b := NewBroker(16)
	sub := b.Subscribe("p1")
	defer sub.Close()

	for i := 0; i < 10; i++ {
		b.Publish("p1", New("item-moved", map[string]int{"seq": i}))
	}

	got := collect(t, sub, 10)
	for i, e := range got {
		assert.Equal(t, map[string]int{"seq": i}, e.Data)
	}
}

func TestBroker_ProjectIsolation(t *testing.T) {
	b := NewBroker(16)
	p1 := b.Subscribe("p1")
	p2 := b.Subscribe("p2")
	defer p1.Close()
	defer p2.Close()

	b.Publish("p1", New("item-added", "only-p1"))

	got := collect(t, p1, 1)
	assert.Equal(t, "only-p1", got[0].Data)

	select {
	case e := <-p2.Events():
		t.Fatalf("p2 received event for p1: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_DropsSlowSubscriber(t *testing.T) {
	b := NewBroker(4)
	slow := b.Subscribe("p1")
	fast := b.Subscribe("p1")

	// Fill the slow subscriber's queue without draining it; one extra
	// publish overflows it and must close the subscription.
	for i := 0; i < 5; i++ {
		b.Publish("p1", New("item-updated", i))
	}

	// The fast subscriber still gets everything delivered before the drop.
	got := collect(t, fast, 5)
	assert.Len(t, got, 5)

	deadline := time.After(2 * time.Second)
	for i := 0; i < 4; i++ {
		select {
		case _, ok := <-slow.Events():
			require.True(t, ok)
		case <-deadline:
			t.Fatal("timed out draining slow subscriber")
		}
	}
	select {
	case _, ok := <-slow.Events():
		assert.False(t, ok, "slow subscriber channel should be closed")
	case <-deadline:
		t.Fatal("slow subscriber was not closed")
	}
	assert.True(t, slow.Dropped())
	assert.Equal(t, 1, b.SubscriberCount("p1"))

	fast.Close()
}

func TestBroker_CloseIsIdempotent(t *testing.T) {
	b := NewBroker(4)
	sub := b.Subscribe("p1")

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount("p1"))

	// Publishing after all subscribers are gone must not panic or block.
	b.Publish("p1", New("board-updated", nil))
}

func TestBroker_ManySubscribersAllReceive(t *testing.T) {
	b := NewBroker(32)
	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = b.Subscribe("p1")
	}

	for i := 0; i < 20; i++ {
		b.Publish("p1", New("item-moved", fmt.Sprintf("e%d", i)))
	}

	for _, sub := range subs {
		got := collect(t, sub, 20)
		assert.Equal(t, "e0", got[0].Data)
		assert.Equal(t, "e19", got[19].Data)
		sub.Close()
	}
}
