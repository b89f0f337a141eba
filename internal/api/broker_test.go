package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("s1")
	other := b.Subscribe("s2")

	b.Publish("s1", SSEEvent{Type: "solve.started", Data: map[string]any{"solveId": "s1"}})

	select {
	case evt := <-ch:
		if evt.Type != "solve.started" {
			t.Fatalf("event type %q", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case evt := <-other:
		t.Fatalf("cross-solve delivery: %+v", evt)
	default:
	}
	b.Unsubscribe("s1", ch)
	b.Unsubscribe("s2", other)
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("s1")
	b.Unsubscribe("s1", ch)
	if _, open := <-ch; open {
		t.Fatal("channel should be closed")
	}
	// Publishing after the last unsubscribe is a no-op.
	b.Publish("s1", SSEEvent{Type: "solve.completed"})
}

func TestBrokerDropsWhenSubscriberLags(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("s1")
	for i := 0; i < 20; i++ {
		b.Publish("s1", SSEEvent{Type: "solve.progress"})
	}
	drained := 0
	for {
		select {
		case <-ch:
			drained++
			continue
		default:
		}
		break
	}
	if drained == 0 || drained > cap(ch) {
		t.Fatalf("drained %d events with buffer %d", drained, cap(ch))
	}
	b.Unsubscribe("s1", ch)
}
