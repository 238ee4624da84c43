package eventbus

import (
	"testing"
	"time"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	var got1, got2 TradeSuccessEvent
	b.Subscribe(func(e TradeSuccessEvent) { got1 = e })
	b.Subscribe(func(e TradeSuccessEvent) { got2 = e })

	event := TradeSuccessEvent{StrategyID: "s1", Signature: "sig1", Timestamp: time.Now()}
	b.Publish(event)

	if got1.Signature != "sig1" || got2.Signature != "sig1" {
		t.Fatalf("expected both subscribers to receive the event, got %+v and %+v", got1, got2)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	calls := 0
	h := b.Subscribe(func(e TradeSuccessEvent) { calls++ })

	b.Unsubscribe(h)
	b.Unsubscribe(h) // must not panic or error

	b.Publish(TradeSuccessEvent{StrategyID: "s1"})
	if calls != 0 {
		t.Fatalf("expected unsubscribed handler not to be called, got %d calls", calls)
	}
}

func TestReentrantPublishIsRejectedNotDeadlocked(t *testing.T) {
	b := New()
	inner := 0
	b.Subscribe(func(e TradeSuccessEvent) {
		b.Publish(TradeSuccessEvent{StrategyID: "reentrant"}) // must not deadlock
		inner++
	})

	done := make(chan struct{})
	go func() {
		b.Publish(TradeSuccessEvent{StrategyID: "outer"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish appears to have deadlocked on re-entrant call")
	}

	if inner != 1 {
		t.Fatalf("expected outer handler to still run exactly once, got %d", inner)
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers initially")
	}
	h := b.Subscribe(func(TradeSuccessEvent) {})
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber after Subscribe")
	}
	b.Unsubscribe(h)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after Unsubscribe")
	}
}
