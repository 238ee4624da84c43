// Package eventbus implements the process-wide trade-event bus: a
// single-threaded publish/subscribe channel typed to TradeSuccessEvent.
// It has no persistence and no replay — loss across a
// process restart is expected and tolerated.
package eventbus

import (
	"log"
	"sync"
	"time"
)

// TradeSuccessEvent is published by a Worker whenever it confirms a swap.
// Other workers on the same trading wallet (Vault, in particular) may react
// to it, filtering by strategy kind.
type TradeSuccessEvent struct {
	StrategyID          string
	TradingWalletPubkey string
	StrategyKind        string
	Signature           string
	Timestamp           time.Time
	Amount              float64
	Profit              float64
}

// Handle identifies one subscription for later Unsubscribe.
type Handle uint64

// Handler receives delivered events. Handlers run synchronously inside
// Publish and must never call Publish themselves — that would re-enter the
// bus. A handler that needs to publish as a side effect should push onto
// its own deferred queue and drain it outside the handler.
type Handler func(TradeSuccessEvent)

// Bus is the single process-wide trade-event bus. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[Handle]Handler
	nextHandle  Handle
	publishing  bool
}

// New constructs an empty Bus. One Bus is built at process start and a
// reference is threaded into every worker at construction — no implicit
// singleton.
func New() *Bus {
	return &Bus{
		subscribers: make(map[Handle]Handler),
	}
}

// Subscribe registers fn and returns a Handle for later Unsubscribe.
func (b *Bus) Subscribe(fn Handler) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextHandle++
	h := b.nextHandle
	b.subscribers[h] = fn
	return h
}

// Unsubscribe deregisters the handler for h. Idempotent: unsubscribing a
// handle twice, or one that was never registered, is a no-op.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, h)
}

// Publish delivers event to every subscriber current at call time,
// synchronously, in the publisher's own goroutine. Publish must not be
// called re-entrantly from within a handler; doing so is a programming
// error and is rejected rather than deadlocking.
func (b *Bus) Publish(event TradeSuccessEvent) {
	b.mu.Lock()
	if b.publishing {
		b.mu.Unlock()
		log.Printf("[EVENTBUS][ERROR] re-entrant Publish from within a handler for strategy=%s ignored", event.StrategyID)
		return
	}
	b.publishing = true
	handlers := make([]Handler, 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.publishing = false
		b.mu.Unlock()
	}()

	for _, fn := range handlers {
		fn(event)
	}
}

// SubscriberCount reports the current number of live subscriptions, mainly
// for tests and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
