// Package bus provides the in-process publish/subscribe channel that carries
// workflow lifecycle events to loggers, metrics, persistence and any other
// local observer. Delivery is synchronous and ordered; a failing subscriber
// never affects the publisher or other subscribers.
package bus

import (
	"log/slog"
	"sync"
)

// Handler receives every payload published under the event name it
// subscribed to.
type Handler func(event string, payload any)

// Opts holds configuration for Bus.
type Opts struct {
	// PanicHook runs after a recovered subscriber panic, with the event name.
	PanicHook func(event string)
}

// Option configures a Bus.
type Option func(*Opts)

// WithPanicHook sets a callback invoked whenever a subscriber panic is
// recovered, e.g. to feed a metrics counter.
func WithPanicHook(fn func(event string)) Option {
	return func(o *Opts) {
		o.PanicHook = fn
	}
}

type subscriber struct {
	id int64
	fn Handler
}

// Bus is a synchronous in-process event bus. Subscribers are invoked in
// registration order on the publisher's goroutine; panics are recovered and
// logged so one bad subscriber cannot break delivery to the rest.
type Bus struct {
	opts Opts

	mu     sync.RWMutex
	nextID int64
	subs   map[string][]subscriber
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	return &Bus{
		opts: o,
		subs: make(map[string][]subscriber),
	}
}

// Subscribe registers a handler for an event name and returns an unsubscribe
// function. Unsubscribing is idempotent and safe to call from within a
// handler.
func (b *Bus) Subscribe(event string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscriber{id: id, fn: h})
	b.mu.Unlock()

	slog.Debug("Bus.Subscribe: handler registered", "event", event, "subscriber_id", id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[event]
		for i, s := range list {
			if s.id == id {
				b.subs[event] = append(list[:i:i], list[i+1:]...)
				slog.Debug("Bus.Subscribe: handler removed", "event", event, "subscriber_id", id)
				return
			}
		}
	}
}

// Publish delivers the payload to every current subscriber of the event, in
// registration order. Dispatch runs over a snapshot of the subscriber list,
// so handlers may subscribe or unsubscribe during delivery.
func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	snapshot := make([]subscriber, len(b.subs[event]))
	copy(snapshot, b.subs[event])
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.dispatch(event, payload, s)
	}
}

// dispatch invokes one subscriber with panic isolation.
func (b *Bus) dispatch(event string, payload any, s subscriber) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bus.Publish: subscriber panicked", "event", event, "subscriber_id", s.id, "panic", r)
			if b.opts.PanicHook != nil {
				b.opts.PanicHook(event)
			}
		}
	}()
	s.fn(event, payload)
}

// SubscriberCount returns how many handlers are registered for an event.
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}
