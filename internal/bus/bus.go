// Package bus is the in-process event fabric: a single process-wide
// dispatcher with typed events and synchronous best-effort delivery.
//
// Delivery guarantees are deliberately weak: no queue, no replay, no
// ordering across publishers, and no delivery at all to handlers registered
// after a publish. Consumers treat events as hints to re-read the record
// store, never as the source of truth; the reconciler's sweeps exist to
// repair anything the fabric drops.
package bus

import (
	"log/slog"
	"sync"
)

// Handler receives published events for one topic.
type Handler func(Event)

// Dispatcher routes events to registered handlers.
//
// Lifecycle: created at startup, closed at shutdown. Publish after Close is
// a silent no-op (fire-and-forget semantics hold through shutdown).
//
// Thread-safety: all methods are safe for concurrent use. Handlers run
// synchronously on the publisher's goroutine.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a topic. Subscribing on a closed
// dispatcher is a no-op.
func (d *Dispatcher) Subscribe(topic string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.handlers[topic] = append(d.handlers[topic], h)
}

// Publish delivers an event to every handler currently registered for its
// topic. Best-effort: a panicking handler is logged and skipped, and the
// remaining handlers still run.
func (d *Dispatcher) Publish(e Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	handlers := append([]Handler(nil), d.handlers[e.Topic()]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		deliver(h, e)
	}
}

func deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"topic", e.Topic(),
				"panic", r,
			)
		}
	}()
	h(e)
}

// Close tears the dispatcher down. Registered handlers are released and
// later publishes are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.handlers = nil
}
