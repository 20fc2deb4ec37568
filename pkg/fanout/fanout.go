// Package fanout provides a supervised event dispatcher. Each subscribed
// handler runs inside its own recovered call, so a panicking or failing
// consumer cannot block delivery to the others.
package fanout

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler consumes one event. Errors are reported to the dispatcher's
// logger, never propagated to other handlers.
type Handler[T any] func(event T) error

// Dispatcher delivers events to all subscribed handlers with per-handler
// fault isolation.
type Dispatcher[T any] struct {
	mu       sync.RWMutex
	handlers []namedHandler[T]
	logger   *slog.Logger
}

type namedHandler[T any] struct {
	name string
	fn   Handler[T]
}

// New creates a dispatcher. A nil logger falls back to slog.Default.
func New[T any](logger *slog.Logger) *Dispatcher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher[T]{logger: logger}
}

// Subscribe registers a named handler. Handlers are invoked in
// subscription order.
func (d *Dispatcher[T]) Subscribe(name string, fn Handler[T]) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, namedHandler[T]{name: name, fn: fn})
}

// Publish delivers the event to every handler. Each handler runs inside
// its own recovered call; a panic or error in one never stops the rest.
func (d *Dispatcher[T]) Publish(event T) {
	d.mu.RLock()
	handlers := make([]namedHandler[T], len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, h := range handlers {
		d.dispatch(h, event)
	}
}

func (d *Dispatcher[T]) dispatch(h namedHandler[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				"handler", h.name,
				"panic", fmt.Sprintf("%v", r))
		}
	}()

	if err := h.fn(event); err != nil {
		d.logger.Error("event handler failed",
			"handler", h.name,
			"error", err)
	}
}

// Len returns the number of subscribed handlers.
func (d *Dispatcher[T]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}
