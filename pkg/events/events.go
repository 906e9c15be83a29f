// Package events implements a small in-process event emitter used for
// switch lifecycle and gNMI-driven port notifications.
package events

import (
	"sync"

	"github.com/byllyfish/finsy/internal/logger"
)

// Listener is a callback registered for a named event. Arguments are
// event-specific; see the event documentation at the emit site.
type Listener func(args ...any)

type registration struct {
	id   int
	fn   Listener
	once bool
}

// Emitter delivers named events to listeners in registration order.
//
// A listener that panics is logged and skipped; it never aborts delivery
// to the remaining listeners. Emitter is safe for concurrent use.
type Emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string][]registration
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]registration)}
}

// On registers fn for the named event and returns a function that
// removes the registration.
func (e *Emitter) On(event string, fn Listener) (remove func()) {
	return e.add(event, fn, false)
}

// Once registers fn for a single delivery of the named event.
func (e *Emitter) Once(event string, fn Listener) (remove func()) {
	return e.add(event, fn, true)
}

func (e *Emitter) add(event string, fn Listener, once bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], registration{id: id, fn: fn, once: once})
	return func() { e.removeListener(event, id) }
}

func (e *Emitter) removeListener(event string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.listeners[event]
	for i, r := range regs {
		if r.id == id {
			e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of listeners for the named event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Emit delivers the event to all listeners in registration order.
// Listeners registered with Once are removed before their callback runs,
// so a listener may re-register itself.
func (e *Emitter) Emit(event string, args ...any) {
	e.mu.Lock()
	regs := e.listeners[event]
	fns := make([]Listener, len(regs))
	for i, r := range regs {
		fns[i] = r.fn
	}
	kept := regs[:0:0]
	for _, r := range regs {
		if !r.once {
			kept = append(kept, r)
		}
	}
	e.listeners[event] = kept
	e.mu.Unlock()

	for _, fn := range fns {
		e.dispatch(event, fn, args)
	}
}

func (e *Emitter) dispatch(event string, fn Listener, args []any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event listener panicked", "event", event, "panic", r)
		}
	}()
	fn(args...)
}
