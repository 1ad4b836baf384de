package transport

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives the raw data of an event.
type Handler func(data json.RawMessage)

type subscription struct {
	id uint64
	fn Handler
}

// emitter is a registry of event handlers. Handlers for one event run in
// registration order on the dispatching goroutine.
type emitter struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription
	log      zerolog.Logger
}

func newEmitter(log zerolog.Logger) *emitter {
	return &emitter{
		handlers: make(map[string][]subscription),
		log:      log,
	}
}

func (e *emitter) on(event string, fn Handler) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers[event] = append(e.handlers[event], subscription{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(event, id) })
	}
}

func (e *emitter) remove(event string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.handlers[event]
	for i, s := range subs {
		if s.id == id {
			e.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.handlers[event]) == 0 {
		delete(e.handlers, event)
	}
}

func (e *emitter) off(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

func (e *emitter) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = make(map[string][]subscription)
}

func (e *emitter) count(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}

func (e *emitter) dispatch(event string, data json.RawMessage) {
	e.mu.RLock()
	subs := make([]subscription, len(e.handlers[event]))
	copy(subs, e.handlers[event])
	e.mu.RUnlock()

	for _, s := range subs {
		e.call(event, s.fn, data)
	}
}

func (e *emitter) call(event string, fn Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("event", event).Interface("panic", r).Msg("Event handler panicked")
		}
	}()
	fn(data)
}
