package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler is a callback invoked for each matching event. Handlers run
// synchronously on the emitting goroutine and must not block.
type Handler func(e *Event)

// Bus is an in-process publish/subscribe hub. Callback subscribers
// register per event type; stream subscribers receive every event over
// a buffered channel, with events dropped rather than blocking the
// emitter when a subscriber falls behind.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	streams  map[int]chan Event
	nextID   int
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		streams:  make(map[int]chan Event),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a callback for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll returns a channel receiving every event and a cancel
// function that must be called when the subscriber is done.
func (b *Bus) SubscribeAll() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.streams[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if stream, ok := b.streams[id]; ok {
			delete(b.streams, id)
			close(stream)
		}
	}
	return ch, cancel
}

// Emit publishes an event to all matching subscribers.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	handlers := b.handlers[eventType]
	streams := make([]chan Event, 0, len(b.streams))
	for _, ch := range b.streams {
		streams = append(streams, ch)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(&event)
	}

	for _, ch := range streams {
		select {
		case ch <- event:
		default:
			b.log.Debug().Str("event_type", string(eventType)).Msg("Stream subscriber full, dropping event")
		}
	}
}
