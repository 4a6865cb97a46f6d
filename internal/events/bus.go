package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(*Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to subscribers by type.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
	log      zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type and returns a function
// that removes it.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit publishes data to every handler of its type. A nil bus drops events.
func (b *Bus) Emit(module string, data EventData) {
	if b == nil {
		return
	}

	event := &Event{
		Type:      data.EventType(),
		Module:    module,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	b.log.Debug().Str("event_type", string(event.Type)).Int("subscribers", len(subs)).Msg("Emitting event")
	for _, s := range subs {
		s.handler(event)
	}
}

// Channel subscribes to the given types (all types when none are given) and
// delivers events on a buffered channel. Events are dropped when the buffer
// is full. The returned function unsubscribes; the channel is never closed.
func (b *Bus) Channel(buffer int, types ...EventType) (<-chan *Event, func()) {
	if len(types) == 0 {
		types = AllTypes
	}

	ch := make(chan *Event, buffer)
	handler := func(event *Event) {
		select {
		case ch <- event:
		default:
			b.log.Warn().Str("event_type", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}

	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, b.Subscribe(t, handler))
	}
	return ch, func() {
		for _, u := range unsubs {
			u()
		}
	}
}
