// Package bus fans analysis events out to gateway subscribers.
package bus

import (
	"sync"
	"sync/atomic"
)

// Event is one message delivered to every subscriber.
type Event struct {
	Name    string // protocol event name, e.g. "snapshot"
	RunID   string
	Seq     int64 // assigned by Broadcast, increasing per bus
	Payload any
}

// EventHandler receives broadcast events. Handlers must not block.
type EventHandler func(Event)

// Bus delivers events to registered subscribers.
type Bus struct {
	subscribers map[string]EventHandler
	subMu       sync.RWMutex
	seq         atomic.Int64
}

func New() *Bus {
	return &Bus{subscribers: make(map[string]EventHandler)}
}

// Subscribe registers an event subscriber under id, replacing any
// previous handler with the same id.
func (b *Bus) Subscribe(id string, handler EventHandler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes an event subscriber.
func (b *Bus) Unsubscribe(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	delete(b.subscribers, id)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscribers)
}

// Broadcast stamps the event with the next sequence number and sends it
// to all subscribers. The subscriber set is copied first, so handlers
// may unsubscribe themselves.
func (b *Bus) Broadcast(event Event) Event {
	event.Seq = b.seq.Add(1)

	b.subMu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.subMu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return event
}
