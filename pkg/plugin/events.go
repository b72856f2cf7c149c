package plugin

import "sync"

// EventBus delivers named events from plugins to external listeners
// (typically the rendering layer). Handlers run synchronously on the
// firing goroutine, with the subscriber list copied before notification
// so handlers may subscribe or unsubscribe freely.
type EventBus struct {
	mu      sync.Mutex
	nextID  uint64
	members map[string]map[uint64]func(payload any)
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		members: make(map[string]map[uint64]func(payload any)),
	}
}

// On subscribes fn to an event. The returned function removes the
// subscription.
func (b *EventBus) On(event string, fn func(payload any)) (off func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	handlers := b.members[event]
	if handlers == nil {
		handlers = make(map[uint64]func(payload any))
		b.members[event] = handlers
	}
	handlers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if handlers := b.members[event]; handlers != nil {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.members, event)
			}
		}
		b.mu.Unlock()
	}
}

// Fire delivers payload to every subscriber of event.
func (b *EventBus) Fire(event string, payload any) {
	b.mu.Lock()
	handlers := make([]func(payload any), 0, len(b.members[event]))
	for _, fn := range b.members[event] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
