package events

import (
	"sync"

	"github.com/0xmhha/session-keeper/pkg/logger"
)

// Handler receives events.
type Handler func(Event)

// Bus dispatches events to registered handlers.
//
// Thread-safety: all methods are safe for concurrent use. Handlers may
// subscribe or unsubscribe from inside a handler.
type Bus struct {
	logger logger.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[Name][]entry
}

type entry struct {
	id      uint64
	handler Handler
}

// Subscription is a disposable handler registration.
type Subscription struct {
	bus  *Bus
	name Name
	id   uint64
	once sync.Once
}

// NewBus creates an empty bus.
func NewBus(log logger.Logger) *Bus {
	return &Bus{
		logger:   log,
		handlers: make(map[Name][]entry),
	}
}

// On registers h for events named name.
func (b *Bus) On(name Name, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[name] = append(b.handlers[name], entry{id: b.nextID, handler: h})
	return &Subscription{bus: b, name: name, id: b.nextID}
}

// Off removes the registration. Nil and already removed subscriptions are
// ignored.
func (b *Bus) Off(sub *Subscription) {
	if sub == nil || sub.bus != b {
		return
	}
	sub.Unsubscribe()
}

// Emit calls every handler registered for e's name.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	registered := b.handlers[e.Name()]
	snapshot := make([]entry, len(registered))
	copy(snapshot, registered)
	b.mu.RUnlock()

	for _, en := range snapshot {
		b.call(e, en.handler)
	}
}

// call runs one handler, containing panics.
func (b *Bus) call(e Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", string(e.Name()), "panic", r)
		}
	}()
	h(e)
}

// HandlerCount returns the number of handlers registered for name.
func (b *Bus) HandlerCount(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Clear removes every handler.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[Name][]entry)
}

func (b *Bus) remove(name Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[name]
	for i, en := range list {
		if en.id != id {
			continue
		}
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, name)
		} else {
			b.handlers[name] = next
		}
		return
	}
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.name, s.id)
	})
}

// Name returns the event name the subscription listens for.
func (s *Subscription) Name() Name {
	return s.name
}

// Subscribe registers a handler for one event type.
func Subscribe[T Event](b *Bus, fn func(T)) *Subscription {
	var zero T
	return b.On(zero.Name(), func(e Event) {
		if typed, ok := e.(T); ok {
			fn(typed)
		}
	})
}
