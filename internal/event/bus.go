// Package event implements the in-process notification bus that fans out
// URL creation events to live stream subscribers. Delivery is best-effort:
// events are not persisted, a subscriber only sees events published after
// it subscribed, and a subscriber that stops draining its buffer loses
// events rather than blocking publishers.
package event

import (
	"sync"

	"github.com/okhomenko/shortline/internal/models"
)

// DefaultBufferSize is the per-subscriber event buffer used when the bus
// is constructed with a non-positive size.
const DefaultBufferSize = 64

// Subscription is a single subscriber's view of the bus. Events are
// received from C. Close must be called when the consumer disconnects so
// the bus stops fanning out to it.
type Subscription struct {
	C <-chan models.URLCreatedEvent

	bus  *Bus
	ch   chan models.URLCreatedEvent
	once sync.Once
}

// Close removes the subscription from the bus and closes its channel.
// It is safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus is a process-wide registry of subscribers. Each subscriber owns an
// independent buffered channel, so every subscriber sees every event
// published while it is registered.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	bufSize int
}

func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return &Bus{
		subs:    make(map[*Subscription]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscriber and returns its subscription.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan models.URLCreatedEvent, b.bufSize)
	sub := &Subscription{
		C:   ch,
		bus: b,
		ch:  ch,
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Publish fans the event out to all registered subscribers without
// blocking. A subscriber whose buffer is full misses the event.
func (b *Bus) Publish(e models.URLCreatedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Subscribers reports the number of registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}
