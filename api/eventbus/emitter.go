package eventbus

import (
	"sync"

	"github.com/cskr/pubsub/v2"
)

// SubscriberID describes a subscription to a topic.
type SubscriberID struct {
	// C receives the published events. It is closed when the
	// subscription ends.
	C <-chan any

	unsub  func()
	once   sync.Once
	active bool
}

// EventPublisher represents an interface that provides an event publisher.
type EventPublisher interface {
	// Publish publishes an event to the subscribers of a topic.
	// Events are dropped for subscribers whose queue is full.
	Publish(topic string, data any)
}

// EventSubscriber represents an interface that provides an event subscriber.
type EventSubscriber interface {
	// Subscribe subscribes to the events of a topic.
	Subscribe(topic string) *SubscriberID

	// CloseTopic ends every subscription to a topic.
	CloseTopic(topic string)
}

// EventHandler represents an interface that provides an event publisher and subscriber.
type EventHandler interface {
	EventPublisher
	EventSubscriber
}

// Bus is a topic-based event handler with a bounded queue per subscriber.
type Bus struct {
	ps *pubsub.PubSub[string, any]

	closed bool
	mu     sync.RWMutex
}

// nilEventHandler represents a disabled event handler.
type nilEventHandler struct{}

// New returns a new bus which queues up to capacity events per subscriber.
func New(capacity int) *Bus {
	return &Bus{ps: pubsub.New[string, any](capacity)}
}

// NilHandler returns a disabled event handler.
func NilHandler() EventHandler {
	return nilEventHandler{}
}

// Publish publishes an event to the subscribers of a topic.
func (b *Bus) Publish(topic string, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.ps.TryPub(data, topic)
}

// Subscribe subscribes to the events of a topic.
func (b *Bus) Subscribe(topic string) *SubscriberID {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return closedSubscriber()
	}

	ch := b.ps.Sub(topic)

	return &SubscriberID{
		C:      ch,
		active: true,
		unsub: func() {
			go b.unsub(ch, topic)
		},
	}
}

// CloseTopic ends every subscription to a topic.
func (b *Bus) CloseTopic(topic string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.ps.Close(topic)
}

// Shutdown ends every subscription and stops the bus.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.ps.Shutdown()
}

func (b *Bus) unsub(ch chan any, topic string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.ps.Unsub(ch, topic)
}

// Active reports whether the subscription has not been ended by Unsubscribe.
func (s *SubscriberID) Active() bool {
	return s.active
}

// Unsubscribe ends the subscription. It is safe to call more than once.
func (s *SubscriberID) Unsubscribe() {
	s.once.Do(func() {
		s.active = false
		if s.unsub != nil {
			s.unsub()
		}
	})
}

// Publish does not do anything.
func (nilEventHandler) Publish(string, any) {
}

// Subscribe returns a subscription which is already closed.
func (nilEventHandler) Subscribe(string) *SubscriberID {
	return closedSubscriber()
}

// CloseTopic does not do anything.
func (nilEventHandler) CloseTopic(string) {
}

func closedSubscriber() *SubscriberID {
	ch := make(chan any)
	close(ch)

	return &SubscriberID{C: ch}
}
