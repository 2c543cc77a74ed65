package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what kind of state change an event describes.
type EventType string

const (
	EventComponentUpdated     EventType = "component.updated"
	EventComponentDeleted     EventType = "component.deleted"
	EventConfigurationUpdated EventType = "configuration.updated"
	EventConfigurationDeleted EventType = "configuration.deleted"
	EventSourceUpdated        EventType = "source.updated"
	EventSourceDeleted        EventType = "source.deleted"
	EventSessionCreated       EventType = "session.created"
	EventSessionCompleted     EventType = "session.completed"
	EventSessionDeleted       EventType = "session.deleted"
)

// Event represents a state change notification. Delivery is best-effort:
// a mutation never fails or blocks because a subscriber is slow.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

const (
	brokerBuffer     = 100
	subscriberBuffer = 50
)

// Broker fans published events out to subscribers on a single
// distribution goroutine.
type Broker struct {
	mu     sync.RWMutex
	subs   map[Subscriber]struct{}
	queue  chan *Event
	stopCh chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[Subscriber]struct{}),
		queue:  make(chan *Event, brokerBuffer),
		stopCh: make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go func() {
		for {
			select {
			case ev := <-b.queue:
				b.fanOut(ev)
			case <-b.stopCh:
				return
			}
		}
	}()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	close(sub)
}

// Publish enqueues an event, filling in ID and Timestamp when unset.
// The event is dropped if the broker's queue is full or it is stopped.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
	case <-b.stopCh:
	default:
	}
}

func (b *Broker) fanOut(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			// slow subscriber, drop
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
