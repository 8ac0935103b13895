package events

import (
	"sync"
	"time"
)

// Type identifies the kind of event published by the core.
type Type string

const (
	// StatusChanged fires whenever a remote's RemoteStatus is updated.
	StatusChanged Type = "status-changed"
	// SummaryChanged fires whenever the aggregate connection summary changes.
	SummaryChanged Type = "summary-changed"
	// IndicatorChanged fires whenever the recovery indicator appears, updates, or clears.
	IndicatorChanged Type = "indicator-changed"
	// Alert fires a user-visible message for a manually triggered failure.
	Alert Type = "alert"
)

// Event is a single published occurrence. RemoteID is empty for events
// that are not scoped to one remote (summary-changed, indicator-changed).
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time
	RemoteID  string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker distributes events to all current subscribers without blocking
// the publisher on a slow or stalled subscriber.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Subscribers are not closed; callers that no
// longer read from them should Unsubscribe first.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues an event for distribution. Blocks only until the
// broker's internal buffer has room, or the broker stops.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full, drop rather than stall the broker
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
