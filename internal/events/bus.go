package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventQuantity is published when a session records a produced quantity.
	EventQuantity EventType = "quantity"
	// EventStop is published when an order's apontamento is stopped.
	EventStop EventType = "stop"
	// EventQPTUpdate is published when an order's durable quantities changed.
	EventQPTUpdate EventType = "qpt_update"
	// EventRefreshed is published after a successful status poll.
	EventRefreshed EventType = "refreshed"
)

// Event represents a session event. Payload is the decoded message for
// broadcast-originated events and the poll response for EventRefreshed.
type Event struct {
	Type      EventType
	Timestamp time.Time
	OrderID   int
	Payload   any
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking event bus using Publish/Subscribe pattern.
// Events are delivered asynchronously via buffered channels, in publish order
// per subscriber. If a subscriber's channel is full, the event is dropped.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	wg          sync.WaitGroup
	logger      *zap.Logger
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
		logger:      logger.Named("events"),
	}
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range ch {
			b.deliver(fn, event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := b.subscribers[eventType]
			for i, subCh := range subs {
				if subCh == ch {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
}

func (b *Bus) deliver(fn Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panic",
				zap.String("type", string(event.Type)),
				zap.Int("order", event.OrderID),
				zap.Any("panic", r))
		}
	}()
	fn(event)
}

// Publish sends an event to all subscribers of its type without blocking.
func (b *Bus) Publish(eventType EventType, orderID int, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		OrderID:   orderID,
		Payload:   payload,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("subscriber full, event dropped",
				zap.String("type", string(eventType)), zap.Int("order", orderID))
		}
	}
}

// Close closes all subscriber channels and waits for in-flight deliveries.
func (b *Bus) Close() {
	b.mu.Lock()
	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
