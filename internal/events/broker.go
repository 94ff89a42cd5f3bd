package events

import (
	"sync"
	"time"
)

// Stage names a step of the restoration pipeline.
type Stage string

const (
	StageReceived  Stage = "received"
	StageAnalyzing Stage = "analyzing"
	StagePlanning  Stage = "planning"
	StageEditing   Stage = "editing"
	StagePersisted Stage = "persisted"
	StageFailed    Stage = "failed"
)

// Event describes a stage transition of one restoration.
type Event struct {
	RestorationID string    `json:"restoration_id"`
	Stage         Stage     `json:"stage"`
	Success       *bool     `json:"restoration_success,omitempty"`
	At            time.Time `json:"at"`
}

// Broker manages SSE subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroker constructs a broker instance.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives events.
func (b *Broker) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel from the broker.
func (b *Broker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish fans the event out to all subscribers without blocking.
func (b *Broker) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.mu.RLock()
	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// drop if subscriber is slow
		}
	}
	b.mu.RUnlock()
}

// Subscribers reports the number of connected listeners.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
