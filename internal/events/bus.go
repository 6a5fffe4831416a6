// Package events provides an in-process fan-out event bus carrying
// update/rollback/restart lifecycle events to subscribers (SSE streams,
// the notifier, tests). Publishers never block: a subscriber that falls
// behind has events dropped for it rather than back-pressuring the
// publisher.
package events

import (
	"sync"
	"time"
)

// Type identifies the kind of event on the bus.
type Type string

const (
	TypeUpdateCheckStarted Type = "update-check-started"
	TypeUpdateCheckComplete Type = "update-check-complete"
	TypeUpdateCheckError Type = "update-check-error"
	TypeUpdateAvailable Type = "update-available"
	TypeUpdateProgress Type = "update-progress"
	TypeUpdateComplete Type = "update-complete"
	TypeRollbackStarted Type = "rollback-started"
	TypeRollbackComplete Type = "rollback-complete"
	TypeRestartScheduled Type = "restart-scheduled"
	TypeRestartMaxRetries Type = "restart-max-retries"
)

// Event is a single message published through the bus. All events carry at
// minimum ContainerID, ContainerName, and a monotonic Timestamp.
type Event struct {
	Type Type `json:"type"`
	ContainerID int64 `json:"container_id"`
	ContainerName string `json:"container_name"`
	Timestamp time.Time `json:"timestamp"`

	// Phase/Progress are populated for TypeUpdateProgress.
	Phase string `json:"phase,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Status string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

const subscriberBufferSize = 64

// Bus is a fan-out pub/sub event bus.
type Bus struct {
	mu sync.RWMutex
	subs map[uint64]chan Event
	next uint64
}

// New creates a ready-to-use Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Publish sends an event to all current subscribers, non-blocking.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Subscriber buffer full — drop rather than block the publisher.
		}
	}
}

// Subscribe returns a channel of future events and a cancel function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// SubscriberCount reports the number of active subscribers (for diagnostics).
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
