// Package eventbus fans notification lifecycle events out to in-process
// subscribers (debug log, audit store).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the dispatcher.
const (
	TypeNotificationSent        = "notification.sent"
	TypeNotificationSuppressed  = "notification.suppressed"
	TypeNotificationFetchFailed = "notification.fetch_failed"
	TypeNotificationSendFailed  = "notification.send_failed"
	TypeNotificationTemplate    = "notification.template_error"
	TypeConfigReloaded          = "config.reloaded"
)

// Event is a small in-memory signal.
//
// Publish never blocks: subscribers get buffered channels and a slow
// subscriber loses events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Notification is the Data of notification.* events.
type Notification struct {
	CorrelationID  string
	Platform       string
	ConversationID string
	IssueKey       string
	Profile        string
	Took           time.Duration
	Err            error
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped counts events lost to full subscribers.
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sending under the read lock keeps Unsubscribe from closing a channel
	// mid-send; every send is non-blocking so the lock is held briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
