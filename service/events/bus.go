package events

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one domain fact. Kind is dotted, for example "chat.message.sent".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Keyed payloads choose the partition key when an event leaves the process.
type Keyed interface {
	EventKey() string
}

// Publisher is what producers of domain events depend on.
type Publisher interface {
	Publish(evt Event)
}

// Bus is an in-process publish/subscribe bus with namespace filtering.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int

	dropped atomic.Int64
}

type subscription struct {
	namespace string
	ch        chan Event
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish delivers evt to every subscriber whose namespace prefixes evt.Kind.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of events under namespace and the function that
// removes the subscription. The channel is never closed.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
