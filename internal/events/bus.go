package events

import (
	"sync"
)

// Bus is an in-process fan-out of Events to any number of subscribers. It
// does not persist anything; durable delivery to webhooks is handled
// separately by the webhook queue in internal/store and internal/webhook.
// The non-blocking-publish-with-drop design mirrors the teacher's
// htlcswitch mailbox pattern: a slow subscriber must never stall block
// processing.
type Bus struct {
	mu          sync.Mutex
	subs        map[int]chan Event
	nextSubID   int
	subBufSize  int
}

// NewBus constructs an empty Bus. bufSize sets each subscriber channel's
// buffer; Publish drops the event for a subscriber whose buffer is full
// rather than blocking.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		subs:       make(map[int]chan Event),
		subBufSize: bufSize,
	}
}

// Subscribe registers a new listener and returns its channel plus an
// Unsubscribe func. Callers must invoke Unsubscribe when done to avoid
// leaking the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	ch := make(chan Event, b.subBufSize)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

// Publish fans ev out to every current subscriber, dropping it for any
// subscriber whose buffer is full and logging the drop.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warnf("events: dropping %s for subscriber %d, buffer full", ev.Type, id)
		}
	}
}

// Close tears down every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
