// Package notify is the in-process "data changed" channel pushed to the portals.
package notify

import (
	"sync"
	"time"
)

type EventType string

const (
	ProgressChanged EventType = "progress.changed"
	DataPurged      EventType = "data.purged"
	PhaseSignedOff  EventType = "phase.signed_off"
)

type Event struct {
	Type      EventType `json:"type"`
	StudentID string    `json:"student_id"`
	PhaseID   string    `json:"phase_id,omitempty"`
	At        time.Time `json:"at"` // UTC
}

// Publisher is implemented by Broker; services only need to publish.
type Publisher interface {
	Publish(evt Event)
}

type subscription struct {
	studentID string
	ch        chan Event
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{subs: make(map[*subscription]struct{}), buffer: buffer}
}

// Subscribe returns the events of `studentID` (of every student when empty) and a func releasing the subscription.
func (b *Broker) Subscribe(studentID string) (<-chan Event, func()) {
	sub := &subscription{studentID: studentID, ch: make(chan Event, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

func (b *Broker) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.studentID != "" && sub.studentID != evt.StudentID {
			continue
		}
		select {
		case sub.ch <- evt:
		default: // slow subscriber
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later subscriptions are closed right away.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
