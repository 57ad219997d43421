package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case evt, ok := <-ch:
		return evt, ok
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}, false
	}
}

func assertEmpty(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	default:
	}
}

func TestBroker_Publish(t *testing.T) {
	b := NewBroker(4)
	defer b.Close()

	all, cancelAll := b.Subscribe("")
	defer cancelAll()
	alice, cancelAlice := b.Subscribe("alice")
	defer cancelAlice()
	require.Equal(t, 2, b.Subscribers())

	b.Publish(Event{Type: ProgressChanged, StudentID: "bob"})

	evt, ok := receive(t, all)
	require.True(t, ok)
	assert.Equal(t, "bob", evt.StudentID)
	assert.False(t, evt.At.IsZero())
	assertEmpty(t, alice)

	b.Publish(Event{Type: ProgressChanged, StudentID: "alice", PhaseID: "observation"})
	evt, _ = receive(t, alice)
	assert.Equal(t, "observation", evt.PhaseID)
	evt, _ = receive(t, all)
	assert.Equal(t, "alice", evt.StudentID)
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	b := NewBroker(1)
	defer b.Close()

	ch, cancel := b.Subscribe("")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: ProgressChanged, StudentID: "alice"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	_, ok := receive(t, ch)
	assert.True(t, ok)
	assertEmpty(t, ch)
}

func TestBroker_Cancel(t *testing.T) {
	b := NewBroker(1)
	defer b.Close()

	ch, cancel := b.Subscribe("alice")
	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())
	b.Publish(Event{StudentID: "alice"})
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(1)
	ch, cancel := b.Subscribe("")
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	late, _ := b.Subscribe("")
	_, ok = <-late
	assert.False(t, ok)
}
