package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDelivers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(New(EventScheduleExecuted, "stopped web", map[string]string{"schedule_id": "s1"}))

	select {
	case ev := <-sub:
		assert.Equal(t, EventScheduleExecuted, ev.Type)
		assert.Equal(t, "s1", ev.Metadata["schedule_id"])
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker() // not started: nothing drains the queue

	done := make(chan struct{})
	go func() {
		for i := 0; i < 250; i++ {
			b.Publish(New(EventScheduleFailed, "", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Equal(t, uint64(150), b.Dropped())

	b.Stop()
	b.Stop()
	b.Publish(New(EventScheduleFailed, "after stop", nil))
	require.Equal(t, uint64(150), b.Dropped())
}

func TestStopClosesSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	sub := b.Subscribe()

	b.Stop()

	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber not closed")
	}
	assert.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)

	late := b.Subscribe()
	_, ok := <-late
	assert.False(t, ok)
}

func TestSlowSubscriberCountsAsDropped(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()
	b.Subscribe() // never read

	for i := 0; i < subscriberSize+10; i++ {
		b.Publish(New(EventScheduleExecuted, "", nil))
		time.Sleep(time.Millisecond)
	}

	assert.Eventually(t, func() bool { return b.Dropped() >= 10 }, 2*time.Second, 10*time.Millisecond)
}
