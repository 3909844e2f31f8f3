package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishSync_InvokesAllSubscribers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []int

	b.Subscribe(TopicAlertRaised, func(_ context.Context, e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Payload.(int))
	})
	b.Subscribe(TopicAlertRaised, func(_ context.Context, e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Payload.(int)*10)
	})

	b.PublishSync(context.Background(), Event{Topic: TopicAlertRaised, Payload: 3})

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{3, 30}, got)
}

func TestBus_Unsubscribe_StopsDelivery(t *testing.T) {
	b := New()
	var calls int
	unsub := b.Subscribe(TopicFixApplied, func(_ context.Context, _ Event) {
		calls++
	})
	unsub()
	b.PublishSync(context.Background(), Event{Topic: TopicFixApplied})
	assert.Equal(t, 0, calls)
}

func TestBus_Publish_DoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := New()
	done := make(chan struct{})
	b.Subscribe(TopicMessageFailed, func(_ context.Context, _ Event) {
		<-done
	})

	finished := make(chan struct{})
	go func() {
		b.Publish(context.Background(), Event{Topic: TopicMessageFailed})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on slow subscriber")
	}
	close(done)
}

func TestBus_DifferentTopic_NotDelivered(t *testing.T) {
	b := New()
	var calls int
	b.Subscribe(TopicFixProposed, func(_ context.Context, _ Event) {
		calls++
	})
	b.PublishSync(context.Background(), Event{Topic: TopicFixApplied})
	assert.Equal(t, 0, calls)
}
