package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var topics = []string{"orders", "inventory", "depth", "stats", "trades", "errors"}

func collect(ch <-chan Event, want int, timeout time.Duration) []Event {
	var got []Event
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			return got
		}
	}
	return got
}

// Every subscriber of a topic, and every AllTopics subscriber, receives each
// published event when buffers are large enough.
func TestProperty_SubscribersReceiveEveryEvent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("fast subscribers receive all events", prop.ForAll(
		func(subscribers, count, topicIdx int) bool {
			topic := topics[topicIdx]
			hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 100})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			chans := make([]<-chan Event, subscribers)
			for i := range chans {
				chans[i] = hub.Subscribe(topic)
			}
			all := hub.Subscribe(AllTopics)

			for i := 0; i < count; i++ {
				hub.Publish(topic)
			}

			for _, ch := range append(chans, all) {
				got := collect(ch, count, 2*time.Second)
				if len(got) != count {
					t.Logf("received %d of %d", len(got), count)
					return false
				}
				for i := 1; i < len(got); i++ {
					if got[i].Seq <= got[i-1].Seq {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 20),
		gen.IntRange(0, len(topics)-1),
	))

	properties.TestingRun(t)
}

// A subscriber only sees its own topic.
func TestProperty_TopicIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("events are routed by topic", prop.ForAll(
		func(subIdx, pubIdx int) bool {
			hub := NewHub()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			ch := hub.Subscribe(topics[subIdx])
			hub.Publish(topics[pubIdx])

			got := collect(ch, 1, 100*time.Millisecond)
			if subIdx == pubIdx {
				return len(got) == 1 && got[0].Topic == topics[subIdx]
			}
			return len(got) == 0
		},
		gen.IntRange(0, len(topics)-1),
		gen.IntRange(0, len(topics)-1),
	))

	properties.TestingRun(t)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 100, SubscriberBufferSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	_ = hub.Subscribe("orders") // never read
	fast := hub.Subscribe("orders")

	var received atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range collect(fast, 10, 2*time.Second) {
			received.Add(1)
		}
	}()

	for i := 0; i < 10; i++ {
		hub.Publish("orders")
		time.Sleep(time.Millisecond)
	}
	<-done

	if received.Load() == 0 {
		t.Fatal("fast subscriber starved by a slow one")
	}
	if hub.Metrics().Dropped == 0 {
		t.Fatal("slow subscriber overflow should be counted as dropped")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("map")
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d", hub.SubscriberCount())
	}
	hub.Unsubscribe("map", ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	if hub.SubscriberCount() != 0 {
		t.Fatal("subscriber not removed")
	}
}
