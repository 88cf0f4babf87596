package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_TopicFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var reminders, all []string
	bus.Subscribe(func(ev Event) { reminders = append(reminders, ev.Topic) }, TopicPrayerReminder)
	bus.Subscribe(func(ev Event) { all = append(all, ev.Topic) })

	bus.Publish(TopicPrayerReminder, ReminderPayload{Title: "Prayer Time: Asr", Body: "b"})
	bus.Publish(TopicPlayAdhan, struct{}{})

	assert.Equal(t, []string{TopicPrayerReminder}, reminders)
	assert.Equal(t, []string{TopicPrayerReminder, TopicPlayAdhan}, all)
}

func TestBus_PayloadDelivered(t *testing.T) {
	bus := NewBus()
	var got ReminderPayload
	bus.Subscribe(func(ev Event) { got = ev.Payload.(ReminderPayload) }, TopicPrayerReminder)

	bus.Publish(TopicPrayerReminder, ReminderPayload{Title: "t", Body: "b"})
	assert.Equal(t, ReminderPayload{Title: "t", Body: "b"}, got)
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	var n int
	sub := bus.Subscribe(func(Event) { n++ })

	bus.Publish(TopicPlayAdhan, nil)
	sub.Close()
	bus.Publish(TopicPlayAdhan, nil)
	sub.Close()

	assert.Equal(t, 1, n)
}

func TestSubscription_CloseWaitsForInflightDelivery(t *testing.T) {
	bus := NewBus()

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var finished atomic.Bool

	sub := bus.Subscribe(func(Event) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			finished.Store(true)
		}
	})

	go bus.Publish(TopicPlayAdhan, nil)
	<-entered

	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while the handler was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-closed
	assert.True(t, finished.Load())

	bus.Publish(TopicPlayAdhan, nil)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_ConcurrentPublishAndClose(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	var delivered atomic.Int64

	subs := make([]*Subscription, 10)
	for i := range subs {
		subs[i] = bus.Subscribe(func(Event) { delivered.Add(1) })
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(TopicPrayerReminder, nil)
			}
		}()
	}
	for _, sub := range subs {
		sub.Close()
	}
	wg.Wait()

	after := delivered.Load()
	bus.Publish(TopicPrayerReminder, nil)
	require.Equal(t, after, delivered.Load())
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	var n int
	bus.Subscribe(func(Event) { n++ })
	bus.Close()

	bus.Publish(TopicPlayAdhan, nil)
	late := bus.Subscribe(func(Event) { n++ })
	bus.Publish(TopicPlayAdhan, nil)
	late.Close()

	assert.Zero(t, n)
}
