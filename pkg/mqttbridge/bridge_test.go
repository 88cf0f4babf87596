package mqttbridge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/events"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	payload string
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	err   error
	stall chan struct{} // when set, Publish waits for it to close
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if p.stall != nil {
		<-p.stall
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, payload: string(payload.([]byte))})
	return &fakeToken{err: p.err}
}

func waitForMessages(t *testing.T, pub *fakePublisher, n int) []published {
	t.Helper()
	require.Eventually(t, func() bool { return len(pub.messages()) == n }, time.Second, 5*time.Millisecond)
	return pub.messages()
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func TestBridge_Forwards(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	pub := &fakePublisher{}

	b := New(pub, bus, "home/prayer", zerolog.Nop())
	defer b.Close()

	bus.Publish(events.TopicPrayerReminder, events.ReminderPayload{Title: "Prayer Time: Fajr", Body: "It's time for Fajr prayer at 04:51"})
	bus.Publish(events.TopicPlayAdhan, nil)
	bus.Publish("unrelated", "x")

	msgs := waitForMessages(t, pub, 2)
	assert.Equal(t, "home/prayer/prayer-reminder", msgs[0].topic)
	assert.JSONEq(t, `{"title":"Prayer Time: Fajr","body":"It's time for Fajr prayer at 04:51"}`, msgs[0].payload)
	assert.Equal(t, "home/prayer/play-adhan", msgs[1].topic)
	assert.Equal(t, `{}`, msgs[1].payload)
}

func TestBridge_PublishErrorIsNotFatal(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	pub := &fakePublisher{err: errors.New("not connected")}

	b := New(pub, bus, "prayer-reminder", zerolog.Nop())
	defer b.Close()

	bus.Publish(events.TopicPlayAdhan, nil)
	bus.Publish(events.TopicPlayAdhan, nil)

	waitForMessages(t, pub, 2)
}

func TestBridge_SlowBrokerDoesNotBlockBus(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	pub := &fakePublisher{stall: make(chan struct{})}

	b := New(pub, bus, "prayer-reminder", zerolog.Nop())
	defer b.Close()

	published := make(chan struct{})
	go func() {
		bus.Publish(events.TopicPrayerReminder, events.ReminderPayload{Title: "Prayer Time: Asr"})
		bus.Publish(events.TopicPlayAdhan, nil)
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("bus delivery waited on the broker")
	}

	close(pub.stall)
	msgs := waitForMessages(t, pub, 2)
	assert.Equal(t, "prayer-reminder/prayer-reminder", msgs[0].topic)
	assert.Equal(t, "prayer-reminder/play-adhan", msgs[1].topic)
}

func TestBridge_Close(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	pub := &fakePublisher{}

	b := New(pub, bus, "prayer-reminder", zerolog.Nop())
	b.Close()

	bus.Publish(events.TopicPlayAdhan, nil)
	assert.Empty(t, pub.messages())
}
