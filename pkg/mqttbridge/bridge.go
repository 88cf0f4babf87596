// Package mqttbridge republishes event bus traffic to an MQTT broker so home
// automation can react to prayer reminders.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/events"
	"github.com/borgmon/prayer-reminder/pkg/logging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	publishTimeout = 5 * time.Second
	disconnectWait = 250 // milliseconds
	queueSize      = 32
)

// Publisher is the part of mqtt.Client the bridge uses
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Bridge forwards bus events to <prefix>/<event topic>. Publishing happens on
// its own goroutine so a slow broker never holds up bus delivery.
type Bridge struct {
	pub    Publisher
	prefix string
	sub    *events.Subscription
	queue  chan events.Event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

// New subscribes a bridge to both push topics on bus
func New(pub Publisher, bus *events.Bus, prefix string, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		pub:    pub,
		prefix: prefix,
		queue:  make(chan events.Event, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    logging.Component(logger, "mqtt"),
	}
	go b.run()
	b.sub = bus.Subscribe(b.enqueue, events.TopicPrayerReminder, events.TopicPlayAdhan)
	return b
}

// Close stops forwarding and drops events not yet published. It does not
// disconnect the client.
func (b *Bridge) Close() {
	b.once.Do(func() {
		b.sub.Close()
		close(b.quit)
		<-b.done
	})
}

func (b *Bridge) enqueue(ev events.Event) {
	select {
	case b.queue <- ev:
	default:
		b.log.Warn().Str("topic", ev.Topic).Msg("MQTT queue full, dropping event")
	}
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			return
		case ev := <-b.queue:
			b.publish(ev)
		}
	}
}

func (b *Bridge) publish(ev events.Event) {
	payload := ev.Payload
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn().Err(err).Str("topic", ev.Topic).Msg("Failed to encode MQTT payload")
		return
	}

	topic := b.prefix + "/" + ev.Topic
	token := b.pub.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		b.log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
		return
	}
	b.log.Debug().Str("topic", topic).Msg("Published event to MQTT")
}

// Connect dials broker with a random client id and auto-reconnect enabled
func Connect(broker string, logger zerolog.Logger) (mqtt.Client, error) {
	log := logging.Component(logger, "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("prayer-reminder-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(publishTimeout)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", broker).Msg("Connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	return client, nil
}

// Disconnect closes client after letting in-flight work drain
func Disconnect(client mqtt.Client) {
	client.Disconnect(disconnectWait)
}
