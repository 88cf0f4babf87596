// Package notify shows reminder notifications and tracks the active prayer.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/logging"
	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultMarkerTTL is how long a reminded prayer stays active
const DefaultMarkerTTL = 5 * time.Minute

// Notifier is the OS notification primitive. It returns
// models.ErrPermissionDenied when the user refused notifications.
type Notifier interface {
	Notify(title, body string) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(title, body string) error

func (f NotifierFunc) Notify(title, body string) error { return f(title, body) }

// Dispatcher delivers ReminderEvents and owns the ActivePrayerMarker
type Dispatcher struct {
	notifier Notifier
	clock    clockwork.Clock
	ttl      time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	marker *models.ActivePrayerMarker
	timer  clockwork.Timer
	gen    uint64
	closed bool
}

// NewDispatcher creates a dispatcher. A nil clock uses the real clock.
func NewDispatcher(notifier Notifier, clock clockwork.Clock, ttl time.Duration, logger zerolog.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultMarkerTTL
	}
	return &Dispatcher{
		notifier: notifier,
		clock:    clock,
		ttl:      ttl,
		log:      logging.Component(logger, "notify"),
	}
}

// Dispatch shows the notification for ev and marks its prayer active.
// Notification failures are logged and never stop the marker from being set.
func (d *Dispatcher) Dispatch(ev models.ReminderEvent) {
	if d.notifier != nil {
		if err := d.notifier.Notify(ev.Title, ev.Body); err != nil {
			if errors.Is(err, models.ErrPermissionDenied) {
				d.log.Debug().Str("prayer", ev.Prayer).Msg("Notifications not permitted, skipping")
			} else {
				d.log.Warn().Err(err).Str("prayer", ev.Prayer).Msg("Failed to show notification")
			}
		}
	}

	d.setMarker(ev.Prayer)
}

func (d *Dispatcher) setMarker(prayer string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.marker = &models.ActivePrayerMarker{Prayer: prayer, ExpiresAt: d.clock.Now().Add(d.ttl)}
	d.timer = d.clock.AfterFunc(d.ttl, func() {
		d.expire(gen)
	})
}

// expire clears the marker only if no newer marker replaced it
func (d *Dispatcher) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		return
	}
	d.marker = nil
	d.timer = nil
}

// Active returns the live marker, if any
func (d *Dispatcher) Active() (models.ActivePrayerMarker, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.marker == nil {
		return models.ActivePrayerMarker{}, false
	}
	return *d.marker, true
}

// Close cancels the pending expiry timer. Later dispatches still notify but
// no longer set a marker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.marker = nil
	d.closed = true
}
