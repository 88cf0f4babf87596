package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (n *recordingNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return n.err
}

func event(prayer string) models.ReminderEvent {
	return models.ReminderEvent{ID: prayer + "-id", Prayer: prayer, Title: "Prayer Time: " + prayer, Body: "body"}
}

func active(d *Dispatcher) string {
	m, ok := d.Active()
	if !ok {
		return ""
	}
	return m.Prayer
}

func TestDispatch_SetsMarkerAndExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	n := &recordingNotifier{}
	d := NewDispatcher(n, clock, 5*time.Minute, zerolog.Nop())
	defer d.Close()

	d.Dispatch(event(models.Asr))

	assert.Equal(t, []string{"Prayer Time: Asr"}, n.titles)
	m, ok := d.Active()
	require.True(t, ok)
	assert.Equal(t, models.Asr, m.Prayer)
	assert.Equal(t, clock.Now().Add(5*time.Minute), m.ExpiresAt)

	clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool { return active(d) == "" }, time.Second, 5*time.Millisecond)
}

func TestDispatch_NewerMarkerWins(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDispatcher(&recordingNotifier{}, clock, 5*time.Minute, zerolog.Nop())
	defer d.Close()

	d.Dispatch(event(models.Maghrib))
	clock.Advance(3 * time.Minute)
	d.Dispatch(event(models.Isha))

	// The first marker's expiry time passes; the newer marker must survive it
	clock.Advance(3 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, models.Isha, active(d))

	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return active(d) == "" }, time.Second, 5*time.Millisecond)
}

func TestDispatch_NotificationErrorsAreNotFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permission denied", models.ErrPermissionDenied},
		{"other failure", errors.New("dbus unavailable")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(&recordingNotifier{err: tt.err}, clockwork.NewFakeClock(), 0, zerolog.Nop())
			defer d.Close()

			d.Dispatch(event(models.Fajr))
			assert.Equal(t, models.Fajr, active(d))
		})
	}
}

func TestDispatcher_Close(t *testing.T) {
	clock := clockwork.NewFakeClock()
	n := &recordingNotifier{}
	d := NewDispatcher(n, clock, time.Minute, zerolog.Nop())

	d.Dispatch(event(models.Dhuhr))
	d.Close()

	_, ok := d.Active()
	assert.False(t, ok)

	d.Dispatch(event(models.Asr))
	_, ok = d.Active()
	assert.False(t, ok)
	assert.Len(t, n.titles, 2)
}
