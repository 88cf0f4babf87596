package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/events"
	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/borgmon/prayer-reminder/pkg/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)

func at(hour, minute int) time.Time {
	return time.Date(testDay.Year(), testDay.Month(), testDay.Day(), hour, minute, 0, 0, time.Local)
}

type stubProvider struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *stubProvider) Fetch(_ context.Context, location string, day time.Time) ([]models.PrayerTime, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, location)
	if p.err != nil {
		return nil, p.err
	}
	mk := func(name string, h, m int) models.PrayerTime {
		dt := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
		return models.PrayerTime{Name: name, Time: dt.Format("15:04"), DateTime: dt}
	}
	return []models.PrayerTime{
		mk(models.Fajr, 5, 10),
		mk(models.Dhuhr, 12, 5),
		mk(models.Asr, 15, 30),
		mk(models.Maghrib, 18, 2),
		mk(models.Isha, 19, 20),
	}, nil
}

func (p *stubProvider) locations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type stubResolver struct {
	info models.SystemInfo
	err  error
	gate chan struct{} // when set, Resolve waits for it to close
}

func (r *stubResolver) Resolve(ctx context.Context) (models.SystemInfo, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return models.SystemInfo{}, ctx.Err()
		}
	}
	return r.info, r.err
}

type stubNotifier struct {
	mu     sync.Mutex
	bodies []string
}

func (n *stubNotifier) Notify(_, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bodies = append(n.bodies, body)
	return nil
}

type stubPlayer struct {
	mu    sync.Mutex
	plays int
	stops int
}

func (p *stubPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *stubPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *stubPlayer) State() models.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.plays > 0 && p.stops == 0 {
		return models.PlaybackPlaying
	}
	return models.PlaybackIdle
}

func (p *stubPlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

type stubAutostart struct {
	mu      sync.Mutex
	applied []bool
}

func (s *stubAutostart) Apply(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, enable)
	return nil
}

type harness struct {
	app       *App
	fs        afero.Fs
	clock     *clockwork.FakeClock
	store     *store.SettingsStore
	provider  *stubProvider
	resolver  *stubResolver
	notifier  *stubNotifier
	player    *stubPlayer
	autostart *stubAutostart
	topics    chan string
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(now)
	fs := afero.NewMemMapFs()
	st := store.NewSettingsStore(store.SettingsOptions{
		Fs:       fs,
		Path:     "/data/settings.json",
		Clock:    clock,
		Debounce: time.Second,
		Logger:   zerolog.Nop(),
	})

	h := &harness{
		fs:        fs,
		clock:     clock,
		store:     st,
		provider:  &stubProvider{},
		resolver:  &stubResolver{},
		notifier:  &stubNotifier{},
		player:    &stubPlayer{},
		autostart: &stubAutostart{},
		topics:    make(chan string, 16),
	}
	h.app = New(Options{
		Store:     st,
		Provider:  h.provider,
		Resolver:  h.resolver,
		Notifier:  h.notifier,
		Audio:     h.player,
		Autostart: h.autostart,
		Clock:     clock,
		Lead:      5 * time.Minute,
		Grace:     2 * time.Minute,
		Logger:    zerolog.Nop(),
	})
	h.app.Bus().Subscribe(func(ev events.Event) { h.topics <- ev.Topic })
	t.Cleanup(func() { _ = h.app.Close() })
	return h
}

func (h *harness) tick(t *testing.T, now time.Time) []models.ReminderEvent {
	t.Helper()
	evs, err := h.app.scheduler.Tick(context.Background(), now)
	require.NoError(t, err)
	return evs
}

func drain(ch chan string) []string {
	var out []string
	for {
		select {
		case topic := <-ch:
			out = append(out, topic)
		default:
			return out
		}
	}
}

func TestApp_ReminderFlow(t *testing.T) {
	h := newHarness(t, at(11, 0))

	evs := h.tick(t, at(12, 3))
	require.Len(t, evs, 1)

	assert.Equal(t, []string{"Dhuhr prayer at 12:05 starts in 2 minutes"}, h.notifier.bodies)
	// play_sound defaults to true
	assert.Equal(t, []string{events.TopicPrayerReminder, events.TopicPlayAdhan}, drain(h.topics))
	assert.Equal(t, 1, h.player.playCount())

	st := h.app.Status()
	require.NotNil(t, st.ActivePrayer)
	assert.Equal(t, models.Dhuhr, st.ActivePrayer.Prayer)
	assert.Equal(t, models.PlaybackPlaying, st.Playback)
}

func TestApp_PlaySoundCheckedAtFireTime(t *testing.T) {
	h := newHarness(t, at(11, 0))

	// Schedule fetched while sound is on
	assert.Empty(t, h.tick(t, at(11, 0)))

	require.NoError(t, h.app.SetPlaySound(false))
	evs := h.tick(t, at(12, 4))
	require.Len(t, evs, 1)

	assert.Equal(t, []string{events.TopicPrayerReminder}, drain(h.topics))
	assert.Zero(t, h.player.playCount())
	assert.Len(t, h.notifier.bodies, 1, "notification still shown")
}

func TestApp_LocationChangeRefetchesAndResetsFired(t *testing.T) {
	h := newHarness(t, at(12, 4))
	require.NoError(t, afero.WriteFile(h.fs, "/data/settings.json",
		[]byte(`{"location":"CityA","play_sound":false,"enabled_prayers":["Dhuhr"],"run_at_startup":false}`), 0o644))
	_, err := h.store.Load()
	require.NoError(t, err)

	require.Len(t, h.tick(t, at(12, 4)), 1)

	// Typing "CityB" key by key settles once
	for _, partial := range []string{"C", "Ci", "Cit", "City", "CityB"} {
		h.app.SetLocation(partial)
		h.clock.Advance(200 * time.Millisecond)
	}
	assert.Equal(t, []string{"CityA"}, h.provider.locations(), "no fetch while typing")

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return len(h.provider.locations()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"CityA", "CityB"}, h.provider.locations())

	require.Eventually(t, func() bool { return h.app.Status().Location == "CityB" }, time.Second, 10*time.Millisecond)
	for _, e := range h.app.Today() {
		assert.False(t, e.Fired, e.Name)
	}

	saved, err := h.app.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, "CityB", saved.Location)

	// Dhuhr is still inside its window and the fired set was reset
	assert.Len(t, h.tick(t, at(12, 5)), 1)
}

func TestApp_GetSettingsFirstRun(t *testing.T) {
	h := newHarness(t, at(9, 0))

	_, err := h.app.GetSettings()
	require.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, models.DefaultSettings(), h.app.CurrentSettings())
}

func TestApp_RunAtStartupAppliesAutostart(t *testing.T) {
	h := newHarness(t, at(9, 0))

	require.NoError(t, h.app.SetRunAtStartup(true))
	require.NoError(t, h.app.SetRunAtStartup(true))
	require.NoError(t, h.app.SetRunAtStartup(false))

	assert.Equal(t, []bool{true, false}, h.autostart.applied)
}

func TestApp_SetPrayerEnabled(t *testing.T) {
	h := newHarness(t, at(9, 0))

	require.NoError(t, h.app.SetPrayerEnabled(models.Asr, false))
	assert.False(t, h.app.CurrentSettings().IsEnabled(models.Asr))
	assert.Error(t, h.app.SetPrayerEnabled("Sunrise", true))
}

func TestApp_DetectLocation(t *testing.T) {
	h := newHarness(t, at(9, 0))
	h.resolver.info = models.SystemInfo{Location: "Doha", Timezone: "Asia/Qatar"}

	h.app.DetectLocation(context.Background())

	require.Eventually(t, func() bool {
		return h.store.Settled().Location == "Doha"
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		locs := h.provider.locations()
		return len(locs) > 0 && locs[len(locs)-1] == "Doha"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_TypedEditAfterDetectionWins(t *testing.T) {
	h := newHarness(t, at(9, 0))
	h.resolver.info = models.SystemInfo{Location: "Doha", Timezone: "Asia/Qatar"}

	h.app.DetectLocation(context.Background())
	require.Eventually(t, func() bool {
		return h.store.Settled().Location == "Doha"
	}, 2*time.Second, 10*time.Millisecond)

	h.app.SetLocation("Mecca")
	h.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return h.store.Settled().Location == "Mecca"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Mecca", h.app.CurrentSettings().Location)
}

func TestApp_DetectionAfterTypedEditWins(t *testing.T) {
	h := newHarness(t, at(9, 0))
	h.resolver.info = models.SystemInfo{Location: "Doha", Timezone: "Asia/Qatar"}
	h.resolver.gate = make(chan struct{})

	h.app.DetectLocation(context.Background())
	h.app.SetLocation("Mecca")
	assert.Equal(t, "Mecca", h.app.CurrentSettings().Location)

	// Detection completes before the typed edit settles
	close(h.resolver.gate)
	require.Eventually(t, func() bool {
		return h.store.Settled().Location == "Doha"
	}, 2*time.Second, 10*time.Millisecond)

	// The pending debounced save was superseded
	h.clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "Doha", h.store.Settled().Location)
	assert.Equal(t, "Doha", h.app.CurrentSettings().Location)

	raw, err := afero.ReadFile(h.fs, "/data/settings.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Doha"`)
}

func TestApp_DetectLocationFailureKeepsSettings(t *testing.T) {
	h := newHarness(t, at(9, 0))
	h.resolver.err = errors.New("offline")

	h.app.DetectLocation(context.Background())
	require.NoError(t, h.app.Close())

	assert.Equal(t, models.DefaultLocation, h.store.Settled().Location)
}

func TestApp_GetSystemInfo(t *testing.T) {
	h := newHarness(t, at(9, 0))

	h.resolver.err = models.ErrNotFound
	_, err := h.app.GetSystemInfo(context.Background())
	require.ErrorIs(t, err, models.ErrProvider)

	h.resolver.err = nil
	h.resolver.info = models.SystemInfo{Location: "Taipei", Timezone: "Asia/Taipei"}
	info, err := h.app.GetSystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asia/Taipei", info.Timezone)
}

func TestApp_FetchPrayerTimes(t *testing.T) {
	h := newHarness(t, at(9, 0))

	times, err := h.app.FetchPrayerTimes(context.Background(), "Makkah")
	require.NoError(t, err)
	assert.Len(t, times, 5)
	assert.Nil(t, h.app.Today(), "reminder state untouched")

	h.provider.err = errors.New("timeout")
	_, err = h.app.FetchPrayerTimes(context.Background(), "Makkah")
	require.ErrorIs(t, err, models.ErrProvider)
}

func TestApp_TestAndStopAdhan(t *testing.T) {
	h := newHarness(t, at(9, 0))
	require.NoError(t, h.app.SetPlaySound(false))

	require.NoError(t, h.app.TestAdhanSound())
	assert.Equal(t, 1, h.player.playCount())

	h.app.StopAdhan()
	assert.Equal(t, models.PlaybackIdle, h.app.Status().Playback)
}

func TestApp_CloseFlushesPendingEdit(t *testing.T) {
	h := newHarness(t, at(9, 0))

	h.app.SetLocation("Medina")
	require.NoError(t, h.app.Close())
	require.NoError(t, h.app.Close())

	saved, err := h.app.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, "Medina", saved.Location)
}
