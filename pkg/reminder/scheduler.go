// Package reminder decides when a prayer reminder is due and emits it once.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/logging"
	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/borgmon/prayer-reminder/pkg/prayertimes"
	"github.com/borgmon/prayer-reminder/pkg/schedule"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Default reminder window around a prayer time
const (
	DefaultLead  = 5 * time.Minute
	DefaultGrace = 2 * time.Minute
)

// How many days of ledger history survive a refresh
const ledgerRetentionDays = 7

// SettingsSource supplies the settled user settings
type SettingsSource interface {
	Settled() models.AppSettings
}

// Ledger persists fired reminders and fetched schedules across restarts
type Ledger interface {
	RecordFired(ctx context.Context, date, location, prayer string, at time.Time) error
	FiredPrayers(ctx context.Context, date, location string) ([]string, error)
	SaveSchedule(ctx context.Context, date, location string, times []models.PrayerTime) error
	LoadSchedule(ctx context.Context, date, location string) ([]models.PrayerTime, error)
	Prune(ctx context.Context, before string) error
}

// Handler receives emitted reminders in schedule order
type Handler func(models.ReminderEvent)

// Options configures a Scheduler
type Options struct {
	Provider     prayertimes.Provider
	Settings     SettingsSource
	Cache        *schedule.Cache
	Ledger       Ledger // optional
	Clock        clockwork.Clock
	Lead         time.Duration
	Grace        time.Duration
	TickInterval time.Duration
	FetchTimeout time.Duration
	Handler      Handler
	Logger       zerolog.Logger
}

// Status is a point-in-time view of the scheduler
type Status struct {
	Location  string           `json:"location"`
	Date      string           `json:"schedule_date"`
	Entries   []schedule.Entry `json:"prayers"`
	LastTick  time.Time        `json:"last_tick"`
	LastError string           `json:"last_error,omitempty"`
}

// Scheduler owns the schedule snapshot and its fired set
type Scheduler struct {
	provider     prayertimes.Provider
	settings     SettingsSource
	cache        *schedule.Cache
	ledger       Ledger
	clock        clockwork.Clock
	lead         time.Duration
	grace        time.Duration
	tickInterval time.Duration
	fetchTimeout time.Duration
	handler      Handler
	log          zerolog.Logger

	// Serializes Tick and Refresh
	tickMu  sync.Mutex
	started bool // a snapshot was built by this process

	mu        sync.Mutex
	lastTick  time.Time
	lastError string
	cron      gocron.Scheduler
}

// New creates a Scheduler. Provider and Settings are required.
func New(opts Options) *Scheduler {
	if opts.Cache == nil {
		opts.Cache = schedule.NewCache()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Lead <= 0 {
		opts.Lead = DefaultLead
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 30 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	return &Scheduler{
		provider:     opts.Provider,
		settings:     opts.Settings,
		cache:        opts.Cache,
		ledger:       opts.Ledger,
		clock:        opts.Clock,
		lead:         opts.Lead,
		grace:        opts.Grace,
		tickInterval: opts.TickInterval,
		fetchTimeout: opts.FetchTimeout,
		handler:      opts.Handler,
		log:          logging.Component(opts.Logger, "scheduler"),
	}
}

// Tick refreshes the schedule if needed and emits every reminder that is due
// at now. The returned error is a wrapped models.ErrProvider when the refresh
// failed; due reminders from the last good schedule are still emitted.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]models.ReminderEvent, error) {
	s.tickMu.Lock()

	settings := s.settings.Settled()
	s.mu.Lock()
	s.lastTick = now
	s.mu.Unlock()

	var refreshErr error
	if s.cache.Stale(now, settings.Location) {
		refreshErr = s.refreshLocked(ctx, now, settings.Location)
	}

	// A window that crosses midnight is cut short: the first tick of the new
	// day replaces the snapshot, so a late Isha past 00:00 is not reminded.
	var events []models.ReminderEvent
	if snap := s.cache.Current(); snap != nil && snap.Date == models.DateKey(now) {
		events = s.collectLocked(ctx, snap, settings, now)
	}
	s.tickMu.Unlock()

	if s.handler != nil {
		for _, ev := range events {
			s.handler(ev)
		}
	}
	return events, refreshErr
}

// Refresh refetches today's schedule for the settled location right away
func (s *Scheduler) Refresh(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.cache.Invalidate()
	return s.refreshLocked(ctx, s.clock.Now(), s.settings.Settled().Location)
}

// Today returns the current schedule with fired flags
func (s *Scheduler) Today() []schedule.Entry {
	return s.cache.Entries()
}

// LastError returns the message of the last failed refresh, or "" after a success
func (s *Scheduler) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Status returns the current schedule, last tick and last error
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{LastTick: s.lastTick, LastError: s.lastError}
	s.mu.Unlock()

	if snap := s.cache.Current(); snap != nil {
		st.Location = snap.Location
		st.Date = snap.Date
	}
	st.Entries = s.cache.Entries()
	return st
}

func (s *Scheduler) setLastError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

func (s *Scheduler) refreshLocked(ctx context.Context, now time.Time, location string) error {
	date := models.DateKey(now)
	first := !s.started

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	times, err := s.provider.Fetch(fetchCtx, location, now)
	cancel()

	if err != nil {
		if !errors.Is(err, models.ErrProvider) {
			err = fmt.Errorf("%w: %w", models.ErrProvider, err)
		}
		s.setLastError(err.Error())
		s.log.Warn().Err(err).Str("location", location).Msg("Failed to fetch prayer times")

		// A fresh process without a schedule falls back to the last one stored for today
		if first && s.cache.Current() == nil && s.ledger != nil {
			if cached, lerr := s.ledger.LoadSchedule(ctx, date, location); lerr == nil {
				s.install(ctx, date, location, cached, now, true)
				s.log.Info().Str("location", location).Msg("Using stored schedule")
			}
		}

		return err
	}

	s.setLastError("")
	s.install(ctx, date, location, times, now, first)

	if s.ledger != nil {
		if err := s.ledger.SaveSchedule(ctx, date, location, times); err != nil {
			s.log.Warn().Err(err).Msg("Failed to store schedule")
		}
		cutoff := models.DateKey(now.AddDate(0, 0, -ledgerRetentionDays))
		if err := s.ledger.Prune(ctx, cutoff); err != nil {
			s.log.Warn().Err(err).Msg("Failed to prune ledger")
		}
	}

	s.log.Info().Str("location", location).Str("date", date).Int("count", len(times)).Msg("Prayer times refreshed")
	return nil
}

// install replaces the snapshot. Fired names carry over when the current
// snapshot is for the same date and location, and are restored from the
// ledger only for the first snapshot of the process.
func (s *Scheduler) install(ctx context.Context, date, location string, times []models.PrayerTime, now time.Time, restore bool) {
	var fired []string
	if cur := s.cache.Current(); cur != nil && cur.Date == date && cur.Location == location {
		fired = cur.FiredNames()
	}
	if restore && s.ledger != nil {
		names, err := s.ledger.FiredPrayers(ctx, date, location)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to read fired reminders")
		}
		fired = append(fired, names...)
	}
	s.cache.Replace(date, location, times, now, fired...)
	s.started = true
}

func (s *Scheduler) collectLocked(ctx context.Context, snap *schedule.Snapshot, settings models.AppSettings, now time.Time) []models.ReminderEvent {
	var events []models.ReminderEvent
	for _, pt := range snap.Times {
		if !settings.IsEnabled(pt.Name) || snap.IsFired(pt.Name) {
			continue
		}
		windowStart := pt.DateTime.Add(-s.lead)
		windowEnd := pt.DateTime.Add(s.grace)
		if now.Before(windowStart) || !now.Before(windowEnd) {
			continue
		}

		if !s.cache.MarkFired(snap, pt.Name) {
			continue
		}
		if s.ledger != nil {
			if err := s.ledger.RecordFired(ctx, snap.Date, snap.Location, pt.Name, now); err != nil {
				s.log.Warn().Err(err).Str("prayer", pt.Name).Msg("Failed to record fired reminder")
			}
		}

		ev := newEvent(pt, now)
		s.log.Info().Str("prayer", pt.Name).Str("time", pt.Time).Msg("Prayer reminder due")
		events = append(events, ev)
	}
	return events
}

func newEvent(pt models.PrayerTime, now time.Time) models.ReminderEvent {
	body := fmt.Sprintf("It's time for %s prayer at %s", pt.Name, pt.Time)
	if until := pt.DateTime.Sub(now); until > 0 {
		minutes := int(math.Ceil(until.Minutes()))
		unit := "minutes"
		if minutes == 1 {
			unit = "minute"
		}
		body = fmt.Sprintf("%s prayer at %s starts in %d %s", pt.Name, pt.Time, minutes, unit)
	}

	return models.ReminderEvent{
		ID:          uuid.NewString(),
		Prayer:      pt.Name,
		ScheduledAt: pt.DateTime,
		Title:       "Prayer Time: " + pt.Name,
		Body:        body,
	}
}
