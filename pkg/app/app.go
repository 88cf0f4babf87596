// Package app wires the reminder engine together and implements the command
// surface used by the tray, the CLI and RPC clients.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/events"
	"github.com/borgmon/prayer-reminder/pkg/location"
	"github.com/borgmon/prayer-reminder/pkg/logging"
	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/borgmon/prayer-reminder/pkg/notify"
	"github.com/borgmon/prayer-reminder/pkg/prayertimes"
	"github.com/borgmon/prayer-reminder/pkg/reminder"
	"github.com/borgmon/prayer-reminder/pkg/schedule"
	"github.com/borgmon/prayer-reminder/pkg/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Player is the adhan playback controller
type Player interface {
	Play() error
	Stop()
	State() models.PlaybackState
}

// Autostarter toggles the OS login item
type Autostarter interface {
	Apply(enable bool) error
}

// Options configures an App
type Options struct {
	Store     *store.SettingsStore
	Provider  prayertimes.Provider
	Resolver  location.Resolver
	Notifier  notify.Notifier
	Audio     Player
	Bus       *events.Bus
	Ledger    reminder.Ledger // optional
	Autostart Autostarter     // optional
	Clock     clockwork.Clock

	TickInterval time.Duration
	Lead         time.Duration
	Grace        time.Duration
	FetchTimeout time.Duration
	MarkerTTL    time.Duration

	Logger zerolog.Logger
}

// Status is the combined engine state reported to clients
type Status struct {
	reminder.Status
	Playback     models.PlaybackState       `json:"playback"`
	ActivePrayer *models.ActivePrayerMarker `json:"active_prayer,omitempty"`
}

// App owns the long-running components
type App struct {
	store      *store.SettingsStore
	provider   prayertimes.Provider
	resolver   location.Resolver
	audio      Player
	bus        *events.Bus
	autostart  Autostarter
	clock      clockwork.Clock
	timeout    time.Duration
	scheduler  *reminder.Scheduler
	dispatcher *notify.Dispatcher
	adhanSub   *events.Subscription
	log        zerolog.Logger

	// Background work started by listeners and DetectLocation
	bgMu      sync.Mutex
	baseCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New wires the components. Call Start to begin ticking.
func New(opts Options) *App {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		store:     opts.Store,
		provider:  opts.Provider,
		resolver:  opts.Resolver,
		audio:     opts.Audio,
		bus:       opts.Bus,
		autostart: opts.Autostart,
		clock:     opts.Clock,
		timeout:   opts.FetchTimeout,
		log:       logging.Component(opts.Logger, "app"),
		baseCtx:   ctx,
		cancel:    cancel,
	}

	a.dispatcher = notify.NewDispatcher(opts.Notifier, opts.Clock, opts.MarkerTTL, opts.Logger)
	a.scheduler = reminder.New(reminder.Options{
		Provider:     opts.Provider,
		Settings:     opts.Store,
		Cache:        schedule.NewCache(),
		Ledger:       opts.Ledger,
		Clock:        opts.Clock,
		Lead:         opts.Lead,
		Grace:        opts.Grace,
		TickInterval: opts.TickInterval,
		FetchTimeout: opts.FetchTimeout,
		Handler:      a.onReminder,
		Logger:       opts.Logger,
	})

	if a.audio != nil {
		a.adhanSub = a.bus.Subscribe(func(events.Event) {
			if err := a.audio.Play(); err != nil {
				a.log.Error().Err(err).Msg("Failed to play adhan")
			}
		}, events.TopicPlayAdhan)
	}

	opts.Store.OnSettled(a.onSettingsSettled)
	return a
}

// Start begins the reminder loop
func (a *App) Start(ctx context.Context) error {
	return a.scheduler.Start(ctx)
}

// Bus returns the push event bus
func (a *App) Bus() *events.Bus {
	return a.bus
}

// Today returns today's schedule with fired flags
func (a *App) Today() []schedule.Entry {
	return a.scheduler.Today()
}

// Close stops the loop and timers, saves pending edits and stops playback.
// It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if err := a.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}

		a.bgMu.Lock()
		a.cancel()
		a.bgMu.Unlock()
		a.wg.Wait()

		if err := a.store.Flush(); err != nil {
			errs = append(errs, err)
		}
		a.store.Close()
		a.dispatcher.Close()

		if a.adhanSub != nil {
			a.adhanSub.Close()
		}
		if a.audio != nil {
			a.audio.Stop()
		}
	})
	return errors.Join(errs...)
}

// onReminder runs for every emitted reminder, in schedule order
func (a *App) onReminder(ev models.ReminderEvent) {
	a.dispatcher.Dispatch(ev)
	a.bus.Publish(events.TopicPrayerReminder, events.ReminderPayload{Title: ev.Title, Body: ev.Body})

	// Sound is decided at fire time, not when the schedule was fetched
	if a.store.Settled().PlaySound {
		a.bus.Publish(events.TopicPlayAdhan, struct{}{})
	}
}

func (a *App) onSettingsSettled(prev, next models.AppSettings) {
	if prev.Location != next.Location {
		a.log.Info().Str("from", prev.Location).Str("to", next.Location).Msg("Location changed, refreshing schedule")
		a.goBackground(func(ctx context.Context) {
			if err := a.scheduler.Refresh(ctx); err != nil {
				a.log.Warn().Err(err).Msg("Schedule refresh failed, retrying on next tick")
			}
		})
	}

	if prev.RunAtStartup != next.RunAtStartup && a.autostart != nil {
		if err := a.autostart.Apply(next.RunAtStartup); err != nil {
			a.log.Warn().Err(err).Msg("Failed to update autostart")
		}
	}
}

func (a *App) goBackground(fn func(ctx context.Context)) {
	a.bgMu.Lock()
	defer a.bgMu.Unlock()

	if a.baseCtx.Err() != nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.baseCtx)
	}()
}
