package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/borgmon/prayer-reminder/pkg/models"
)

// GetSettings returns the saved settings. It fails with models.ErrNotFound
// if nothing was saved yet; callers then use models.DefaultSettings.
func (a *App) GetSettings() (models.AppSettings, error) {
	return a.store.Persisted()
}

// CurrentSettings returns the in-memory settings, including unsaved edits
func (a *App) CurrentSettings() models.AppSettings {
	return a.store.Get()
}

// SaveSettings replaces and persists all settings. It fails with
// models.ErrIO when the write fails.
func (a *App) SaveSettings(settings models.AppSettings) error {
	return a.store.Save(settings)
}

// SetLocation edits the location. The save and refetch happen once the
// edits stop for the debounce period.
func (a *App) SetLocation(location string) {
	a.store.MutateDebounced(func(s *models.AppSettings) {
		s.Location = strings.TrimSpace(location)
	})
}

// SetPlaySound toggles the adhan and saves immediately
func (a *App) SetPlaySound(enabled bool) error {
	return a.store.Mutate(func(s *models.AppSettings) {
		s.PlaySound = enabled
	})
}

// SetRunAtStartup toggles the login item and saves immediately
func (a *App) SetRunAtStartup(enabled bool) error {
	return a.store.Mutate(func(s *models.AppSettings) {
		s.RunAtStartup = enabled
	})
}

// SetPrayerEnabled toggles reminders for one prayer and saves immediately
func (a *App) SetPrayerEnabled(name string, enabled bool) error {
	if !models.IsPrayerName(name) {
		return fmt.Errorf("unknown prayer %q", name)
	}
	return a.store.Mutate(func(s *models.AppSettings) {
		*s = s.SetEnabled(name, enabled)
	})
}

// DetectLocation resolves the machine's location in the background and
// stores it. Manual edits stay possible meanwhile; whichever completes last wins.
func (a *App) DetectLocation(ctx context.Context) {
	a.goBackground(func(base context.Context) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		// Stop with the app as well as with the caller
		stop := context.AfterFunc(base, cancel)
		defer stop()

		info, err := a.resolver.Resolve(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("Location detection failed")
			return
		}
		if info.Location == "" {
			a.log.Warn().Str("timezone", info.Timezone).Msg("Location detection found no city")
			return
		}

		err = a.store.Mutate(func(s *models.AppSettings) {
			s.Location = info.Location
		})
		if err != nil {
			a.log.Error().Err(err).Msg("Failed to save detected location")
			return
		}
		a.log.Info().Str("location", info.Location).Msg("Location detected")
	})
}

// FetchPrayerTimes fetches today's schedule for location without touching
// the reminder state
func (a *App) FetchPrayerTimes(ctx context.Context, location string) ([]models.PrayerTime, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	times, err := a.provider.Fetch(ctx, location, a.clock.Now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrProvider, err)
	}
	return times, nil
}

// GetSystemInfo reports the detected location and timezone. Any detection
// failure is reported as models.ErrProvider.
func (a *App) GetSystemInfo(ctx context.Context) (models.SystemInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	info, err := a.resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, models.ErrProvider) {
			return models.SystemInfo{}, err
		}
		return models.SystemInfo{}, fmt.Errorf("%w: %w", models.ErrProvider, err)
	}
	return info, nil
}

// TestAdhanSound plays the adhan now, whatever play_sound says
func (a *App) TestAdhanSound() error {
	if a.audio == nil {
		return fmt.Errorf("audio output not available")
	}
	return a.audio.Play()
}

// StopAdhan stops playback
func (a *App) StopAdhan() {
	if a.audio != nil {
		a.audio.Stop()
	}
}

// Status returns the schedule, playback state and active prayer
func (a *App) Status() Status {
	st := Status{Status: a.scheduler.Status(), Playback: models.PlaybackIdle}
	if a.audio != nil {
		st.Playback = a.audio.State()
	}
	if marker, ok := a.dispatcher.Active(); ok {
		st.ActivePrayer = &marker
	}
	return st
}
