package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// SettingsListener is called after a change settles, with the previous and new settled values
type SettingsListener func(prev, next models.AppSettings)

// SettingsOptions configures a SettingsStore
type SettingsOptions struct {
	Fs           afero.Fs
	Path         string
	Clock        clockwork.Clock
	Debounce     time.Duration // delay after the last debounced edit before saving
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// SettingsStore owns the single AppSettings value and its JSON file.
//
// Three values are tracked: current (latest in-memory edit), settled (the value
// of the last save attempt, which other components act on) and persisted (what
// is known to be on disk).
type SettingsStore struct {
	fs           afero.Fs
	path         string
	clock        clockwork.Clock
	debounce     time.Duration
	writeTimeout time.Duration
	log          zerolog.Logger

	mu        sync.Mutex
	current   models.AppSettings
	settled   models.AppSettings
	persisted models.AppSettings
	hasRecord bool
	dirty     bool
	timer     clockwork.Timer
	closed    bool
	listeners []SettingsListener

	// Serializes file writes so settle order matches write order
	writeMu sync.Mutex
}

// NewSettingsStore creates a store holding the default settings until Load succeeds
func NewSettingsStore(opts SettingsOptions) *SettingsStore {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	defaults := models.DefaultSettings()
	return &SettingsStore{
		fs:           opts.Fs,
		path:         opts.Path,
		clock:        opts.Clock,
		debounce:     opts.Debounce,
		writeTimeout: opts.WriteTimeout,
		log:          opts.Logger,
		current:      defaults,
		settled:      defaults.Clone(),
	}
}

// Load reads the settings file. It returns models.ErrNotFound on first run,
// in which case the store keeps the defaults.
func (s *SettingsStore) Load() (models.AppSettings, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.AppSettings{}, fmt.Errorf("%w: no settings at %s", models.ErrNotFound, s.path)
		}
		return models.AppSettings{}, fmt.Errorf("%w: read settings: %v", models.ErrIO, err)
	}

	var loaded models.AppSettings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return models.AppSettings{}, fmt.Errorf("%w: decode settings: %v", models.ErrIO, err)
	}
	loaded = loaded.Normalize()

	s.mu.Lock()
	s.current = loaded
	s.settled = loaded.Clone()
	s.persisted = loaded.Clone()
	s.hasRecord = true
	s.dirty = false
	s.mu.Unlock()

	return loaded.Clone(), nil
}

// Get returns a copy of the latest in-memory settings, including unsettled edits
func (s *SettingsStore) Get() models.AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Settled returns a copy of the value of the last save attempt
func (s *SettingsStore) Settled() models.AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled.Clone()
}

// Persisted returns the settings known to be on disk, or models.ErrNotFound
// if nothing was ever saved
func (s *SettingsStore) Persisted() (models.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasRecord {
		return models.AppSettings{}, models.ErrNotFound
	}
	return s.persisted.Clone(), nil
}

// OnSettled registers a listener for settled changes
func (s *SettingsStore) OnSettled(fn SettingsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Save replaces the settings and writes them immediately
func (s *SettingsStore) Save(settings models.AppSettings) error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.current = settings.Normalize()
	s.dirty = true
	s.mu.Unlock()

	return s.flush()
}

// Mutate applies fn and saves immediately. Used for discrete toggles.
func (s *SettingsStore) Mutate(fn func(*models.AppSettings)) error {
	s.mu.Lock()
	s.stopTimerLocked()
	next := s.current.Clone()
	fn(&next)
	s.current = next.Normalize()
	s.dirty = true
	s.mu.Unlock()

	return s.flush()
}

// MutateDebounced applies fn in memory and (re)arms the save timer, so a burst
// of edits produces a single write once it settles
func (s *SettingsStore) MutateDebounced(fn func(*models.AppSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	fn(&next)
	s.current = next.Normalize()
	s.dirty = true

	if s.closed {
		return
	}
	s.stopTimerLocked()
	s.timer = s.clock.AfterFunc(s.debounce, func() {
		if err := s.flush(); err != nil {
			s.log.Error().Err(err).Msg("Debounced settings save failed")
		}
	})
}

// Flush writes any pending change now
func (s *SettingsStore) Flush() error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
	return s.flush()
}

// Close cancels a pending debounced save. Call Flush first to keep the edit.
func (s *SettingsStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.closed = true
}

func (s *SettingsStore) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *SettingsStore) flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.current.Clone()
	prev := s.settled
	s.settled = snapshot.Clone()
	listeners := make([]SettingsListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	err := s.write(snapshot)

	s.mu.Lock()
	if err == nil {
		s.persisted = snapshot.Clone()
		s.hasRecord = true
		s.dirty = !s.current.Equal(snapshot)
	}
	s.mu.Unlock()

	if !prev.Equal(snapshot) {
		for _, l := range listeners {
			l(prev.Clone(), snapshot.Clone())
		}
	}

	if err != nil {
		return fmt.Errorf("%w: save settings: %v", models.ErrIO, err)
	}
	s.log.Debug().Str("path", s.path).Msg("Settings saved")
	return nil
}

// write stores the record atomically, giving up after the write timeout
func (s *SettingsStore) write(settings models.AppSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.writeFile(data)
	}()

	timer := s.clock.NewTimer(s.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.Chan():
		return fmt.Errorf("write timed out after %s", s.writeTimeout)
	}
}

func (s *SettingsStore) writeFile(data []byte) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// Each attempt gets its own tmp file so a write that outlived its timeout
	// never shares one with the retry
	f, err := afero.TempFile(s.fs, filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}
