package main

import (
	"errors"
	"net/http"
	"os"

	"github.com/borgmon/prayer-reminder/pkg/config"
	"github.com/borgmon/prayer-reminder/pkg/location"
	"github.com/borgmon/prayer-reminder/pkg/logging"
	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/borgmon/prayer-reminder/pkg/prayertimes"
	"github.com/borgmon/prayer-reminder/pkg/store"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

// runtime holds what every command needs: config, logger and settings
type runtime struct {
	cfg      config.Config
	log      zerolog.Logger
	fs       afero.Fs
	settings *store.SettingsStore
	client   *http.Client
}

func newRuntime(c *cli.Context) (*runtime, error) {
	if err := config.LoadEnvFile(c.GlobalString("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if level := c.GlobalString("log-level"); level != "" {
		cfg.LogLevel = level
	}

	log := logging.New(cfg.LogLevel, os.Stderr)
	fs := afero.NewOsFs()

	settings := store.NewSettingsStore(store.SettingsOptions{
		Fs:           fs,
		Path:         cfg.SettingsPath(),
		Debounce:     cfg.SaveDebounce,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logging.Component(log, "settings"),
	})
	if _, err := settings.Load(); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Info().Str("path", cfg.SettingsPath()).Msg("No settings yet, using defaults")
		} else {
			log.Warn().Err(err).Msg("Failed to load settings, using defaults")
		}
	}

	return &runtime{
		cfg:      cfg,
		log:      log,
		fs:       fs,
		settings: settings,
		client:   &http.Client{Timeout: cfg.FetchTimeout},
	}, nil
}

func (r *runtime) provider() prayertimes.Provider {
	logger := logging.Component(r.log, "provider")
	if r.cfg.Provider == config.ProviderICal {
		return prayertimes.NewICalProvider(prayertimes.ICalOptions{
			URL:    r.cfg.ICalURL,
			Client: r.client,
			Logger: logger,
		})
	}
	return prayertimes.NewAladhanProvider(prayertimes.AladhanOptions{
		BaseURL: r.cfg.AladhanURL,
		Method:  r.cfg.AladhanMethod,
		Tune:    r.cfg.AladhanTune,
		Client:  r.client,
		Logger:  logger,
	})
}

func (r *runtime) resolver() location.Resolver {
	return location.NewGeoIPResolver(r.cfg.GeoURL, r.client, logging.Component(r.log, "location"))
}
