package reminder

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Start runs Tick every tick interval until Stop. The first tick runs
// immediately and overlapping ticks are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	cron, err := gocron.NewScheduler(
		gocron.WithClock(s.clock),
		gocron.WithLogger(cronLogger{s.log}),
	)
	if err != nil {
		return fmt.Errorf("failed to create tick scheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.DurationJob(s.tickInterval),
		gocron.NewTask(func() {
			if _, err := s.Tick(ctx, s.clock.Now()); err != nil {
				s.log.Debug().Err(err).Msg("Tick finished with error")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName("prayer-tick"),
	)
	if err != nil {
		_ = cron.Shutdown()
		return fmt.Errorf("failed to schedule tick: %w", err)
	}

	cron.Start()
	s.cron = cron
	s.log.Info().Dur("interval", s.tickInterval).Msg("Reminder loop started")
	return nil
}

// Stop shuts the tick loop down, waiting for a running tick to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cron := s.cron
	s.cron = nil
	s.mu.Unlock()

	if cron == nil {
		return nil
	}
	return cron.Shutdown()
}

// cronLogger forwards gocron's logs to zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Debug(msg string, args ...any) { l.log.Debug().Fields(args).Msg(msg) }
func (l cronLogger) Error(msg string, args ...any) { l.log.Error().Fields(args).Msg(msg) }
func (l cronLogger) Info(msg string, args ...any)  { l.log.Debug().Fields(args).Msg(msg) }
func (l cronLogger) Warn(msg string, args ...any)  { l.log.Warn().Fields(args).Msg(msg) }
