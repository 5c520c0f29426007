package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/internal/service/availability"
)

// Sweeper is the part of the availability service the worker drives.
type Sweeper interface {
	Today() civil.Date
	Sweep(ctx context.Context, from civil.Date) (availability.SweepResult, error)
}

type SweepConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	RetryAttempts int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" split_words:"true"`
}

// SweepWorker periodically recomputes the full flag of every upcoming
// window, repairing flags left stale by failed writes.
type SweepWorker struct {
	svc    Sweeper
	config SweepConfig
	logger zerolog.Logger
}

func NewSweepWorker(svc Sweeper, config SweepConfig, logger zerolog.Logger) *SweepWorker {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &SweepWorker{
		svc:    svc,
		config: config,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (w *SweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.config.Interval).Msg("starting availability sweeper")
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("availability sweep failed")
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("shutting down availability sweeper")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sweeps from today, retrying when the window listing itself fails.
func (w *SweepWorker) RunOnce(ctx context.Context) (availability.SweepResult, error) {
	var res availability.SweepResult
	err := retry(ctx, w.config.RetryAttempts, w.config.RetryDelay, func() error {
		var err error
		res, err = w.svc.Sweep(ctx, w.svc.Today())
		return err
	})
	if err != nil {
		return res, fmt.Errorf("failed to sweep availability: %w", err)
	}

	event := w.logger.Info()
	if res.Failed > 0 {
		event = w.logger.Warn()
	}
	event.
		Int("windows", res.Windows).
		Int("full", res.Full).
		Int("failed", res.Failed).
		Msg("availability sweep finished")
	return res, nil
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := range attempts {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
