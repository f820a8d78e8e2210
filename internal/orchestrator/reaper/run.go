package reaper

import (
	"context"
	"fmt"
	"time"

	"lms/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Expirer removes submission uploads that were never confirmed.
type Expirer interface {
	ExpireStaleUploads(ctx context.Context, olderThan time.Time, batch int, dryRun bool) (int, error)
}

// Sweep runs one reaper pass.
func Sweep(ctx context.Context, logger zerolog.Logger, expirer Expirer, cfg *config.Config, now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(cfg.ReaperUploadTTLMin) * time.Minute)
	n, err := expirer.ExpireStaleUploads(ctx, cutoff, cfg.ReaperBatchSize, cfg.ReaperDryRun)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info().
			Int("count", n).
			Bool("dry_run", cfg.ReaperDryRun).
			Time("cutoff", cutoff).
			Msg("Expired stale submission uploads")
	}
	return n, nil
}

// Run starts the upload reaper on cfg.ReaperSchedule and blocks until ctx ends.
func Run(ctx context.Context, logger zerolog.Logger, expirer Expirer, cfg *config.Config) error {
	logger = logger.With().Str("orchestrator", "reaper").Logger()
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(&logger)),
		cron.SkipIfStillRunning(cron.PrintfLogger(&logger)),
	))
	_, err := c.AddFunc(cfg.ReaperSchedule, func() {
		if _, err := Sweep(ctx, logger, expirer, cfg, time.Now()); err != nil {
			logger.Error().Err(err).Msg("Upload reaper pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid REAPER_SCHEDULE %q: %w", cfg.ReaperSchedule, err)
	}

	logger.Info().
		Str("schedule", cfg.ReaperSchedule).
		Int("ttl_min", cfg.ReaperUploadTTLMin).
		Bool("dry_run", cfg.ReaperDryRun).
		Msg("Starting upload reaper")
	c.Start()
	<-ctx.Done()
	logger.Info().Msg("Shutting down upload reaper")
	<-c.Stop().Done()
	return nil
}
