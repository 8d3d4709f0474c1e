package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"

	"palmtell/internal/adapter/repo"
	"palmtell/internal/domain"
	"palmtell/internal/infra"
)

// The sweeper fails readings that have sat in a non-terminal state longer
// than the cutoff, usually because a queue callback was lost. It is meant to
// run from cron.
func main() {
	_ = godotenv.Load()

	dryRun := flag.Bool("dry-run", false, "report stuck readings without failing them")
	cutoff := flag.Duration("cutoff", 0, "override the configured stuck cutoff, e.g. 45m")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	window := cfg.SweeperCutoff
	if *cutoff > 0 {
		window = *cutoff
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer pool.Close()

	readings := repo.NewReadingRepository(pool)
	stuck, err := readings.ListStuck(ctx, time.Now().Add(-window))
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: list stuck readings failed")
	}
	if len(stuck) == 0 {
		logger.Info().Msg("sweeper: nothing to do")
		return
	}

	failed := 0
	for _, rd := range stuck {
		log := logger.With().Str("reading_id", rd.ID).Str("status", string(rd.Status)).Logger()
		if *dryRun {
			log.Info().Msg("sweeper: would fail reading")
			continue
		}
		if err := readings.Fail(ctx, rd.ID, domain.ReadingErrStuckTimeout); err != nil {
			// A terminal transition can race the sweep; skip and move on.
			log.Warn().Err(err).Msg("sweeper: fail transition skipped")
			continue
		}
		failed++
		log.Info().Msg("sweeper: reading failed")
	}
	logger.Info().Int("stuck", len(stuck)).Int("failed", failed).Msg("sweeper: done")
}
