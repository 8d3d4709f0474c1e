package reading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"palmtell/internal/domain"
	"palmtell/internal/queue"
	"palmtell/internal/storage"
	"palmtell/internal/vision"
)

const jobSignedURLTTL = 10 * time.Minute

// Analyzer is the slice of the vision client the job runner needs.
type Analyzer interface {
	Validate(ctx context.Context, url string) (*vision.ValidationResult, error)
	Analyze(ctx context.Context, url, locale string) (*vision.Analysis, error)
}

// JobRunner executes delivered analysis jobs. The queue delivers at least
// once, so every step tolerates reruns: terminal readings short-circuit, and
// completion is guarded by the repository's terminal-state checks.
type JobRunner struct {
	readings domain.ReadingRepository
	signer   *storage.URLSigner
	analyzer Analyzer
	logger   zerolog.Logger
}

func NewJobRunner(readings domain.ReadingRepository, signer *storage.URLSigner, analyzer Analyzer, logger zerolog.Logger) *JobRunner {
	return &JobRunner{readings: readings, signer: signer, analyzer: analyzer, logger: logger}
}

// Run processes one delivery. A returned error signals the queue to retry;
// nil acknowledges the delivery.
func (j *JobRunner) Run(ctx context.Context, job queue.AnalysisJob) error {
	if job.ReadingID == "" {
		return errors.New("reading: job missing reading id")
	}
	log := j.logger.With().Str("reading_id", job.ReadingID).Logger()

	status, err := j.readings.MarkProcessing(ctx, job.ReadingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Acknowledge: retrying a delivery for a deleted reading can
			// never succeed.
			log.Error().Msg("reading: job for unknown reading")
			return nil
		}
		return fmt.Errorf("reading: mark processing: %w", err)
	}
	if status.IsTerminal() {
		log.Info().Str("status", string(status)).Msg("reading: duplicate delivery for terminal reading")
		return nil
	}

	if err := j.analyze(ctx, log, job); err != nil {
		// Any unexpected failure lands the reading in failed rather than
		// leaving it processing forever.
		if failErr := j.readings.Fail(ctx, job.ReadingID, domain.ReadingErrAnalysis); failErr != nil {
			log.Error().Err(failErr).Msg("reading: record analysis failure")
			return fmt.Errorf("reading: analysis failed and could not be recorded: %w", err)
		}
		log.Error().Err(err).Msg("reading: analysis failed")
	}
	return nil
}

func (j *JobRunner) analyze(ctx context.Context, log zerolog.Logger, job queue.AnalysisJob) error {
	signedURL, err := j.signer.SignedURL(job.ImageKey, jobSignedURLTTL)
	if err != nil {
		return fmt.Errorf("sign image url: %w", err)
	}

	validation, err := j.analyzer.Validate(ctx, signedURL)
	if err != nil {
		return fmt.Errorf("validate image: %w", err)
	}
	if !validation.Valid {
		// The validator's reason is the user-facing error code;
		// no_palm_detected only covers validators that give none.
		code := validation.Reason
		if code == "" {
			code = domain.ReadingErrNoPalm
		}
		if err := j.readings.Fail(ctx, job.ReadingID, code); err != nil {
			return fmt.Errorf("record validation failure: %w", err)
		}
		log.Info().Str("reason", validation.Reason).Msg("reading: image rejected")
		return nil
	}

	analysis, err := j.analyzer.Analyze(ctx, signedURL, job.Locale)
	if err != nil {
		return fmt.Errorf("analyze image: %w", err)
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	if err := j.readings.Complete(ctx, job.ReadingID, payload); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}
