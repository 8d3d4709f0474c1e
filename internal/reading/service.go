// Package reading owns the reading lifecycle: creation with access gating,
// async analysis via the job queue, and the pending → processing →
// completed/failed state machine.
package reading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"palmtell/internal/access"
	"palmtell/internal/domain"
	"palmtell/internal/queue"
)

// Enqueuer publishes analysis jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.AnalysisJob) error
}

type Service struct {
	accounts domain.AccountRepository
	subs     domain.SubscriptionRepository
	readings domain.ReadingRepository
	queue    Enqueuer
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(
	accounts domain.AccountRepository,
	subs domain.SubscriptionRepository,
	readings domain.ReadingRepository,
	enqueuer Enqueuer,
	logger zerolog.Logger,
) *Service {
	return &Service{
		accounts: accounts,
		subs:     subs,
		readings: readings,
		queue:    enqueuer,
		logger:   logger,
		now:      time.Now,
	}
}

// Tier resolves the account's current access tier. A missing subscription
// row resolves to the expired tier, never an error.
func (s *Service) Tier(ctx context.Context, accountID string) (access.Tier, error) {
	sub, err := s.subs.GetByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return access.ForSubscription(nil), nil
		}
		return "", fmt.Errorf("reading: load subscription: %w", err)
	}
	return access.ForSubscription(sub), nil
}

// Create gates a new reading on palm confirmation, active access, and the
// tier's monthly quota, then inserts it pending and enqueues the analysis
// job. A reading is never left pending without a queued job: if the enqueue
// fails the reading is failed with an operator-visible error code.
func (s *Service) Create(ctx context.Context, accountID, profileID, locale string) (*domain.Reading, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("reading: load account: %w", err)
	}
	if !account.PalmConfirmed || account.PalmPhotoKey == nil {
		return nil, domain.ErrPalmNotConfirmed
	}

	tier, err := s.Tier(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if tier == access.TierExpired {
		return nil, domain.ErrNoActiveAccess
	}

	if limit := access.ReadingLimit(tier); limit != access.Unlimited {
		used, err := s.readings.CountSince(ctx, accountID, monthStart(s.now()))
		if err != nil {
			return nil, fmt.Errorf("reading: count quota: %w", err)
		}
		if used >= limit {
			return nil, domain.ErrQuotaExceeded
		}
	}

	reading := &domain.Reading{
		ID:        uuid.NewString(),
		AccountID: accountID,
		ProfileID: profileID,
		ImageKey:  *account.PalmPhotoKey,
		Status:    domain.ReadingPending,
	}
	if err := s.readings.Create(ctx, reading); err != nil {
		return nil, fmt.Errorf("reading: insert: %w", err)
	}

	job := queue.AnalysisJob{
		ReadingID: reading.ID,
		ImageKey:  reading.ImageKey,
		AccountID: accountID,
		Locale:    locale,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("reading_id", reading.ID).Msg("reading: enqueue failed")
		if failErr := s.readings.Fail(ctx, reading.ID, domain.ReadingErrEnqueueFailed); failErr != nil {
			s.logger.Error().Err(failErr).Str("reading_id", reading.ID).Msg("reading: mark enqueue failure")
		}
		return nil, fmt.Errorf("reading: enqueue: %w", err)
	}

	return reading, nil
}

// Get returns one of the account's readings.
func (s *Service) Get(ctx context.Context, readingID, accountID string) (*domain.Reading, error) {
	return s.readings.GetForAccount(ctx, readingID, accountID)
}

// List returns the account's readings, newest first, optionally filtered by
// profile.
func (s *Service) List(ctx context.Context, accountID string, profileID *string) ([]domain.Reading, error) {
	return s.readings.ListByAccount(ctx, accountID, profileID)
}

// QuotaRemaining reports how many readings the tier still allows this
// calendar month; access.Unlimited means no cap.
func (s *Service) QuotaRemaining(ctx context.Context, accountID string, tier access.Tier) (int, error) {
	limit := access.ReadingLimit(tier)
	if limit == access.Unlimited {
		return access.Unlimited, nil
	}
	used, err := s.readings.CountSince(ctx, accountID, monthStart(s.now()))
	if err != nil {
		return 0, fmt.Errorf("reading: count quota: %w", err)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// monthStart returns midnight UTC on the first of the current month. Quotas
// reset on calendar-month boundaries, not rolling windows.
func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
