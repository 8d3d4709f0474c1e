package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"palmtell/internal/domain"
)

// SubscriptionRepositoryPG implements domain.SubscriptionRepository.
type SubscriptionRepositoryPG struct {
	pool PgxPool
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(pool PgxPool) *SubscriptionRepositoryPG {
	return &SubscriptionRepositoryPG{pool: pool}
}

const subscriptionColumns = `account_id, plan, status, provider_subscription_id, provider_customer_id, renews_at, ends_at, created_at, updated_at`

// GetByAccount fetches the at-most-one subscription row for an account.
func (r *SubscriptionRepositoryPG) GetByAccount(ctx context.Context, accountID string) (*domain.Subscription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE account_id = $1`, accountID)
	return scanSubscription(row)
}

// Upsert creates or replaces the subscription keyed by account id. Safe to
// re-run for the same provider event.
func (r *SubscriptionRepositoryPG) Upsert(ctx context.Context, sub *domain.Subscription) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO subscriptions (account_id, plan, status, provider_subscription_id, provider_customer_id, renews_at, ends_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (account_id) DO UPDATE
SET plan = EXCLUDED.plan,
    status = EXCLUDED.status,
    provider_subscription_id = EXCLUDED.provider_subscription_id,
    provider_customer_id = EXCLUDED.provider_customer_id,
    renews_at = EXCLUDED.renews_at,
    ends_at = EXCLUDED.ends_at,
    updated_at = NOW();
`, sub.AccountID, sub.Plan, sub.Status, sub.ProviderSubscription, sub.ProviderCustomer, sub.RenewsAt, sub.EndsAt)
	return err
}

// Update mutates an existing row and fails with ErrNotFound when the account
// has no subscription; update-kind billing events imply the row must exist.
func (r *SubscriptionRepositoryPG) Update(ctx context.Context, sub *domain.Subscription) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE subscriptions
SET plan = $2,
    status = $3,
    renews_at = $4,
    ends_at = $5,
    updated_at = NOW()
WHERE account_id = $1;
`, sub.AccountID, sub.Plan, sub.Status, sub.RenewsAt, sub.EndsAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	if err := row.Scan(&s.AccountID, &s.Plan, &s.Status, &s.ProviderSubscription, &s.ProviderCustomer, &s.RenewsAt, &s.EndsAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
