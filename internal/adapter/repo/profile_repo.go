package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"palmtell/internal/domain"
)

// ProfileRepositoryPG implements domain.ProfileRepository.
type ProfileRepositoryPG struct {
	pool PgxPool
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(pool PgxPool) *ProfileRepositoryPG {
	return &ProfileRepositoryPG{pool: pool}
}

const profileColumns = `id, account_id, name, relation, avatar_emoji, date_of_birth, is_default, created_at`

// Create inserts a profile row.
func (r *ProfileRepositoryPG) Create(ctx context.Context, profile *domain.Profile) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO profiles (id, account_id, name, relation, avatar_emoji, date_of_birth, is_default)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`, profile.ID, profile.AccountID, profile.Name, profile.Relation, profile.AvatarEmoji, profile.DateOfBirth, profile.IsDefault)
	return err
}

// GetForAccount fetches a profile only when the caller owns it.
func (r *ProfileRepositoryPG) GetForAccount(ctx context.Context, profileID, accountID string) (*domain.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 AND account_id = $2`, profileID, accountID)
	return scanProfile(row)
}

// ListByAccount returns the account's profiles, default first.
func (r *ProfileRepositoryPG) ListByAccount(ctx context.Context, accountID string) ([]domain.Profile, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+profileColumns+`
FROM profiles
WHERE account_id = $1
ORDER BY is_default DESC, created_at ASC;
`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	return profiles, rows.Err()
}

// CountByAccount counts the account's profiles for the tier gate.
func (r *ProfileRepositoryPG) CountByAccount(ctx context.Context, accountID string) (int, error) {
	row := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE account_id = $1`, accountID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// EnsureDefault returns the account's default profile, creating it when
// missing. Used by the promotion handshake; idempotent across retries.
func (r *ProfileRepositoryPG) EnsureDefault(ctx context.Context, accountID, name string, dob *time.Time) (*domain.Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE account_id = $1 AND is_default = TRUE`, accountID)
	profile, err := scanProfile(row)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	created := &domain.Profile{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Name:        name,
		AvatarEmoji: "🤚",
		DateOfBirth: dob,
		IsDefault:   true,
	}
	if err := r.Create(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// Delete removes a non-default profile owned by the caller.
func (r *ProfileRepositoryPG) Delete(ctx context.Context, profileID, accountID string) error {
	tag, err := r.pool.Exec(ctx, `
DELETE FROM profiles
WHERE id = $1
  AND account_id = $2
  AND is_default = FALSE;
`, profileID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Relation, &p.AvatarEmoji, &p.DateOfBirth, &p.IsDefault, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
