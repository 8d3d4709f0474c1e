package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"palmtell/internal/domain"
)

// AccountRepositoryPG implements domain.AccountRepository backed by PostgreSQL.
type AccountRepositoryPG struct {
	pool PgxPool
}

// NewAccountRepository creates a new AccountRepositoryPG.
func NewAccountRepository(pool PgxPool) *AccountRepositoryPG {
	return &AccountRepositoryPG{pool: pool}
}

const accountColumns = `id, google_sub, email, name, palm_photo_key, date_of_birth, palm_confirmed, created_at, updated_at`

// UpsertByGoogleSub inserts or updates an account keyed by its Google
// subject. This is the self-healing path for identities whose provisioning
// webhook never ran: the first authenticated action creates the row.
// Callers pass a zero ID on first login; the row ID is minted here so the
// uuid column never sees an empty string.
func (r *AccountRepositoryPG) UpsertByGoogleSub(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	id := account.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
INSERT INTO accounts (id, google_sub, email, name)
VALUES ($1, $2, $3, $4)
ON CONFLICT (google_sub) DO UPDATE
SET email = EXCLUDED.email,
    name = EXCLUDED.name,
    updated_at = NOW()
RETURNING ` + accountColumns + `;
`
	row := r.pool.QueryRow(ctx, query, id, account.GoogleSub, account.Email, account.Name)
	return scanAccount(row)
}

// GetByID fetches an account by UUID.
func (r *AccountRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByGoogleSub fetches an account by its external identity reference.
func (r *AccountRepositoryPG) GetByGoogleSub(ctx context.Context, sub string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE google_sub = $1`, sub)
	return scanAccount(row)
}

// SetPalmData writes the confirmed palm photo and date of birth. Idempotent:
// re-running with the same values leaves the row unchanged apart from
// updated_at.
func (r *AccountRepositoryPG) SetPalmData(ctx context.Context, accountID, photoKey string, dob time.Time) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE accounts
SET palm_photo_key = $2,
    date_of_birth = $3,
    palm_confirmed = TRUE,
    updated_at = NOW()
WHERE id = $1;
`, accountID, photoKey, dob)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.GoogleSub, &a.Email, &a.Name, &a.PalmPhotoKey, &a.DateOfBirth, &a.PalmConfirmed, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
