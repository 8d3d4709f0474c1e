package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"palmtell/internal/domain"
)

// ReadingRepositoryPG implements domain.ReadingRepository. The state machine
// guards live in the SQL itself: terminal rows are excluded from every
// transition's WHERE clause, so a duplicate delivery can never overwrite a
// completed or failed reading.
type ReadingRepositoryPG struct {
	pool PgxPool
}

// NewReadingRepository creates a new reading repository.
func NewReadingRepository(pool PgxPool) *ReadingRepositoryPG {
	return &ReadingRepositoryPG{pool: pool}
}

const readingColumns = `id, account_id, profile_id, image_key, status, analysis_json, error_code, created_at, updated_at`

// Create inserts a reading in pending state.
func (r *ReadingRepositoryPG) Create(ctx context.Context, reading *domain.Reading) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO readings (id, account_id, profile_id, image_key, status)
VALUES ($1, $2, $3, $4, $5);
`, reading.ID, reading.AccountID, reading.ProfileID, reading.ImageKey, reading.Status)
	return err
}

// GetByID fetches a reading regardless of owner. Used by the job pipeline,
// which is invoked by the queue rather than a user.
func (r *ReadingRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Reading, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+readingColumns+` FROM readings WHERE id = $1`, id)
	return scanReading(row)
}

// GetForAccount fetches a reading only when the caller owns it.
func (r *ReadingRepositoryPG) GetForAccount(ctx context.Context, id, accountID string) (*domain.Reading, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+readingColumns+` FROM readings WHERE id = $1 AND account_id = $2`, id, accountID)
	return scanReading(row)
}

// ListByAccount returns the account's readings, newest first, optionally
// filtered to one profile.
func (r *ReadingRepositoryPG) ListByAccount(ctx context.Context, accountID string, profileID *string) ([]domain.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM readings WHERE account_id = $1`
	args := []any{accountID}
	if profileID != nil {
		query += ` AND profile_id = $2`
		args = append(args, *profileID)
	}
	query += ` ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var readings []domain.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *reading)
	}
	return readings, rows.Err()
}

// CountSince counts readings created at or after the given instant; the
// quota gate passes the start of the current calendar month.
func (r *ReadingRepositoryPG) CountSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	row := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM readings
WHERE account_id = $1
  AND created_at >= $2;
`, accountID, since)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkProcessing transitions a non-terminal reading to processing and
// returns the status the row holds after the attempt. A terminal row is
// left untouched and its terminal status is returned so the caller can
// short-circuit the duplicate delivery.
func (r *ReadingRepositoryPG) MarkProcessing(ctx context.Context, id string) (domain.ReadingStatus, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE readings
SET status = 'processing',
    updated_at = NOW()
WHERE id = $1
  AND status IN ('pending', 'processing')
RETURNING status;
`, id)
	var status domain.ReadingStatus
	err := row.Scan(&status)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	// No non-terminal row matched: the reading is either terminal or gone.
	row = r.pool.QueryRow(ctx, `SELECT status FROM readings WHERE id = $1`, id)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return status, nil
}

// Complete stores the analysis payload and transitions to completed. A row
// already in a terminal state is not modified.
func (r *ReadingRepositoryPG) Complete(ctx context.Context, id string, analysis []byte) error {
	_, err := r.pool.Exec(ctx, `
UPDATE readings
SET status = 'completed',
    analysis_json = $2,
    error_code = NULL,
    updated_at = NOW()
WHERE id = $1
  AND status NOT IN ('completed', 'failed');
`, id, analysis)
	return err
}

// Fail records the error code and transitions to failed. A row already in a
// terminal state is not modified.
func (r *ReadingRepositoryPG) Fail(ctx context.Context, id string, errorCode string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE readings
SET status = 'failed',
    error_code = $2,
    updated_at = NOW()
WHERE id = $1
  AND status NOT IN ('completed', 'failed');
`, id, errorCode)
	return err
}

// ListStuck returns non-terminal readings untouched since the cutoff, for
// the operator sweeper.
func (r *ReadingRepositoryPG) ListStuck(ctx context.Context, olderThan time.Time) ([]domain.Reading, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+readingColumns+`
FROM readings
WHERE status IN ('pending', 'processing')
  AND updated_at < $1
ORDER BY updated_at ASC;
`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var readings []domain.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *reading)
	}
	return readings, rows.Err()
}

func scanReading(row pgx.Row) (*domain.Reading, error) {
	var rd domain.Reading
	if err := row.Scan(&rd.ID, &rd.AccountID, &rd.ProfileID, &rd.ImageKey, &rd.Status, &rd.AnalysisJSON, &rd.ErrorCode, &rd.CreatedAt, &rd.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rd, nil
}
