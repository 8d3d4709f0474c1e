package domain

import (
	"context"
	"time"
)

// AccountRepository defines persistence for accounts.
type AccountRepository interface {
	UpsertByGoogleSub(ctx context.Context, account *Account) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByGoogleSub(ctx context.Context, sub string) (*Account, error)
	SetPalmData(ctx context.Context, accountID, photoKey string, dob time.Time) error
}

// ProfileRepository defines persistence for reading profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	GetForAccount(ctx context.Context, profileID, accountID string) (*Profile, error)
	ListByAccount(ctx context.Context, accountID string) ([]Profile, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	EnsureDefault(ctx context.Context, accountID, name string, dob *time.Time) (*Profile, error)
	Delete(ctx context.Context, profileID, accountID string) error
}

// SubscriptionRepository defines persistence for billing state. Upsert is
// keyed by account id; Update fails with ErrNotFound when no row exists.
type SubscriptionRepository interface {
	GetByAccount(ctx context.Context, accountID string) (*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
}

// ReadingRepository defines persistence for readings and their state machine.
type ReadingRepository interface {
	Create(ctx context.Context, reading *Reading) error
	GetByID(ctx context.Context, id string) (*Reading, error)
	GetForAccount(ctx context.Context, id, accountID string) (*Reading, error)
	ListByAccount(ctx context.Context, accountID string, profileID *string) ([]Reading, error)
	CountSince(ctx context.Context, accountID string, since time.Time) (int, error)
	// MarkProcessing transitions to processing only from a non-terminal
	// state; it returns the status the row holds after the attempt so
	// callers can short-circuit duplicate deliveries of terminal rows.
	MarkProcessing(ctx context.Context, id string) (ReadingStatus, error)
	// Complete and Fail refuse to overwrite a terminal row.
	Complete(ctx context.Context, id string, analysis []byte) error
	Fail(ctx context.Context, id string, errorCode string) error
	ListStuck(ctx context.Context, olderThan time.Time) ([]Reading, error)
}
