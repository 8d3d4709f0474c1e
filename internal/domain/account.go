package domain

import "time"

// Account is the durable user record linked to a verified external identity.
type Account struct {
	ID            string
	GoogleSub     string
	Email         string
	Name          string
	PalmPhotoKey  *string
	DateOfBirth   *time.Time
	PalmConfirmed bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is one person the account reads palms for. Every account gets a
// default profile during promotion; additional profiles are gated by tier.
type Profile struct {
	ID          string
	AccountID   string
	Name        string
	Relation    string
	AvatarEmoji string
	DateOfBirth *time.Time
	IsDefault   bool
	CreatedAt   time.Time
}
