// Package palm runs the photo submission flow and the promotion handshake
// that turns an anonymous palm session into a confirmed account.
package palm

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"palmtell/internal/domain"
	"palmtell/internal/session"
	"palmtell/internal/storage"
	"palmtell/internal/vision"
)

// MaxPhotoBytes caps uploaded palm photos.
const MaxPhotoBytes = 10 << 20

const signedURLTTL = 15 * time.Minute

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ErrUnsupportedImage is returned for uploads that are not a supported image
// type or exceed the size cap.
var ErrUnsupportedImage = errors.New("palm: unsupported image")

// RateLimitedError carries the wait until the failure window expires.
type RateLimitedError struct {
	WaitSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %ds", e.WaitSeconds)
}

func (e *RateLimitedError) Is(target error) bool { return target == domain.ErrRateLimited }

// PhotoValidator is the slice of the vision client the handshake needs.
type PhotoValidator interface {
	Validate(ctx context.Context, url string) (*vision.ValidationResult, error)
}

// Identity is the verified external identity promoting a session.
type Identity struct {
	GoogleSub string
	Email     string
	Name      string
}

type Service struct {
	sessions  *session.Store
	limiter   *session.FailureLimiter
	files     *storage.FileStore
	signer    *storage.URLSigner
	validator PhotoValidator
	accounts  domain.AccountRepository
	profiles  domain.ProfileRepository
	logger    zerolog.Logger
}

func NewService(
	sessions *session.Store,
	limiter *session.FailureLimiter,
	files *storage.FileStore,
	signer *storage.URLSigner,
	validator PhotoValidator,
	accounts domain.AccountRepository,
	profiles domain.ProfileRepository,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sessions:  sessions,
		limiter:   limiter,
		files:     files,
		signer:    signer,
		validator: validator,
		accounts:  accounts,
		profiles:  profiles,
		logger:    logger,
	}
}

// Submit stores an uploaded palm photo in the transient area and opens a
// session for it. dob is the subject's date of birth as YYYY-MM-DD.
func (s *Service) Submit(ctx context.Context, data []byte, contentType, dob string) (string, error) {
	ext, ok := allowedContentTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedImage, contentType)
	}
	if len(data) == 0 || len(data) > MaxPhotoBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrUnsupportedImage, len(data))
	}
	if dob != "" {
		if _, err := time.Parse("2006-01-02", dob); err != nil {
			return "", fmt.Errorf("palm: invalid date of birth %q", dob)
		}
	}

	key := path.Join("temp", uuid.NewString(), "palm"+ext)
	storedKey, err := s.files.Write(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf("palm: store photo: %w", err)
	}

	token, err := s.sessions.Create(ctx, storedKey, dob)
	if err != nil {
		// The orphaned temp file is harmless; a sweep removes it later.
		return "", fmt.Errorf("palm: open session: %w", err)
	}
	return token, nil
}

// Confirm promotes a palm session to a durable account. The whole handshake
// is re-runnable: a duplicate call with a live session converges on the same
// account state.
func (s *Service) Confirm(ctx context.Context, id Identity, token, clientIP string) (*domain.Account, error) {
	if limited, wait := s.limiter.Check(ctx, clientIP); limited {
		return nil, &RateLimitedError{WaitSeconds: wait}
	}

	data, ok := s.sessions.Get(ctx, token)
	if !ok {
		return nil, domain.ErrSessionExpired
	}

	signedURL, err := s.signer.SignedURL(data.PhotoKey, signedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("palm: sign photo url: %w", err)
	}

	result, err := s.validator.Validate(ctx, signedURL)
	if err != nil {
		if errors.Is(err, vision.ErrUpstream) {
			return nil, fmt.Errorf("%w: palm validation", domain.ErrUpstream)
		}
		return nil, fmt.Errorf("palm: validate photo: %w", err)
	}
	if !result.Valid {
		s.limiter.RecordFailure(ctx, clientIP)
		return nil, &domain.PalmInvalidError{Reason: result.Reason}
	}

	if !s.sessions.Confirm(ctx, token) {
		return nil, domain.ErrConfirmFailed
	}

	account, err := s.accounts.UpsertByGoogleSub(ctx, &domain.Account{
		GoogleSub: id.GoogleSub,
		Email:     id.Email,
		Name:      id.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("palm: upsert account: %w", err)
	}

	dob := parseDOB(data.DOB)
	if _, err := s.profiles.EnsureDefault(ctx, account.ID, defaultProfileName(id.Name), dob); err != nil {
		s.logger.Error().Err(err).Str("account_id", account.ID).Msg("palm: ensure default profile")
	}

	finalKey := path.Join("palms", account.ID, "palm"+path.Ext(data.PhotoKey))
	movedKey, err := s.files.Move(ctx, data.PhotoKey, finalKey)
	if err != nil {
		// A rerun of a confirmed handshake finds the photo already moved.
		if !errors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Error().Err(err).Str("account_id", account.ID).Msg("palm: move photo")
		}
		movedKey = finalKey
	}

	dobVal := time.Time{}
	if dob != nil {
		dobVal = *dob
	}
	if err := s.accounts.SetPalmData(ctx, account.ID, movedKey, dobVal); err != nil {
		s.logger.Error().Err(err).Str("account_id", account.ID).Msg("palm: set palm data")
	} else {
		account.PalmPhotoKey = &movedKey
		account.DateOfBirth = dob
		account.PalmConfirmed = true
	}

	// The session is left to expire on its own so a duplicate confirm call
	// converges instead of failing.
	return account, nil
}

func parseDOB(dob string) *time.Time {
	if dob == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return nil
	}
	return &t
}

func defaultProfileName(name string) string {
	if name == "" {
		return "Me"
	}
	return name
}
