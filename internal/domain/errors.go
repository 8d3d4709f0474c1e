package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrSessionExpired   = errors.New("session expired")
	ErrPalmNotConfirmed = errors.New("palm not confirmed")
	ErrNoActiveAccess   = errors.New("no active access")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrRateLimited      = errors.New("rate limited")
	ErrConfirmFailed    = errors.New("session confirmation failed")
	ErrUpstream         = errors.New("upstream unavailable")
)

// PalmInvalidError carries the vision model's rejection reason so callers can
// show the user why the photo was declined.
type PalmInvalidError struct {
	Reason string
}

func (e *PalmInvalidError) Error() string {
	if e.Reason == "" {
		return "palm invalid"
	}
	return "palm invalid: " + e.Reason
}

// ErrPalmInvalid matches any PalmInvalidError via errors.Is.
var ErrPalmInvalid = &PalmInvalidError{}

func (e *PalmInvalidError) Is(target error) bool {
	_, ok := target.(*PalmInvalidError)
	return ok
}
