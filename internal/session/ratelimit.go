package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FailureWindow is the rolling window for validation failures.
	FailureWindow = 600 * time.Second
	// MaxFailures inside the window before attempts are rejected.
	MaxFailures = 3

	failureKeyPrefix = "palm_failures:"
)

// FailureLimiter rejects palm-validation attempts after repeated failures.
// The window resets itself through the key's TTL; there is no explicit
// unlock. When the KV is unreachable the limiter fails open: the source
// system accepts degraded abuse protection over blocking every upload while
// the dependency is down.
type FailureLimiter struct {
	kv     KV
	logger zerolog.Logger
}

// NewFailureLimiter builds a limiter on the given KV.
func NewFailureLimiter(kv KV, logger zerolog.Logger) *FailureLimiter {
	return &FailureLimiter{kv: kv, logger: logger}
}

// Check reports whether the identity is currently limited and, if so, the
// seconds remaining until the window expires.
func (l *FailureLimiter) Check(ctx context.Context, identity string) (limited bool, waitSeconds int) {
	key := failureKeyPrefix + identity
	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		l.logger.Warn().Err(err).Str("identity", identity).Msg("ratelimit: store unreachable, failing open")
		return false, 0
	}
	if !ok {
		return false, 0
	}
	var count int
	if _, err := fmt.Sscanf(raw, "%d", &count); err != nil || count < MaxFailures {
		return false, 0
	}
	ttl, err := l.kv.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		// Counter at threshold but window already gone; not limited.
		return false, 0
	}
	return true, int(ttl.Seconds() + 0.5)
}

// RecordFailure increments the identity's failure counter, starting the
// window on the first failure.
func (l *FailureLimiter) RecordFailure(ctx context.Context, identity string) {
	key := failureKeyPrefix + identity
	count, err := l.kv.Incr(ctx, key)
	if err != nil {
		l.logger.Warn().Err(err).Str("identity", identity).Msg("ratelimit: failed to record failure")
		return
	}
	if count == 1 {
		if err := l.kv.Expire(ctx, key, FailureWindow); err != nil {
			l.logger.Warn().Err(err).Str("identity", identity).Msg("ratelimit: failed to arm window")
		}
	}
}
