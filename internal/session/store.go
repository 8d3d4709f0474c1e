package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionTTL is how long an unconfirmed upload session survives. Confirm
// refreshes the window.
const SessionTTL = 3600 * time.Second

const sessionKeyPrefix = "temp_palm:"

// Data is the transient record of an in-progress palm upload. The creation
// timestamp is informational; expiry is enforced by the store's TTL.
type Data struct {
	PhotoKey  string `json:"photo_key"`
	DOB       string `json:"dob"`
	Confirmed bool   `json:"confirmed"`
	CreatedAt int64  `json:"created_at"`
}

// Store keeps palm-upload sessions in an expiring KV. When the KV is
// unreachable every read reports "absent" and writes surface the error; the
// caller treats both as the session-not-found flow.
type Store struct {
	kv     KV
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore builds a session store on the given KV.
func NewStore(kv KV, logger zerolog.Logger) *Store {
	return &Store{kv: kv, logger: logger, now: time.Now}
}

// Create writes a fresh unconfirmed session and returns its opaque token.
func (s *Store) Create(ctx context.Context, photoKey, dob string) (string, error) {
	token := uuid.NewString()
	data := Data{
		PhotoKey:  photoKey,
		DOB:       dob,
		Confirmed: false,
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.write(ctx, token, data); err != nil {
		s.logger.Error().Err(err).Str("token_prefix", tokenPrefix(token)).Msg("session: create failed")
		return "", err
	}
	return token, nil
}

// Get resolves a token. The second return is false when the token is
// unknown, expired, or the store is unreachable.
func (s *Store) Get(ctx context.Context, token string) (*Data, bool) {
	raw, ok, err := s.kv.Get(ctx, sessionKeyPrefix+token)
	if err != nil {
		s.logger.Warn().Err(err).Str("token_prefix", tokenPrefix(token)).Msg("session: get failed, treating as absent")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		s.logger.Warn().Err(err).Str("token_prefix", tokenPrefix(token)).Msg("session: corrupt payload, treating as absent")
		return nil, false
	}
	return &data, true
}

// Confirm flips the session to confirmed and refreshes its TTL. Returns
// false when the session is absent or the rewrite fails.
func (s *Store) Confirm(ctx context.Context, token string) bool {
	data, ok := s.Get(ctx, token)
	if !ok {
		return false
	}
	data.Confirmed = true
	if err := s.write(ctx, token, *data); err != nil {
		s.logger.Error().Err(err).Str("token_prefix", tokenPrefix(token)).Msg("session: confirm write failed")
		return false
	}
	return true
}

// Delete removes the session. Best effort; TTL expiry is the backstop.
func (s *Store) Delete(ctx context.Context, token string) {
	if err := s.kv.Del(ctx, sessionKeyPrefix+token); err != nil {
		s.logger.Warn().Err(err).Str("token_prefix", tokenPrefix(token)).Msg("session: delete failed")
	}
}

func (s *Store) write(ctx context.Context, token string, data Data) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.kv.SetEx(ctx, sessionKeyPrefix+token, string(payload), SessionTTL)
}

// tokenPrefix keeps logs diagnosable without writing the full secret token.
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
