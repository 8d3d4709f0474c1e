package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature is returned for tampered or expired retrieval URLs.
var ErrBadSignature = errors.New("storage: invalid or expired signature")

// URLSigner issues time-limited HMAC-signed URLs for stored objects. The
// vision service fetches palm photos through these without holding a session.
type URLSigner struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewURLSigner builds a signer that emits URLs under baseURL (for example
// https://api.example.com/files).
func NewURLSigner(baseURL, secret string) *URLSigner {
	return &URLSigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}
}

// SignedURL returns a retrieval URL for key that expires after ttl.
func (s *URLSigner) SignedURL(key string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	sig := s.sign(cleanKey, exp)

	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	return fmt.Sprintf("%s/%s?%s", s.baseURL, cleanKey, q.Encode()), nil
}

// Verify checks the signature and expiry query parameters for a key.
func (s *URLSigner) Verify(key, expStr, sig string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ErrBadSignature
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if s.now().Unix() > exp {
		return ErrBadSignature
	}
	expected := s.sign(cleanKey, exp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

func (s *URLSigner) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
