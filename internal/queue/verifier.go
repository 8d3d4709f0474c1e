package queue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SignatureHeader carries the queue's delivery signature.
const SignatureHeader = "Upstash-Signature"

// ErrBadSignature is returned for callbacks whose signature does not match.
var ErrBadSignature = errors.New("queue: invalid callback signature")

// Verifier checks that a delivered callback genuinely came from the queue.
type Verifier struct {
	signingKey []byte
}

func NewVerifier(signingKey string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey)}
}

// Verify validates the signature over the raw request body.
func (v *Verifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, v.signingKey)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the signature for a body. Used by tests and the local queue
// runner.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.signingKey)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
