package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testClientID = "client-123.apps.googleusercontent.com"

// newTestIssuer spins up a fake OpenID issuer serving a JWKS with the given
// key and returns a verifier pointed at it.
func newTestIssuer(t *testing.T, priv *rsa.PrivateKey, kid string) *Verifier {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"jwks_uri": srv.URL + "/keys"})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		pub := &priv.PublicKey
		json.NewEncoder(w).Encode(jwkSet{Keys: []jwk{{
			Kid: kid,
			Kty: "RSA",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}})
	})

	return NewVerifier(srv.URL, testClientID)
}

func signToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	raw, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestVerifyIDToken(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := newTestIssuer(t, priv, "kid-1")

	raw := signToken(t, priv, "kid-1", jwt.MapClaims{
		"iss":   v.issuer,
		"aud":   testClientID,
		"sub":   "google-sub-1",
		"email": "reader@example.com",
		"name":  "Reader",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	id, err := v.VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("VerifyIDToken: %v", err)
	}
	if id.Sub != "google-sub-1" || id.Email != "reader@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyIDTokenRejectsWrongAudience(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := newTestIssuer(t, priv, "kid-1")

	raw := signToken(t, priv, "kid-1", jwt.MapClaims{
		"iss": v.issuer,
		"aud": "someone-else",
		"sub": "google-sub-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.VerifyIDToken(context.Background(), raw); err == nil {
		t.Fatal("expected audience error")
	}
}

func TestVerifyIDTokenRejectsExpired(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := newTestIssuer(t, priv, "kid-1")

	raw := signToken(t, priv, "kid-1", jwt.MapClaims{
		"iss": v.issuer,
		"aud": testClientID,
		"sub": "google-sub-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	if _, err := v.VerifyIDToken(context.Background(), raw); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyIDTokenUnknownKid(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := newTestIssuer(t, priv, "kid-1")

	raw := signToken(t, other, "kid-unknown", jwt.MapClaims{
		"iss": v.issuer,
		"aud": testClientID,
		"sub": "google-sub-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.VerifyIDToken(context.Background(), raw); err == nil {
		t.Fatal("expected unknown kid error")
	}
}
