package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	raw, err := SignSessionToken("secret", "acct-1", "reader@example.com", "en", time.Hour)
	if err != nil {
		t.Fatalf("SignSessionToken: %v", err)
	}

	claims, err := VerifySessionToken("secret", raw)
	if err != nil {
		t.Fatalf("VerifySessionToken: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Errorf("Subject = %q, want acct-1", claims.Subject)
	}
	if claims.Email != "reader@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
}

func TestVerifySessionTokenWrongSecret(t *testing.T) {
	raw, err := SignSessionToken("secret", "acct-1", "", "", time.Hour)
	if err != nil {
		t.Fatalf("SignSessionToken: %v", err)
	}
	if _, err := VerifySessionToken("other", raw); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifySessionTokenExpired(t *testing.T) {
	raw, err := SignSessionToken("secret", "acct-1", "", "", -time.Minute)
	if err != nil {
		t.Fatalf("SignSessionToken: %v", err)
	}
	if _, err := VerifySessionToken("secret", raw); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestAuthJWT(t *testing.T) {
	var gotUserID string
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))

	raw, err := SignSessionToken("secret", "acct-1", "", "", time.Hour)
	if err != nil {
		t.Fatalf("SignSessionToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotUserID != "acct-1" {
		t.Errorf("user id = %q, want acct-1", gotUserID)
	}
}

func TestAuthJWTMissingHeader(t *testing.T) {
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
