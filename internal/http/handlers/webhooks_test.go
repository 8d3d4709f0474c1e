package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"palmtell/internal/domain"
)

func webhookRequest(t *testing.T, body []byte, secret string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/webhooks/billing", bytes.NewReader(body))
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		r.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}
	return r
}

func TestBillingWebhookSubscriptionCreated(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, true)
	body := []byte(fmt.Sprintf(`{
		"meta": {"event_name": "subscription_created", "custom_data": {"user_id": %q}},
		"data": {"id": "sub-99", "attributes": {"status": "active", "variant_id": 101, "customer_id": 7}}
	}`, acc.ID))

	rec := httptest.NewRecorder()
	env.app.BillingWebhook(rec, webhookRequest(t, body, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	sub, err := env.subs.GetByAccount(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("GetByAccount() error: %v", err)
	}
	if sub.Plan != domain.PlanPro || sub.Status != domain.SubscriptionActive {
		t.Fatalf("subscription = %+v, want active pro", sub)
	}
}

func TestBillingWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"meta": {"event_name": "subscription_created"}}`)

	rec := httptest.NewRecorder()
	env.app.BillingWebhook(rec, webhookRequest(t, body, "wrong-secret"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBillingWebhookRejectsMalformedEvent(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"data": {}}`)

	rec := httptest.NewRecorder()
	env.app.BillingWebhook(rec, webhookRequest(t, body, testWebhookSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBillingWebhookDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.app.Reconciler = nil

	rec := httptest.NewRecorder()
	env.app.BillingWebhook(rec, webhookRequest(t, []byte(`{}`), testWebhookSecret))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
