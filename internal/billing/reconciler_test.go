package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"palmtell/internal/domain"
)

type fakeSubRepo struct {
	subs map[string]*domain.Subscription
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{subs: make(map[string]*domain.Subscription)}
}

func (f *fakeSubRepo) GetByAccount(ctx context.Context, accountID string) (*domain.Subscription, error) {
	sub, ok := f.subs[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubRepo) Upsert(ctx context.Context, sub *domain.Subscription) error {
	cp := *sub
	f.subs[sub.AccountID] = &cp
	return nil
}

func (f *fakeSubRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	if _, ok := f.subs[sub.AccountID]; !ok {
		return domain.ErrNotFound
	}
	cp := *sub
	f.subs[sub.AccountID] = &cp
	return nil
}

type fakeAccountRepo struct {
	accounts map[string]*domain.Account
}

func (f *fakeAccountRepo) UpsertByGoogleSub(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	return a, nil
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccountRepo) GetByGoogleSub(ctx context.Context, sub string) (*domain.Account, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeAccountRepo) SetPalmData(ctx context.Context, accountID, photoKey string, dob time.Time) error {
	return nil
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) SendSubscriptionCancelled(ctx context.Context, email, name, endsAt string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

func testVariants(t *testing.T) *VariantMap {
	t.Helper()
	m, err := NewVariantMap("100", "101", "102", "103", "104")
	if err != nil {
		t.Fatalf("NewVariantMap: %v", err)
	}
	return m
}

func newTestReconciler(t *testing.T, subs *fakeSubRepo, accounts *fakeAccountRepo, notifier *fakeNotifier) *Reconciler {
	t.Helper()
	if accounts == nil {
		accounts = &fakeAccountRepo{accounts: map[string]*domain.Account{}}
	}
	return NewReconciler(accounts, subs, testVariants(t), notifier, "whsec", zerolog.Nop())
}

func signedBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	r := newTestReconciler(t, newFakeSubRepo(), nil, nil)
	body := []byte(`{"meta":{"event_name":"subscription_created"}}`)

	if err := r.VerifySignature(body, signedBody(body)); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if err := r.VerifySignature(body, "deadbeef"); !errors.Is(err, ErrBadSignature) {
		t.Errorf("bad signature: got %v", err)
	}
	if err := r.VerifySignature(body, ""); !errors.Is(err, ErrBadSignature) {
		t.Errorf("missing signature: got %v", err)
	}
}

func subscriptionEvent(t *testing.T, name, accountID, variantID, status string) *Event {
	t.Helper()
	body := fmt.Sprintf(`{
		"meta": {"event_name": %q, "custom_data": {"user_id": %q}},
		"data": {"id": "sub-1", "attributes": {
			"status": %q,
			"variant_id": %s,
			"customer_id": 777,
			"renews_at": "2026-10-01T00:00:00Z"
		}}
	}`, name, accountID, status, variantID)
	event, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	return event
}

func TestProcessSubscriptionCreated(t *testing.T) {
	subs := newFakeSubRepo()
	r := newTestReconciler(t, subs, nil, nil)

	event := subscriptionEvent(t, EventSubscriptionCreated, "acct-1", "101", "active")
	if err := r.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sub := subs.subs["acct-1"]
	if sub == nil {
		t.Fatal("subscription not stored")
	}
	if sub.Plan != domain.PlanPro || sub.Status != domain.SubscriptionActive {
		t.Errorf("sub = %+v", sub)
	}
	if sub.ProviderSubscription == nil || *sub.ProviderSubscription != "sub-1" {
		t.Error("provider subscription id not stored")
	}
	if sub.RenewsAt == nil {
		t.Error("renews_at not stored")
	}
}

func TestProcessNonActiveStatusDoesNotGrantAccess(t *testing.T) {
	for _, status := range []string{"on_trial", "paused", "some_future_status"} {
		t.Run(status, func(t *testing.T) {
			subs := newFakeSubRepo()
			r := newTestReconciler(t, subs, nil, nil)

			event := subscriptionEvent(t, EventSubscriptionCreated, "acct-1", "101", status)
			if err := r.Process(context.Background(), event); err != nil {
				t.Fatalf("Process: %v", err)
			}

			sub := subs.subs["acct-1"]
			if sub == nil {
				t.Fatal("subscription not stored")
			}
			if sub.Status != domain.SubscriptionExpired {
				t.Errorf("status = %q, want expired until the provider reports active", sub.Status)
			}
		})
	}
}

func TestProcessUnknownVariantIsAcknowledged(t *testing.T) {
	subs := newFakeSubRepo()
	r := newTestReconciler(t, subs, nil, nil)

	event := subscriptionEvent(t, EventSubscriptionCreated, "acct-1", "999", "active")
	if err := r.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(subs.subs) != 0 {
		t.Error("unknown variant must not create a subscription")
	}
}

func TestProcessMissingAccountIDIsAcknowledged(t *testing.T) {
	subs := newFakeSubRepo()
	r := newTestReconciler(t, subs, nil, nil)

	event := subscriptionEvent(t, EventSubscriptionCreated, "", "101", "active")
	if err := r.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(subs.subs) != 0 {
		t.Error("event without account id must be a no-op")
	}
}

func TestProcessUpdateWithoutRowFailsForRetry(t *testing.T) {
	r := newTestReconciler(t, newFakeSubRepo(), nil, nil)

	event := subscriptionEvent(t, EventSubscriptionUpdated, "acct-1", "103", "active")
	if err := r.Process(context.Background(), event); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound so the provider retries, got %v", err)
	}
}

func TestProcessCancelledSendsEmail(t *testing.T) {
	subs := newFakeSubRepo()
	subs.subs["acct-1"] = &domain.Subscription{AccountID: "acct-1", Plan: domain.PlanPro, Status: domain.SubscriptionActive}
	accounts := &fakeAccountRepo{accounts: map[string]*domain.Account{
		"acct-1": {ID: "acct-1", Email: "reader@example.com", Name: "Reader"},
	}}
	notifier := &fakeNotifier{}
	r := newTestReconciler(t, subs, accounts, notifier)

	body := `{
		"meta": {"event_name": "subscription_cancelled", "custom_data": {"user_id": "acct-1"}},
		"data": {"id": "sub-1", "attributes": {"ends_at": "2026-09-30T00:00:00Z"}}
	}`
	event, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if err := r.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sub := subs.subs["acct-1"]
	if sub.Status != domain.SubscriptionCanceled {
		t.Errorf("status = %q", sub.Status)
	}
	if sub.EndsAt == nil {
		t.Error("ends_at not stored")
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "reader@example.com" {
		t.Errorf("notifier.sent = %v", notifier.sent)
	}
}

func TestProcessCancelledEmailFailureIsSwallowed(t *testing.T) {
	subs := newFakeSubRepo()
	subs.subs["acct-1"] = &domain.Subscription{AccountID: "acct-1", Plan: domain.PlanPro, Status: domain.SubscriptionActive}
	accounts := &fakeAccountRepo{accounts: map[string]*domain.Account{
		"acct-1": {ID: "acct-1", Email: "reader@example.com"},
	}}
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	r := newTestReconciler(t, subs, accounts, notifier)

	body := `{
		"meta": {"event_name": "subscription_cancelled", "custom_data": {"user_id": "acct-1"}},
		"data": {"id": "sub-1", "attributes": {}}
	}`
	event, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if err := r.Process(context.Background(), event); err != nil {
		t.Fatalf("Process should not fail on email error: %v", err)
	}
	if subs.subs["acct-1"].Status != domain.SubscriptionCanceled {
		t.Error("state change must land even when the email fails")
	}
}

func TestProcessPaymentFailedMarksPastDue(t *testing.T) {
	subs := newFakeSubRepo()
	subs.subs["acct-1"] = &domain.Subscription{AccountID: "acct-1", Plan: domain.PlanPro, Status: domain.SubscriptionActive}
	r := newTestReconciler(t, subs, nil, nil)

	event := subscriptionEvent(t, EventSubscriptionPaymentFailed, "acct-1", "101", "past_due")
	if err := r.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if subs.subs["acct-1"].Status != domain.SubscriptionPastDue {
		t.Errorf("status = %q", subs.subs["acct-1"].Status)
	}
}

func TestProcessPaymentSuccessReactivates(t *testing.T) {
	subs := newFakeSubRepo()
	subs.subs["acct-1"] = &domain.Subscription{AccountID: "acct-1", Plan: domain.PlanPro, Status: domain.SubscriptionPastDue}
	r := newTestReconciler(t, subs, nil, nil)

	event := subscriptionEvent(t, EventSubscriptionPaymentSuccess, "acct-1", "101", "active")
	if err := r.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}
	sub := subs.subs["acct-1"]
	if sub.Status != domain.SubscriptionActive {
		t.Errorf("status = %q", sub.Status)
	}
	if sub.RenewsAt == nil {
		t.Error("renews_at not refreshed")
	}
}

func orderEvent(t *testing.T, accountID, variantID, status string) *Event {
	t.Helper()
	body := fmt.Sprintf(`{
		"meta": {"event_name": "order_created", "custom_data": {"user_id": %q}},
		"data": {"id": "order-1", "attributes": {
			"status": %q,
			"customer_id": 777,
			"first_order_item": {"variant_id": %s}
		}}
	}`, accountID, status, variantID)
	event, err := ParseEvent([]byte(body))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	return event
}

func TestProcessOrderCreatedGrantsBasic(t *testing.T) {
	subs := newFakeSubRepo()
	r := newTestReconciler(t, subs, nil, nil)

	if err := r.Process(context.Background(), orderEvent(t, "acct-1", "100", "paid")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	sub := subs.subs["acct-1"]
	if sub == nil || sub.Plan != domain.PlanBasic || sub.Status != domain.SubscriptionActive {
		t.Fatalf("sub = %+v", sub)
	}
	if sub.ProviderSubscription != nil || sub.RenewsAt != nil {
		t.Error("one-time purchase must have no subscription id or renewal")
	}
}

func TestProcessOrderCreatedSkipsUnpaid(t *testing.T) {
	subs := newFakeSubRepo()
	r := newTestReconciler(t, subs, nil, nil)

	if err := r.Process(context.Background(), orderEvent(t, "acct-1", "100", "pending")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(subs.subs) != 0 {
		t.Error("unpaid order must not grant access")
	}
}

func TestProcessOrderCreatedSkipsNonBasicVariant(t *testing.T) {
	subs := newFakeSubRepo()
	r := newTestReconciler(t, subs, nil, nil)

	if err := r.Process(context.Background(), orderEvent(t, "acct-1", "101", "paid")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(subs.subs) != 0 {
		t.Error("pro variant order must not be treated as a basic grant")
	}
}

func TestNewVariantMapRejectsEmpty(t *testing.T) {
	if _, err := NewVariantMap("100", "", "102", "103", "104"); err == nil {
		t.Fatal("expected error for empty variant id")
	}
}

func TestVariantFor(t *testing.T) {
	m := testVariants(t)
	cases := []struct {
		plan     domain.Plan
		interval string
		want     string
	}{
		{domain.PlanBasic, "month", "100"},
		{domain.PlanPro, "month", "101"},
		{domain.PlanPro, "year", "102"},
		{domain.PlanUltimate, "month", "103"},
		{domain.PlanUltimate, "year", "104"},
	}
	for _, tc := range cases {
		got, err := m.VariantFor(tc.plan, tc.interval)
		if err != nil {
			t.Fatalf("VariantFor(%s, %s): %v", tc.plan, tc.interval, err)
		}
		if got != tc.want {
			t.Errorf("VariantFor(%s, %s) = %q, want %q", tc.plan, tc.interval, got, tc.want)
		}
	}

	if _, err := m.VariantFor(domain.Plan("enterprise"), "month"); err == nil {
		t.Error("expected error for unknown plan")
	}
}
