package domain

import "time"

// Plan enumerates purchasable plans. Basic is also sold as a one-time
// purchase (no renewal), pro and ultimate are recurring.
type Plan string

const (
	PlanBasic    Plan = "basic"
	PlanPro      Plan = "pro"
	PlanUltimate Plan = "ultimate"
)

// SubscriptionStatus enumerates provider-reported billing states.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

// Subscription is the at-most-one billing record per account. A one-time
// basic purchase is stored as status=active with no provider subscription id
// and no renewal timestamp.
type Subscription struct {
	AccountID             string
	Plan                  Plan
	Status                SubscriptionStatus
	ProviderSubscription  *string
	ProviderCustomer      string
	RenewsAt              *time.Time
	EndsAt                *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
