package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook event names sent by Lemon Squeezy.
const (
	EventSubscriptionCreated        = "subscription_created"
	EventSubscriptionUpdated        = "subscription_updated"
	EventSubscriptionCancelled      = "subscription_cancelled"
	EventSubscriptionExpired        = "subscription_expired"
	EventSubscriptionPaymentSuccess = "subscription_payment_success"
	EventSubscriptionPaymentFailed  = "subscription_payment_failed"
	EventOrderCreated               = "order_created"
)

// Event is a parsed webhook payload. Variant and customer IDs arrive as
// numbers in some events and strings in others; json.Number absorbs both.
type Event struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			AccountID string `json:"user_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string          `json:"id"`
		Attributes eventAttributes `json:"attributes"`
	} `json:"data"`
}

type eventAttributes struct {
	Status         string          `json:"status"`
	VariantID      json.Number     `json:"variant_id"`
	CustomerID     json.Number     `json:"customer_id"`
	RenewsAt       *time.Time      `json:"renews_at"`
	EndsAt         *time.Time      `json:"ends_at"`
	FirstOrderItem *firstOrderItem `json:"first_order_item"`
}

type firstOrderItem struct {
	VariantID json.Number `json:"variant_id"`
}

// ParseEvent decodes a webhook body. Callers must verify the signature first.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("billing: decode event: %w", err)
	}
	if event.Meta.EventName == "" {
		return nil, fmt.Errorf("billing: event missing event_name")
	}
	return &event, nil
}

// Name returns the event name.
func (e *Event) Name() string { return e.Meta.EventName }

// AccountID returns the account the event concerns, or "" when the checkout
// carried no custom data.
func (e *Event) AccountID() string { return e.Meta.CustomData.AccountID }

// VariantID returns the subscription's variant ID as a string.
func (e *Event) VariantID() string { return e.Data.Attributes.VariantID.String() }

// OrderVariantID returns the variant of the first order item for order
// events.
func (e *Event) OrderVariantID() string {
	if e.Data.Attributes.FirstOrderItem == nil {
		return ""
	}
	return e.Data.Attributes.FirstOrderItem.VariantID.String()
}

// CustomerID returns the provider customer ID as a string.
func (e *Event) CustomerID() string { return e.Data.Attributes.CustomerID.String() }
