package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"palmtell/internal/domain"
)

// ErrBadSignature is returned when the webhook signature does not match.
var ErrBadSignature = errors.New("billing: invalid webhook signature")

// CancellationNotifier sends the "subscription cancelled" email. Failures are
// logged, never surfaced: the state change must not be retried over a mail
// outage.
type CancellationNotifier interface {
	SendSubscriptionCancelled(ctx context.Context, email, name, endsAt string) error
}

// Reconciler applies verified webhook events to local subscription state.
type Reconciler struct {
	accounts domain.AccountRepository
	subs     domain.SubscriptionRepository
	variants *VariantMap
	notifier CancellationNotifier
	secret   []byte
	logger   zerolog.Logger
}

func NewReconciler(
	accounts domain.AccountRepository,
	subs domain.SubscriptionRepository,
	variants *VariantMap,
	notifier CancellationNotifier,
	webhookSecret string,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		accounts: accounts,
		subs:     subs,
		variants: variants,
		notifier: notifier,
		secret:   []byte(webhookSecret),
		logger:   logger,
	}
}

// VerifySignature checks the hex-encoded HMAC-SHA256 signature over the raw
// body against the shared webhook secret.
func (r *Reconciler) VerifySignature(body []byte, signature string) error {
	if signature == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, r.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Process applies one verified event. Events without an account reference and
// events for unknown variants are logged and acknowledged so the provider
// stops retrying them; persistence failures return an error so the provider
// retries the delivery.
func (r *Reconciler) Process(ctx context.Context, event *Event) error {
	accountID := event.AccountID()
	if accountID == "" {
		r.logger.Warn().Str("event", event.Name()).Msg("billing event without account id, skipping")
		return nil
	}

	log := r.logger.With().Str("event", event.Name()).Str("account_id", accountID).Logger()

	switch event.Name() {
	case EventSubscriptionCreated:
		plan, ok := r.variants.PlanForVariant(event.VariantID())
		if !ok {
			log.Warn().Str("variant_id", event.VariantID()).Msg("unknown variant, skipping")
			return nil
		}
		subID := event.Data.ID
		sub := &domain.Subscription{
			AccountID:            accountID,
			Plan:                 plan,
			Status:               normalizeStatus(event.Data.Attributes.Status),
			ProviderSubscription: &subID,
			ProviderCustomer:     event.CustomerID(),
			RenewsAt:             event.Data.Attributes.RenewsAt,
		}
		if err := r.subs.Upsert(ctx, sub); err != nil {
			return fmt.Errorf("upsert subscription: %w", err)
		}

	case EventSubscriptionUpdated:
		plan, ok := r.variants.PlanForVariant(event.VariantID())
		if !ok {
			log.Warn().Str("variant_id", event.VariantID()).Msg("unknown variant, skipping")
			return nil
		}
		sub, err := r.subs.GetByAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		sub.Plan = plan
		sub.Status = normalizeStatus(event.Data.Attributes.Status)
		sub.RenewsAt = event.Data.Attributes.RenewsAt
		if err := r.subs.Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}

	case EventSubscriptionCancelled:
		sub, err := r.subs.GetByAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		sub.Status = domain.SubscriptionCanceled
		sub.EndsAt = event.Data.Attributes.EndsAt
		if err := r.subs.Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		r.sendCancellationEmail(ctx, log, accountID, event)

	case EventSubscriptionExpired:
		sub, err := r.subs.GetByAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		sub.Status = domain.SubscriptionExpired
		if err := r.subs.Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}

	case EventSubscriptionPaymentSuccess:
		sub, err := r.subs.GetByAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		sub.Status = domain.SubscriptionActive
		sub.RenewsAt = event.Data.Attributes.RenewsAt
		if err := r.subs.Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}

	case EventSubscriptionPaymentFailed:
		sub, err := r.subs.GetByAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		sub.Status = domain.SubscriptionPastDue
		if err := r.subs.Update(ctx, sub); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}

	case EventOrderCreated:
		if event.Data.Attributes.Status != "paid" {
			return nil
		}
		plan, ok := r.variants.PlanForVariant(event.OrderVariantID())
		if !ok || plan != domain.PlanBasic {
			log.Debug().Str("variant_id", event.OrderVariantID()).Msg("order for non-basic variant, skipping")
			return nil
		}
		// Permanent basic access from a one-time purchase: no provider
		// subscription and no renewal timestamp.
		sub := &domain.Subscription{
			AccountID:        accountID,
			Plan:             domain.PlanBasic,
			Status:           domain.SubscriptionActive,
			ProviderCustomer: event.CustomerID(),
		}
		if err := r.subs.Upsert(ctx, sub); err != nil {
			return fmt.Errorf("upsert subscription: %w", err)
		}

	default:
		log.Debug().Msg("unhandled billing event")
	}

	return nil
}

func (r *Reconciler) sendCancellationEmail(ctx context.Context, log zerolog.Logger, accountID string, event *Event) {
	if r.notifier == nil {
		return
	}
	account, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Msg("load account for cancellation email")
		return
	}
	endsAt := "the end of the current period"
	if event.Data.Attributes.EndsAt != nil {
		endsAt = event.Data.Attributes.EndsAt.Format("January 2, 2006")
	}
	name := account.Name
	if name == "" {
		name = "there"
	}
	if err := r.notifier.SendSubscriptionCancelled(ctx, account.Email, name, endsAt); err != nil {
		log.Error().Err(err).Msg("send cancellation email")
	}
}

// normalizeStatus folds provider status strings into the local state set.
// Only "active" grants access; on_trial, paused and anything the provider
// adds later fail closed to expired.
func normalizeStatus(status string) domain.SubscriptionStatus {
	switch status {
	case "active":
		return domain.SubscriptionActive
	case "past_due", "unpaid":
		return domain.SubscriptionPastDue
	case "cancelled", "canceled":
		return domain.SubscriptionCanceled
	default:
		return domain.SubscriptionExpired
	}
}
