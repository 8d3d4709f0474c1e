package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"palmtell/internal/domain"
)

type checkoutRequest struct {
	Plan     string `json:"plan"`
	Interval string `json:"interval"`
}

// BillingCheckout creates a hosted checkout session for a plan and returns
// its URL.
func (a *App) BillingCheckout(w http.ResponseWriter, r *http.Request) {
	if a.Checkout == nil {
		a.error(w, http.StatusNotImplemented, "billing_disabled", "billing is not configured")
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	plan := domain.Plan(req.Plan)
	switch plan {
	case domain.PlanBasic, domain.PlanPro, domain.PlanUltimate:
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "plan must be basic, pro or ultimate")
		return
	}
	interval := req.Interval
	if interval == "" {
		interval = "month"
	}
	if interval != "month" && interval != "year" {
		a.error(w, http.StatusBadRequest, "bad_request", "interval must be month or year")
		return
	}
	accountID := a.currentUserID(r)
	acc, err := a.Accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusUnauthorized, "unauthorized", "account not found")
			return
		}
		a.Logger.Error().Err(err).Msg("account load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load account")
		return
	}
	sub, err := a.Subs.GetByAccount(r.Context(), accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.Logger.Error().Err(err).Msg("subscription load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load subscription")
		return
	}
	if sub != nil && sub.Status == domain.SubscriptionActive {
		if plan == domain.PlanBasic && sub.Plan == domain.PlanBasic {
			a.error(w, http.StatusConflict, "already_owned", "the basic reading is already active, upgrade to pro or ultimate for more")
			return
		}
		// The provider cannot swap recurring plans on a live subscription;
		// the current one must be cancelled first.
		if plan != domain.PlanBasic && sub.ProviderSubscription != nil && sub.Plan != plan {
			a.error(w, http.StatusConflict, "requires_cancellation", "cancel the current subscription before changing plans")
			return
		}
	}

	url, err := a.Checkout.CreateSession(r.Context(), plan, interval, acc.ID, acc.Email)
	if err != nil {
		a.Logger.Error().Err(err).Msg("checkout session failed")
		a.error(w, http.StatusBadGateway, "billing_unavailable", "failed to create checkout session")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": url})
}

func (a *App) BillingPortal(w http.ResponseWriter, r *http.Request) {
	if a.Checkout == nil {
		a.error(w, http.StatusNotImplemented, "billing_disabled", "billing is not configured")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": a.Checkout.PortalURL()})
}
