package handlers

import (
	"io"
	"net/http"

	"palmtell/internal/billing"
)

// BillingWebhook ingests provider events and reconciles the subscription
// row. A 5xx tells the provider to redeliver; events we cannot act on are
// acknowledged so they stop retrying.
func (a *App) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	if a.Reconciler == nil {
		a.error(w, http.StatusNotImplemented, "billing_disabled", "billing is not configured")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	if err := a.Reconciler.VerifySignature(body, r.Header.Get("X-Signature")); err != nil {
		a.Logger.Warn().Err(err).Msg("webhook signature rejected")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}
	event, err := billing.ParseEvent(body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid event payload")
		return
	}
	if err := a.Reconciler.Process(r.Context(), event); err != nil {
		a.Logger.Error().Err(err).Str("event", event.Name()).Msg("webhook processing failed")
		a.error(w, http.StatusInternalServerError, "internal", "event processing failed, will retry")
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}
