package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"palmtell/internal/domain"
	"palmtell/internal/middleware"
)

const sessionTokenTTL = 24 * time.Hour

type googleVerifyRequest struct {
	IDToken string `json:"id_token"`
}

type authResponse struct {
	Token   string     `json:"token"`
	Account accountDTO `json:"account"`
}

type accountDTO struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	PalmConfirmed bool    `json:"palm_confirmed"`
	DateOfBirth   *string `json:"date_of_birth,omitempty"`
}

func toAccountDTO(acc *domain.Account) accountDTO {
	dto := accountDTO{
		ID:            acc.ID,
		Email:         acc.Email,
		Name:          acc.Name,
		PalmConfirmed: acc.PalmConfirmed,
	}
	if acc.DateOfBirth != nil {
		dob := acc.DateOfBirth.Format("2006-01-02")
		dto.DateOfBirth = &dob
	}
	return dto
}

// AuthGoogleVerify exchanges a Google ID token for a session token, creating
// the account on first login.
func (a *App) AuthGoogleVerify(w http.ResponseWriter, r *http.Request) {
	var req googleVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.IDToken == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id_token required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	identity, err := a.GoogleVerifier.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("google verify failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid google token")
		return
	}
	acc, err := a.Accounts.UpsertByGoogleSub(r.Context(), &domain.Account{
		GoogleSub: identity.Sub,
		Email:     identity.Email,
		Name:      identity.Name,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("upsert account failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist account")
		return
	}
	a.issueSession(w, r, acc)
}

func (a *App) issueSession(w http.ResponseWriter, r *http.Request, acc *domain.Account) {
	locale := middleware.LocaleFromContext(r.Context())
	token, err := middleware.SignSessionToken(a.JWTSecret, acc.ID, acc.Email, locale, sessionTokenTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign session token failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusOK, authResponse{Token: token, Account: toAccountDTO(acc)})
}
