package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"palmtell/internal/domain"
	"palmtell/internal/middleware"
	"palmtell/internal/palm"
	"palmtell/internal/session"
)

type palmSubmitResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type palmConfirmRequest struct {
	Token   string `json:"token"`
	IDToken string `json:"id_token"`
}

// PalmSubmit accepts an anonymous palm photo upload and opens a transient
// session for it. The caller confirms the session later with a verified
// identity.
func (a *App) PalmSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, palm.MaxPhotoBytes+1<<20)
	if err := r.ParseMultipartForm(palm.MaxPhotoBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "photo required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, palm.MaxPhotoBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read photo")
		return
	}
	token, err := a.Palm.Submit(r.Context(), data, header.Header.Get("Content-Type"), r.FormValue("dob"))
	if err != nil {
		if errors.Is(err, palm.ErrUnsupportedImage) {
			a.error(w, http.StatusBadRequest, "unsupported_image", err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("palm submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store photo")
		return
	}
	a.json(w, http.StatusOK, palmSubmitResponse{Token: token, ExpiresIn: int(session.SessionTTL / time.Second)})
}

// PalmConfirm runs the promotion handshake: the upload session named by the
// token is validated, the Google identity becomes a durable account, and a
// session token is issued. The handler is safe to call again after a partial
// failure.
func (a *App) PalmConfirm(w http.ResponseWriter, r *http.Request) {
	var req palmConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Token == "" || req.IDToken == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "token and id_token required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	identity, err := a.GoogleVerifier.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("google verify failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid google token")
		return
	}
	acc, err := a.Palm.Confirm(ctx, palm.Identity{
		GoogleSub: identity.Sub,
		Email:     identity.Email,
		Name:      identity.Name,
	}, req.Token, middleware.ClientIP(r))
	if err != nil {
		a.palmConfirmError(w, err)
		return
	}
	a.issueSession(w, r, acc)
}

func (a *App) palmConfirmError(w http.ResponseWriter, err error) {
	var limited *palm.RateLimitedError
	var invalid *domain.PalmInvalidError
	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.WaitSeconds))
		a.error(w, http.StatusTooManyRequests, "rate_limited", "too many failed attempts")
	case errors.As(err, &invalid):
		a.error(w, http.StatusUnprocessableEntity, "invalid_palm", invalid.Reason)
	case errors.Is(err, domain.ErrSessionExpired):
		a.error(w, http.StatusGone, "session_expired", "upload session expired, submit a new photo")
	case errors.Is(err, domain.ErrUpstream):
		a.error(w, http.StatusServiceUnavailable, "upstream_unavailable", "validation temporarily unavailable, try again")
	default:
		a.Logger.Error().Err(err).Msg("palm confirm failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to confirm palm")
	}
}
