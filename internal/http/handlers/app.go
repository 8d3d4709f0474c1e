package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"palmtell/internal/billing"
	"palmtell/internal/domain"
	"palmtell/internal/horoscope"
	"palmtell/internal/infra/google"
	"palmtell/internal/middleware"
	"palmtell/internal/palm"
	"palmtell/internal/queue"
	"palmtell/internal/reading"
	"palmtell/internal/storage"
)

// IdentityVerifier checks an external ID token and returns the identity it
// asserts.
type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*google.Identity, error)
}

// App carries every dependency the HTTP handlers need. All fields are set
// once at startup and read-only afterwards.
type App struct {
	Accounts domain.AccountRepository
	Profiles domain.ProfileRepository
	Subs     domain.SubscriptionRepository

	Palm     *palm.Service
	Readings *reading.Service
	Jobs     *reading.JobRunner
	Stars    *horoscope.Service

	Reconciler    *billing.Reconciler
	Checkout      *billing.Checkout
	QueueVerifier *queue.Verifier

	Files  *storage.FileStore
	Signer *storage.URLSigner

	GoogleVerifier IdentityVerifier
	JWTSecret      string
	Logger         zerolog.Logger
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
