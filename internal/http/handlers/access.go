package handlers

import (
	"errors"
	"net/http"

	"palmtell/internal/access"
	"palmtell/internal/domain"
)

type accessResponse struct {
	Account          accountDTO `json:"account"`
	Tier             string     `json:"tier"`
	ReadingsLeft     int        `json:"readings_left"`
	ProfileLimit     int        `json:"profile_limit"`
	VisibleSections  []string   `json:"visible_sections"`
	DailyHoroscope   bool       `json:"daily_horoscope"`
	MonthlyHoroscope bool       `json:"monthly_horoscope"`
	CanExport        bool       `json:"can_export"`
}

// MeAccess reports the caller's current tier and what it unlocks. The tier
// is recomputed from billing state on every call, so a webhook the client
// missed is reflected here immediately.
func (a *App) MeAccess(w http.ResponseWriter, r *http.Request) {
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
	tier, err := a.Readings.Tier(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("tier resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve access")
		return
	}
	left, err := a.Readings.QuotaRemaining(r.Context(), accountID, tier)
	if err != nil {
		a.Logger.Error().Err(err).Msg("quota resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve quota")
		return
	}
	a.json(w, http.StatusOK, accessResponse{
		Account:          toAccountDTO(acc),
		Tier:             string(tier),
		ReadingsLeft:     left,
		ProfileLimit:     access.ProfileLimit(tier),
		VisibleSections:  access.VisibleSections(tier),
		DailyHoroscope:   access.CanAccessDailyHoroscope(tier),
		MonthlyHoroscope: access.CanAccessMonthlyHoroscope(tier),
		CanExport:        access.CanExport(tier),
	})
}
