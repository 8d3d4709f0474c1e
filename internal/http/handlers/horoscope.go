package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"palmtell/internal/access"
	"palmtell/internal/domain"
	"palmtell/internal/horoscope"
	"palmtell/internal/middleware"
)

// HoroscopeDaily serves the day's horoscope for a sign. Without an explicit
// sign the caller's own date of birth decides. Pro and above only.
func (a *App) HoroscopeDaily(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	tier, err := a.Readings.Tier(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("tier resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve access")
		return
	}
	if !access.CanAccessDailyHoroscope(tier) {
		a.error(w, http.StatusForbidden, "upgrade_required", "daily horoscopes require the pro plan")
		return
	}
	sign := r.URL.Query().Get("sign")
	if sign == "" {
		acc, err := a.Accounts.GetByID(r.Context(), accountID)
		if err != nil || acc.DateOfBirth == nil {
			a.error(w, http.StatusBadRequest, "bad_request", "pass a sign or set a date of birth")
			return
		}
		sign = horoscope.ZodiacSign(*acc.DateOfBirth)
	}
	daily, err := a.Stars.Daily(r.Context(), sign, middleware.LocaleFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, horoscope.ErrUnknownSign) {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown zodiac sign")
			return
		}
		a.Logger.Error().Err(err).Msg("daily horoscope failed")
		a.error(w, http.StatusServiceUnavailable, "upstream_unavailable", "horoscope temporarily unavailable")
		return
	}
	a.json(w, http.StatusOK, daily)
}

// HoroscopeMonthly serves the month-ahead forecast for one of the caller's
// profiles. Ultimate only.
func (a *App) HoroscopeMonthly(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	tier, err := a.Readings.Tier(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("tier resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve access")
		return
	}
	if !access.CanAccessMonthlyHoroscope(tier) {
		a.error(w, http.StatusForbidden, "upgrade_required", "monthly forecasts require the ultimate plan")
		return
	}
	profile, err := a.Profiles.GetForAccount(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		a.Logger.Error().Err(err).Msg("profile load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load profile")
		return
	}
	if profile.DateOfBirth == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "profile has no date of birth")
		return
	}
	monthly, err := a.Stars.MonthlyForProfile(r.Context(), profile.ID, *profile.DateOfBirth, middleware.LocaleFromContext(r.Context()))
	if err != nil {
		a.Logger.Error().Err(err).Msg("monthly horoscope failed")
		a.error(w, http.StatusServiceUnavailable, "upstream_unavailable", "horoscope temporarily unavailable")
		return
	}
	a.json(w, http.StatusOK, monthly)
}
