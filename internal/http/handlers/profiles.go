package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"palmtell/internal/access"
	"palmtell/internal/domain"
)

type profileCreateRequest struct {
	Name        string `json:"name"`
	Relation    string `json:"relation"`
	AvatarEmoji string `json:"avatar_emoji"`
	DateOfBirth string `json:"date_of_birth"`
}

type profileDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Relation    string  `json:"relation"`
	AvatarEmoji string  `json:"avatar_emoji"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
	IsDefault   bool    `json:"is_default"`
}

func toProfileDTO(p *domain.Profile) profileDTO {
	dto := profileDTO{
		ID:          p.ID,
		Name:        p.Name,
		Relation:    p.Relation,
		AvatarEmoji: p.AvatarEmoji,
		IsDefault:   p.IsDefault,
	}
	if p.DateOfBirth != nil {
		dob := p.DateOfBirth.Format("2006-01-02")
		dto.DateOfBirth = &dob
	}
	return dto
}

func (a *App) ProfileList(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	profiles, err := a.Profiles.ListByAccount(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("profile list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list profiles")
		return
	}
	out := make([]profileDTO, 0, len(profiles))
	for i := range profiles {
		out = append(out, toProfileDTO(&profiles[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"profiles": out})
}

// ProfileCreate adds a reading profile. The number of profiles an account
// may hold depends on its tier.
func (a *App) ProfileCreate(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	var req profileCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "name required")
		return
	}
	var dob *time.Time
	if req.DateOfBirth != "" {
		parsed, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "date_of_birth must be YYYY-MM-DD")
			return
		}
		dob = &parsed
	}
	tier, err := a.Readings.Tier(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("tier resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve access")
		return
	}
	limit := access.ProfileLimit(tier)
	if limit != access.Unlimited {
		count, err := a.Profiles.CountByAccount(r.Context(), accountID)
		if err != nil {
			a.Logger.Error().Err(err).Msg("profile count failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to count profiles")
			return
		}
		if count >= limit {
			a.error(w, http.StatusForbidden, "profile_limit_reached", "upgrade to add more profiles")
			return
		}
	}
	profile := &domain.Profile{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Name:        req.Name,
		Relation:    req.Relation,
		AvatarEmoji: req.AvatarEmoji,
		DateOfBirth: dob,
	}
	if err := a.Profiles.Create(r.Context(), profile); err != nil {
		a.Logger.Error().Err(err).Msg("profile create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create profile")
		return
	}
	a.json(w, http.StatusCreated, toProfileDTO(profile))
}

func (a *App) ProfileDelete(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	profileID := chi.URLParam(r, "id")
	profile, err := a.Profiles.GetForAccount(r.Context(), profileID, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		a.Logger.Error().Err(err).Msg("profile load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load profile")
		return
	}
	if profile.IsDefault {
		a.error(w, http.StatusBadRequest, "bad_request", "the default profile cannot be deleted")
		return
	}
	if err := a.Profiles.Delete(r.Context(), profileID, accountID); err != nil {
		a.Logger.Error().Err(err).Msg("profile delete failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete profile")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "deleted"})
}
