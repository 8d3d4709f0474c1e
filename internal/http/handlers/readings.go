package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"palmtell/internal/access"
	"palmtell/internal/domain"
	"palmtell/internal/middleware"
	"palmtell/pkg/zip"
)

// allSections lists analysis sections in presentation order.
var allSections = []string{
	access.SectionPersonality,
	access.SectionLifePath,
	access.SectionCareer,
	access.SectionRelationships,
	access.SectionHealth,
	access.SectionLucky,
}

type readingCreateRequest struct {
	ProfileID string `json:"profile_id"`
}

type readingDTO struct {
	ID             string         `json:"id"`
	ProfileID      string         `json:"profile_id"`
	Status         string         `json:"status"`
	ErrorCode      *string        `json:"error_code,omitempty"`
	Analysis       map[string]any `json:"analysis,omitempty"`
	LockedSections []string       `json:"locked_sections,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toReadingDTO(rd *domain.Reading, tier access.Tier) readingDTO {
	dto := readingDTO{
		ID:        rd.ID,
		ProfileID: rd.ProfileID,
		Status:    string(rd.Status),
		ErrorCode: rd.ErrorCode,
		CreatedAt: rd.CreatedAt,
	}
	if rd.Status != domain.ReadingCompleted || len(rd.AnalysisJSON) == 0 {
		return dto
	}
	var full map[string]any
	if err := json.Unmarshal(rd.AnalysisJSON, &full); err != nil {
		return dto
	}
	dto.Analysis = map[string]any{}
	for _, section := range allSections {
		if _, ok := full[section]; !ok {
			continue
		}
		if access.SectionVisible(section, tier) {
			dto.Analysis[section] = full[section]
		} else {
			dto.LockedSections = append(dto.LockedSections, section)
		}
	}
	return dto
}

// ReadingCreate starts a new reading for one of the account's profiles and
// queues the analysis job. The reading comes back in pending state.
func (a *App) ReadingCreate(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	var req readingCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	profileID, err := a.resolveProfileID(r, accountID, req.ProfileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	rd, err := a.Readings.Create(r.Context(), accountID, profileID, middleware.LocaleFromContext(r.Context()))
	if err != nil {
		a.readingCreateError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, toReadingDTO(rd, access.TierExpired))
}

func (a *App) readingCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "account not found")
	case errors.Is(err, domain.ErrPalmNotConfirmed):
		a.error(w, http.StatusForbidden, "palm_not_confirmed", "confirm a palm photo before requesting readings")
	case errors.Is(err, domain.ErrNoActiveAccess):
		a.error(w, http.StatusPaymentRequired, "no_active_access", "an active plan is required")
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.error(w, http.StatusTooManyRequests, "quota_exceeded", "monthly reading quota reached")
	default:
		a.Logger.Error().Err(err).Msg("reading create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create reading")
	}
}

func (a *App) ReadingGet(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	rd, err := a.Readings.Get(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "reading not found")
			return
		}
		a.Logger.Error().Err(err).Msg("reading get failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load reading")
		return
	}
	tier, err := a.Readings.Tier(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("tier resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve access")
		return
	}
	a.json(w, http.StatusOK, toReadingDTO(rd, tier))
}

func (a *App) ReadingList(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	var profileID *string
	if pid := r.URL.Query().Get("profile_id"); pid != "" {
		profileID = &pid
	}
	readings, err := a.Readings.List(r.Context(), accountID, profileID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("reading list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list readings")
		return
	}
	tier, err := a.Readings.Tier(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("tier resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve access")
		return
	}
	out := make([]readingDTO, 0, len(readings))
	for i := range readings {
		out = append(out, toReadingDTO(&readings[i], tier))
	}
	a.json(w, http.StatusOK, map[string]any{"readings": out})
}

// ReadingExport bundles every completed reading into a zip archive. Export
// is an ultimate-tier feature.
func (a *App) ReadingExport(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentUserID(r)
	tier, err := a.Readings.Tier(r.Context(), accountID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("tier resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve access")
		return
	}
	if !access.CanExport(tier) {
		a.error(w, http.StatusForbidden, "upgrade_required", "export requires the ultimate plan")
		return
	}
	readings, err := a.Readings.List(r.Context(), accountID, nil)
	if err != nil {
		a.Logger.Error().Err(err).Msg("reading list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list readings")
		return
	}
	var assets []zip.Asset
	for i := range readings {
		rd := &readings[i]
		if rd.Status != domain.ReadingCompleted || len(rd.AnalysisJSON) == 0 {
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("reading-%s.json", rd.ID),
			MIME:     "application/json",
			Data:     rd.AnalysisJSON,
		})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.Logger.Error().Err(err).Msg("export archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="readings.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) resolveProfileID(r *http.Request, accountID, profileID string) (string, error) {
	if profileID != "" {
		if _, err := a.Profiles.GetForAccount(r.Context(), profileID, accountID); err != nil {
			return "", err
		}
		return profileID, nil
	}
	profiles, err := a.Profiles.ListByAccount(r.Context(), accountID)
	if err != nil {
		return "", err
	}
	for _, p := range profiles {
		if p.IsDefault {
			return p.ID, nil
		}
	}
	return "", errors.New("no default profile, pass profile_id")
}
