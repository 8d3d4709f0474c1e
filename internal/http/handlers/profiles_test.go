package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"palmtell/internal/domain"
)

func TestProfileCreate(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, true)
	env.seedSub(t, acc.ID, domain.PlanPro, domain.SubscriptionActive)

	rec := httptest.NewRecorder()
	req := authedRequest(jsonRequest(t, http.MethodPost, "/v1/profiles", map[string]string{
		"name":          "Grandma",
		"relation":      "family",
		"avatar_emoji":  "👵",
		"date_of_birth": "1950-02-10",
	}), acc.ID)
	env.app.ProfileCreate(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var dto profileDTO
	decodeJSON(t, rec, &dto)
	if dto.Name != "Grandma" || dto.IsDefault {
		t.Fatalf("profile = %+v", dto)
	}
	if dto.DateOfBirth == nil || *dto.DateOfBirth != "1950-02-10" {
		t.Fatalf("date of birth = %v", dto.DateOfBirth)
	}
}

func TestProfileCreateLimitReached(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, true)
	env.seedSub(t, acc.ID, domain.PlanBasic, domain.SubscriptionActive)

	// Basic allows a single profile and the default one already exists.
	rec := httptest.NewRecorder()
	req := authedRequest(jsonRequest(t, http.MethodPost, "/v1/profiles", map[string]string{"name": "Friend"}), acc.ID)
	env.app.ProfileCreate(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var body errorBody
	decodeJSON(t, rec, &body)
	if body.Error.Code != "profile_limit_reached" {
		t.Fatalf("error code = %q", body.Error.Code)
	}
}

func TestProfileDeleteDefaultRefused(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, true)
	profiles, _ := env.profiles.ListByAccount(context.Background(), acc.ID)

	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(httptest.NewRequest(http.MethodDelete, "/v1/profiles/"+profiles[0].ID, nil), acc.ID), "id", profiles[0].ID)
	env.app.ProfileDelete(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProfileDelete(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, true)
	extra := &domain.Profile{AccountID: acc.ID, Name: "Friend"}
	if err := env.profiles.Create(context.Background(), extra); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(httptest.NewRequest(http.MethodDelete, "/v1/profiles/"+extra.ID, nil), acc.ID), "id", extra.ID)
	env.app.ProfileDelete(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, err := env.profiles.GetForAccount(context.Background(), extra.ID, acc.ID); err == nil {
		t.Fatalf("profile should be gone")
	}
}
