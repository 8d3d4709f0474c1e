// Package horoscope computes zodiac signs and serves generated daily and
// monthly horoscopes with a Redis-backed cache.
package horoscope

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"palmtell/internal/session"
	"palmtell/internal/vision"
)

const (
	dailyCacheTTL   = 24 * time.Hour
	monthlyCacheTTL = 30 * 24 * time.Hour
)

var titleCaser = cases.Title(language.English)

// Generator produces horoscope text. The vision client satisfies it.
type Generator interface {
	Horoscope(ctx context.Context, sign, locale string, date time.Time) (string, error)
	Monthly(ctx context.Context, sign, locale string, month time.Time) (*vision.MonthlyHoroscope, error)
}

// Daily is one day's horoscope for a sign.
type Daily struct {
	Sign        string `json:"sign"`
	Date        string `json:"date"`
	Description string `json:"description"`
	DateRange   string `json:"date_range"`
}

// Monthly is the month-ahead forecast for a profile.
type Monthly struct {
	Sign  string `json:"sign"`
	Month string `json:"month"`
	vision.MonthlyHoroscope
}

type Service struct {
	kv     session.KV
	gen    Generator
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(kv session.KV, gen Generator, logger zerolog.Logger) *Service {
	return &Service{kv: kv, gen: gen, logger: logger, now: time.Now}
}

// Daily returns the cached horoscope for a sign, generating and caching it
// on a miss. Cache failures degrade to generation, never to an error.
func (s *Service) Daily(ctx context.Context, sign, locale string) (*Daily, error) {
	sign, err := normalizeSign(sign)
	if err != nil {
		return nil, err
	}
	today := s.now().UTC()
	cacheKey := fmt.Sprintf("horoscope:daily:%s:%s:%s", sign, locale, today.Format("2006-01-02"))

	if raw, ok, err := s.kv.Get(ctx, cacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("horoscope: cache read failed")
	} else if ok {
		var cached Daily
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		s.logger.Warn().Str("key", cacheKey).Msg("horoscope: corrupt cache entry")
	}

	description, err := s.gen.Horoscope(ctx, titleCaser.String(sign), locale, today)
	if err != nil {
		return nil, fmt.Errorf("horoscope: generate daily: %w", err)
	}
	daily := &Daily{
		Sign:        sign,
		Date:        today.Format("2006-01-02"),
		Description: description,
		DateRange:   SignDateRange(sign),
	}

	if payload, err := json.Marshal(daily); err == nil {
		if err := s.kv.SetEx(ctx, cacheKey, string(payload), dailyCacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("horoscope: cache write failed")
		}
	}
	return daily, nil
}

// MonthlyForProfile returns the month-ahead forecast for a profile, cached
// per profile and calendar month.
func (s *Service) MonthlyForProfile(ctx context.Context, profileID string, dob time.Time, locale string) (*Monthly, error) {
	now := s.now().UTC()
	sign := ZodiacSign(dob)
	cacheKey := fmt.Sprintf("horoscope:monthly:%s:%s", profileID, now.Format("2006-01"))

	if raw, ok, err := s.kv.Get(ctx, cacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("horoscope: cache read failed")
	} else if ok {
		var cached Monthly
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
	}

	forecast, err := s.gen.Monthly(ctx, titleCaser.String(sign), locale, now)
	if err != nil {
		return nil, fmt.Errorf("horoscope: generate monthly: %w", err)
	}
	monthly := &Monthly{
		Sign:             sign,
		Month:            now.Format("January 2006"),
		MonthlyHoroscope: *forecast,
	}

	if payload, err := json.Marshal(monthly); err == nil {
		if err := s.kv.SetEx(ctx, cacheKey, string(payload), monthlyCacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("horoscope: cache write failed")
		}
	}
	return monthly, nil
}
