package horoscope

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownSign is returned when a caller-supplied sign is not one of the
// twelve zodiac signs.
var ErrUnknownSign = errors.New("horoscope: unknown sign")

var signs = []string{
	"aries", "taurus", "gemini", "cancer", "leo", "virgo",
	"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
}

var signDateRanges = map[string]string{
	"aries":       "Mar 21 - Apr 19",
	"taurus":      "Apr 20 - May 20",
	"gemini":      "May 21 - Jun 20",
	"cancer":      "Jun 21 - Jul 22",
	"leo":         "Jul 23 - Aug 22",
	"virgo":       "Aug 23 - Sep 22",
	"libra":       "Sep 23 - Oct 22",
	"scorpio":     "Oct 23 - Nov 21",
	"sagittarius": "Nov 22 - Dec 21",
	"capricorn":   "Dec 22 - Jan 19",
	"aquarius":    "Jan 20 - Feb 18",
	"pisces":      "Feb 19 - Mar 20",
}

// ZodiacSign returns the western zodiac sign for a date of birth.
func ZodiacSign(dob time.Time) string {
	month, day := int(dob.Month()), dob.Day()
	switch {
	case (month == 3 && day >= 21) || (month == 4 && day <= 19):
		return "aries"
	case (month == 4 && day >= 20) || (month == 5 && day <= 20):
		return "taurus"
	case (month == 5 && day >= 21) || (month == 6 && day <= 20):
		return "gemini"
	case (month == 6 && day >= 21) || (month == 7 && day <= 22):
		return "cancer"
	case (month == 7 && day >= 23) || (month == 8 && day <= 22):
		return "leo"
	case (month == 8 && day >= 23) || (month == 9 && day <= 22):
		return "virgo"
	case (month == 9 && day >= 23) || (month == 10 && day <= 22):
		return "libra"
	case (month == 10 && day >= 23) || (month == 11 && day <= 21):
		return "scorpio"
	case (month == 11 && day >= 22) || (month == 12 && day <= 21):
		return "sagittarius"
	case (month == 12 && day >= 22) || (month == 1 && day <= 19):
		return "capricorn"
	case (month == 1 && day >= 20) || (month == 2 && day <= 18):
		return "aquarius"
	case (month == 2 && day >= 19) || (month == 3 && day <= 20):
		return "pisces"
	}
	return "aries"
}

// SignDateRange returns the display date range for a sign.
func SignDateRange(sign string) string {
	if r, ok := signDateRanges[sign]; ok {
		return r
	}
	return "Unknown"
}

func normalizeSign(sign string) (string, error) {
	sign = strings.ToLower(strings.TrimSpace(sign))
	for _, s := range signs {
		if s == sign {
			return sign, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownSign, sign)
}
