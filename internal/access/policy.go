// Package access computes the entitlement tier for an account and the limits
// and section visibility derived from it. Everything here is a pure function
// of subscription state; nothing performs I/O and nothing returns an error.
package access

import "palmtell/internal/domain"

// Tier is the derived entitlement level. It is recomputed from the
// subscription row on every request and never persisted.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierPro      Tier = "pro"
	TierUltimate Tier = "ultimate"
	TierExpired  Tier = "expired"
)

// Unlimited is the sentinel returned by limit lookups for tiers without a
// cap. It is never meaningful in arithmetic; callers must check for it
// before comparing counts.
const Unlimited = -1

// Section keys of a completed analysis payload.
const (
	SectionPersonality   = "personality"
	SectionLifePath      = "life_path"
	SectionCareer        = "career"
	SectionRelationships = "relationships"
	SectionHealth        = "health"
	SectionLucky         = "lucky"
)

// tierRank orders tiers for the visibility matrix. Expired ranks below every
// paying tier.
var tierRank = map[Tier]int{
	TierExpired:  0,
	TierBasic:    1,
	TierPro:      2,
	TierUltimate: 3,
}

// sectionMinTier is the single source of truth for section visibility. Every
// known section key has an entry; an unknown key is simply not visible.
var sectionMinTier = map[string]Tier{
	SectionPersonality:   TierBasic,
	SectionLifePath:      TierBasic,
	SectionCareer:        TierBasic,
	SectionRelationships: TierPro,
	SectionHealth:        TierPro,
	SectionLucky:         TierUltimate,
}

// ForSubscription maps a subscription row to a tier. A missing subscription,
// any non-active status, or an unrecognized plan all resolve to expired.
func ForSubscription(sub *domain.Subscription) Tier {
	if sub == nil || sub.Status != domain.SubscriptionActive {
		return TierExpired
	}
	switch sub.Plan {
	case domain.PlanBasic:
		return TierBasic
	case domain.PlanPro:
		return TierPro
	case domain.PlanUltimate:
		return TierUltimate
	}
	return TierExpired
}

// ReadingLimit returns the readings allowed per calendar month, or Unlimited.
func ReadingLimit(tier Tier) int {
	switch tier {
	case TierBasic:
		return 1
	case TierPro:
		return 5
	case TierUltimate:
		return Unlimited
	}
	return 0
}

// ProfileLimit returns how many reading profiles the tier may hold.
func ProfileLimit(tier Tier) int {
	switch tier {
	case TierBasic:
		return 1
	case TierPro:
		return 3
	case TierUltimate:
		return Unlimited
	}
	return 0
}

// SectionVisible reports whether the analysis section is included for the
// tier. Unknown section keys are hidden.
func SectionVisible(section string, tier Tier) bool {
	min, ok := sectionMinTier[section]
	if !ok {
		return false
	}
	return tierRank[tier] >= tierRank[min]
}

// VisibleSections returns the section keys available at the tier, in the
// canonical payload order.
func VisibleSections(tier Tier) []string {
	all := []string{
		SectionPersonality,
		SectionLifePath,
		SectionCareer,
		SectionRelationships,
		SectionHealth,
		SectionLucky,
	}
	visible := make([]string, 0, len(all))
	for _, section := range all {
		if SectionVisible(section, tier) {
			visible = append(visible, section)
		}
	}
	return visible
}

// CanAccessDailyHoroscope gates the daily horoscope feature.
func CanAccessDailyHoroscope(tier Tier) bool {
	return tier == TierPro || tier == TierUltimate
}

// CanAccessMonthlyHoroscope gates the monthly horoscope feature.
func CanAccessMonthlyHoroscope(tier Tier) bool {
	return tier == TierUltimate
}

// CanExport gates bulk export of completed readings.
func CanExport(tier Tier) bool {
	return tier == TierUltimate
}
