// Package billing reconciles Lemon Squeezy webhook events into local
// subscription state and creates checkout sessions.
package billing

import (
	"fmt"

	"palmtell/internal/domain"
)

// VariantMap maps the store's price variant IDs to plans. It must be total:
// every configured variant resolves to a plan, checked at startup.
type VariantMap struct {
	BasicOneTime    string
	ProMonthly      string
	ProAnnual       string
	UltimateMonthly string
	UltimateAnnual  string

	byVariant map[string]domain.Plan
}

// NewVariantMap builds and validates the variant map. An empty variant ID for
// any plan is a configuration error.
func NewVariantMap(basicOneTime, proMonthly, proAnnual, ultimateMonthly, ultimateAnnual string) (*VariantMap, error) {
	m := &VariantMap{
		BasicOneTime:    basicOneTime,
		ProMonthly:      proMonthly,
		ProAnnual:       proAnnual,
		UltimateMonthly: ultimateMonthly,
		UltimateAnnual:  ultimateAnnual,
	}
	for name, id := range map[string]string{
		"basic one-time":   basicOneTime,
		"pro monthly":      proMonthly,
		"pro annual":       proAnnual,
		"ultimate monthly": ultimateMonthly,
		"ultimate annual":  ultimateAnnual,
	} {
		if id == "" {
			return nil, fmt.Errorf("billing: variant id for %s is empty", name)
		}
	}

	m.byVariant = map[string]domain.Plan{
		basicOneTime:    domain.PlanBasic,
		proMonthly:      domain.PlanPro,
		proAnnual:       domain.PlanPro,
		ultimateMonthly: domain.PlanUltimate,
		ultimateAnnual:  domain.PlanUltimate,
	}
	return m, nil
}

// PlanForVariant returns the plan a variant ID sells, if it is one of ours.
func (m *VariantMap) PlanForVariant(variantID string) (domain.Plan, bool) {
	plan, ok := m.byVariant[variantID]
	return plan, ok
}

// VariantFor resolves a plan and billing interval to a variant ID.
// interval is "month" or "year"; basic ignores the interval as a one-time
// purchase.
func (m *VariantMap) VariantFor(plan domain.Plan, interval string) (string, error) {
	switch plan {
	case domain.PlanBasic:
		return m.BasicOneTime, nil
	case domain.PlanPro:
		if interval == "year" {
			return m.ProAnnual, nil
		}
		return m.ProMonthly, nil
	case domain.PlanUltimate:
		if interval == "year" {
			return m.UltimateAnnual, nil
		}
		return m.UltimateMonthly, nil
	default:
		return "", fmt.Errorf("billing: no variant for plan %q", plan)
	}
}
