package plans

import (
	"fmt"

	"github.com/policyforge/policyforge-backend/pkg/enums"
)

// Unlimited is the sentinel limit meaning no cap is enforced.
const Unlimited = -1

// PricePoint holds displayed prices in whole currency units. A nil entry
// means "contact sales".
type PricePoint struct {
	Monthly *int
	Yearly  *int
}

// PriceKey addresses a checkout price id by currency and interval.
type PriceKey struct {
	Currency enums.Currency
	Interval enums.BillingInterval
}

// Plan is one immutable row of the plan catalog.
type Plan struct {
	ID               enums.PlanID
	Limits           map[enums.FeatureKey]int
	Capabilities     map[enums.CapabilityKey]any
	Price            map[enums.Currency]PricePoint
	TeamPerUserPrice map[enums.Currency]PricePoint
	TeamMinUsers     int
	CheckoutPriceIDs map[PriceKey]string
}

func price(monthly, yearly int) PricePoint {
	m, y := monthly, yearly
	return PricePoint{Monthly: &m, Yearly: &y}
}

// catalog is the closed plan table. Limits and capabilities live here as
// data so the fail-safe default and the closed-set invariant are auditable
// in one place; ValidateCatalog checks completeness at startup.
var catalog = map[enums.PlanID]Plan{
	enums.PlanFree: {
		ID: enums.PlanFree,
		Limits: map[enums.FeatureKey]int{
			enums.FeaturePolicies:   3,
			enums.FeatureExecutions: 100,
			enums.FeatureAPICalls:   1000,
			enums.FeatureExports:    5,
		},
		Capabilities: map[enums.CapabilityKey]any{
			enums.CapabilityAdvancedRules:    false,
			enums.CapabilityAuditLog:         false,
			enums.CapabilityPrioritySupport:  false,
			enums.CapabilitySSO:              false,
			enums.CapabilityDetectionQuality: "",
		},
		Price: map[enums.Currency]PricePoint{
			enums.CurrencyUSD: price(0, 0),
			enums.CurrencyEUR: price(0, 0),
			enums.CurrencyCNY: price(0, 0),
		},
	},
	enums.PlanTrial: {
		ID: enums.PlanTrial,
		Limits: map[enums.FeatureKey]int{
			enums.FeaturePolicies:   50,
			enums.FeatureExecutions: 5000,
			enums.FeatureAPICalls:   20000,
			enums.FeatureExports:    50,
		},
		Capabilities: map[enums.CapabilityKey]any{
			enums.CapabilityAdvancedRules:    true,
			enums.CapabilityAuditLog:         true,
			enums.CapabilityPrioritySupport:  false,
			enums.CapabilitySSO:              false,
			enums.CapabilityDetectionQuality: "enhanced",
		},
		Price: map[enums.Currency]PricePoint{
			enums.CurrencyUSD: price(0, 0),
			enums.CurrencyEUR: price(0, 0),
			enums.CurrencyCNY: price(0, 0),
		},
	},
	enums.PlanPro: {
		ID: enums.PlanPro,
		Limits: map[enums.FeatureKey]int{
			enums.FeaturePolicies:   50,
			enums.FeatureExecutions: 10000,
			enums.FeatureAPICalls:   100000,
			enums.FeatureExports:    100,
		},
		Capabilities: map[enums.CapabilityKey]any{
			enums.CapabilityAdvancedRules:    true,
			enums.CapabilityAuditLog:         true,
			enums.CapabilityPrioritySupport:  true,
			enums.CapabilitySSO:              false,
			enums.CapabilityDetectionQuality: "enhanced",
		},
		Price: map[enums.Currency]PricePoint{
			enums.CurrencyUSD: price(29, 290),
			enums.CurrencyEUR: price(27, 270),
			enums.CurrencyCNY: price(199, 1990),
		},
		CheckoutPriceIDs: map[PriceKey]string{
			{enums.CurrencyUSD, enums.BillingIntervalMonthly}: "price_pro_monthly_usd",
			{enums.CurrencyUSD, enums.BillingIntervalYearly}:  "price_pro_yearly_usd",
			{enums.CurrencyEUR, enums.BillingIntervalMonthly}: "price_pro_monthly_eur",
			{enums.CurrencyEUR, enums.BillingIntervalYearly}:  "price_pro_yearly_eur",
			{enums.CurrencyCNY, enums.BillingIntervalMonthly}: "price_pro_monthly_cny",
			{enums.CurrencyCNY, enums.BillingIntervalYearly}:  "price_pro_yearly_cny",
		},
	},
	enums.PlanTeam: {
		ID: enums.PlanTeam,
		Limits: map[enums.FeatureKey]int{
			enums.FeaturePolicies:   Unlimited,
			enums.FeatureExecutions: Unlimited,
			enums.FeatureAPICalls:   500000,
			enums.FeatureExports:    Unlimited,
		},
		Capabilities: map[enums.CapabilityKey]any{
			enums.CapabilityAdvancedRules:    true,
			enums.CapabilityAuditLog:         true,
			enums.CapabilityPrioritySupport:  true,
			enums.CapabilitySSO:              true,
			enums.CapabilityDetectionQuality: "max",
		},
		TeamPerUserPrice: map[enums.Currency]PricePoint{
			enums.CurrencyUSD: price(39, 390),
			enums.CurrencyEUR: price(35, 350),
			enums.CurrencyCNY: price(239, 2390),
		},
		TeamMinUsers: 3,
		CheckoutPriceIDs: map[PriceKey]string{
			{enums.CurrencyUSD, enums.BillingIntervalMonthly}: "price_team_monthly_usd",
			{enums.CurrencyUSD, enums.BillingIntervalYearly}:  "price_team_yearly_usd",
			{enums.CurrencyEUR, enums.BillingIntervalMonthly}: "price_team_monthly_eur",
			{enums.CurrencyEUR, enums.BillingIntervalYearly}:  "price_team_yearly_eur",
			{enums.CurrencyCNY, enums.BillingIntervalMonthly}: "price_team_monthly_cny",
			{enums.CurrencyCNY, enums.BillingIntervalYearly}:  "price_team_yearly_cny",
		},
	},
	enums.PlanEnterprise: {
		ID: enums.PlanEnterprise,
		Limits: map[enums.FeatureKey]int{
			enums.FeaturePolicies:   Unlimited,
			enums.FeatureExecutions: Unlimited,
			enums.FeatureAPICalls:   Unlimited,
			enums.FeatureExports:    Unlimited,
		},
		Capabilities: map[enums.CapabilityKey]any{
			enums.CapabilityAdvancedRules:    true,
			enums.CapabilityAuditLog:         true,
			enums.CapabilityPrioritySupport:  true,
			enums.CapabilitySSO:              true,
			enums.CapabilityDetectionQuality: "max",
		},
		// No price points: enterprise is contact-sales only and never
		// eligible for self-serve checkout.
	},
}

// CatalogPlan returns the catalog row for the plan, degrading unrecognized
// ids to the free plan.
func CatalogPlan(plan enums.PlanID) Plan {
	return catalog[plan.OrFree()]
}

// LimitOf returns the metered limit for the plan/feature pair. Unknown plan
// ids fall back to free; unknown feature keys are treated as fully capped.
func LimitOf(plan enums.PlanID, feature enums.FeatureKey) int {
	limits := CatalogPlan(plan).Limits
	if limit, ok := limits[feature]; ok {
		return limit
	}
	return 0
}

// IsUnlimited reports whether a limit value means "no cap".
func IsUnlimited(limit int) bool {
	return limit == Unlimited
}

// CapabilityOf returns the capability value (bool or string) for the plan,
// or nil when the capability is not declared.
func CapabilityOf(plan enums.PlanID, key enums.CapabilityKey) any {
	return CatalogPlan(plan).Capabilities[key]
}

// Capabilities returns a copy of the plan's capability map.
func Capabilities(plan enums.PlanID) map[enums.CapabilityKey]any {
	src := CatalogPlan(plan).Capabilities
	out := make(map[enums.CapabilityKey]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ValidateCatalog checks the static plan table for completeness. It runs at
// startup so a half-declared plan never reaches request handling.
func ValidateCatalog() error {
	for _, id := range enums.PlanIDs() {
		plan, ok := catalog[id]
		if !ok {
			return fmt.Errorf("plan %s missing from catalog", id)
		}
		for _, feature := range enums.FeatureKeys() {
			limit, ok := plan.Limits[feature]
			if !ok {
				return fmt.Errorf("plan %s missing limit for feature %s", id, feature)
			}
			if limit < Unlimited {
				return fmt.Errorf("plan %s has invalid limit %d for feature %s", id, limit, feature)
			}
		}
		for _, key := range enums.CapabilityKeys() {
			value, ok := plan.Capabilities[key]
			if !ok {
				return fmt.Errorf("plan %s missing capability %s", id, key)
			}
			switch value.(type) {
			case bool, string:
			default:
				return fmt.Errorf("plan %s capability %s has unsupported type %T", id, key, value)
			}
		}
		switch id {
		case enums.PlanFree, enums.PlanTrial:
			for currency, point := range plan.Price {
				if point.Monthly == nil || point.Yearly == nil || *point.Monthly != 0 || *point.Yearly != 0 {
					return fmt.Errorf("plan %s must be free in %s", id, currency)
				}
			}
			if len(plan.CheckoutPriceIDs) != 0 {
				return fmt.Errorf("plan %s must not declare checkout price ids", id)
			}
		case enums.PlanEnterprise:
			if len(plan.Price) != 0 || len(plan.CheckoutPriceIDs) != 0 {
				return fmt.Errorf("plan %s is contact-sales only", id)
			}
		case enums.PlanTeam:
			if plan.TeamMinUsers < 1 {
				return fmt.Errorf("plan %s requires a minimum seat count", id)
			}
			if len(plan.TeamPerUserPrice) == 0 {
				return fmt.Errorf("plan %s requires per-user prices", id)
			}
		}
	}
	return nil
}
