package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/policyforge/policyforge-backend/internal/plans"
	"github.com/policyforge/policyforge-backend/pkg/enums"
)

// Price is a resolved monthly/yearly pair in whole currency units. A nil
// field means there is no self-serve price (contact sales).
type Price struct {
	Monthly *int `json:"monthly"`
	Yearly  *int `json:"yearly"`
}

// CurrencyForLocale maps a BCP-47-ish locale tag to a billing currency.
// Chinese locales bill in CNY, German locales in EUR, everything else in USD.
func CurrencyForLocale(locale string) enums.Currency {
	tag := strings.ToLower(strings.TrimSpace(locale))
	switch {
	case strings.HasPrefix(tag, "zh"):
		return enums.CurrencyCNY
	case strings.HasPrefix(tag, "de"):
		return enums.CurrencyEUR
	default:
		return enums.CurrencyUSD
	}
}

// PlanPrice resolves the displayed price for a plan in a currency. Free and
// trial are always zero. Enterprise has no published price. Team is quoted
// as the starting price: per-user rate times the minimum seat count. An
// unsupported currency falls back to USD.
func PlanPrice(plan enums.PlanID, currency enums.Currency) Price {
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}
	row := plans.CatalogPlan(plan)

	switch row.ID {
	case enums.PlanFree, enums.PlanTrial:
		m, y := 0, 0
		return Price{Monthly: &m, Yearly: &y}
	case enums.PlanEnterprise:
		return Price{}
	case enums.PlanTeam:
		point, ok := row.TeamPerUserPrice[currency]
		if !ok {
			return Price{}
		}
		return Price{
			Monthly: scale(point.Monthly, row.TeamMinUsers),
			Yearly:  scale(point.Yearly, row.TeamMinUsers),
		}
	default:
		point, ok := row.Price[currency]
		if !ok {
			return Price{}
		}
		return Price{Monthly: copied(point.Monthly), Yearly: copied(point.Yearly)}
	}
}

// CheckoutPriceID returns the payment-provider price id for a self-serve
// plan, or nil when the plan is not purchasable through checkout. An
// unsupported currency defaults to USD.
func CheckoutPriceID(plan enums.PlanID, interval enums.BillingInterval, currency enums.Currency) *string {
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}
	row := plans.CatalogPlan(plan)
	id, ok := row.CheckoutPriceIDs[plans.PriceKey{Currency: currency, Interval: interval}]
	if !ok {
		return nil
	}
	return &id
}

// FormatPrice renders a whole-unit amount with the currency's conventional
// symbol placement. USD and CNY prefix the symbol, EUR suffixes it.
func FormatPrice(amount int, currency enums.Currency) string {
	value := decimal.NewFromInt(int64(amount)).String()
	switch currency {
	case enums.CurrencyEUR:
		return value + " €"
	case enums.CurrencyCNY:
		return "¥" + value
	default:
		return "$" + value
	}
}

func scale(v *int, factor int) *int {
	if v == nil {
		return nil
	}
	scaled := *v * factor
	return &scaled
}

func copied(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
