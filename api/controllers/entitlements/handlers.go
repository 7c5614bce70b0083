package entitlements

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/policyforge/policyforge-backend/api/responses"
	"github.com/policyforge/policyforge-backend/api/validators"
	"github.com/policyforge/policyforge-backend/internal/freeze"
	"github.com/policyforge/policyforge-backend/internal/pricing"
	"github.com/policyforge/policyforge-backend/internal/usage"
	"github.com/policyforge/policyforge-backend/pkg/enums"
	pkgerrors "github.com/policyforge/policyforge-backend/pkg/errors"
	"github.com/policyforge/policyforge-backend/pkg/logger"
)

// UsageService is the slice of the usage meter the handlers consume.
type UsageService interface {
	CheckUsageLimit(ctx context.Context, tenantID uuid.UUID, feature enums.FeatureKey) (usage.CheckResult, error)
	RecordUsage(ctx context.Context, tenantID uuid.UUID, feature enums.FeatureKey, amount int64) error
	GetUsageStats(ctx context.Context, tenantID uuid.UUID) (usage.Stats, error)
	HasFeatureAccess(ctx context.Context, tenantID uuid.UUID, key enums.CapabilityKey) (bool, error)
}

// FreezeService is the slice of the freeze engine the handlers consume.
type FreezeService interface {
	GetFreezeStatus(ctx context.Context, ownerID uuid.UUID) (freeze.FreezeStatus, error)
	IsPolicyFrozen(ctx context.Context, ownerID, policyID uuid.UUID) (freeze.FrozenCheck, error)
	GetBatchFreezeStatus(ctx context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
}

// UsageStats returns the tenant's plan, trial runway, usage counters, and
// capability map.
func UsageStats(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, err := pathUUID(r, "tenantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		stats, err := svc.GetUsageStats(ctx, tenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// UsageCheck answers whether one more unit of a metered feature is allowed.
func UsageCheck(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, err := pathUUID(r, "tenantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		feature, err := pathFeature(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.CheckUsageLimit(ctx, tenantID, feature)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type recordUsageRequest struct {
	Amount int64 `json:"amount" validate:"min=0"`
}

// RecordUsage increments the tenant's counter for a metered feature. A zero
// or missing amount counts as one unit.
func RecordUsage(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, err := pathUUID(r, "tenantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		feature, err := pathFeature(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body recordUsageRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		if err := svc.RecordUsage(ctx, tenantID, feature, body.Amount); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "recorded"})
	}
}

type featureAccessResponse struct {
	Capability enums.CapabilityKey `json:"capability"`
	HasAccess  bool                `json:"hasAccess"`
}

// FeatureAccess reports whether the tenant's plan grants a capability.
func FeatureAccess(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, err := pathUUID(r, "tenantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key, parseErr := enums.ParseCapabilityKey(chi.URLParam(r, "capability"))
		if parseErr != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid capability"))
			return
		}
		access, err := svc.HasFeatureAccess(ctx, tenantID, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, featureAccessResponse{Capability: key, HasAccess: access})
	}
}

// FreezeStatus returns the full active/frozen partition for a tenant.
func FreezeStatus(svc FreezeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ownerID, err := pathUUID(r, "tenantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := svc.GetFreezeStatus(ctx, ownerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// PolicyFrozen reports whether one specific policy is frozen.
func PolicyFrozen(svc FreezeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ownerID, err := pathUUID(r, "tenantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		policyID, err := pathUUID(r, "policyId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		check, err := svc.IsPolicyFrozen(ctx, ownerID, policyID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, check)
	}
}

type batchFreezeRequest struct {
	OwnerIDs []uuid.UUID `json:"ownerIds" validate:"max=500"`
}

type batchFreezeResponse struct {
	Frozen map[string][]uuid.UUID `json:"frozen"`
}

// BatchFreezeStatus computes frozen policy ids for many tenants at once.
func BatchFreezeStatus(svc FreezeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body batchFreezeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.GetBatchFreezeStatus(ctx, body.OwnerIDs)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payload := batchFreezeResponse{Frozen: make(map[string][]uuid.UUID, len(result))}
		for ownerID, frozenIDs := range result {
			payload.Frozen[ownerID.String()] = frozenIDs
		}
		responses.WriteSuccess(w, payload)
	}
}

type planPriceResponse struct {
	Plan            enums.PlanID   `json:"plan"`
	Currency        enums.Currency `json:"currency"`
	Price           pricing.Price  `json:"price"`
	DisplayMonthly  *string        `json:"displayMonthly"`
	DisplayYearly   *string        `json:"displayYearly"`
	CheckoutMonthly *string        `json:"checkoutMonthly"`
	CheckoutYearly  *string        `json:"checkoutYearly"`
}

// PlanPrice resolves the displayed price and checkout ids for a plan. The
// currency comes from the "currency" query param, falling back to a locale
// mapping, falling back to USD.
func PlanPrice(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		plan, parseErr := enums.ParsePlanID(chi.URLParam(r, "plan"))
		if parseErr != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid plan"))
			return
		}

		currency := resolveCurrency(r)
		price := pricing.PlanPrice(plan, currency)
		payload := planPriceResponse{
			Plan:            plan,
			Currency:        currency,
			Price:           price,
			CheckoutMonthly: pricing.CheckoutPriceID(plan, enums.BillingIntervalMonthly, currency),
			CheckoutYearly:  pricing.CheckoutPriceID(plan, enums.BillingIntervalYearly, currency),
		}
		if price.Monthly != nil {
			display := pricing.FormatPrice(*price.Monthly, currency)
			payload.DisplayMonthly = &display
		}
		if price.Yearly != nil {
			display := pricing.FormatPrice(*price.Yearly, currency)
			payload.DisplayYearly = &display
		}
		responses.WriteSuccess(w, payload)
	}
}

func resolveCurrency(r *http.Request) enums.Currency {
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("currency")); raw != "" {
		if currency, err := enums.ParseCurrency(strings.ToUpper(raw)); err == nil {
			return currency
		}
	}
	return pricing.CurrencyForLocale(query.Get("locale"))
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}

func pathFeature(r *http.Request) (enums.FeatureKey, error) {
	feature, err := enums.ParseFeatureKey(chi.URLParam(r, "feature"))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid feature")
	}
	return feature, nil
}
