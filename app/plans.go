// Package app implements the billing core: plan catalog, usage ledger,
// entitlement checks and the Stripe subscription reconciler.
package app

import (
	"errors"
	"fmt"
	"log"

	"github.com/samuelogboye/cv-forge-api/app/config"
	"github.com/samuelogboye/cv-forge-api/app/models"
)

var (
	ErrUnknownPlan   = errors.New("unknown plan")
	ErrUnmappedPrice = errors.New("stripe price id not mapped to any plan")
)

// planSet is the in-process catalog. Populated once at startup by
// MustInitPlans (or initPlans in tests); read-only afterwards.
var planSet []models.Plan

// MustInitPlans builds the plan catalog from config and exits on an invalid
// price configuration.
func MustInitPlans() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for plans: %v", err)
	}
	if err := initPlans(cfg.Stripe); err != nil {
		log.Fatalf("invalid plan catalog: %v", err)
	}
}

func initPlans(sc config.StripeConfig) error {
	plans := []models.Plan{
		{
			ID:           models.PlanFree,
			Name:         "Free",
			MonthlyPrice: 0,
			Currency:     "usd",
			Features: []string{
				"Up to 3 resumes",
				"Basic templates",
				"PDF export",
				"Limited AI optimization (3 per month)",
			},
			Limits: models.PlanLimits{
				MaxDocuments:         3,
				MonthlyOptimizations: 3,
			},
		},
		{
			ID:            models.PlanPro,
			Name:          "Professional",
			MonthlyPrice:  9.99,
			Currency:      "usd",
			Interval:      "month",
			StripePriceID: sc.PriceIDProMonthly,
			Features: []string{
				"Unlimited resumes",
				"All premium templates",
				"PDF & DOCX export",
				"Unlimited AI optimization",
				"Priority support",
				"Resume import from LinkedIn",
			},
			Limits: models.PlanLimits{
				MaxDocuments:         models.Unlimited,
				MonthlyOptimizations: models.Unlimited,
			},
		},
		{
			ID:            models.PlanEnterprise,
			Name:          "Enterprise",
			MonthlyPrice:  29.99,
			Currency:      "usd",
			Interval:      "month",
			StripePriceID: sc.PriceIDEnterpriseMonthly,
			Features: []string{
				"Everything in Professional",
				"Team collaboration",
				"Custom branding",
				"API access",
				"Dedicated account manager",
				"Custom integrations",
			},
			Limits: models.PlanLimits{
				MaxDocuments:         models.Unlimited,
				MonthlyOptimizations: models.Unlimited,
			},
		},
	}

	// The priceId -> plan mapping must be injective, otherwise webhook
	// events would resolve to an arbitrary plan.
	seen := map[string]models.PlanID{}
	for _, p := range plans {
		if p.StripePriceID == "" {
			continue
		}
		if other, ok := seen[p.StripePriceID]; ok {
			return fmt.Errorf("price id %q mapped to both %q and %q", p.StripePriceID, other, p.ID)
		}
		seen[p.StripePriceID] = p.ID
	}

	planSet = plans
	return nil
}

// Plans returns the full catalog in display order.
func Plans() []models.Plan {
	return planSet
}

// PlanByID resolves a plan by its internal id.
func PlanByID(id models.PlanID) (models.Plan, error) {
	for _, p := range planSet {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
}

// PlanByStripePriceID resolves a plan by its Stripe price id. An id the
// catalog does not know fails with ErrUnmappedPrice; it never falls back to
// the free plan, since that would silently downgrade a paying customer when
// the catalog and the Stripe dashboard drift.
func PlanByStripePriceID(priceID string) (models.Plan, error) {
	if priceID == "" {
		return models.Plan{}, fmt.Errorf("%w: empty price id", ErrUnmappedPrice)
	}
	for _, p := range planSet {
		if p.StripePriceID != "" && p.StripePriceID == priceID {
			return p, nil
		}
	}
	return models.Plan{}, fmt.Errorf("%w: %q", ErrUnmappedPrice, priceID)
}
