package app

import (
	"errors"
	"testing"

	"github.com/samuelogboye/cv-forge-api/app/config"
	"github.com/samuelogboye/cv-forge-api/app/models"
)

func testStripeConfig() config.StripeConfig {
	return config.StripeConfig{
		PriceIDProMonthly:        "price_pro_123",
		PriceIDEnterpriseMonthly: "price_ent_456",
	}
}

func mustInitTestPlans(t *testing.T) {
	t.Helper()
	if err := initPlans(testStripeConfig()); err != nil {
		t.Fatalf("initPlans failed: %v", err)
	}
}

func TestInitPlansRejectsDuplicatePriceID(t *testing.T) {
	err := initPlans(config.StripeConfig{
		PriceIDProMonthly:        "price_same",
		PriceIDEnterpriseMonthly: "price_same",
	})
	if err == nil {
		t.Fatalf("expected error for duplicate price id")
	}
	mustInitTestPlans(t)
}

func TestPlanByID(t *testing.T) {
	mustInitTestPlans(t)

	plan, err := PlanByID(models.PlanPro)
	if err != nil {
		t.Fatalf("PlanByID(pro) failed: %v", err)
	}
	if plan.Limits.MaxDocuments != models.Unlimited {
		t.Fatalf("pro MaxDocuments = %d, want unlimited", plan.Limits.MaxDocuments)
	}

	free, err := PlanByID(models.PlanFree)
	if err != nil {
		t.Fatalf("PlanByID(free) failed: %v", err)
	}
	if free.Limits.MaxDocuments != 3 || free.Limits.MonthlyOptimizations != 3 {
		t.Fatalf("free limits = %+v, want 3/3", free.Limits)
	}

	if _, err := PlanByID("platinum"); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("PlanByID(platinum) err = %v, want ErrUnknownPlan", err)
	}
}

func TestPlanByStripePriceID(t *testing.T) {
	mustInitTestPlans(t)

	plan, err := PlanByStripePriceID("price_pro_123")
	if err != nil {
		t.Fatalf("PlanByStripePriceID failed: %v", err)
	}
	if plan.ID != models.PlanPro {
		t.Fatalf("plan = %q, want pro", plan.ID)
	}

	plan, err = PlanByStripePriceID("price_ent_456")
	if err != nil {
		t.Fatalf("PlanByStripePriceID failed: %v", err)
	}
	if plan.ID != models.PlanEnterprise {
		t.Fatalf("plan = %q, want enterprise", plan.ID)
	}
}

// A price id the catalog does not know must fail loudly, never resolve to
// the free plan.
func TestPlanByStripePriceIDUnmapped(t *testing.T) {
	mustInitTestPlans(t)

	if _, err := PlanByStripePriceID("price_unknown"); !errors.Is(err, ErrUnmappedPrice) {
		t.Fatalf("unknown price err = %v, want ErrUnmappedPrice", err)
	}
	if _, err := PlanByStripePriceID(""); !errors.Is(err, ErrUnmappedPrice) {
		t.Fatalf("empty price err = %v, want ErrUnmappedPrice", err)
	}
}

func TestPlansOrder(t *testing.T) {
	mustInitTestPlans(t)

	plans := Plans()
	if len(plans) != 3 {
		t.Fatalf("len(Plans()) = %d, want 3", len(plans))
	}
	want := []models.PlanID{models.PlanFree, models.PlanPro, models.PlanEnterprise}
	for i, id := range want {
		if plans[i].ID != id {
			t.Fatalf("plans[%d].ID = %q, want %q", i, plans[i].ID, id)
		}
	}
}
