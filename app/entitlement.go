// Entitlement guard: decides whether a user may create a document or spend
// monthly AI quota. The decision functions are pure; the Check* seams do the
// two reads (subscription row, ledger count) and nothing else.
package app

import (
	"context"
	"fmt"

	"github.com/samuelogboye/cv-forge-api/app/models"
)

// LimitError is the user-visible denial: not retryable without an upgrade.
type LimitError struct {
	Kind  string
	Limit int
	Used  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit reached (%d of %d used)", e.Kind, e.Used, e.Limit)
}

// CanCreateDocument reports whether a plan allows one more document on top
// of currentCount. A limit of 0 denies unconditionally; only the -1 sentinel
// means unlimited.
func CanCreateDocument(plan models.Plan, currentCount int) bool {
	if plan.Limits.MaxDocuments == models.Unlimited {
		return true
	}
	return currentCount < plan.Limits.MaxDocuments
}

// CanConsumeQuota reports whether a plan allows one more metered operation
// this month.
func CanConsumeQuota(plan models.Plan, usedThisMonth int, op models.OperationType) bool {
	limit := quotaLimit(plan, op)
	if limit == models.Unlimited {
		return true
	}
	return usedThisMonth < limit
}

// quotaLimit maps an operation type onto the plan limit that governs it.
// Every AI operation currently draws from the monthly optimization budget.
func quotaLimit(plan models.Plan, op models.OperationType) int {
	switch op {
	case models.OpOptimize, models.OpParseText, models.OpParseDocument:
		return plan.Limits.MonthlyOptimizations
	default:
		return 0
	}
}

// effectivePlan resolves the plan whose limits apply to the user right now.
// No subscription row, or a row in a non-entitled status (canceled, unpaid),
// means free-tier limits; the row's historical plan id is left alone.
func effectivePlan(ctx context.Context, userID string) (models.Plan, error) {
	sub, err := CurrentSubscription(ctx, userID)
	if err != nil {
		return models.Plan{}, err
	}
	planID := sub.PlanID
	if !sub.Entitled() {
		planID = models.PlanFree
	}
	return PlanByID(planID)
}

// CurrentPlan resolves the plan whose limits currently apply to the user.
// This is the read seam the rest of the application uses.
func CurrentPlan(ctx context.Context, userID string) (models.Plan, error) {
	return effectivePlan(ctx, userID)
}

// CheckDocumentLimit returns a *LimitError when the user cannot create
// another document on their current plan.
func CheckDocumentLimit(ctx context.Context, userID string) error {
	plan, err := effectivePlan(ctx, userID)
	if err != nil {
		return err
	}
	count, err := countDocuments(ctx, userID)
	if err != nil {
		return err
	}
	if !CanCreateDocument(plan, count) {
		return &LimitError{Kind: "document", Limit: plan.Limits.MaxDocuments, Used: count}
	}
	return nil
}

// CheckQuota returns a *LimitError when the user has exhausted this month's
// budget for op. The check is advisory: two concurrent requests can both see
// one remaining slot and each consume it, overshooting the limit by one.
// That bounded overshoot is accepted instead of a transactional reservation.
func CheckQuota(ctx context.Context, userID string, op models.OperationType) error {
	plan, err := effectivePlan(ctx, userID)
	if err != nil {
		return err
	}
	used, err := CountForCalendarMonth(ctx, userID, op)
	if err != nil {
		return err
	}
	if !CanConsumeQuota(plan, used, op) {
		return &LimitError{Kind: string(op), Limit: quotaLimit(plan, op), Used: used}
	}
	return nil
}

// PlanInfo is the aggregate plan + consumption snapshot for a user.
type PlanInfo struct {
	PlanID        models.PlanID        `json:"planId"`
	Limits        models.PlanLimits    `json:"limits"`
	DocumentCount int                  `json:"documentCount"`
	AIUsageCount  int                  `json:"aiUsageCount"`
	Subscription  *models.Subscription `json:"subscription,omitempty"`
}

// GetPlanInfo returns the user's effective plan and current consumption.
// Subscription is nil for users still on the implicit free plan.
func GetPlanInfo(ctx context.Context, userID string) (PlanInfo, error) {
	sub, found, err := getSubscriptionRow(ctx, userID)
	if err != nil {
		return PlanInfo{}, err
	}

	planID := models.PlanFree
	if found && sub.Entitled() {
		planID = sub.PlanID
	}
	plan, err := PlanByID(planID)
	if err != nil {
		return PlanInfo{}, err
	}

	docs, err := countDocuments(ctx, userID)
	if err != nil {
		return PlanInfo{}, err
	}

	used, err := CountForCalendarMonth(ctx, userID, models.OpOptimize)
	if err != nil {
		return PlanInfo{}, err
	}

	info := PlanInfo{
		PlanID:        plan.ID,
		Limits:        plan.Limits,
		DocumentCount: docs,
		AIUsageCount:  used,
	}
	if found {
		info.Subscription = &sub
	}
	return info, nil
}
