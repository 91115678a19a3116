// Usage ledger: append-only record of billable AI operations per user.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/samuelogboye/cv-forge-api/app/models"
)

// RecordUsage appends one ledger row. Callers invoke it only after the
// entitlement guard approved the operation, so a denied request is never
// charged. Appends are single atomic inserts; concurrent writers for the
// same user cannot lose rows.
func RecordUsage(ctx context.Context, userID string, op models.OperationType, m models.UsageMetrics) error {
	if db == nil {
		return ErrStoreUnavailable
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO ai_usage (user_id, operation_type, input_tokens, output_tokens, cost, created_at)
		VALUES ($1, $2, $3, $4, $5, now());
	`, userID, op, m.InputTokens, m.OutputTokens, m.Cost)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// CountSince counts ledger rows of one operation type at or after a cutoff.
func CountSince(ctx context.Context, userID string, op models.OperationType, since time.Time) (int, error) {
	if db == nil {
		return 0, ErrStoreUnavailable
	}
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM ai_usage
		WHERE user_id = $1
		  AND operation_type = $2
		  AND created_at >= $3;
	`, userID, op, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

// CountForCalendarMonth counts usage since the first instant of the current
// calendar month in server time. The boundary is recomputed on every call so
// a request made right after the month rolls over sees a fresh count.
func CountForCalendarMonth(ctx context.Context, userID string, op models.OperationType) (int, error) {
	return CountSince(ctx, userID, op, monthStart(time.Now()))
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// UsageSummary is the month-window view returned to the authed user.
type UsageSummary struct {
	Used        int       `json:"used"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	PeriodStart time.Time `json:"periodStart"`
}

// MonthlyUsageSummary reports AI optimization consumption against the user's
// current plan limit. Remaining is -1 on unlimited plans.
func MonthlyUsageSummary(ctx context.Context, userID string) (UsageSummary, error) {
	plan, err := effectivePlan(ctx, userID)
	if err != nil {
		return UsageSummary{}, err
	}

	start := monthStart(time.Now())
	used, err := CountSince(ctx, userID, models.OpOptimize, start)
	if err != nil {
		return UsageSummary{}, err
	}

	limit := plan.Limits.MonthlyOptimizations
	remaining := models.Unlimited
	if limit != models.Unlimited {
		remaining = limit - used
		if remaining < 0 {
			remaining = 0
		}
	}

	return UsageSummary{
		Used:        used,
		Limit:       limit,
		Remaining:   remaining,
		PeriodStart: start,
	}, nil
}
