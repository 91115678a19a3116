package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/samuelogboye/cv-forge-api/app/models"
)

func TestMonthStart(t *testing.T) {
	loc := time.FixedZone("test", -5*3600)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"mid month",
			time.Date(2025, time.March, 17, 14, 30, 12, 0, loc),
			time.Date(2025, time.March, 1, 0, 0, 0, 0, loc),
		},
		{
			"first instant of month",
			time.Date(2025, time.March, 1, 0, 0, 0, 0, loc),
			time.Date(2025, time.March, 1, 0, 0, 0, 0, loc),
		},
		{
			"last instant of month",
			time.Date(2025, time.February, 28, 23, 59, 59, 999_999_999, loc),
			time.Date(2025, time.February, 1, 0, 0, 0, 0, loc),
		},
		{
			"december",
			time.Date(2025, time.December, 31, 23, 0, 0, 0, loc),
			time.Date(2025, time.December, 1, 0, 0, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := monthStart(tt.in); !got.Equal(tt.want) {
				t.Fatalf("monthStart(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecordUsage(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO ai_usage").
		WithArgs("auth0|u1", models.OpOptimize, 1200, 800, 0.0042).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := RecordUsage(context.Background(), "auth0|u1", models.OpOptimize, models.UsageMetrics{
		InputTokens:  1200,
		OutputTokens: 800,
		Cost:         0.0042,
	})
	if err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountSince(t *testing.T) {
	mock := newMockDB(t)

	since := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM ai_usage`).
		WithArgs("auth0|u1", models.OpOptimize, since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := CountSince(context.Background(), "auth0|u1", models.OpOptimize, since)
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountSince = %d, want 2", n)
	}
}

func TestMonthlyUsageSummary(t *testing.T) {
	mustInitTestPlans(t)
	mock := newMockDB(t)

	expectNoSubscriptionRow(mock, "auth0|u1")
	expectUsageCount(mock, 2)

	summary, err := MonthlyUsageSummary(context.Background(), "auth0|u1")
	if err != nil {
		t.Fatalf("MonthlyUsageSummary failed: %v", err)
	}
	if summary.Used != 2 || summary.Limit != 3 || summary.Remaining != 1 {
		t.Fatalf("summary = %+v, want used=2 limit=3 remaining=1", summary)
	}
	if summary.PeriodStart.Day() != 1 {
		t.Fatalf("PeriodStart = %v, want first of month", summary.PeriodStart)
	}
}

func TestMonthlyUsageSummaryUnlimited(t *testing.T) {
	mustInitTestPlans(t)
	mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{
		"plan_id", "stripe_customer_id", "stripe_subscription_id",
		"status", "current_period_end", "cancel_at_period_end", "event_created",
	}).AddRow("pro", "cus_1", "sub_1", "active", nil, false, int64(100))
	mock.ExpectQuery("SELECT plan_id, stripe_customer_id").
		WithArgs("auth0|u2").
		WillReturnRows(rows)
	expectUsageCount(mock, 940)

	summary, err := MonthlyUsageSummary(context.Background(), "auth0|u2")
	if err != nil {
		t.Fatalf("MonthlyUsageSummary failed: %v", err)
	}
	if summary.Limit != models.Unlimited || summary.Remaining != models.Unlimited {
		t.Fatalf("summary = %+v, want unlimited limit and remaining", summary)
	}
	if summary.Used != 940 {
		t.Fatalf("Used = %d, want 940", summary.Used)
	}
}

// Remaining never goes negative even when the advisory check overshot.
func TestMonthlyUsageSummaryOvershoot(t *testing.T) {
	mustInitTestPlans(t)
	mock := newMockDB(t)

	expectNoSubscriptionRow(mock, "auth0|u3")
	expectUsageCount(mock, 5)

	summary, err := MonthlyUsageSummary(context.Background(), "auth0|u3")
	if err != nil {
		t.Fatalf("MonthlyUsageSummary failed: %v", err)
	}
	if summary.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", summary.Remaining)
	}
}
