package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/samuelogboye/cv-forge-api/app/models"
)

func TestCurrentSubscriptionImplicitFree(t *testing.T) {
	mock := newMockDB(t)
	expectNoSubscriptionRow(mock, "auth0|new-user")

	sub, err := CurrentSubscription(context.Background(), "auth0|new-user")
	if err != nil {
		t.Fatalf("CurrentSubscription failed: %v", err)
	}
	if sub.PlanID != models.PlanFree {
		t.Fatalf("PlanID = %q, want free", sub.PlanID)
	}
	if sub.Status != models.SubscriptionActive {
		t.Fatalf("Status = %q, want active", sub.Status)
	}
	if sub.StripeSubscriptionID != "" {
		t.Fatalf("StripeSubscriptionID = %q, want empty", sub.StripeSubscriptionID)
	}
}

func TestCurrentSubscriptionExistingRow(t *testing.T) {
	mock := newMockDB(t)

	periodEnd := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"plan_id", "stripe_customer_id", "stripe_subscription_id",
		"status", "current_period_end", "cancel_at_period_end", "event_created",
	}).AddRow("pro", "cus_9", "sub_9", "active", periodEnd, true, int64(1700000000))
	mock.ExpectQuery("SELECT plan_id, stripe_customer_id").
		WithArgs("auth0|u9").
		WillReturnRows(rows)

	sub, err := CurrentSubscription(context.Background(), "auth0|u9")
	if err != nil {
		t.Fatalf("CurrentSubscription failed: %v", err)
	}
	if sub.PlanID != models.PlanPro || sub.Status != models.SubscriptionActive {
		t.Fatalf("sub = %+v, want active pro", sub)
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatalf("CancelAtPeriodEnd = false, want true")
	}
	if !sub.CurrentPeriodEnd.Equal(periodEnd) {
		t.Fatalf("CurrentPeriodEnd = %v, want %v", sub.CurrentPeriodEnd, periodEnd)
	}
	if sub.EventCreated != 1700000000 {
		t.Fatalf("EventCreated = %d, want 1700000000", sub.EventCreated)
	}
}

func TestUpsertSubscription(t *testing.T) {
	mock := newMockDB(t)

	sub := models.Subscription{
		UserID:               "auth0|u1",
		PlanID:               models.PlanPro,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionActive,
		CurrentPeriodEnd:     time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		CancelAtPeriodEnd:    false,
		EventCreated:         1700000000,
	}
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(
			sub.UserID, sub.PlanID, sub.StripeCustomerID, sub.StripeSubscriptionID,
			sub.Status, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.EventCreated,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := upsertSubscription(context.Background(), sub); err != nil {
		t.Fatalf("upsertSubscription failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A stale delivery matches zero rows via the watermark guard. That is not an
// error: the newer state already won.
func TestUpsertSubscriptionStaleEventIsNoop(t *testing.T) {
	mock := newMockDB(t)

	sub := models.Subscription{
		UserID:       "auth0|u1",
		PlanID:       models.PlanFree,
		Status:       models.SubscriptionCanceled,
		EventCreated: 100,
	}
	mock.ExpectExec("INSERT INTO subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := upsertSubscription(context.Background(), sub); err != nil {
		t.Fatalf("upsertSubscription = %v, want nil for stale event", err)
	}
}

func TestMarkSubscriptionCanceled(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(models.SubscriptionCanceled, int64(1700000100), "auth0|u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := markSubscriptionCanceled(context.Background(), "auth0|u1", 1700000100); err != nil {
		t.Fatalf("markSubscriptionCanceled failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetCancelAtPeriodEnd(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(true, "auth0|u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := setCancelAtPeriodEnd(context.Background(), "auth0|u1", true); err != nil {
		t.Fatalf("setCancelAtPeriodEnd failed: %v", err)
	}
}

func TestDeleteSubscriptionForAccountNoRow(t *testing.T) {
	mock := newMockDB(t)
	expectNoSubscriptionRow(mock, "auth0|gone")

	if err := DeleteSubscriptionForAccount(context.Background(), "auth0|gone"); err != nil {
		t.Fatalf("DeleteSubscriptionForAccount = %v, want nil", err)
	}
}

// A row that is already canceled needs no provider call, only the local
// delete.
func TestDeleteSubscriptionForAccountCanceledRow(t *testing.T) {
	mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{
		"plan_id", "stripe_customer_id", "stripe_subscription_id",
		"status", "current_period_end", "cancel_at_period_end", "event_created",
	}).AddRow("pro", "cus_1", "sub_1", "canceled", nil, false, int64(100))
	mock.ExpectQuery("SELECT plan_id, stripe_customer_id").
		WithArgs("auth0|u1").
		WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM subscriptions").
		WithArgs("auth0|u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := DeleteSubscriptionForAccount(context.Background(), "auth0|u1"); err != nil {
		t.Fatalf("DeleteSubscriptionForAccount failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
