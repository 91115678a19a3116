// Subscription store: one row per user, written only by the reconciler and
// the cancel/reactivate handlers. Reads treat a missing row as an implicit
// free-plan, active, non-cancelling subscription.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/samuelogboye/cv-forge-api/app/models"
)

var ErrNoActiveSubscription = errors.New("no active subscription")

// CurrentSubscription returns the user's subscription, defaulting to the
// implicit free plan when no row exists.
func CurrentSubscription(ctx context.Context, userID string) (models.Subscription, error) {
	sub, found, err := getSubscriptionRow(ctx, userID)
	if err != nil {
		return models.Subscription{}, err
	}
	if !found {
		return models.Subscription{
			UserID: userID,
			PlanID: models.PlanFree,
			Status: models.SubscriptionActive,
		}, nil
	}
	return sub, nil
}

func getSubscriptionRow(ctx context.Context, userID string) (models.Subscription, bool, error) {
	if db == nil {
		return models.Subscription{}, false, ErrStoreUnavailable
	}

	var (
		sub       models.Subscription
		custID    sql.NullString
		subID     sql.NullString
		periodEnd sql.NullTime
	)
	err := db.QueryRowContext(ctx, `
		SELECT plan_id, stripe_customer_id, stripe_subscription_id,
		       status, current_period_end, cancel_at_period_end, event_created
		FROM subscriptions
		WHERE user_id = $1;
	`, userID).Scan(
		&sub.PlanID,
		&custID,
		&subID,
		&sub.Status,
		&periodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.EventCreated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, false, nil
	}
	if err != nil {
		return models.Subscription{}, false, fmt.Errorf("load subscription: %w", err)
	}

	sub.UserID = userID
	sub.StripeCustomerID = custID.String
	sub.StripeSubscriptionID = subID.String
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = periodEnd.Time
	}
	return sub, true, nil
}

// upsertSubscription applies a reconciled subscription state keyed on the
// unique user_id constraint, so concurrent deliveries for the same user
// serialize in the store rather than through in-process locks. The
// event_created watermark guard drops stale out-of-order deliveries;
// replaying the same event is a no-op in effect.
func upsertSubscription(ctx context.Context, sub models.Subscription) error {
	if db == nil {
		return ErrStoreUnavailable
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			user_id, plan_id, stripe_customer_id, stripe_subscription_id,
			status, current_period_end, cancel_at_period_end, event_created, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id                = EXCLUDED.plan_id,
			stripe_customer_id     = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			status                 = EXCLUDED.status,
			current_period_end     = EXCLUDED.current_period_end,
			cancel_at_period_end   = EXCLUDED.cancel_at_period_end,
			event_created          = EXCLUDED.event_created,
			updated_at             = now()
		WHERE subscriptions.event_created <= EXCLUDED.event_created;
	`,
		sub.UserID,
		sub.PlanID,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		sub.Status,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.EventCreated,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		log.Printf("subscription upsert skipped stale event user=%s event_created=%d", sub.UserID, sub.EventCreated)
	}
	return nil
}

// markSubscriptionCanceled is the terminal transition: status becomes
// canceled and the cancel-at-period-end flag clears. The plan id is kept for
// audit; entitlement checks already treat canceled as free-tier.
func markSubscriptionCanceled(ctx context.Context, userID string, eventCreated int64) error {
	if db == nil {
		return ErrStoreUnavailable
	}

	res, err := db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, cancel_at_period_end = false, event_created = $2, updated_at = now()
		WHERE user_id = $3
		  AND event_created <= $2;
	`, models.SubscriptionCanceled, eventCreated, userID)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		log.Printf("subscription cancel had no effect user=%s event_created=%d", userID, eventCreated)
	}
	return nil
}

// setCancelAtPeriodEnd flips the orthogonal cancel flag after the provider
// accepted the matching subscription update.
func setCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error {
	if db == nil {
		return ErrStoreUnavailable
	}
	_, err := db.ExecContext(ctx, `
		UPDATE subscriptions
		SET cancel_at_period_end = $1, updated_at = now()
		WHERE user_id = $2;
	`, cancel, userID)
	if err != nil {
		return fmt.Errorf("update cancel flag: %w", err)
	}
	return nil
}

// DeleteSubscriptionForAccount is called by the account-deletion flow. It
// cancels at the provider first so Stripe stops billing, then removes the
// local row. This is the only path that hard-deletes a subscription.
func DeleteSubscriptionForAccount(ctx context.Context, userID string) error {
	sub, found, err := getSubscriptionRow(ctx, userID)
	if err != nil {
		return err
	}
	if found && sub.StripeSubscriptionID != "" && sub.Status != models.SubscriptionCanceled {
		if err := cancelStripeSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			return fmt.Errorf("cancel at provider: %w", err)
		}
	}
	if !found {
		return nil
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = $1;`, userID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
