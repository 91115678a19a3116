package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/samuelogboye/cv-forge-api/app/config"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
)

// stripeCallTimeout bounds every outbound provider call. A timeout surfaces
// as a transient error to the caller, never as a silent free-tier fallback.
const stripeCallTimeout = 15 * time.Second

// boundedCallContext derives a provider-call context from the request.
func boundedCallContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), stripeCallTimeout)
}

// InitStripe wires the Stripe API key from the environment.
func InitStripe() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for stripe: %v", err)
	}
	stripe.Key = cfg.Stripe.SecretKey
}

// ensureStripeCustomer finds or creates a Stripe Customer for the given
// user. The id stored on the subscription row wins; otherwise the users
// table is consulted, and only then is a new customer created and persisted,
// so repeated checkouts reuse one customer identity.
func ensureStripeCustomer(ctx context.Context, userID string) (string, error) {
	if db == nil {
		return "", ErrStoreUnavailable
	}
	if userID == "" {
		return "", errors.New("missing user id")
	}

	sub, found, err := getSubscriptionRow(ctx, userID)
	if err != nil {
		return "", err
	}
	if found && sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	var stored sql.NullString
	err = db.QueryRowContext(ctx, `
		SELECT stripe_customer_id
		FROM users
		WHERE auth0_sub = $1;
	`, userID).Scan(&stored)
	if err != nil {
		return "", err
	}
	if stored.Valid && stored.String != "" {
		return stored.String, nil
	}

	email, name, err := getUserContact(ctx, userID)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, stripeCallTimeout)
	defer cancel()

	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			"userId": userID,
		},
	}
	params.Context = callCtx
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}

	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	_, err = db.ExecContext(ctx, `
		UPDATE users
		SET stripe_customer_id = $1
		WHERE auth0_sub = $2;
	`, cust.ID, userID)
	if err != nil {
		return "", err
	}

	return cust.ID, nil
}

// updateStripeCancelFlag asks Stripe to (un)schedule cancellation at the end
// of the current period.
func updateStripeCancelFlag(ctx context.Context, stripeSubID string, cancel bool) error {
	callCtx, done := context.WithTimeout(ctx, stripeCallTimeout)
	defer done()

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = callCtx
	_, err := subscription.Update(stripeSubID, params)
	return err
}

// cancelStripeSubscription cancels immediately. Only the account-erasure
// path uses it; user-initiated cancels keep access until period end.
func cancelStripeSubscription(ctx context.Context, stripeSubID string) error {
	callCtx, done := context.WithTimeout(ctx, stripeCallTimeout)
	defer done()

	params := &stripe.SubscriptionCancelParams{}
	params.Context = callCtx
	_, err := subscription.Cancel(stripeSubID, params)
	return err
}
