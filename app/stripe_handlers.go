package app

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/samuelogboye/cv-forge-api/app/config"
	"github.com/samuelogboye/cv-forge-api/app/models"
	"github.com/samuelogboye/cv-forge-api/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

type checkoutRequest struct {
	PlanID     models.PlanID `json:"planId" binding:"required"`
	SuccessURL string        `json:"successUrl"`
	CancelURL  string        `json:"cancelUrl"`
}

// CreateCheckoutSession starts a Stripe Checkout Session that upgrades the
// authenticated user to the requested plan.
func CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	plan, err := PlanByID(req.PlanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
		return
	}
	// The free tier has no price id and cannot be checked out.
	if plan.StripePriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan cannot be purchased"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe checkout config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Printf("missing Stripe config: frontend_url=false")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = frontendURL + "/billing/success"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = frontendURL + "/billing/cancel"
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("ensureStripeCustomer failed for user=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	metadata := map[string]string{
		"userId": claims.Subject,
		"planId": string(plan.ID),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(stripeCustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		Metadata:   metadata,
		// Subscription metadata is what the webhook reconciler reads to
		// locate the user; session metadata alone never reaches
		// subscription lifecycle events.
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	callCtx, cancel := boundedCallContext(c)
	defer cancel()
	params.Context = callCtx
	params.SetIdempotencyKey(uuid.NewString())

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed user=%s plan=%s: %v", claims.Subject, plan.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID, "url": sess.URL})
}

// CreatePortalSession creates a Stripe Customer Portal session for users who
// already have a Stripe customer; everyone else has nothing to manage there.
func CreatePortalSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	sub, found, err := getSubscriptionRow(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("portal lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}
	if !found || sub.StripeCustomerID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoActiveSubscription.Error()})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("portal config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Printf("missing Stripe config: frontend_url=false")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	returnURL := c.Query("returnUrl")
	if returnURL == "" {
		returnURL = frontendURL + "/settings/billing"
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(sub.StripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	}
	callCtx, cancel := boundedCallContext(c)
	defer cancel()
	params.Context = callCtx

	sess, err := portal.New(params)
	if err != nil {
		log.Printf("stripe portal session failed user=%s: %v", claims.Subject, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// StripeWebhook verifies and applies Stripe subscription events.
//
// Signature verification runs over the raw request body; re-serializing a
// parsed body would break the HMAC. A bad signature or shape gets a 400 so
// Stripe retries; a verified event whose processing fails is still
// acknowledged with a 200 (the failure is logged and queued for the
// reconciliation sweep) to avoid provider-side retry storms.
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe webhook config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	endpointSecret := cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		sigHeader,
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	ev, err := classifyEvent(event)
	if err != nil {
		log.Printf("stripe webhook payload malformed event=%s type=%s: %v", event.ID, event.Type, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}

	if err := ApplyEvent(c.Request.Context(), ev); err != nil {
		// Webhooks have no human observer: log with enough context for a
		// manual sweep, acknowledge anyway.
		subID := ""
		if ev.Subscription != nil {
			subID = ev.Subscription.ID
		}
		log.Printf("stripe event processing failed event=%s type=%s subscription=%s: %v",
			event.ID, event.Type, subID, err)
		enqueueReconcileEvent(c.Request.Context(), cfg, event)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// CancelSubscription schedules cancellation at period end; access continues
// until then.
func CancelSubscription(c *gin.Context) {
	toggleCancelFlag(c, true)
}

// ReactivateSubscription clears a pending cancellation before period end.
func ReactivateSubscription(c *gin.Context) {
	toggleCancelFlag(c, false)
}

func toggleCancelFlag(c *gin.Context, cancel bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	sub, found, err := getSubscriptionRow(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("cancel lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}
	if !found || sub.StripeSubscriptionID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoActiveSubscription.Error()})
		return
	}
	// The flag only makes sense on a live subscription.
	if cancel && sub.Status != models.SubscriptionActive {
		c.JSON(http.StatusConflict, gin.H{"error": "subscription is not active"})
		return
	}

	if err := updateStripeCancelFlag(c.Request.Context(), sub.StripeSubscriptionID, cancel); err != nil {
		log.Printf("stripe cancel flag update failed user=%s cancel=%t: %v", claims.Subject, cancel, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to update subscription"})
		return
	}

	if err := setCancelAtPeriodEnd(c.Request.Context(), claims.Subject, cancel); err != nil {
		// Stripe accepted the change; the webhook for the subscription
		// update will converge the row even if this write failed.
		log.Printf("local cancel flag update failed user=%s: %v", claims.Subject, err)
	}

	if cancel {
		c.JSON(http.StatusOK, gin.H{
			"message":          "subscription will be canceled at the end of the billing period",
			"currentPeriodEnd": sub.CurrentPeriodEnd,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "subscription reactivated"})
}

func isLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}
