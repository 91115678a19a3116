// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"github.com/samuelogboye/cv-forge-api/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda
// execution. The webhook route stays outside the auth group: Stripe
// authenticates with its signature, not a bearer token, and the handler
// needs the raw body.
func NewRouter() (*gin.Engine, error) {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.GET("/api/billing/plans", GetPlans)
	router.POST("/api/stripe/webhook", StripeWebhook)

	verifier, err := auth.NewVerifierFromEnv()
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) error {
			return UpsertUserFromClaims(c.Request.Context(), claims)
		},
	}))
	protected.GET("/me", Me)
	protected.GET("/api/billing/subscription", GetSubscription)
	protected.GET("/api/billing/plan-info", GetPlanInfoHandler)
	protected.GET("/api/ai/usage", GetUsage)
	protected.POST("/api/billing/create-checkout-session",
		RateLimit("checkout", 10, time.Hour), CreateCheckoutSession)
	protected.POST("/api/billing/portal-session",
		RateLimit("portal", 10, time.Hour), CreatePortalSession)
	protected.POST("/api/billing/cancel", CancelSubscription)
	protected.POST("/api/billing/reactivate", ReactivateSubscription)

	return router, nil
}
