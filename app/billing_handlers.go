package app

import (
	"log"
	"net/http"
	"time"

	"github.com/samuelogboye/cv-forge-api/app/models"
	"github.com/samuelogboye/cv-forge-api/auth"

	"github.com/gin-gonic/gin"
)

// GetPlans lists the public catalog. Stripe price ids stay server-side.
func GetPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": Plans()})
}

// GetSubscription returns the authenticated user's subscription, or the
// implicit free-plan shape when no row exists.
func GetSubscription(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	sub, err := CurrentSubscription(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("subscription lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}

	resp := gin.H{
		"planId":            sub.PlanID,
		"status":            sub.Status,
		"cancelAtPeriodEnd": sub.CancelAtPeriodEnd,
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		resp["currentPeriodEnd"] = sub.CurrentPeriodEnd.Format(time.RFC3339)
	}
	if sub.StripeSubscriptionID != "" {
		resp["stripeSubscriptionId"] = sub.StripeSubscriptionID
	}
	c.JSON(http.StatusOK, resp)
}

// GetUsage reports the month-window AI usage for the authenticated user.
func GetUsage(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	summary, err := MonthlyUsageSummary(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("usage summary failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetPlanInfoHandler returns the aggregate plan + consumption snapshot.
func GetPlanInfoHandler(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	info, err := GetPlanInfo(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("plan info failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load plan info"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// RequireDocumentCapacity gates document-creation routes on the plan's
// document limit. Denials are 403s the user can only clear by upgrading.
func RequireDocumentCapacity() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.ClaimsFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}
		if err := CheckDocumentLimit(c.Request.Context(), claims.Subject); err != nil {
			abortOnLimit(c, err)
			return
		}
		c.Next()
	}
}

// RequireQuota gates metered AI routes on the monthly quota for op.
func RequireQuota(op models.OperationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.ClaimsFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}
		if err := CheckQuota(c.Request.Context(), claims.Subject, op); err != nil {
			abortOnLimit(c, err)
			return
		}
		c.Next()
	}
}

func abortOnLimit(c *gin.Context, err error) {
	if isLimitError(err) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": err.Error(),
			"code":  "LIMIT_REACHED",
		})
		return
	}
	log.Printf("entitlement check failed path=%s err=%v", c.Request.URL.Path, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "entitlement check failed"})
}
