package app

import (
	"log"
	"net/http"

	"github.com/samuelogboye/cv-forge-api/auth"

	"github.com/gin-gonic/gin"
)

// Health reports process liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me returns the authenticated user's identity plus their effective plan
// and consumption, the payload the frontend renders on the account page.
func Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	info, err := GetPlanInfo(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("me lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sub":  claims.Subject,
		"plan": info,
	})
}
