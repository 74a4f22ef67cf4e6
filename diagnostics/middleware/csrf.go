package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// ValidateSessionCSRF checks CSRF tokens for session-authenticated
// mutating requests. Skipped for non-session credentials (Basic, Bearer)
// and for non-mutating methods.
func ValidateSessionCSRF(c *gin.Context) {
	if p := GetPrincipal(c); p != nil && p.Kind != Session {
		c.Next()
		return
	}

	switch c.Request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		c.Next()
		return
	}

	want, _ := sessions.Default(c).Get("csrf").(string)
	got := c.GetHeader("X-CSRF-Token")

	if want == "" || got == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid csrf token"})
		return
	}

	c.Next()
}
