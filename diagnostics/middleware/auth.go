package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Credentials configures Authentication's accepted Basic and Bearer
// credentials. Unlike the teacher's package-level internal/env globals,
// these are passed in explicitly so the diagnostics server doesn't need a
// process-wide config singleton.
type Credentials struct {
	AdminUser, AdminPass string
	BearerToken          string
}

// Authentication allows access if either valid Basic credentials, a valid
// session, or a valid Bearer token is present; responds 401 otherwise.
func Authentication(creds Credentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isBasicAuthenticated(c, creds) || isSessionAuthenticated(c) || isBearerTokenValid(c, creds) {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func isBasicAuthenticated(c *gin.Context, creds Credentials) bool {
	user, pass, hasAuth := c.Request.BasicAuth()
	if hasAuth && creds.AdminUser != "" &&
		subtle.ConstantTimeCompare([]byte(user), []byte(creds.AdminUser)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(creds.AdminPass)) == 1 {
		SetPrincipal(c, &Principal{Kind: Basic, ID: user})
		return true
	}
	return false
}

// isSessionAuthenticated returns true if the session is valid, touching
// its "last_touch" timestamp if it's older than sessionTTL.
func isSessionAuthenticated(c *gin.Context) bool {
	session := sessions.Default(c)
	userID, _ := session.Get("uid").(string)
	if userID == "" {
		return false
	}

	const sessionTTL = 15 * 60 // seconds
	now := time.Now().Unix()
	lastTouch, _ := session.Get("last_touch").(int64)
	if lastTouch == 0 || now-lastTouch > sessionTTL {
		session.Set("last_touch", now)
		_ = session.Save()
	}

	SetPrincipal(c, &Principal{Kind: Session, ID: userID})
	return true
}

func isBearerTokenValid(c *gin.Context, creds Credentials) bool {
	if creds.BearerToken == "" {
		return false
	}
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(creds.BearerToken)) == 1 {
		SetPrincipal(c, &Principal{Kind: Token, ID: redactToken(token)})
		return true
	}
	return false
}

// redactToken keeps logs safe while still traceable.
func redactToken(tok string) string {
	if len(tok) <= 8 {
		return "****"
	}
	return tok[:4] + "..." + tok[len(tok)-4:]
}
