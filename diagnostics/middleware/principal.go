package middleware

import "github.com/gin-gonic/gin"

// CredentialKind identifies which authentication method validated a
// request, adapted from the teacher's internal/domain/auth package.
type CredentialKind int

const (
	Basic CredentialKind = iota
	Session
	Token
)

// Principal is the authenticated identity attached to a request context.
type Principal struct {
	Kind CredentialKind
	ID   string
}

const principalKey = "diag_principal"

// SetPrincipal stores p on the request context.
func SetPrincipal(c *gin.Context, p *Principal) { c.Set(principalKey, p) }

// GetPrincipal retrieves the Principal set by Authentication, or nil if the
// request was never authenticated (should not happen once Authentication
// has run, since it aborts unauthenticated requests).
func GetPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
