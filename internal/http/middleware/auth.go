// Authenticate resolves the caller's session into a domain.Identity. The
// session token is taken from "Authorization: Bearer <jwt>" first, then from
// the session cookie. A missing or invalid token leaves the request
// anonymous; handlers decide whether anonymity is acceptable.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callback-handler/internal/auth"
	"github.com/tbourn/go-callback-handler/internal/domain"
)

const (
	identityKey = "identity"
	userIDKey   = "userID"
)

// Authenticate parses the session token with v and stores the identity
// under "identity" and its key under "userID". A nil or disabled verifier
// makes it a no-op.
func Authenticate(v *auth.Verifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Enabled() {
			c.Next()
			return
		}
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" && cookieName != "" {
			tok, _ = c.Cookie(cookieName)
		}
		if tok == "" {
			c.Next()
			return
		}
		id, err := v.Parse(tok)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("session token rejected")
			c.Next()
			return
		}
		c.Set(identityKey, id)
		c.Set(userIDKey, id.Key())
		c.Next()
	}
}

// IdentityFrom returns the identity set by Authenticate, or nil.
func IdentityFrom(c *gin.Context) *domain.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(*domain.Identity); ok {
			return id
		}
	}
	return nil
}

// bearerToken extracts the token of an "Authorization: Bearer" value.
func bearerToken(h string) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// BearerToken is the exported form of bearerToken for handlers that gate
// on a shared secret.
func BearerToken(c *gin.Context) string {
	return bearerToken(c.GetHeader("Authorization"))
}
