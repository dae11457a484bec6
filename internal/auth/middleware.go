package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const identityContextKey = "auth_identity"

// Optional attaches the caller's identity when the bearer token verifies and
// lets the request through anonymously otherwise.
func (v *Verifier) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" || v == nil {
			c.Next()
			return
		}
		ident, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Debug().Err(err).Msg("continuing without identity")
			c.Next()
			return
		}
		c.Set(identityContextKey, ident)
		c.Next()
	}
}

// Required rejects requests without a verified identity.
func (v *Verifier) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFromContext(c); ok {
			c.Next()
			return
		}
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" || v == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		ident, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Debug().Err(err).Msg("rejecting unverified token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		c.Set(identityContextKey, ident)
		c.Next()
	}
}

// IdentityFromContext retrieves the identity stored by the middleware.
func IdentityFromContext(c *gin.Context) (*Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return nil, false
	}
	ident, ok := val.(*Identity)
	return ident, ok && ident != nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
