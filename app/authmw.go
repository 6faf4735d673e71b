package app

import (
	"net/http"

	"fibo_store/auth"

	"github.com/gin-gonic/gin"
)

// RefreshCookie carries the refresh session id; access tokens travel in the
// Authorization header.
const RefreshCookie = "refresh_session"

const principalKey = "principal"

// AuthRequired accepts a valid Bearer access token and stores its principal.
func AuthRequired(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := tokens.Parse(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"detail": "not authenticated"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// AdminOnly must run after AuthRequired.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"detail": "not authenticated"})
			return
		}
		if !p.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"detail": "admin role required"})
			return
		}
		c.Next()
	}
}

func CurrentPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}
