package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"thinkshare/internal/auth"
)

// UserIDKey is the gin context key holding the authenticated account id.
const UserIDKey = "userID"

var (
	errNoCredentials = errors.New("missing authorization")
	errBadScheme     = errors.New("invalid authorization header")
)

// AuthMiddleware resolves the caller's account from an HMAC-signed token.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := credentials(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		accountID, err := auth.Parse(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(UserIDKey, accountID)
		c.Next()
	}
}

// credentials prefers the Authorization header. Websocket upgrades from a
// browser cannot carry headers, hence the ?token= fallback.
func credentials(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errBadScheme
	}
	return token, nil
}
