package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parnass/internal/pkg/jwt"
	"parnass/internal/pkg/response"
)

const claimsKey = "claims"

// JWTAuth requires a valid bearer token and stores its claims on the context.
func JWTAuth(j *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header must be 'Bearer <token>'")
			return
		}

		claims, err := j.ValidateToken(token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth stores the claims of a valid bearer token and otherwise
// lets the request through anonymously.
func OptionalJWTAuth(j *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := j.ValidateToken(token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by JWTAuth or OptionalJWTAuth, or nil.
func ClaimsFrom(c *gin.Context) *jwt.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*jwt.Claims)
	return claims
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(claimsKey, claims)
	c.Set("user_id", claims.Subject)
	c.Set("role", claims.Role)
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// TokenFromQuery copies ?<param>= into the Authorization header when the
// header is absent. Browsers cannot set headers on websocket handshakes.
func TokenFromQuery(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if tok := strings.TrimSpace(c.Query(param)); tok != "" {
				c.Request.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		c.Next()
	}
}
