package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parnass/internal/pkg/response"
)

// RequireTenantAdmin ensures the authenticated user administers the tenant
// named by the given path parameter. Superadmins pass for every tenant.
func RequireTenantAdmin(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		if !claims.CanAdminister(c.Param(param)) {
			response.Abort(c, http.StatusForbidden, "FORBIDDEN", "Access denied: not an administrator of this community")
			return
		}

		c.Next()
	}
}
