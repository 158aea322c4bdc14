package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/edupanel/edupanel-api/internal/models"
	"github.com/edupanel/edupanel-api/internal/service"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
	"github.com/edupanel/edupanel-api/pkg/response"
)

// The guards below are independent, stackable predicates evaluated after Auth
// has attached the freshly loaded user. Each is a pure check, so stacking
// order does not matter.

// RequireRoles rejects authenticated users whose role is not in the set.
func RequireRoles(metrics *service.MetricsService, roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[user.Role]; !ok {
			metrics.RecordDenial("role")
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not allowed"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequirePermission rejects users lacking the named capability. Super users
// pass unconditionally.
func RequirePermission(metrics *service.MetricsService, perm models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !user.Can(perm) {
			metrics.RecordDenial("permission")
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing permission: "+string(perm)))
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireSuper rejects everyone but the super user.
func RequireSuper(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !user.Super {
			metrics.RecordDenial("super")
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "super user required"))
			c.Abort()
			return
		}

		c.Next()
	}
}
