package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// PermissionChecker answers whether any of roles grants action on module.
type PermissionChecker interface {
	Allows(roles []string, module, action string) bool
}

// RequirePermission rejects requests whose claims do not grant (module, action).
// Must run after AuthMiddleware.
func RequirePermission(checker PermissionChecker, module string, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if !checker.Allows(claims.Roles, module, action) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied: Insufficient permissions for this action",
			})
		}

		return c.Next()
	}
}
