package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/chargenet/csms/internal/ports"
)

// AuthRequired validates the bearer token and stores the claims in Locals
// under "claims", with "user_id" and "is_admin" extracted for convenience.
func AuthRequired(service ports.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid authorization header format"})
		}

		claims, err := service.ValidateAccessToken(c.Context(), parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals("claims", claims)
		c.Locals("user_id", claims.UserID)
		c.Locals("is_admin", claims.IsAdmin)
		return c.Next()
	}
}

// AuthOptional validates a bearer token when one is supplied but lets the
// request through either way. Used by endpoints open to anonymous callers
// that still want to attribute authenticated ones.
func AuthOptional(service ports.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Next()
		}
		if claims, err := service.ValidateAccessToken(c.Context(), parts[1]); err == nil {
			c.Locals("claims", claims)
			c.Locals("user_id", claims.UserID)
			c.Locals("is_admin", claims.IsAdmin)
		}
		return c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isAdmin, _ := c.Locals("is_admin").(bool)
		if !isAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin access required"})
		}
		return c.Next()
	}
}

// Claims returns the authenticated claims, or nil on unauthenticated routes.
func Claims(c *fiber.Ctx) *ports.AuthClaims {
	claims, _ := c.Locals("claims").(*ports.AuthClaims)
	return claims
}

// UserID returns the authenticated user id; zero when unauthenticated.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("user_id").(uint)
	return id
}
