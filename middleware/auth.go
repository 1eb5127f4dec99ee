package middleware

import (
	"errors"
	"log"
	"strings"

	"we-planet-api/metrics"
	"we-planet-api/models"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

// identityKey is the c.Locals key holding the resolved services.Identity.
const identityKey = "identity"

// TokenResolver turns an access token into the active user it was issued to.
type TokenResolver interface {
	ResolveAccessToken(token string) (*models.User, error)
}

func reject(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"error":   code,
		"message": message,
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *fiber.Ctx) (string, bool) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth verifies the bearer access token, resolves it to an active user and
// attaches the caller's identity for handlers. Requests without a valid token never
// reach the handler.
func RequireAuth(resolver TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			log.Printf("🚫 [AUTH_GUARD] missing bearer token for %s %s", c.Method(), c.Path())
			metrics.RecordAuthEvent("guard", false)
			return reject(c, fiber.StatusUnauthorized, "unauthorized", "authorization header must be: Bearer <token>")
		}

		user, err := resolver.ResolveAccessToken(token)
		var appErr *services.AppError
		if errors.As(err, &appErr) && appErr.Kind == services.KindUpstream {
			log.Printf("❌ [AUTH_GUARD] could not resolve user for %s: %v", c.Path(), err)
			return reject(c, fiber.StatusBadGateway, appErr.Code, appErr.Message)
		}
		if err != nil {
			log.Printf("❌ [AUTH_GUARD] rejected token for %s (prefix: %.10s...): %v", c.Path(), token, err)
			metrics.RecordAuthEvent("guard", false)
			return reject(c, fiber.StatusUnauthorized, "invalid_token", "invalid or expired token")
		}

		c.Locals(identityKey, services.Identity{
			UserID:   user.ID,
			Username: user.Username,
			IsAdmin:  user.IsAdmin,
		})
		return c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := c.Locals(identityKey).(services.Identity)
		if !ok || !id.IsAdmin {
			log.Printf("🚫 [AUTH_GUARD] admin route %s denied for %q", c.Path(), id.Username)
			return reject(c, fiber.StatusForbidden, "forbidden", "admin privileges required")
		}
		return c.Next()
	}
}

// IdentityFrom returns the identity attached by RequireAuth. The zero Identity is
// returned on routes that are not guarded.
func IdentityFrom(c *fiber.Ctx) services.Identity {
	id, _ := c.Locals(identityKey).(services.Identity)
	return id
}
