package handlers

import (
	"net/url"

	"we-planet-api/middleware"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutRequest struct {
	// RefreshToken is optional; without it every session of the caller is revoked.
	RefreshToken string `json:"refresh_token"`
}

func SetupAuthRoutes(api fiber.Router, guard, limit fiber.Handler, auth *services.AuthService, users *services.UserService) {
	g := api.Group("/auth")

	// 🔓 Public
	g.Post("/register", limit, func(c *fiber.Ctx) error {
		var in services.RegisterInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		pair, err := auth.Register(in)
		if err != nil {
			return err
		}
		return created(c, pair, "registration successful")
	})

	g.Post("/login", limit, func(c *fiber.Ctx) error {
		var in services.LoginInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		pair, err := auth.Login(in)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, pair, "login successful")
	})

	g.Post("/reactivate", limit, func(c *fiber.Ctx) error {
		var in services.LoginInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		pair, err := auth.Reactivate(in)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, pair, "account reactivated")
	})

	g.Post("/refresh", limit, func(c *fiber.Ctx) error {
		var in refreshRequest
		if err := parseBody(c, &in); err != nil {
			return err
		}
		token, err := auth.Refresh(in.RefreshToken)
		if err != nil {
			return err
		}
		return ok(c, token)
	})

	g.Get("/check-username/:username", func(c *fiber.Ctx) error {
		return availability(c, auth, "username", c.Params("username"))
	})
	g.Get("/check-email/:email", func(c *fiber.Ctx) error {
		return availability(c, auth, "email", c.Params("email"))
	})

	// 🔐 Secured
	g.Post("/logout", guard, func(c *fiber.Ctx) error {
		var in logoutRequest
		if len(c.Body()) > 0 {
			if err := parseBody(c, &in); err != nil {
				return err
			}
		}
		if err := auth.Logout(middleware.IdentityFrom(c), in.RefreshToken); err != nil {
			return err
		}
		return success(c, fiber.StatusOK, nil, "logged out")
	})

	g.Get("/me", guard, func(c *fiber.Ctx) error {
		user, err := users.Get(middleware.IdentityFrom(c).UserID)
		if err != nil {
			return err
		}
		return ok(c, user)
	})
}

func availability(c *fiber.Ctx, auth *services.AuthService, field, value string) error {
	if unescaped, err := url.PathUnescape(value); err == nil {
		value = unescaped
	}
	available, err := auth.Available(field, value)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{field: value, "available": available})
}
