package handlers

import (
	"we-planet-api/middleware"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(api fiber.Router, guard fiber.Handler, users *services.UserService) {
	g := api.Group("/users", guard)

	g.Get("/me", func(c *fiber.Ctx) error {
		user, err := users.Get(middleware.IdentityFrom(c).UserID)
		if err != nil {
			return err
		}
		return ok(c, user)
	})

	g.Put("/me", func(c *fiber.Ctx) error {
		var in services.UpdateProfileInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		user, err := users.UpdateProfile(middleware.IdentityFrom(c), in)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, user, "profile updated")
	})

	g.Put("/me/password", func(c *fiber.Ctx) error {
		var in services.ChangePasswordInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		if err := users.ChangePassword(middleware.IdentityFrom(c), in); err != nil {
			return err
		}
		return success(c, fiber.StatusOK, nil, "password changed, please log in again")
	})

	g.Get("/me/stats", func(c *fiber.Ctx) error {
		stats, err := users.Stats(middleware.IdentityFrom(c))
		if err != nil {
			return err
		}
		return ok(c, stats)
	})

	g.Post("/me/deactivate", func(c *fiber.Ctx) error {
		if err := users.Deactivate(middleware.IdentityFrom(c)); err != nil {
			return err
		}
		return success(c, fiber.StatusOK, nil, "account deactivated")
	})

	g.Get("/ranking", func(c *fiber.Ctx) error {
		ranking, err := users.Ranking(middleware.IdentityFrom(c), c.QueryInt("limit", 50))
		if err != nil {
			return err
		}
		return ok(c, ranking)
	})

	g.Get("/search", func(c *fiber.Ctx) error {
		found, err := users.Search(middleware.IdentityFrom(c), c.Query("q"), c.QueryInt("limit", 20))
		if err != nil {
			return err
		}
		return ok(c, found)
	})

	g.Get("/:id", func(c *fiber.Ctx) error {
		profile, err := users.Profile(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, profile)
	})

	api.Get("/dashboard/summary", guard, func(c *fiber.Ctx) error {
		summary, err := users.Dashboard(middleware.IdentityFrom(c))
		if err != nil {
			return err
		}
		return ok(c, summary)
	})
}
