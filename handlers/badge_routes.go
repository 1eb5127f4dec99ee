package handlers

import (
	"we-planet-api/middleware"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

type awardRequest struct {
	// UserID defaults to the caller.
	UserID string `json:"user_id"`
}

func SetupBadgeRoutes(api fiber.Router, guard fiber.Handler, badges *services.BadgeService) {
	g := api.Group("/badges", guard)

	g.Get("/", func(c *fiber.Ctx) error {
		list, err := badges.ListBadges(middleware.IdentityFrom(c).IsAdmin)
		if err != nil {
			return err
		}
		return ok(c, list)
	})

	g.Get("/user/:id", func(c *fiber.Ctx) error {
		awards, err := badges.UserBadges(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, awards)
	})

	g.Get("/:id", func(c *fiber.Ctx) error {
		badge, err := badges.GetBadge(c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, badge)
	})

	g.Post("/:id/award", func(c *fiber.Ctx) error {
		var in awardRequest
		if len(c.Body()) > 0 {
			if err := parseBody(c, &in); err != nil {
				return err
			}
		}
		result, err := badges.Award(middleware.IdentityFrom(c), c.Params("id"), in.UserID)
		if err != nil {
			return err
		}
		if !result.Created {
			return success(c, fiber.StatusOK, result, "badge already awarded")
		}
		return created(c, result, "badge awarded")
	})
}
