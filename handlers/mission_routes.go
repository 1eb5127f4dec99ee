package handlers

import (
	"we-planet-api/middleware"
	"we-planet-api/models"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMissionRoutes(api fiber.Router, guard fiber.Handler, missions *services.MissionService) {
	g := api.Group("/missions", guard)

	g.Get("/", func(c *fiber.Ctx) error {
		list, err := missions.List(c.QueryBool("active_only", false), models.MissionType(c.Query("type")))
		if err != nil {
			return err
		}
		return ok(c, list)
	})

	g.Post("/", middleware.RequireAdmin(), func(c *fiber.Ctx) error {
		var in services.CreateMissionInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		mission, err := missions.Create(middleware.IdentityFrom(c), in)
		if err != nil {
			return err
		}
		return created(c, mission, "mission created")
	})

	g.Get("/active", func(c *fiber.Ctx) error {
		list, err := missions.Active()
		if err != nil {
			return err
		}
		return ok(c, list)
	})

	g.Get("/mine", func(c *fiber.Ctx) error {
		list, err := missions.Mine(middleware.IdentityFrom(c), models.ParticipationStatus(c.Query("status")))
		if err != nil {
			return err
		}
		return ok(c, list)
	})

	g.Get("/:id", func(c *fiber.Ctx) error {
		mission, err := missions.Get(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, mission)
	})

	g.Post("/:id/participate", func(c *fiber.Ctx) error {
		p, err := missions.Participate(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return created(c, p, "joined mission")
	})

	g.Post("/:id/complete", func(c *fiber.Ctx) error {
		result, err := missions.Complete(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, result, "mission completed")
	})

	g.Post("/:id/withdraw", func(c *fiber.Ctx) error {
		p, err := missions.Withdraw(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, p, "withdrew from mission")
	})
}
