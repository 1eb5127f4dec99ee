package handlers

import (
	"we-planet-api/middleware"
	"we-planet-api/models"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupActivityRoutes(api fiber.Router, guard fiber.Handler, activities *services.ActivityService) {
	g := api.Group("/activities", guard)

	g.Post("/", func(c *fiber.Ctx) error {
		var in services.CreateActivityInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		result, err := activities.Create(middleware.IdentityFrom(c), in)
		if err != nil {
			return err
		}
		return created(c, result, "activity logged")
	})

	g.Get("/", func(c *fiber.Ctx) error {
		page, err := activities.List(middleware.IdentityFrom(c), services.ActivityFilter{
			FamilyID: c.Query("family_id"),
			Category: models.ActivityCategory(c.Query("category")),
			Page:     c.QueryInt("page", 1),
			Size:     c.QueryInt("size", 20),
		})
		if err != nil {
			return err
		}
		return ok(c, page)
	})

	g.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := activities.Stats(middleware.IdentityFrom(c))
		if err != nil {
			return err
		}
		return ok(c, stats)
	})

	g.Get("/:id", func(c *fiber.Ctx) error {
		activity, err := activities.Get(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, activity)
	})

	g.Put("/:id", func(c *fiber.Ctx) error {
		var in services.UpdateActivityInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		result, err := activities.Update(middleware.IdentityFrom(c), c.Params("id"), in)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, result, "activity updated")
	})

	g.Delete("/:id", func(c *fiber.Ctx) error {
		if err := activities.Delete(middleware.IdentityFrom(c), c.Params("id")); err != nil {
			return err
		}
		return success(c, fiber.StatusOK, nil, "activity deleted")
	})

	g.Post("/:id/photo", func(c *fiber.Ctx) error {
		in, closeFile, err := formImage(c)
		if err != nil {
			return err
		}
		defer closeFile()

		activity, err := activities.AttachPhoto(c.UserContext(), middleware.IdentityFrom(c), c.Params("id"), in)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, activity, "photo attached")
	})
}
