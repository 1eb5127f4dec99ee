package handlers

import (
	"we-planet-api/middleware"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

type inviteRequest struct {
	InviteCode string `json:"invite_code" validate:"required,len=8,alphanum"`
}

func SetupFamilyRoutes(api fiber.Router, guard fiber.Handler, families *services.FamilyService) {
	g := api.Group("/families", guard)

	g.Post("/", func(c *fiber.Ctx) error {
		var in services.CreateFamilyInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		family, err := families.Create(middleware.IdentityFrom(c), in)
		if err != nil {
			return err
		}
		return created(c, family, "family created")
	})

	g.Get("/", func(c *fiber.Ctx) error {
		list, err := families.ListMine(middleware.IdentityFrom(c))
		if err != nil {
			return err
		}
		return ok(c, list)
	})

	// Registered before /:id so "join-by-code" is not taken for an id.
	g.Post("/join-by-code", func(c *fiber.Ctx) error {
		var in inviteRequest
		if err := parseBody(c, &in); err != nil {
			return err
		}
		family, err := families.JoinByCode(middleware.IdentityFrom(c), in.InviteCode)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, family, "joined family")
	})

	g.Get("/:id", func(c *fiber.Ctx) error {
		family, err := families.Get(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, family)
	})

	g.Put("/:id", func(c *fiber.Ctx) error {
		var in services.UpdateFamilyInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		family, err := families.Update(middleware.IdentityFrom(c), c.Params("id"), in)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, family, "family updated")
	})

	g.Delete("/:id", func(c *fiber.Ctx) error {
		if err := families.Delete(middleware.IdentityFrom(c), c.Params("id")); err != nil {
			return err
		}
		return success(c, fiber.StatusOK, nil, "family deleted")
	})

	g.Post("/:id/invite", func(c *fiber.Ctx) error {
		code, err := families.RotateInviteCode(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, fiber.Map{"family_id": c.Params("id"), "invite_code": code})
	})

	g.Post("/:id/join", func(c *fiber.Ctx) error {
		var in inviteRequest
		if err := parseBody(c, &in); err != nil {
			return err
		}
		family, err := families.Join(middleware.IdentityFrom(c), c.Params("id"), in.InviteCode)
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, family, "joined family")
	})

	g.Delete("/:id/leave", func(c *fiber.Ctx) error {
		err := families.Leave(middleware.IdentityFrom(c), c.Params("id"), c.Query("transfer_to_user_id"))
		if err != nil {
			return err
		}
		return success(c, fiber.StatusOK, nil, "left family")
	})

	g.Get("/:id/stats", func(c *fiber.Ctx) error {
		stats, err := families.Stats(middleware.IdentityFrom(c), c.Params("id"))
		if err != nil {
			return err
		}
		return ok(c, stats)
	})

	g.Put("/:id/members/:member_id", func(c *fiber.Ctx) error {
		var in services.UpdateMemberInput
		if err := parseBody(c, &in); err != nil {
			return err
		}
		member, err := families.UpdateMember(middleware.IdentityFrom(c), c.Params("id"), c.Params("member_id"), in)
		if err != nil {
			return err
		}
		return ok(c, member)
	})

	g.Delete("/:id/members/:member_id", func(c *fiber.Ctx) error {
		if err := families.RemoveMember(middleware.IdentityFrom(c), c.Params("id"), c.Params("member_id")); err != nil {
			return err
		}
		return success(c, fiber.StatusOK, nil, "member removed")
	})
}
