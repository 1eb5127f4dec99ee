package handlers

import (
	"log"

	"we-planet-api/middleware"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

// formImage reads the multipart "file" field. The caller must run the returned close func.
func formImage(c *fiber.Ctx) (services.UploadInput, func(), error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return services.UploadInput{}, nil, services.Validation("validation_failed", "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return services.UploadInput{}, nil, services.Validation("validation_failed", "could not read uploaded file")
	}
	return services.UploadInput{Filename: fh.Filename, Size: fh.Size, Body: f}, func() { f.Close() }, nil
}

func SetupUploadRoutes(api fiber.Router, guard fiber.Handler, uploads *services.UploadService, users *services.UserService) {
	g := api.Group("/upload", guard)

	g.Post("/image", func(c *fiber.Ctx) error {
		in, closeFile, err := formImage(c)
		if err != nil {
			return err
		}
		defer closeFile()

		image, err := uploads.Upload(c.UserContext(), middleware.IdentityFrom(c), in)
		if err != nil {
			return err
		}
		return created(c, image, "image uploaded")
	})

	// Uploads an image and makes it the caller's avatar in one call.
	g.Post("/avatar", func(c *fiber.Ctx) error {
		in, closeFile, err := formImage(c)
		if err != nil {
			return err
		}
		defer closeFile()

		actor := middleware.IdentityFrom(c)
		image, err := uploads.Upload(c.UserContext(), actor, in)
		if err != nil {
			return err
		}
		user, err := users.SetAvatar(actor, image.URL)
		if err != nil {
			if delErr := uploads.Delete(c.UserContext(), actor, image.Filename); delErr != nil {
				log.Printf("⚠️ [UPLOAD] failed to remove orphaned avatar %s: %v", image.Filename, delErr)
			}
			return err
		}
		return created(c, fiber.Map{"image": image, "avatar_url": image.URL, "user": user}, "avatar updated")
	})

	g.Get("/image/:filename", func(c *fiber.Ctx) error {
		image, obj, err := uploads.Open(c.UserContext(), c.Params("filename"))
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, image.ContentType)
		c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
		// The response stream closes obj.Body once written.
		return c.SendStream(obj.Body, int(obj.Size))
	})

	g.Delete("/image/:filename", func(c *fiber.Ctx) error {
		if err := uploads.Delete(c.UserContext(), middleware.IdentityFrom(c), c.Params("filename")); err != nil {
			return err
		}
		return success(c, fiber.StatusOK, nil, "image deleted")
	})
}
