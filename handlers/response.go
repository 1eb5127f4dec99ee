package handlers

import (
	"errors"
	"log"

	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
)

// success writes {"status":"success","data":...,"message":...}.
func success(c *fiber.Ctx, status int, data any, message string) error {
	body := fiber.Map{"status": "success", "data": data}
	if message != "" {
		body["message"] = message
	}
	return c.Status(status).JSON(body)
}

func ok(c *fiber.Ctx, data any) error {
	return success(c, fiber.StatusOK, data, "")
}

func created(c *fiber.Ctx, data any, message string) error {
	return success(c, fiber.StatusCreated, data, message)
}

func errorBody(code, message string, details any) fiber.Map {
	body := fiber.Map{"status": "error", "error": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	return body
}

// statusFor maps an AppError to its HTTP status.
func statusFor(e *services.AppError) int {
	switch e.Kind {
	case services.KindValidation:
		if e.Code == "criteria_not_met" || e.Code == "validation_failed" {
			return fiber.StatusUnprocessableEntity
		}
		if e.Code == "file_too_large" {
			return fiber.StatusRequestEntityTooLarge
		}
		return fiber.StatusBadRequest
	case services.KindAuthentication:
		return fiber.StatusUnauthorized
	case services.KindAuthorization:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as the error envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *services.AppError
	if errors.As(err, &appErr) {
		status := statusFor(appErr)
		if status >= fiber.StatusInternalServerError {
			log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
		}
		return c.Status(status).JSON(errorBody(appErr.Code, appErr.Message, appErr.Details))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := "http_error"
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			code = "not_found"
		case fiber.StatusMethodNotAllowed:
			code = "method_not_allowed"
		case fiber.StatusRequestEntityTooLarge:
			code = "file_too_large"
		case fiber.StatusTooManyRequests:
			code = "rate_limited"
		case fiber.StatusBadRequest:
			code = "bad_request"
		}
		return c.Status(fiberErr.Code).JSON(errorBody(code, fiberErr.Message, nil))
	}

	log.Printf("❌ [API] unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal_error", "internal server error", nil))
}
