package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// statusForError maps a service error category to an HTTP status
func statusForError(err error) int {
	serviceErr, ok := shared.AsServiceError(err)
	if !ok {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	switch serviceErr.Category {
	case shared.ErrorCategoryValidation:
		return fiber.StatusBadRequest
	case shared.ErrorCategoryAuthentication:
		return fiber.StatusUnauthorized
	case shared.ErrorCategoryResource:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	body := fiber.Map{
		"success": false,
		"error":   err.Error(),
	}
	if serviceErr, ok := shared.AsServiceError(err); ok {
		if status >= fiber.StatusInternalServerError {
			serviceErr.LogError()
		}
		body["error"] = serviceErr.Message
		body["code"] = serviceErr.Code
		if serviceErr.Details != nil {
			body["details"] = serviceErr.Details
		}
	}
	return c.Status(status).JSON(body)
}

func respondData(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func invalidRequest(operation string, message string, details interface{}) *shared.ServiceError {
	return shared.NewServiceError(
		shared.ErrorCategoryValidation, shared.CodeInvalidRequest, message, "http-api", operation, false, nil,
	).WithDetails(details)
}
