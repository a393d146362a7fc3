package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/netvariant/moqui-workflow/pkg/definition"
	"github.com/netvariant/moqui-workflow/pkg/engine"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine request errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	status, kind := fiber.StatusInternalServerError, "internal_error"

	switch {
	case engine.IsValidationError(err), errors.Is(err, definition.ErrInvalidDefinition):
		status, kind = fiber.StatusBadRequest, "validation_error"
	case engine.IsNotFound(err):
		status, kind = fiber.StatusNotFound, "not_found"
	case engine.IsForbidden(err):
		status, kind = fiber.StatusForbidden, "forbidden"
	case engine.IsConflict(err):
		status, kind = fiber.StatusConflict, "conflict"
	default:
		return internalError(c, err)
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(err.Error())

	return c.Status(status).JSON(problem)
}
