package engine

import (
	"errors"

	"go-erp/internal/features/approval"
	"go-erp/internal/features/flow"

	"github.com/gofiber/fiber/v2"
	"github.com/moogar0880/problems"
	"go.uber.org/zap"
)

const problemContentType = "application/problem+json"

func problem(c *fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p, problemContentType)
}

func badRequest(c *fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func forbidden(c *fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusForbidden, "permission_denied", detail)
}

// handleServiceError maps engine errors onto problem documents. Unexpected
// errors are logged and answered with a generic detail.
func handleServiceError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, ErrInvalidSubmission),
		errors.Is(err, approval.ErrInvalidOutcome),
		errors.Is(err, approval.ErrStepRequired),
		errors.Is(err, flow.ErrInvalidFlow):
		return badRequest(c, err.Error())

	case errors.Is(err, approval.ErrForbidden),
		errors.Is(err, ErrNotSubmitter):
		return forbidden(c, err.Error())

	case errors.Is(err, approval.ErrRequestNotFound):
		return problem(c, fiber.StatusNotFound, "request_not_found", "approval request not found")

	case errors.Is(err, approval.ErrOutOfSequence):
		return problem(c, fiber.StatusConflict, "out_of_sequence", err.Error())

	case errors.Is(err, approval.ErrAlreadyResolved):
		return problem(c, fiber.StatusConflict, "already_resolved", err.Error())

	case errors.Is(err, flow.ErrAmbiguousFlow):
		return problem(c, fiber.StatusConflict, "ambiguous_flow", err.Error())

	case errors.Is(err, approval.ErrLockTimeout),
		errors.Is(err, approval.ErrVersionConflict):
		return problem(c, fiber.StatusServiceUnavailable, "busy", "request is busy, retry")

	default:
		logger.Error("engine request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return problem(c, fiber.StatusInternalServerError, "internal_error", "internal server error")
	}
}
