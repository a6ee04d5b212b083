package flow

import (
	"errors"

	"go-erp/internal/features/role"

	"github.com/gofiber/fiber/v2"
)

type FlowController struct {
	Service FlowService
}

func NewFlowController(service FlowService) *FlowController {
	return &FlowController{Service: service}
}

type UpdateStatusRequest struct {
	Status Status `json:"status"`
}

// CreateFlow godoc
// @Summary Create an approval flow
// @Tags flows
// @Accept json
// @Produce json
// @Param flow body FlowDefinition true "Flow definition"
// @Success 201 {object} FlowDefinition
// @Failure 400 {object} map[string]string "Invalid flow"
// @Failure 409 {object} map[string]string "Conflicting active flow"
// @Router /api/flows [post]
func (c *FlowController) CreateFlow(ctx *fiber.Ctx) error {
	var input FlowDefinition
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	created, err := c.Service.CreateFlow(ctx.UserContext(), &input)
	if err != nil {
		return flowError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(created)
}

// ListFlows godoc
// @Summary List approval flows
// @Tags flows
// @Produce json
// @Param module query string false "Module"
// @Param trigger query string false "Trigger"
// @Param status query string false "Status"
// @Success 200 {array} FlowDefinition
// @Router /api/flows [get]
func (c *FlowController) ListFlows(ctx *fiber.Ctx) error {
	flows, err := c.Service.ListFlows(ctx.UserContext(), ListFilter{
		Module:  role.Module(ctx.Query("module")),
		Trigger: Trigger(ctx.Query("trigger")),
		Status:  Status(ctx.Query("status")),
	})
	if err != nil {
		return flowError(ctx, err)
	}
	if flows == nil {
		flows = []FlowDefinition{}
	}
	return ctx.JSON(flows)
}

// GetFlow godoc
// @Summary Get an approval flow
// @Tags flows
// @Produce json
// @Param id path string true "Flow ID"
// @Success 200 {object} FlowDefinition
// @Failure 404 {object} map[string]string "Flow not found"
// @Router /api/flows/{id} [get]
func (c *FlowController) GetFlow(ctx *fiber.Ctx) error {
	f, err := c.Service.GetFlow(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return flowError(ctx, err)
	}
	return ctx.JSON(f)
}

// UpdateFlow godoc
// @Summary Replace an approval flow
// @Tags flows
// @Accept json
// @Produce json
// @Param id path string true "Flow ID"
// @Param flow body FlowDefinition true "Flow definition"
// @Success 200 {object} FlowDefinition
// @Router /api/flows/{id} [put]
func (c *FlowController) UpdateFlow(ctx *fiber.Ctx) error {
	var input FlowDefinition
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updated, err := c.Service.UpdateFlow(ctx.UserContext(), ctx.Params("id"), &input)
	if err != nil {
		return flowError(ctx, err)
	}
	return ctx.JSON(updated)
}

// UpdateFlowStatus godoc
// @Summary Activate or deactivate an approval flow
// @Tags flows
// @Accept json
// @Produce json
// @Param id path string true "Flow ID"
// @Param body body UpdateStatusRequest true "Status"
// @Success 200 {object} FlowDefinition
// @Router /api/flows/{id}/status [put]
func (c *FlowController) UpdateFlowStatus(ctx *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updated, err := c.Service.SetStatus(ctx.UserContext(), ctx.Params("id"), req.Status)
	if err != nil {
		return flowError(ctx, err)
	}
	return ctx.JSON(updated)
}

// DeleteFlow godoc
// @Summary Delete an approval flow
// @Tags flows
// @Param id path string true "Flow ID"
// @Success 204 "No Content"
// @Router /api/flows/{id} [delete]
func (c *FlowController) DeleteFlow(ctx *fiber.Ctx) error {
	if err := c.Service.DeleteFlow(ctx.UserContext(), ctx.Params("id")); err != nil {
		return flowError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func flowError(ctx *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidFlow), errors.Is(err, ErrUnknownRole):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrFlowNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrFlowConflict), errors.Is(err, ErrFlowExists):
		status = fiber.StatusConflict
	}
	if status == fiber.StatusInternalServerError {
		return err
	}
	return ctx.Status(status).JSON(fiber.Map{"error": err.Error()})
}
