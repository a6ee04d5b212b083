package role

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type RoleController struct {
	Service RoleService
}

func NewRoleController(service RoleService) *RoleController {
	return &RoleController{Service: service}
}

// CreateRole godoc
// @Summary Create a role
// @Tags roles
// @Accept json
// @Produce json
// @Param role body Role true "Role"
// @Success 201 {object} Role
// @Failure 400 {object} map[string]string "Invalid role"
// @Failure 409 {object} map[string]string "Role already exists"
// @Router /api/roles [post]
func (c *RoleController) CreateRole(ctx *fiber.Ctx) error {
	var input Role
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	created, err := c.Service.CreateRole(ctx.UserContext(), &input)
	if err != nil {
		return roleError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(created)
}

// ListRoles godoc
// @Summary List roles
// @Tags roles
// @Produce json
// @Success 200 {array} Role
// @Router /api/roles [get]
func (c *RoleController) ListRoles(ctx *fiber.Ctx) error {
	roles, err := c.Service.ListRoles(ctx.UserContext())
	if err != nil {
		return roleError(ctx, err)
	}
	if roles == nil {
		roles = []Role{}
	}
	return ctx.JSON(roles)
}

// GetRole godoc
// @Summary Get a role
// @Tags roles
// @Produce json
// @Param id path string true "Role ID"
// @Success 200 {object} Role
// @Failure 404 {object} map[string]string "Role not found"
// @Router /api/roles/{id} [get]
func (c *RoleController) GetRole(ctx *fiber.Ctx) error {
	r, err := c.Service.GetRole(ctx.UserContext(), RoleID(ctx.Params("id")))
	if err != nil {
		return roleError(ctx, err)
	}
	return ctx.JSON(r)
}

// UpdateRole godoc
// @Summary Replace a role's name, description and grants
// @Tags roles
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param role body Role true "Role"
// @Success 200 {object} Role
// @Router /api/roles/{id} [put]
func (c *RoleController) UpdateRole(ctx *fiber.Ctx) error {
	var input Role
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updated, err := c.Service.UpdateRole(ctx.UserContext(), RoleID(ctx.Params("id")), &input)
	if err != nil {
		return roleError(ctx, err)
	}
	return ctx.JSON(updated)
}

// DeleteRole godoc
// @Summary Delete a role
// @Tags roles
// @Param id path string true "Role ID"
// @Success 204 "No Content"
// @Failure 409 {object} map[string]string "Role in use or system role"
// @Router /api/roles/{id} [delete]
func (c *RoleController) DeleteRole(ctx *fiber.Ctx) error {
	if err := c.Service.DeleteRole(ctx.UserContext(), RoleID(ctx.Params("id"))); err != nil {
		return roleError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func roleError(ctx *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidRole):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrRoleNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrRoleExists), errors.Is(err, ErrRoleInUse), errors.Is(err, ErrSystemRole):
		status = fiber.StatusConflict
	}
	if status == fiber.StatusInternalServerError {
		return err
	}
	return ctx.Status(status).JSON(fiber.Map{"error": err.Error()})
}
