package user

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type UserController struct {
	UserService UserService
}

func NewUserController(userService UserService) *UserController {
	return &UserController{
		UserService: userService,
	}
}

type UpdateUserRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

// ListUsers godoc
// @Summary      List all users
// @Description  Get a paginated list of users
// @Tags         users
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(50)
// @Success      200  {object} map[string]interface{}
// @Router       /api/users [get]
func (c *UserController) ListUsers(ctx *fiber.Ctx) error {
	page, _ := strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.Query("limit", "50"), 10, 64)

	users, total, err := c.UserService.ListUsers(ctx.UserContext(), page, limit)
	if err != nil {
		return userError(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"data":  users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// CreateUser godoc
// @Summary      Register an actor with its roles
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        user body User true "User"
// @Success      201  {object} User
// @Router       /api/users [post]
func (c *UserController) CreateUser(ctx *fiber.Ctx) error {
	var input User
	if err := ctx.BodyParser(&input); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	created, err := c.UserService.CreateUser(ctx.UserContext(), &input)
	if err != nil {
		return userError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(created)
}

// GetUser godoc
// @Summary      Get a user
// @Tags         users
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200  {object} User
// @Router       /api/users/{id} [get]
func (c *UserController) GetUser(ctx *fiber.Ctx) error {
	u, err := c.UserService.GetUser(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return userError(ctx, err)
	}
	return ctx.JSON(u)
}

// UpdateUserRoles godoc
// @Summary      Replace a user's roles
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id path string true "User ID"
// @Param        body body UpdateUserRolesRequest true "Roles"
// @Success      200  {object} User
// @Router       /api/users/{id}/roles [put]
func (c *UserController) UpdateUserRoles(ctx *fiber.Ctx) error {
	var req UpdateUserRolesRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	u, err := c.UserService.AssignRoles(ctx.UserContext(), ctx.Params("id"), req.RoleIDs)
	if err != nil {
		return userError(ctx, err)
	}
	return ctx.JSON(u)
}

func userError(ctx *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidUser), errors.Is(err, ErrUnknownRole):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrUserNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrUserExists):
		status = fiber.StatusConflict
	}
	if status == fiber.StatusInternalServerError {
		return err
	}
	return ctx.Status(status).JSON(fiber.Map{"error": err.Error()})
}
