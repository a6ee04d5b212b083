package user

import (
	"go-erp/internal/config"
	"go-erp/internal/features/role"
	"go-erp/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type UserApi struct {
	controller *UserController
	config     *config.Config
	registry   *role.Registry
}

func NewUserApi(controller *UserController, config *config.Config, registry *role.Registry) *UserApi {
	return &UserApi{
		controller: controller,
		config:     config,
		registry:   registry,
	}
}

// Setup registers all user-related routes
func (h *UserApi) Setup(app *fiber.App) {
	users := app.Group("/api/users", middleware.AuthMiddleware(h.config.SkipAuth))

	m := string(role.ModuleUsers)
	users.Post("/", middleware.RequirePermission(h.registry, m, string(role.ActionCreate)), h.controller.CreateUser)
	users.Get("/", middleware.RequirePermission(h.registry, m, string(role.ActionView)), h.controller.ListUsers)
	users.Get("/:id", middleware.RequirePermission(h.registry, m, string(role.ActionView)), h.controller.GetUser)
	users.Put("/:id/roles", middleware.RequirePermission(h.registry, m, string(role.ActionEdit)), h.controller.UpdateUserRoles)
}
