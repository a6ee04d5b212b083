package role

import (
	"go-erp/internal/config"
	"go-erp/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RoleApi struct {
	controller *RoleController
	config     *config.Config
	registry   *Registry
}

func NewRoleApi(controller *RoleController, cfg *config.Config, registry *Registry) *RoleApi {
	return &RoleApi{
		controller: controller,
		config:     cfg,
		registry:   registry,
	}
}

// Setup registers role routes
func (h *RoleApi) Setup(app *fiber.App) {
	roles := app.Group("/api/roles", middleware.AuthMiddleware(h.config.SkipAuth))

	m := string(ModuleRoles)
	roles.Get("/", middleware.RequirePermission(h.registry, m, string(ActionView)), h.controller.ListRoles)
	roles.Post("/", middleware.RequirePermission(h.registry, m, string(ActionCreate)), h.controller.CreateRole)
	roles.Get("/:id", middleware.RequirePermission(h.registry, m, string(ActionView)), h.controller.GetRole)
	roles.Put("/:id", middleware.RequirePermission(h.registry, m, string(ActionEdit)), h.controller.UpdateRole)
	roles.Delete("/:id", middleware.RequirePermission(h.registry, m, string(ActionDelete)), h.controller.DeleteRole)
}
