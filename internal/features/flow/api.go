package flow

import (
	"go-erp/internal/config"
	"go-erp/internal/features/role"
	"go-erp/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type FlowApi struct {
	controller *FlowController
	config     *config.Config
	registry   *role.Registry
}

func NewFlowApi(controller *FlowController, cfg *config.Config, registry *role.Registry) *FlowApi {
	return &FlowApi{
		controller: controller,
		config:     cfg,
		registry:   registry,
	}
}

// Setup registers approval flow admin routes
func (h *FlowApi) Setup(app *fiber.App) {
	flows := app.Group("/api/flows", middleware.AuthMiddleware(h.config.SkipAuth))

	m := string(role.ModuleApprovalFlows)
	flows.Get("/", middleware.RequirePermission(h.registry, m, string(role.ActionView)), h.controller.ListFlows)
	flows.Post("/", middleware.RequirePermission(h.registry, m, string(role.ActionCreate)), h.controller.CreateFlow)
	flows.Get("/:id", middleware.RequirePermission(h.registry, m, string(role.ActionView)), h.controller.GetFlow)
	flows.Put("/:id", middleware.RequirePermission(h.registry, m, string(role.ActionEdit)), h.controller.UpdateFlow)
	flows.Put("/:id/status", middleware.RequirePermission(h.registry, m, string(role.ActionEdit)), h.controller.UpdateFlowStatus)
	flows.Delete("/:id", middleware.RequirePermission(h.registry, m, string(role.ActionDelete)), h.controller.DeleteFlow)
}
