package engine

import (
	"go-erp/internal/config"
	"go-erp/internal/features/role"
	"go-erp/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type EngineApi struct {
	controller *EngineController
	config     *config.Config
	registry   *role.Registry
}

func NewEngineApi(controller *EngineController, cfg *config.Config, registry *role.Registry) *EngineApi {
	return &EngineApi{
		controller: controller,
		config:     cfg,
		registry:   registry,
	}
}

// Setup registers the approval engine routes. Submission and decision
// authorization is checked per request against the document module and the
// current step's role.
func (h *EngineApi) Setup(app *fiber.App) {
	engine := app.Group("/api/engine", middleware.AuthMiddleware(h.config.SkipAuth))

	m := string(role.ModuleApprovals)
	engine.Post("/permissions/check", h.controller.CheckPermission)
	engine.Post("/submissions", h.controller.Submit)
	engine.Get("/pending", h.controller.GetPending)

	engine.Get("/requests", middleware.RequirePermission(h.registry, m, string(role.ActionView)), h.controller.ListRequests)
	engine.Get("/requests/export", middleware.RequirePermission(h.registry, m, string(role.ActionExport)), h.controller.ExportRequests)
	engine.Get("/requests/:id", h.controller.GetRequest)
	engine.Post("/requests/:id/decisions", h.controller.Decide)
	engine.Post("/requests/:id/cancel", h.controller.Cancel)
}
