package audit

import (
	"go-erp/internal/config"
	"go-erp/internal/features/role"
	"go-erp/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	controller *AuditController
	config     *config.Config
	registry   *role.Registry
}

func NewAuditApi(controller *AuditController, config *config.Config, registry *role.Registry) *AuditApi {
	return &AuditApi{
		controller: controller,
		config:     config,
		registry:   registry,
	}
}

func (h *AuditApi) Setup(app *fiber.App) {
	audit := app.Group("/api/audit-logs", middleware.AuthMiddleware(h.config.SkipAuth))

	audit.Get("/", middleware.RequirePermission(h.registry, string(role.ModuleApprovals), string(role.ActionView)), h.controller.ListLogs)
}
