package audit

import (
	"strconv"

	"go-erp/internal/events"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service AuditService
}

func NewAuditController(service AuditService) *AuditController {
	return &AuditController{Service: service}
}

// ListLogs godoc
// @Summary List approval activity
// @Tags audit
// @Produce json
// @Param request_id query string false "Request ID"
// @Param document_id query string false "Document ID"
// @Param actor_id query string false "Actor ID"
// @Param event query string false "Event kind"
// @Param module query string false "Module"
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Success 200 {object} map[string]interface{}
// @Router /api/audit-logs [get]
func (ctrl *AuditController) ListLogs(c *fiber.Ctx) error {
	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	logs, total, err := ctrl.Service.ListLogs(c.UserContext(), Filter{
		RequestID:  c.Query("request_id"),
		DocumentID: c.Query("document_id"),
		ActorID:    c.Query("actor_id"),
		Event:      events.Kind(c.Query("event")),
		Module:     c.Query("module"),
	}, page, limit)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []AuditLog{}
	}

	return c.JSON(fiber.Map{"data": logs, "total": total})
}
