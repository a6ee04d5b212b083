package engine

import (
	"fmt"
	"time"

	"go-erp/internal/features/approval"
	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"
	"go-erp/internal/middleware"
	"go-erp/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type EngineController struct {
	Service EngineService
	Logger  *zap.Logger
}

func NewEngineController(service EngineService, logger *zap.Logger) *EngineController {
	return &EngineController{Service: service, Logger: logger.Named("engine.http")}
}

type CheckPermissionRequest struct {
	// Roles defaults to the caller's own roles.
	Roles  []string `json:"roles"`
	Module string   `json:"module" validate:"required"`
	Action string   `json:"action" validate:"required"`
}

type SubmitRequest struct {
	Module       role.Module    `json:"module" validate:"erp_module"`
	Trigger      flow.Trigger   `json:"trigger" validate:"flow_trigger"`
	DocumentType string         `json:"document_type" validate:"required"`
	DocumentID   string         `json:"document_id" validate:"required"`
	Document     map[string]any `json:"document"`
}

type DecideRequest struct {
	Outcome approval.Outcome `json:"outcome" validate:"oneof=approve reject"`
	Comment string           `json:"comment" validate:"max=2000"`
	Step    int              `json:"step" validate:"required,min=1"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type ListResponse struct {
	Data  []approval.ApprovalRequest `json:"data"`
	Total int64                      `json:"total"`
	Page  int64                      `json:"page"`
	Limit int64                      `json:"limit"`
}

// CheckPermission godoc
// @Summary Check whether roles grant an action on a module
// @Tags engine
// @Accept json
// @Produce json
// @Param body body CheckPermissionRequest true "Permission query"
// @Success 200 {object} map[string]bool
// @Router /api/engine/permissions/check [post]
func (c *EngineController) CheckPermission(ctx *fiber.Ctx) error {
	var input CheckPermissionRequest
	if err := ctx.BodyParser(&input); err != nil {
		return badRequest(ctx, "invalid request body")
	}
	if err := validation.Struct(&input); err != nil {
		return badRequest(ctx, err.Error())
	}

	roles := input.Roles
	if roles == nil {
		roles = middleware.Claims(ctx).Roles
	}
	allowed := c.Service.CheckPermission(role.IDs(roles), role.Module(input.Module), role.Action(input.Action))
	return ctx.JSON(fiber.Map{"allowed": allowed})
}

// Submit godoc
// @Summary Submit a document event for approval
// @Tags engine
// @Accept json
// @Produce json
// @Param body body SubmitRequest true "Submission"
// @Success 200 {object} SubmitResult "No new request"
// @Success 201 {object} SubmitResult "Request created"
// @Failure 403 {object} problems.DefaultProblem
// @Failure 409 {object} problems.DefaultProblem "Ambiguous flow configuration"
// @Router /api/engine/submissions [post]
func (c *EngineController) Submit(ctx *fiber.Ctx) error {
	var input SubmitRequest
	if err := ctx.BodyParser(&input); err != nil {
		return badRequest(ctx, "invalid request body")
	}
	if err := validation.Struct(&input); err != nil {
		return badRequest(ctx, err.Error())
	}

	claims := middleware.Claims(ctx)
	action := ActionFor(input.Trigger)
	if !c.Service.CheckPermission(role.IDs(claims.Roles), input.Module, action) {
		return forbidden(ctx, fmt.Sprintf("missing %s:%s permission", input.Module, action))
	}

	res, err := c.Service.SubmitForApproval(ctx.UserContext(), approval.SubmitInput{
		Module:       input.Module,
		Trigger:      input.Trigger,
		DocumentType: input.DocumentType,
		DocumentID:   input.DocumentID,
		SubmittedBy:  claims.UserID,
		Document:     input.Document,
	})
	if err != nil {
		return handleServiceError(ctx, c.Logger, err)
	}
	if res.Created {
		return ctx.Status(fiber.StatusCreated).JSON(res)
	}
	return ctx.JSON(res)
}

// Decide godoc
// @Summary Approve or reject the current step of a request
// @Tags engine
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param body body DecideRequest true "Decision"
// @Success 200 {object} DecideResult
// @Failure 403 {object} problems.DefaultProblem "Actor lacks the step role"
// @Failure 409 {object} problems.DefaultProblem "Out of sequence"
// @Router /api/engine/requests/{id}/decisions [post]
func (c *EngineController) Decide(ctx *fiber.Ctx) error {
	var input DecideRequest
	if err := ctx.BodyParser(&input); err != nil {
		return badRequest(ctx, "invalid request body")
	}
	if err := validation.Struct(&input); err != nil {
		return badRequest(ctx, err.Error())
	}

	claims := middleware.Claims(ctx)
	res, err := c.Service.Decide(ctx.UserContext(), ctx.Params("id"), approval.Decision{
		ActorID: claims.UserID,
		Outcome: input.Outcome,
		Comment: input.Comment,
		Step:    input.Step,
	})
	if err != nil {
		return handleServiceError(ctx, c.Logger, err)
	}
	return ctx.JSON(res)
}

// Cancel godoc
// @Summary Recall a pending request
// @Tags engine
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param body body CancelRequest false "Reason"
// @Success 200 {object} approval.ApprovalRequest
// @Router /api/engine/requests/{id}/cancel [post]
func (c *EngineController) Cancel(ctx *fiber.Ctx) error {
	var input CancelRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&input); err != nil {
			return badRequest(ctx, "invalid request body")
		}
	}
	if err := validation.Struct(&input); err != nil {
		return badRequest(ctx, err.Error())
	}

	claims := middleware.Claims(ctx)
	req, err := c.Service.Recall(ctx.UserContext(), ctx.Params("id"), claims.UserID, role.IDs(claims.Roles), input.Reason)
	if err != nil {
		return handleServiceError(ctx, c.Logger, err)
	}
	return ctx.JSON(req)
}

// GetRequest godoc
// @Summary Get an approval request with its decisions
// @Tags engine
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} approval.ApprovalRequest
// @Failure 404 {object} problems.DefaultProblem
// @Router /api/engine/requests/{id} [get]
func (c *EngineController) GetRequest(ctx *fiber.Ctx) error {
	req, err := c.Service.GetRequest(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return handleServiceError(ctx, c.Logger, err)
	}

	claims := middleware.Claims(ctx)
	if req.SubmittedBy != claims.UserID &&
		!c.Service.CheckPermission(role.IDs(claims.Roles), role.ModuleApprovals, role.ActionView) {
		return forbidden(ctx, "missing approvals:view permission")
	}
	return ctx.JSON(req)
}

// ListRequests godoc
// @Summary List approval requests
// @Tags engine
// @Produce json
// @Param status query string false "Status"
// @Param module query string false "Module"
// @Param document_type query string false "Document type"
// @Param submitted_by query string false "Submitter"
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Success 200 {object} ListResponse
// @Router /api/engine/requests [get]
func (c *EngineController) ListRequests(ctx *fiber.Ctx) error {
	filter, page, limit := listFilter(ctx)
	reqs, total, err := c.Service.ListRequests(ctx.UserContext(), filter)
	if err != nil {
		return handleServiceError(ctx, c.Logger, err)
	}
	if reqs == nil {
		reqs = []approval.ApprovalRequest{}
	}
	return ctx.JSON(ListResponse{Data: reqs, Total: total, Page: page, Limit: limit})
}

// ExportRequests godoc
// @Summary Export approval requests as xlsx
// @Tags engine
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Status"
// @Param module query string false "Module"
// @Success 200 {file} file
// @Router /api/engine/requests/export [get]
func (c *EngineController) ExportRequests(ctx *fiber.Ctx) error {
	filter, _, _ := listFilter(ctx)
	filter.Limit, filter.Offset = 0, 0

	reqs, _, err := c.Service.ListRequests(ctx.UserContext(), filter)
	if err != nil {
		return handleServiceError(ctx, c.Logger, err)
	}
	data, err := ExportToExcel(reqs)
	if err != nil {
		return handleServiceError(ctx, c.Logger, err)
	}

	filename := fmt.Sprintf("approvals_%s.xlsx", time.Now().Format("20060102_150405"))
	ctx.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	return ctx.Send(data)
}

// GetPending godoc
// @Summary List requests waiting on the caller
// @Tags engine
// @Produce json
// @Success 200 {array} PendingItem
// @Router /api/engine/pending [get]
func (c *EngineController) GetPending(ctx *fiber.Ctx) error {
	items, err := c.Service.GetPendingFor(ctx.UserContext(), middleware.Claims(ctx).UserID)
	if err != nil {
		return handleServiceError(ctx, c.Logger, err)
	}
	return ctx.JSON(items)
}

func listFilter(ctx *fiber.Ctx) (approval.ListFilter, int64, int64) {
	page := int64(ctx.QueryInt("page", 1))
	limit := int64(ctx.QueryInt("limit", 20))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 20
	}
	return approval.ListFilter{
		Status:       approval.Status(ctx.Query("status")),
		Module:       role.Module(ctx.Query("module")),
		DocumentType: ctx.Query("document_type"),
		SubmittedBy:  ctx.Query("submitted_by"),
		Limit:        limit,
		Offset:       (page - 1) * limit,
	}, page, limit
}
