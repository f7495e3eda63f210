// Package web provides the HTTP handlers and REST API endpoints for the
// execution engine.
package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/braidflow/braid/pkg/registry"
	"github.com/braidflow/braid/pkg/services"
)

type APIHandlers struct {
	executionService *services.Execution
	registry         *registry.Registry
}

func NewAPIHandlers(executionService *services.Execution, reg *registry.Registry) *APIHandlers {
	return &APIHandlers{
		executionService: executionService,
		registry:         reg,
	}
}

// RegisterRoutes mounts every API route on the app. Shared by the api binary
// and the handler tests.
func RegisterRoutes(app *fiber.App, handlers *APIHandlers) {
	app.Get("/health", handlers.HealthCheck)

	executions := app.Group("/executions")
	executions.Post("/", handlers.StartExecution)
	executions.Get("/", handlers.GetExecutions)
	executions.Get("/:id", handlers.GetExecution)
	executions.Get("/:id/progress", handlers.GetExecutionProgress)
	executions.Get("/:id/metrics", handlers.GetExecutionMetrics)
	executions.Post("/:id/cancel", handlers.CancelExecution)
	executions.Post("/:id/branches", handlers.CreateBranch)
	executions.Get("/:id/branches", handlers.GetBranches)
	executions.Get("/:id/branches/:branchId/progress", handlers.GetBranchProgress)
	executions.Post("/:id/branches/:branchId/cancel", handlers.CancelBranch)

	workflows := app.Group("/workflows")
	workflows.Post("/:id/compile", handlers.CompileWorkflow)

	app.Get("/node-types", handlers.GetNodeTypes)
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req services.StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	record, err := h.executionService.Start(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	// Parse query parameters
	req, err := h.parseListExecutionsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	// Call service layer
	result, err := h.executionService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	// Return structured response with pagination metadata
	return c.JSON(fiber.Map{
		"executions":    TransformExecutionSummaries(result.Executions),
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListExecutionsRequest parses and validates the listing query
// parameters.
func (h *APIHandlers) parseListExecutionsRequest(c fiber.Ctx) (*services.ListExecutionsRequest, error) {
	req := &services.ListExecutionsRequest{}

	// Parse pagination parameters
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	// Parse filtering parameters
	req.WorkflowID = c.Query("workflow_id")
	req.Status = c.Query("status")
	req.OwnerID = c.Query("owner_id")

	if tags := c.Query("tags"); tags != "" {
		req.Tags = strings.Split(tags, ",")
	}

	if fromStr := c.Query("date_from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return nil, err
		}

		req.DateFrom = &from
	}

	if toStr := c.Query("date_to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return nil, err
		}

		req.DateTo = &to
	}

	if hasBranchesStr := c.Query("has_branches"); hasBranchesStr != "" {
		hasBranches, err := strconv.ParseBool(hasBranchesStr)
		if err != nil {
			return nil, err
		}

		req.HasBranches = &hasBranches
	}

	// Parse sorting parameters
	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	record, err := h.executionService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetExecutionProgress(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	progress, err := h.executionService.Progress(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(progress)
}

func (h *APIHandlers) GetExecutionMetrics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	metrics, err := h.executionService.Metrics(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(metrics)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.executionService.Cancel(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": id,
		"status":       "canceled",
	})
}

func (h *APIHandlers) CreateBranch(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req services.CreateBranchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	branch, err := h.executionService.CreateBranch(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(branch)
}

func (h *APIHandlers) GetBranches(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	branches, err := h.executionService.ListBranches(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"branches":     branches,
		"total_count":  len(branches),
	})
}

func (h *APIHandlers) GetBranchProgress(c fiber.Ctx) error {
	id := c.Params("id")
	branchID := c.Params("branchId")

	if id == "" || branchID == "" {
		return badRequest(c, "Execution ID and branch ID are required")
	}

	progress, err := h.executionService.BranchProgress(c.Context(), id, branchID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(progress)
}

func (h *APIHandlers) CancelBranch(c fiber.Ctx) error {
	id := c.Params("id")
	branchID := c.Params("branchId")

	if id == "" || branchID == "" {
		return badRequest(c, "Execution ID and branch ID are required")
	}

	if err := h.executionService.CancelBranch(c.Context(), id, branchID); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": id,
		"branch_id":    branchID,
		"status":       "canceled",
	})
}

func (h *APIHandlers) CompileWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	result, err := h.executionService.Compile(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"node_types": h.registry.ListNodeTypes(),
		"plugins":    h.registry.ListPlugins(),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	serviceCheck, serviceOk := h.executionService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Braid API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if serviceOk {
		status = "healthy"
		message = "Braid API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"execution_service": serviceCheck,
			"node_types":        h.registry.ListNodeTypes(),
		},
		"timestamp": time.Now().UTC(),
	})
}
