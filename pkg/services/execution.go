package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/braidflow/braid/pkg/compiler"
	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/monitor"
	"github.com/braidflow/braid/pkg/storage"
)

// WorkflowSource resolves workflow definitions by id.
type WorkflowSource interface {
	FetchByID(ctx context.Context, id string) (*models.Workflow, error)
}

// Execution is the application service for submitting, inspecting and
// cancelling workflow executions.
type Execution struct {
	manager   *execution.Manager
	compiler  *compiler.Compiler
	workflows WorkflowSource
	monitor   *monitor.Monitor
	validate  *validator.Validate
}

// NewExecution creates the execution service. The monitor is optional; when
// nil, metrics lookups report not found.
func NewExecution(manager *execution.Manager, comp *compiler.Compiler, workflows WorkflowSource, mon *monitor.Monitor) *Execution {
	return &Execution{
		manager:   manager,
		compiler:  comp,
		workflows: workflows,
		monitor:   mon,
		validate:  validator.New(),
	}
}

// HealthCheck reports whether the service's collaborators are reachable.
func (e *Execution) HealthCheck(_ context.Context) (string, bool) {
	if e.manager == nil {
		return "Execution manager not initialized", false
	}

	return "Execution service is healthy", true
}

// StartExecutionRequest contains the parameters for submitting a run.
type StartExecutionRequest struct {
	WorkflowID      string         `json:"workflow_id" validate:"required"`
	Input           any            `json:"input"`
	Type            string         `json:"type"`
	OwnerID         string         `json:"owner_id"`
	Priority        int            `json:"priority"        validate:"min=0"`
	Tags            []string       `json:"tags"`
	Metadata        map[string]any `json:"metadata"`
	EnableBranching bool           `json:"enable_branching"`
}

// Start resolves the workflow and submits it for execution. The returned
// record is the just-started snapshot; callers follow progress through the
// query operations.
func (e *Execution) Start(ctx context.Context, req StartExecutionRequest) (*models.ExecutionRecord, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, NewValidationError("Start", err.Error(), ErrInvalidRequest)
	}

	workflow, err := e.workflows.FetchByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, NewNotFoundError("Start",
			fmt.Sprintf("workflow '%s' not found", req.WorkflowID), ErrWorkflowNotFound)
	}

	execType := req.Type
	if execType == "" {
		execType = "api"
	}

	handle, err := e.manager.ExecuteWorkflow(ctx, workflow, req.Input, execution.ExecuteOptions{
		Type:            execType,
		OwnerID:         req.OwnerID,
		Priority:        req.Priority,
		Tags:            req.Tags,
		Metadata:        req.Metadata,
		EnableBranching: req.EnableBranching,
	})
	if err != nil {
		if errors.Is(err, execution.ErrExecutionExists) {
			return nil, &ServiceError{Op: "Start", Code: CodeConflict, Err: ErrExecutionExists}
		}

		return nil, NewValidationError("Start", err.Error(), ErrInvalidRequest)
	}

	record, err := e.manager.GetExecution(ctx, handle.ExecutionID())
	if err != nil {
		return nil, NewInternalError("Start", err)
	}

	return record, nil
}

// ListExecutionsRequest contains options for listing executions.
type ListExecutionsRequest struct {
	// Pagination
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	WorkflowID  string
	Status      string
	OwnerID     string
	Tags        []string
	DateFrom    *time.Time
	DateTo      *time.Time
	HasBranches *bool

	// Sorting
	SortBy    string
	SortOrder string
}

// ListExecutionsResponse contains one page of executions.
type ListExecutionsResponse struct {
	Executions  []*models.ExecutionRecord `json:"executions"`
	TotalCount  int64                     `json:"total_count"`
	HasNextPage bool                      `json:"has_next_page"`
}

var allowedSortFields = []string{"created_at", "started_at", "finished_at"}

// List retrieves executions with filtering, sorting and pagination.
func (e *Execution) List(ctx context.Context, req ListExecutionsRequest) (*ListExecutionsResponse, error) {
	opts, err := e.buildListOptions(&req)
	if err != nil {
		return nil, err
	}

	result, err := e.manager.ListExecutions(ctx, opts)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidSortField) {
			return nil, ErrInvalidSortField
		}

		return nil, NewInternalError("List", err)
	}

	return &ListExecutionsResponse{
		Executions:  result.Executions,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// buildListOptions validates the request and sets defaults.
func (e *Execution) buildListOptions(req *ListExecutionsRequest) (storage.ListExecutionsOptions, error) {
	var opts storage.ListExecutionsOptions

	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	if !slices.Contains(allowedSortFields, req.SortBy) {
		return opts, NewValidationError("List",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSortFields, ", ")),
			ErrInvalidSortField)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return opts, NewValidationError("List",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder)
	}

	var status *models.ExecutionStatus

	if req.Status != "" {
		candidate := models.ExecutionStatus(req.Status)
		if !candidate.IsValid() {
			return opts, NewValidationError("List",
				fmt.Sprintf("invalid status '%s'", req.Status), ErrInvalidStatus)
		}

		status = &candidate
	}

	if req.OwnerID != "" && strings.TrimSpace(req.OwnerID) == "" {
		return opts, ErrEmptyOwnerID
	}

	return storage.ListExecutionsOptions{
		WorkflowID:  req.WorkflowID,
		Status:      status,
		OwnerID:     strings.TrimSpace(req.OwnerID),
		Tags:        req.Tags,
		DateFrom:    req.DateFrom,
		DateTo:      req.DateTo,
		HasBranches: req.HasBranches,
		SortBy:      req.SortBy,
		SortOrder:   req.SortOrder,
		Limit:       req.Limit,
		Offset:      req.Offset,
	}, nil
}

// Get returns one execution, live or persisted.
func (e *Execution) Get(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	record, err := e.manager.GetExecution(ctx, executionID)
	if err != nil {
		if storage.IsExecutionNotFound(err) {
			return nil, NewNotFoundError("Get",
				fmt.Sprintf("execution '%s' not found", executionID), ErrExecutionNotFound)
		}

		return nil, NewInternalError("Get", err)
	}

	return record, nil
}

// Progress returns the live progress of an active execution.
func (e *Execution) Progress(ctx context.Context, executionID string) (*models.ExecutionProgress, error) {
	progress, err := e.manager.GetExecutionProgress(ctx, executionID)
	if err != nil {
		if execution.IsExecutionNotActive(err) {
			return nil, e.notActive(ctx, "Progress", executionID)
		}

		return nil, NewInternalError("Progress", err)
	}

	return progress, nil
}

// Metrics returns the collected metrics of a monitored execution.
func (e *Execution) Metrics(ctx context.Context, executionID string) (*models.ExecutionMetrics, error) {
	if e.monitor == nil {
		return nil, NewNotFoundError("Metrics",
			fmt.Sprintf("no metrics found for execution '%s'", executionID), ErrExecutionNotFound)
	}

	metrics, err := e.monitor.CollectMetrics(ctx, executionID)
	if err != nil {
		return nil, NewNotFoundError("Metrics", err.Error(), ErrExecutionNotFound)
	}

	return metrics, nil
}

// Cancel requests cancellation of an active execution.
func (e *Execution) Cancel(ctx context.Context, executionID string) error {
	if e.manager.CancelExecution(ctx, executionID) {
		return nil
	}

	return e.notActive(ctx, "Cancel", executionID)
}

// CreateBranchRequest contains the parameters for opening a branch.
type CreateBranchRequest struct {
	BranchID       string   `json:"branch_id"`
	Name           string   `json:"name"`
	ParentBranchID string   `json:"parent_branch_id"`
	Priority       int      `json:"priority" validate:"min=0"`
	Tags           []string `json:"tags"`
}

// CreateBranch opens a branch on an active execution.
func (e *Execution) CreateBranch(ctx context.Context, executionID string, req CreateBranchRequest) (*models.ExecutionBranch, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, NewValidationError("CreateBranch", err.Error(), ErrInvalidRequest)
	}

	branch, err := e.manager.CreateBranch(ctx, executionID, execution.CreateBranchRequest{
		BranchID:       req.BranchID,
		Name:           req.Name,
		ParentBranchID: req.ParentBranchID,
		Priority:       req.Priority,
		Tags:           req.Tags,
	})
	if err != nil {
		switch {
		case execution.IsExecutionNotActive(err):
			return nil, e.notActive(ctx, "CreateBranch", executionID)
		case errors.Is(err, execution.ErrBranchExists):
			return nil, &ServiceError{Op: "CreateBranch", Code: CodeConflict, Err: ErrBranchExists}
		default:
			return nil, NewInternalError("CreateBranch", err)
		}
	}

	return branch, nil
}

// ListBranches returns the branches of an execution, live or persisted.
func (e *Execution) ListBranches(ctx context.Context, executionID string) ([]*models.ExecutionBranch, error) {
	branches, err := e.manager.ListBranches(ctx, executionID)
	if err != nil {
		if storage.IsExecutionNotFound(err) {
			return nil, NewNotFoundError("ListBranches",
				fmt.Sprintf("execution '%s' not found", executionID), ErrExecutionNotFound)
		}

		return nil, NewInternalError("ListBranches", err)
	}

	return branches, nil
}

// BranchProgress returns the live completion view of one branch.
func (e *Execution) BranchProgress(ctx context.Context, executionID, branchID string) (*models.BranchProgress, error) {
	progress, err := e.manager.GetBranchProgress(ctx, executionID, branchID)
	if err != nil {
		switch {
		case execution.IsExecutionNotActive(err):
			return nil, e.notActive(ctx, "BranchProgress", executionID)
		case execution.IsBranchNotFound(err):
			return nil, NewNotFoundError("BranchProgress",
				fmt.Sprintf("branch '%s' not found", branchID), ErrBranchNotFound)
		default:
			return nil, NewInternalError("BranchProgress", err)
		}
	}

	return progress, nil
}

// CancelBranch requests cancellation of one running branch.
func (e *Execution) CancelBranch(ctx context.Context, executionID, branchID string) error {
	if e.manager.CancelBranch(ctx, executionID, branchID) {
		return nil
	}

	// Distinguish an unknown execution from a branch that simply is not
	// cancellable anymore.
	if _, err := e.manager.GetExecutionProgress(ctx, executionID); err != nil {
		return e.notActive(ctx, "CancelBranch", executionID)
	}

	return &ServiceError{
		Op:      "CancelBranch",
		Code:    CodeConflict,
		Message: fmt.Sprintf("branch '%s' is not running", branchID),
		Err:     ErrBranchNotFound,
	}
}

// CompileResult is the dry-run compilation summary.
type CompileResult struct {
	WorkflowID string   `json:"workflow_id"`
	Valid      bool     `json:"valid"`
	NodeOrder  []string `json:"node_order,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Compile runs a dry-run compilation of a stored workflow: reference
// validation, cycle detection and plugin resolution without executing
// anything.
func (e *Execution) Compile(ctx context.Context, workflowID string) (*CompileResult, error) {
	workflow, err := e.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, NewNotFoundError("Compile",
			fmt.Sprintf("workflow '%s' not found", workflowID), ErrWorkflowNotFound)
	}

	executable, err := e.compiler.Compile(ctx, workflow)
	if err != nil {
		return &CompileResult{WorkflowID: workflowID, Valid: false, Error: err.Error()}, nil
	}

	return &CompileResult{
		WorkflowID: workflowID,
		Valid:      true,
		NodeOrder:  executable.NodeOrder,
	}, nil
}

// notActive reports whether the execution finished (conflict) or never
// existed (not found), so handlers map the right status code.
func (e *Execution) notActive(ctx context.Context, op, executionID string) error {
	if _, err := e.manager.GetExecution(ctx, executionID); err == nil {
		return &ServiceError{
			Op:      op,
			Code:    CodeNotActive,
			Message: fmt.Sprintf("execution '%s' already finished", executionID),
			Err:     ErrExecutionNotActive,
		}
	}

	return NewNotFoundError(op,
		fmt.Sprintf("execution '%s' not found", executionID), ErrExecutionNotFound)
}
