// Package storage provides the persistence abstraction for execution records
// and their branches.
package storage

import (
	"context"
	"time"

	"github.com/braidflow/braid/pkg/models"
)

// ExecutionStorage persists execution records and branches. Saving an
// execution persists its embedded branches too; saving a branch keeps the
// owning execution's embedded copy in sync. Save operations upsert, Update
// operations fail when the target record is absent. Implementations are safe
// for concurrent use.
type ExecutionStorage interface {
	SaveExecution(ctx context.Context, record *models.ExecutionRecord) error
	UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error
	GetExecution(ctx context.Context, executionID string) (*models.ExecutionRecord, error)
	DeleteExecution(ctx context.Context, executionID string) error
	ListExecutions(ctx context.Context, opts ListExecutionsOptions) (*ExecutionListResult, error)

	SaveBranch(ctx context.Context, branch *models.ExecutionBranch) error
	UpdateBranch(ctx context.Context, branch *models.ExecutionBranch) error
	GetBranch(ctx context.Context, executionID, branchID string) (*models.ExecutionBranch, error)
	ListBranches(ctx context.Context, executionID string) ([]*models.ExecutionBranch, error)
	DeleteBranches(ctx context.Context, executionID string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListExecutionsOptions filters, sorts and paginates execution listings.
// Tags matches records carrying every listed tag; DateFrom/DateTo bound
// CreatedAt inclusively.
type ListExecutionsOptions struct {
	WorkflowID  string
	Status      *models.ExecutionStatus
	OwnerID     string
	Tags        []string
	DateFrom    *time.Time
	DateTo      *time.Time
	HasBranches *bool
	SortBy      string // created_at, started_at or finished_at
	SortOrder   string // asc or desc
	Limit       int
	Offset      int
}

// ExecutionListResult is one page of executions.
type ExecutionListResult struct {
	Executions  []*models.ExecutionRecord
	TotalCount  int64
	HasNextPage bool
}
