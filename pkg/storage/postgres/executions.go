package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/storage"
)

const executionColumns = `
		id
	  , workflow_id
	  , status
	  , type
	  , input
	  , result
	  , error
	  , token_usage
	  , tags
	  , priority
	  , owner
	  , metadata
	  , completed_branch_count
	  , created_at
	  , started_at
	  , finished_at
`

// executionSortColumns is the allowlist mapping sort keys to columns.
var executionSortColumns = map[string]string{
	"created_at":  "created_at",
	"started_at":  "started_at",
	"finished_at": "finished_at",
}

// SaveExecution upserts the record and replaces its branch rows so the
// embedded set and the branch table stay in sync.
func (s *Storage) SaveExecution(ctx context.Context, record *models.ExecutionRecord) error {
	return s.persistExecution(ctx, record)
}

// UpdateExecution rewrites an existing record; it fails when the record is
// absent.
func (s *Storage) UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	var exists bool

	err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)", record.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check execution: %w", err)
	}

	if !exists {
		return storage.NewExecutionError("UpdateExecution", record.ID, storage.ErrExecutionNotFound)
	}

	return s.persistExecution(ctx, record)
}

func (s *Storage) persistExecution(ctx context.Context, record *models.ExecutionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inputJSON, err := json.Marshal(record.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tagsJSON, err := json.Marshal(record.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	executionQuery := `
		INSERT INTO executions (id, workflow_id, status, type, input, result, error,
token_usage, tags, priority, owner, metadata, completed_branch_count, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			status = EXCLUDED.status,
			type = EXCLUDED.type,
			input = EXCLUDED.input,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			token_usage = EXCLUDED.token_usage,
			tags = EXCLUDED.tags,
			priority = EXCLUDED.priority,
			owner = EXCLUDED.owner,
			metadata = EXCLUDED.metadata,
			completed_branch_count = EXCLUDED.completed_branch_count,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = tx.ExecContext(ctx, executionQuery,
		record.ID,
		record.WorkflowID,
		record.Status,
		record.Type,
		inputJSON,
		resultJSON,
		record.Error,
		record.TokenUsage,
		tagsJSON,
		record.Priority,
		record.OwnerID,
		metadataJSON,
		record.CompletedBranchCount,
		record.CreatedAt,
		record.StartedAt,
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution base: %w", err)
	}

	// Replace branch rows with the embedded set (for updates).
	_, err = tx.ExecContext(ctx, "DELETE FROM execution_branches WHERE execution_id = $1", record.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing branches: %w", err)
	}

	for _, branch := range record.Branches {
		err = insertBranch(ctx, tx, branch)
		if err != nil {
			return fmt.Errorf("failed to save branch %s: %w", branch.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetExecution returns one record with its branches embedded.
func (s *Storage) GetExecution(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	query := "SELECT " + executionColumns + " FROM executions WHERE id = $1"

	row := s.db.QueryRowContext(ctx, query, executionID)

	record, err := scanExecutionBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NewExecutionError("GetExecution", executionID, storage.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	record.Branches, err = s.loadBranches(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution branches: %w", err)
	}

	return record, nil
}

// DeleteExecution removes the record and, via cascade, its branches.
// Deleting a missing record is not an error.
func (s *Storage) DeleteExecution(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", executionID)
	if err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}

	return nil
}

// ListExecutions returns a filtered, sorted and paginated page of records.
func (s *Storage) ListExecutions(ctx context.Context, opts storage.ListExecutionsOptions) (*storage.ExecutionListResult, error) {
	opts, err := storage.NormalizeListOptions(opts)
	if err != nil {
		return nil, err
	}

	sortColumn, ok := executionSortColumns[opts.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrInvalidSortField, opts.SortBy)
	}

	direction := "ASC"
	if opts.SortOrder == "desc" {
		direction = "DESC"
	}

	where := "WHERE 1=1"
	args := make([]any, 0, 6)

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		where += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if opts.OwnerID != "" {
		args = append(args, opts.OwnerID)
		where += fmt.Sprintf(" AND owner = $%d", len(args))
	}

	if len(opts.Tags) > 0 {
		tagsJSON, err := json.Marshal(opts.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags filter: %w", err)
		}

		args = append(args, tagsJSON)
		where += fmt.Sprintf(" AND tags @> $%d", len(args))
	}

	if opts.DateFrom != nil {
		args = append(args, *opts.DateFrom)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	if opts.DateTo != nil {
		args = append(args, *opts.DateTo)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	if opts.HasBranches != nil {
		clause := " AND EXISTS (SELECT 1 FROM execution_branches b WHERE b.execution_id = executions.id)"
		if !*opts.HasBranches {
			clause = " AND NOT EXISTS (SELECT 1 FROM execution_branches b WHERE b.execution_id = executions.id)"
		}

		where += clause
	}

	var totalCount int64

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM executions %s ORDER BY %s %s NULLS FIRST LIMIT $%d OFFSET $%d",
		executionColumns, where, sortColumn, direction, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer s.closeRows(ctx, rows)

	executions := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		record, err := scanExecutionBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	for _, record := range executions {
		record.Branches, err = s.loadBranches(ctx, record.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution branches: %w", err)
		}
	}

	return &storage.ExecutionListResult{
		Executions:  executions,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(executions)) < totalCount,
	}, nil
}

func scanExecutionBase(scanner interface {
	Scan(dest ...any) error
}) (*models.ExecutionRecord, error) {
	var (
		record                 models.ExecutionRecord
		inputJSON, resultJSON  []byte
		tagsJSON, metadataJSON []byte
	)

	err := scanner.Scan(
		&record.ID,
		&record.WorkflowID,
		&record.Status,
		&record.Type,
		&inputJSON,
		&resultJSON,
		&record.Error,
		&record.TokenUsage,
		&tagsJSON,
		&record.Priority,
		&record.OwnerID,
		&metadataJSON,
		&record.CompletedBranchCount,
		&record.CreatedAt,
		&record.StartedAt,
		&record.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if inputJSON != nil {
		err := json.Unmarshal(inputJSON, &record.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if resultJSON != nil {
		err := json.Unmarshal(resultJSON, &record.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	if tagsJSON != nil {
		err := json.Unmarshal(tagsJSON, &record.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	if metadataJSON != nil {
		err := json.Unmarshal(metadataJSON, &record.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &record, nil
}
