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

const branchColumns = `
		id
	  , execution_id
	  , parent_branch_id
	  , name
	  , status
	  , node_ids
	  , completed_node_ids
	  , result
	  , error
	  , priority
	  , tags
	  , relevance_score
	  , created_at
	  , started_at
	  , finished_at
`

// SaveBranch upserts one branch row. The executions table is the source of
// the embedded set, so no extra sync step is needed here.
func (s *Storage) SaveBranch(ctx context.Context, branch *models.ExecutionBranch) error {
	var exists bool

	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)", branch.ExecutionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check execution existence: %w", err)
	}

	if !exists {
		return storage.NewBranchError("SaveBranch", branch.ExecutionID, branch.ID, storage.ErrExecutionNotFound)
	}

	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}

	return upsertBranch(ctx, s.db, branch)
}

// UpdateBranch rewrites an existing branch row; it fails when the branch is
// absent.
func (s *Storage) UpdateBranch(ctx context.Context, branch *models.ExecutionBranch) error {
	var exists bool

	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM execution_branches WHERE execution_id = $1 AND id = $2)",
		branch.ExecutionID, branch.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check branch existence: %w", err)
	}

	if !exists {
		return storage.NewBranchError("UpdateBranch", branch.ExecutionID, branch.ID, storage.ErrBranchNotFound)
	}

	return upsertBranch(ctx, s.db, branch)
}

// GetBranch returns one branch of one execution.
func (s *Storage) GetBranch(ctx context.Context, executionID, branchID string) (*models.ExecutionBranch, error) {
	query := "SELECT " + branchColumns + " FROM execution_branches WHERE execution_id = $1 AND id = $2"

	row := s.db.QueryRowContext(ctx, query, executionID, branchID)

	branch, err := scanBranch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NewBranchError("GetBranch", executionID, branchID, storage.ErrBranchNotFound)
		}

		return nil, fmt.Errorf("failed to scan branch: %w", err)
	}

	return branch, nil
}

// ListBranches returns every branch of an execution, creation order.
func (s *Storage) ListBranches(ctx context.Context, executionID string) ([]*models.ExecutionBranch, error) {
	var exists bool

	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)", executionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check execution existence: %w", err)
	}

	if !exists {
		return nil, storage.NewExecutionError("ListBranches", executionID, storage.ErrExecutionNotFound)
	}

	return s.loadBranches(ctx, executionID)
}

func (s *Storage) loadBranches(ctx context.Context, executionID string) ([]*models.ExecutionBranch, error) {
	query := "SELECT " + branchColumns + " FROM execution_branches WHERE execution_id = $1 ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}

	defer s.closeRows(ctx, rows)

	branches := make([]*models.ExecutionBranch, 0)

	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}

		branches = append(branches, branch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating branches: %w", err)
	}

	return branches, nil
}

// DeleteBranches removes every branch of an execution.
func (s *Storage) DeleteBranches(ctx context.Context, executionID string) error {
	var exists bool

	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)", executionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check execution existence: %w", err)
	}

	if !exists {
		return storage.NewExecutionError("DeleteBranches", executionID, storage.ErrExecutionNotFound)
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM execution_branches WHERE execution_id = $1", executionID)
	if err != nil {
		return fmt.Errorf("failed to delete branches: %w", err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertBranch(ctx context.Context, db execer, branch *models.ExecutionBranch) error {
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}

	return execBranchWrite(ctx, db, branch, `
		INSERT INTO execution_branches (id, execution_id, parent_branch_id, name, status,
node_ids, completed_node_ids, result, error, priority, tags, relevance_score, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`)
}

func upsertBranch(ctx context.Context, db execer, branch *models.ExecutionBranch) error {
	return execBranchWrite(ctx, db, branch, `
		INSERT INTO execution_branches (id, execution_id, parent_branch_id, name, status,
node_ids, completed_node_ids, result, error, priority, tags, relevance_score, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (execution_id, id) DO UPDATE SET
			parent_branch_id = EXCLUDED.parent_branch_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			node_ids = EXCLUDED.node_ids,
			completed_node_ids = EXCLUDED.completed_node_ids,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			priority = EXCLUDED.priority,
			tags = EXCLUDED.tags,
			relevance_score = EXCLUDED.relevance_score,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`)
}

func execBranchWrite(ctx context.Context, db execer, branch *models.ExecutionBranch, query string) error {
	nodeIDsJSON, err := json.Marshal(branch.NodeIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal node ids: %w", err)
	}

	completedJSON, err := json.Marshal(branch.CompletedNodeIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal completed node ids: %w", err)
	}

	resultJSON, err := json.Marshal(branch.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tagsJSON, err := json.Marshal(branch.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = db.ExecContext(ctx, query,
		branch.ID,
		branch.ExecutionID,
		branch.ParentBranchID,
		branch.Name,
		branch.Status,
		nodeIDsJSON,
		completedJSON,
		resultJSON,
		branch.Error,
		branch.Priority,
		tagsJSON,
		branch.RelevanceScore,
		branch.CreatedAt,
		branch.StartedAt,
		branch.FinishedAt,
	)
	if err != nil {
		return err
	}

	return nil
}

func scanBranch(scanner interface {
	Scan(dest ...any) error
}) (*models.ExecutionBranch, error) {
	var (
		branch                     models.ExecutionBranch
		nodeIDsJSON, completedJSON []byte
		resultJSON, tagsJSON       []byte
	)

	err := scanner.Scan(
		&branch.ID,
		&branch.ExecutionID,
		&branch.ParentBranchID,
		&branch.Name,
		&branch.Status,
		&nodeIDsJSON,
		&completedJSON,
		&resultJSON,
		&branch.Error,
		&branch.Priority,
		&tagsJSON,
		&branch.RelevanceScore,
		&branch.CreatedAt,
		&branch.StartedAt,
		&branch.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if nodeIDsJSON != nil {
		err := json.Unmarshal(nodeIDsJSON, &branch.NodeIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node ids: %w", err)
		}
	}

	if completedJSON != nil {
		err := json.Unmarshal(completedJSON, &branch.CompletedNodeIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal completed node ids: %w", err)
		}
	}

	if resultJSON != nil {
		err := json.Unmarshal(resultJSON, &branch.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	if tagsJSON != nil {
		err := json.Unmarshal(tagsJSON, &branch.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &branch, nil
}
