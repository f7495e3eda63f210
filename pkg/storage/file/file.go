// Package file provides file-based execution storage. Each execution is one
// JSON document embedding its branches, which keeps the embedded-branch sync
// rule trivial: every write rewrites the whole record.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/storage"
)

// Storage implements storage.ExecutionStorage on the local file system.
type Storage struct {
	root string

	mu sync.Mutex // serializes read-modify-write cycles
}

// NewStorage creates file storage rooted at the given directory.
func NewStorage(root string) *Storage {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Storage{root: cleanRoot}
}

func (s *Storage) executionPath(executionID string) string {
	return filepath.Clean(path.Join(s.root, "executions", executionID+".json"))
}

// Close performs any necessary cleanup. For file storage there is nothing to
// clean up.
func (s *Storage) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (s *Storage) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// SaveExecution writes the record, embedded branches included.
func (s *Storage) SaveExecution(_ context.Context, record *models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeExecution(record)
}

// UpdateExecution rewrites an existing record; it fails when the record is
// absent.
func (s *Storage) UpdateExecution(_ context.Context, record *models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.executionPath(record.ID)); os.IsNotExist(err) {
		return storage.NewExecutionError("UpdateExecution", record.ID, storage.ErrExecutionNotFound)
	}

	return s.writeExecution(record)
}

func (s *Storage) writeExecution(record *models.ExecutionRecord) error {
	err := os.MkdirAll(path.Join(s.root, "executions"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	return os.WriteFile(s.executionPath(record.ID), data, 0600)
}

// GetExecution reads one record by id.
func (s *Storage) GetExecution(_ context.Context, executionID string) (*models.ExecutionRecord, error) {
	return s.readExecution(executionID)
}

func (s *Storage) readExecution(executionID string) (*models.ExecutionRecord, error) {
	body, err := os.ReadFile(s.executionPath(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewExecutionError("GetExecution", executionID, storage.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", executionID, err)
	}

	var record models.ExecutionRecord

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	return &record, nil
}

// DeleteExecution removes a record. Deleting a missing record is not an
// error.
func (s *Storage) DeleteExecution(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.executionPath(executionID))
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", executionID, err)
	}

	return nil
}

// ListExecutions returns a filtered, sorted and paginated page of records.
func (s *Storage) ListExecutions(_ context.Context, opts storage.ListExecutionsOptions) (*storage.ExecutionListResult, error) {
	opts, err := storage.NormalizeListOptions(opts)
	if err != nil {
		return nil, err
	}

	root := os.DirFS(path.Join(s.root, "executions"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	filtered := make([]*models.ExecutionRecord, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		executionID := file[:len(file)-5]

		record, err := s.readExecution(executionID)
		if err != nil {
			if storage.IsExecutionNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
		}

		if storage.MatchesFilter(record, opts) {
			filtered = append(filtered, record)
		}
	}

	storage.SortRecords(filtered, opts.SortBy, opts.SortOrder)

	return storage.Paginate(filtered, opts.Offset, opts.Limit), nil
}

// SaveBranch upserts a branch into its execution's embedded set.
func (s *Storage) SaveBranch(_ context.Context, branch *models.ExecutionBranch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeBranch("SaveBranch", branch, false)
}

// UpdateBranch rewrites an existing branch; it fails when the branch is
// absent.
func (s *Storage) UpdateBranch(_ context.Context, branch *models.ExecutionBranch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeBranch("UpdateBranch", branch, true)
}

func (s *Storage) writeBranch(op string, branch *models.ExecutionBranch, mustExist bool) error {
	record, err := s.readExecution(branch.ExecutionID)
	if err != nil {
		if storage.IsExecutionNotFound(err) {
			return storage.NewBranchError(op, branch.ExecutionID, branch.ID, storage.ErrExecutionNotFound)
		}

		return err
	}

	replaced := false

	for i, existing := range record.Branches {
		if existing.ID == branch.ID {
			record.Branches[i] = branch
			replaced = true

			break
		}
	}

	if !replaced {
		if mustExist {
			return storage.NewBranchError(op, branch.ExecutionID, branch.ID, storage.ErrBranchNotFound)
		}

		record.Branches = append(record.Branches, branch)
	}

	return s.writeExecution(record)
}

// GetBranch returns one branch of one execution.
func (s *Storage) GetBranch(_ context.Context, executionID, branchID string) (*models.ExecutionBranch, error) {
	record, err := s.readExecution(executionID)
	if err != nil {
		return nil, err
	}

	branch := record.BranchByID(branchID)
	if branch == nil {
		return nil, storage.NewBranchError("GetBranch", executionID, branchID, storage.ErrBranchNotFound)
	}

	return branch, nil
}

// ListBranches returns every branch of an execution, creation order.
func (s *Storage) ListBranches(_ context.Context, executionID string) ([]*models.ExecutionBranch, error) {
	record, err := s.readExecution(executionID)
	if err != nil {
		return nil, err
	}

	branches := make([]*models.ExecutionBranch, len(record.Branches))
	copy(branches, record.Branches)

	sort.SliceStable(branches, func(i, j int) bool {
		return branches[i].CreatedAt.Before(branches[j].CreatedAt)
	})

	return branches, nil
}

// DeleteBranches removes every branch of an execution.
func (s *Storage) DeleteBranches(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readExecution(executionID)
	if err != nil {
		if storage.IsExecutionNotFound(err) {
			return storage.NewExecutionError("DeleteBranches", executionID, storage.ErrExecutionNotFound)
		}

		return err
	}

	record.Branches = make([]*models.ExecutionBranch, 0)

	return s.writeExecution(record)
}
