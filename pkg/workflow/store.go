// Package workflow provides the workflow definition store. Definitions are
// JSON documents on disk, one file per workflow, separate from execution
// storage: definitions describe what can run, execution records describe
// what did.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/braidflow/braid/pkg/models"
)

// ErrWorkflowNotFound is returned when no definition exists for an id.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Store keeps workflow definitions as JSON files under <root>/workflows/.
type Store struct {
	root     string
	validate *validator.Validate

	mu sync.Mutex // serializes read-modify-write cycles
}

// NewStore creates a definition store rooted at the given directory.
func NewStore(root string) *Store {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Store{
		root:     cleanRoot,
		validate: validator.New(),
	}
}

func (s *Store) workflowPath(id string) string {
	return filepath.Clean(path.Join(s.root, "workflows", id+".json"))
}

// HealthCheck verifies the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// FetchByID reads one workflow definition.
func (s *Store) FetchByID(_ context.Context, id string) (*models.Workflow, error) {
	return s.readWorkflow(id)
}

// FetchAll returns every stored definition, sorted by name.
func (s *Store) FetchAll(_ context.Context) ([]*models.Workflow, error) {
	root := os.DirFS(path.Join(s.root, "workflows"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflow, err := s.readWorkflow(file[:len(file)-5])
		if err != nil {
			if errors.Is(err, ErrWorkflowNotFound) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].Name < workflows[j].Name
	})

	return workflows, nil
}

// Save validates and writes a definition. A missing id is generated; the
// created timestamp is preserved on rewrite.
func (s *Store) Save(_ context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, errors.New("workflow is required")
	}

	if err := s.validate.Struct(workflow); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	now := time.Now().UTC()

	existing, err := s.readWorkflow(workflow.ID)
	if err == nil {
		workflow.CreatedAt = existing.CreatedAt
	} else {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := os.MkdirAll(path.Join(s.root, "workflows"), 0750); err != nil {
		return nil, fmt.Errorf("failed to create workflows directory: %w", err)
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	if err := os.WriteFile(s.workflowPath(workflow.ID), data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write workflow %s: %w", workflow.ID, err)
	}

	return workflow, nil
}

// Delete removes a definition.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.workflowPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}

		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}

func (s *Store) readWorkflow(id string) (*models.Workflow, error) {
	body, err := os.ReadFile(s.workflowPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	if err := json.Unmarshal(body, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

// LoadFile reads and validates one workflow definition from an arbitrary
// path. Used by the one-shot runner, which takes workflow files directly.
func LoadFile(filePath string) (*models.Workflow, error) {
	body, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", filePath, err)
	}

	var workflow models.Workflow

	if err := json.Unmarshal(body, &workflow); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", filePath, err)
	}

	if workflow.ID == "" {
		workflow.ID = strings.TrimSuffix(filepath.Base(filePath), ".json")
	}

	if err := validator.New().Struct(&workflow); err != nil {
		return nil, fmt.Errorf("invalid workflow in %s: %w", filePath, err)
	}

	return &workflow, nil
}
