package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/storage"
)

// MockExecutionStorage is a mock implementation of the
// storage.ExecutionStorage interface.
type MockExecutionStorage struct {
	mock.Mock
}

func (m *MockExecutionStorage) SaveExecution(ctx context.Context, record *models.ExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockExecutionStorage) UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockExecutionStorage) GetExecution(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRecord), args.Error(1)
}

func (m *MockExecutionStorage) DeleteExecution(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)

	return args.Error(0)
}

func (m *MockExecutionStorage) ListExecutions(ctx context.Context, opts storage.ListExecutionsOptions) (*storage.ExecutionListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*storage.ExecutionListResult), args.Error(1)
}

func (m *MockExecutionStorage) SaveBranch(ctx context.Context, branch *models.ExecutionBranch) error {
	args := m.Called(ctx, branch)

	return args.Error(0)
}

func (m *MockExecutionStorage) UpdateBranch(ctx context.Context, branch *models.ExecutionBranch) error {
	args := m.Called(ctx, branch)

	return args.Error(0)
}

func (m *MockExecutionStorage) GetBranch(ctx context.Context, executionID, branchID string) (*models.ExecutionBranch, error) {
	args := m.Called(ctx, executionID, branchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionBranch), args.Error(1)
}

func (m *MockExecutionStorage) ListBranches(ctx context.Context, executionID string) ([]*models.ExecutionBranch, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionBranch), args.Error(1)
}

func (m *MockExecutionStorage) DeleteBranches(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)

	return args.Error(0)
}

func (m *MockExecutionStorage) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockExecutionStorage) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
