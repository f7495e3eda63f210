package file

import (
	"context"
	"testing"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/storage"
	"github.com/braidflow/braid/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_SaveAndGetExecution(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	record := testutil.CreateTestExecution("exec-1")
	record.Input = map[string]any{"query": "streams"}
	record.TokenUsage = 12

	require.NoError(t, store.SaveExecution(ctx, record))

	loaded, err := store.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, loaded.ID)
	assert.Equal(t, record.WorkflowID, loaded.WorkflowID)
	assert.Equal(t, record.Status, loaded.Status)
	assert.Equal(t, 12, loaded.TokenUsage)
	assert.Equal(t, map[string]any{"query": "streams"}, loaded.Input)
}

func TestStorage_GetExecution_NotFound(t *testing.T) {
	store := NewStorage(t.TempDir())

	_, err := store.GetExecution(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, storage.IsExecutionNotFound(err))
}

func TestStorage_SaveExecution_PersistsEmbeddedBranches(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	record := testutil.CreateTestExecution("exec-2")
	record.Branches = []*models.ExecutionBranch{
		testutil.CreateTestBranch("exec-2", testutil.WithBranchName("Main Branch")),
	}

	require.NoError(t, store.SaveExecution(ctx, record))

	loaded, err := store.GetExecution(ctx, "exec-2")
	require.NoError(t, err)
	require.Len(t, loaded.Branches, 1)
	assert.Equal(t, "Main Branch", loaded.Branches[0].Name)
}

func TestStorage_SaveBranch_SyncsEmbeddedCopy(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	record := testutil.CreateTestExecution("exec-3")
	require.NoError(t, store.SaveExecution(ctx, record))

	branch := testutil.CreateTestBranch("exec-3", testutil.WithBranchName("Explore"))
	require.NoError(t, store.SaveBranch(ctx, branch))

	loadedBranch, err := store.GetBranch(ctx, "exec-3", branch.ID)
	require.NoError(t, err)
	assert.Equal(t, "Explore", loadedBranch.Name)

	// The embedded copy on the execution is updated too.
	loaded, err := store.GetExecution(ctx, "exec-3")
	require.NoError(t, err)
	require.Len(t, loaded.Branches, 1)
	assert.Equal(t, branch.ID, loaded.Branches[0].ID)

	branch.Status = models.ExecutionStatusCompleted
	require.NoError(t, store.SaveBranch(ctx, branch))

	loaded, err = store.GetExecution(ctx, "exec-3")
	require.NoError(t, err)
	require.Len(t, loaded.Branches, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, loaded.Branches[0].Status)
}

func TestStorage_SaveBranch_MissingExecution(t *testing.T) {
	store := NewStorage(t.TempDir())

	branch := testutil.CreateTestBranch("missing-exec")
	err := store.SaveBranch(context.Background(), branch)
	require.Error(t, err)
	assert.True(t, storage.IsExecutionNotFound(err))
}

func TestStorage_GetBranch_NotFound(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveExecution(ctx, testutil.CreateTestExecution("exec-4")))

	_, err := store.GetBranch(ctx, "exec-4", "missing-branch")
	require.Error(t, err)
	assert.True(t, storage.IsBranchNotFound(err))
}

func TestStorage_ListBranches_CreationOrder(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveExecution(ctx, testutil.CreateTestExecution("exec-5")))

	first := testutil.CreateTestBranch("exec-5", testutil.WithBranchName("first"))
	first.CreatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	second := testutil.CreateTestBranch("exec-5", testutil.WithBranchName("second"))
	second.CreatedAt = time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)

	// Save out of order; listing is by creation time.
	require.NoError(t, store.SaveBranch(ctx, second))
	require.NoError(t, store.SaveBranch(ctx, first))

	branches, err := store.ListBranches(ctx, "exec-5")
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.Equal(t, "first", branches[0].Name)
	assert.Equal(t, "second", branches[1].Name)
}

func TestStorage_DeleteExecution(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveExecution(ctx, testutil.CreateTestExecution("exec-6")))
	require.NoError(t, store.DeleteExecution(ctx, "exec-6"))

	_, err := store.GetExecution(ctx, "exec-6")
	assert.True(t, storage.IsExecutionNotFound(err))

	// Deleting a missing execution is not an error.
	require.NoError(t, store.DeleteExecution(ctx, "exec-6"))
}

func TestStorage_ListExecutions_FilterSortPaginate(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, spec := range []struct {
		id         string
		workflowID string
		status     models.ExecutionStatus
	}{
		{"exec-a", "wf-1", models.ExecutionStatusCompleted},
		{"exec-b", "wf-1", models.ExecutionStatusFailed},
		{"exec-c", "wf-2", models.ExecutionStatusCompleted},
		{"exec-d", "wf-1", models.ExecutionStatusCompleted},
	} {
		record := testutil.CreateTestExecution(spec.id,
			testutil.WithExecutionWorkflowID(spec.workflowID),
			testutil.WithExecutionStatus(spec.status))
		record.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		started := record.CreatedAt.Add(time.Minute)
		record.StartedAt = &started

		require.NoError(t, store.SaveExecution(ctx, record))
	}

	completed := models.ExecutionStatusCompleted

	result, err := store.ListExecutions(ctx, storage.ListExecutionsOptions{
		WorkflowID: "wf-1",
		Status:     &completed,
		SortBy:     "started_at",
		SortOrder:  "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)
	require.Len(t, result.Executions, 2)
	assert.Equal(t, "exec-a", result.Executions[0].ID)
	assert.Equal(t, "exec-d", result.Executions[1].ID)
	assert.False(t, result.HasNextPage)

	// Pagination.
	page, err := store.ListExecutions(ctx, storage.ListExecutionsOptions{
		SortBy:    "created_at",
		SortOrder: "asc",
		Limit:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.TotalCount)
	require.Len(t, page.Executions, 2)
	assert.Equal(t, "exec-a", page.Executions[0].ID)
	assert.True(t, page.HasNextPage)

	page, err = store.ListExecutions(ctx, storage.ListExecutionsOptions{
		SortBy:    "created_at",
		SortOrder: "asc",
		Limit:     2,
		Offset:    2,
	})
	require.NoError(t, err)
	require.Len(t, page.Executions, 2)
	assert.Equal(t, "exec-c", page.Executions[0].ID)
	assert.False(t, page.HasNextPage)
}

func TestStorage_UpdateExecution(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	record := testutil.CreateTestExecution("exec-upd")
	err := store.UpdateExecution(ctx, record)
	require.Error(t, err)
	assert.True(t, storage.IsExecutionNotFound(err))

	require.NoError(t, store.SaveExecution(ctx, record))

	record.Status = models.ExecutionStatusCompleted
	require.NoError(t, store.UpdateExecution(ctx, record))

	loaded, err := store.GetExecution(ctx, "exec-upd")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, loaded.Status)
}

func TestStorage_UpdateBranch(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveExecution(ctx, testutil.CreateTestExecution("exec-bupd")))

	branch := testutil.CreateTestBranch("exec-bupd")
	err := store.UpdateBranch(ctx, branch)
	require.Error(t, err)
	assert.True(t, storage.IsBranchNotFound(err))

	require.NoError(t, store.SaveBranch(ctx, branch))

	branch.Status = models.ExecutionStatusFailed
	branch.Error = "simulated"
	require.NoError(t, store.UpdateBranch(ctx, branch))

	loaded, err := store.GetBranch(ctx, "exec-bupd", branch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, loaded.Status)
	assert.Equal(t, "simulated", loaded.Error)
}

func TestStorage_DeleteBranches(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	err := store.DeleteBranches(ctx, "missing")
	assert.True(t, storage.IsExecutionNotFound(err))

	require.NoError(t, store.SaveExecution(ctx, testutil.CreateTestExecution("exec-bdel")))
	require.NoError(t, store.SaveBranch(ctx, testutil.CreateTestBranch("exec-bdel")))
	require.NoError(t, store.SaveBranch(ctx, testutil.CreateTestBranch("exec-bdel")))

	require.NoError(t, store.DeleteBranches(ctx, "exec-bdel"))

	branches, err := store.ListBranches(ctx, "exec-bdel")
	require.NoError(t, err)
	assert.Empty(t, branches)

	loaded, err := store.GetExecution(ctx, "exec-bdel")
	require.NoError(t, err)
	assert.Empty(t, loaded.Branches)
}

func TestStorage_ListExecutions_ExtendedFilters(t *testing.T) {
	store := NewStorage(t.TempDir())
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tagged := testutil.CreateTestExecution("exec-tagged")
	tagged.Tags = []string{"research", "deep"}
	tagged.CreatedAt = base
	tagged.Branches = []*models.ExecutionBranch{testutil.CreateTestBranch("exec-tagged")}
	require.NoError(t, store.SaveExecution(ctx, tagged))

	plain := testutil.CreateTestExecution("exec-plain")
	plain.Tags = []string{"research"}
	plain.CreatedAt = base.Add(48 * time.Hour)
	require.NoError(t, store.SaveExecution(ctx, plain))

	// Tag filter requires every listed tag.
	result, err := store.ListExecutions(ctx, storage.ListExecutionsOptions{Tags: []string{"research", "deep"}})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "exec-tagged", result.Executions[0].ID)

	result, err = store.ListExecutions(ctx, storage.ListExecutionsOptions{Tags: []string{"research"}})
	require.NoError(t, err)
	assert.Len(t, result.Executions, 2)

	// Creation date window.
	from := base.Add(24 * time.Hour)

	result, err = store.ListExecutions(ctx, storage.ListExecutionsOptions{DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "exec-plain", result.Executions[0].ID)

	to := base.Add(24 * time.Hour)

	result, err = store.ListExecutions(ctx, storage.ListExecutionsOptions{DateTo: &to})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "exec-tagged", result.Executions[0].ID)

	// Branch presence.
	hasBranches := true

	result, err = store.ListExecutions(ctx, storage.ListExecutionsOptions{HasBranches: &hasBranches})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "exec-tagged", result.Executions[0].ID)

	hasBranches = false

	result, err = store.ListExecutions(ctx, storage.ListExecutionsOptions{HasBranches: &hasBranches})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "exec-plain", result.Executions[0].ID)
}

func TestStorage_ListExecutions_InvalidSortField(t *testing.T) {
	store := NewStorage(t.TempDir())

	tests := []struct {
		name    string
		sortBy  string
		wantErr error
	}{
		{
			name:    "invalid sort field should return ErrInvalidSortField",
			sortBy:  "invalid_field",
			wantErr: storage.ErrInvalidSortField,
		},
		{
			name:    "sql injection attempt should return ErrInvalidSortField",
			sortBy:  "id; DROP TABLE executions; --",
			wantErr: storage.ErrInvalidSortField,
		},
		{
			name:   "valid sort field started_at should not return error",
			sortBy: "started_at",
		},
		{
			name:   "valid sort field finished_at should not return error",
			sortBy: "finished_at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ListExecutions(context.Background(), storage.ListExecutionsOptions{
				SortBy: tt.sortBy,
			})

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStorage_ListExecutions_EmptyDirectory(t *testing.T) {
	store := NewStorage(t.TempDir())

	result, err := store.ListExecutions(context.Background(), storage.ListExecutionsOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Executions)
	assert.Equal(t, int64(0), result.TotalCount)
	assert.False(t, result.HasNextPage)
}

func TestStorage_HealthCheck(t *testing.T) {
	dir := t.TempDir()

	store := NewStorage(dir)
	require.NoError(t, store.HealthCheck(context.Background()))

	missing := NewStorage(dir + "/does-not-exist")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
