// Package redis provides Redis-backed execution storage. Each execution is
// one JSON value embedding its branches, with a set of execution ids as the
// listing index.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/storage"
	redis "github.com/redis/go-redis/v9"
)

const (
	executionKeyPrefix = "braid:executions:"
	executionIndexKey  = "braid:executions"

	connectTimeout = 5 * time.Second
)

// Storage implements storage.ExecutionStorage on a Redis server.
type Storage struct {
	client redis.UniversalClient
	logger *slog.Logger

	mu sync.Mutex // serializes read-modify-write cycles
}

// NewStorage connects to the Redis server at the given URL
// (redis://[user:password@]host:port[/db]) and verifies the connection.
func NewStorage(ctx context.Context, logger *slog.Logger, redisURL string) (*Storage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return &Storage{
		client: client,
		logger: logger.With("module", "redis_storage"),
	}, nil
}

func executionKey(executionID string) string {
	return executionKeyPrefix + executionID
}

// Close releases the client's connection pool.
func (s *Storage) Close(_ context.Context) error {
	return s.client.Close()
}

// HealthCheck pings the server.
func (s *Storage) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveExecution writes the record, embedded branches included, and indexes
// its id.
func (s *Storage) SaveExecution(ctx context.Context, record *models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeExecution(ctx, record)
}

// UpdateExecution rewrites an existing record; it fails when the record is
// absent.
func (s *Storage) UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.client.Exists(ctx, executionKey(record.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check execution %s: %w", record.ID, err)
	}

	if exists == 0 {
		return storage.NewExecutionError("UpdateExecution", record.ID, storage.ErrExecutionNotFound)
	}

	return s.writeExecution(ctx, record)
}

func (s *Storage) writeExecution(ctx context.Context, record *models.ExecutionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, executionKey(record.ID), data, 0)
	pipe.SAdd(ctx, executionIndexKey, record.ID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", record.ID, err)
	}

	return nil
}

// GetExecution reads one record by id.
func (s *Storage) GetExecution(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	return s.readExecution(ctx, executionID)
}

func (s *Storage) readExecution(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	body, err := s.client.Get(ctx, executionKey(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

// DeleteExecution removes a record and its index entry. Deleting a missing
// record is not an error.
func (s *Storage) DeleteExecution(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, executionKey(executionID))
	pipe.SRem(ctx, executionIndexKey, executionID)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", executionID, err)
	}

	return nil
}

// ListExecutions returns a filtered, sorted and paginated page of records.
func (s *Storage) ListExecutions(ctx context.Context, opts storage.ListExecutionsOptions) (*storage.ExecutionListResult, error) {
	opts, err := storage.NormalizeListOptions(opts)
	if err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, executionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list execution index: %w", err)
	}

	if len(ids) == 0 {
		return storage.Paginate(nil, opts.Offset, opts.Limit), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = executionKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	filtered := make([]*models.ExecutionRecord, 0, len(values))
	stale := make([]any, 0)

	for i, value := range values {
		body, ok := value.(string)
		if !ok {
			// Index entry without a value, evict it from the set.
			stale = append(stale, ids[i])

			continue
		}

		var record models.ExecutionRecord

		err = json.Unmarshal([]byte(body), &record)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution %s: %w", ids[i], err)
		}

		if storage.MatchesFilter(&record, opts) {
			filtered = append(filtered, &record)
		}
	}

	if len(stale) > 0 {
		err = s.client.SRem(ctx, executionIndexKey, stale...).Err()
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to evict stale index entries", "count", len(stale), "error", err)
		}
	}

	storage.SortRecords(filtered, opts.SortBy, opts.SortOrder)

	return storage.Paginate(filtered, opts.Offset, opts.Limit), nil
}

// SaveBranch upserts a branch into its execution's embedded set.
func (s *Storage) SaveBranch(ctx context.Context, branch *models.ExecutionBranch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeBranch(ctx, "SaveBranch", branch, false)
}

// UpdateBranch rewrites an existing branch; it fails when the branch is
// absent.
func (s *Storage) UpdateBranch(ctx context.Context, branch *models.ExecutionBranch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeBranch(ctx, "UpdateBranch", branch, true)
}

func (s *Storage) writeBranch(ctx context.Context, op string, branch *models.ExecutionBranch, mustExist bool) error {
	record, err := s.readExecution(ctx, branch.ExecutionID)
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

	return s.writeExecution(ctx, record)
}

// GetBranch returns one branch of one execution.
func (s *Storage) GetBranch(ctx context.Context, executionID, branchID string) (*models.ExecutionBranch, error) {
	record, err := s.readExecution(ctx, executionID)
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
func (s *Storage) ListBranches(ctx context.Context, executionID string) ([]*models.ExecutionBranch, error) {
	record, err := s.readExecution(ctx, executionID)
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
func (s *Storage) DeleteBranches(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readExecution(ctx, executionID)
	if err != nil {
		if storage.IsExecutionNotFound(err) {
			return storage.NewExecutionError("DeleteBranches", executionID, storage.ErrExecutionNotFound)
		}

		return err
	}

	record.Branches = make([]*models.ExecutionBranch, 0)

	return s.writeExecution(ctx, record)
}
