package storage

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/braidflow/braid/pkg/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var listSortFields = map[string]bool{
	"created_at":  true,
	"started_at":  true,
	"finished_at": true,
}

// NormalizeListOptions applies the default page size and sort settings and
// validates the sort field against the allowlist.
func NormalizeListOptions(opts ListExecutionsOptions) (ListExecutionsOptions, error) {
	if opts.Limit <= 0 || opts.Limit > maxListLimit {
		opts.Limit = defaultListLimit
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	if !listSortFields[opts.SortBy] {
		return opts, fmt.Errorf("%w: %s", ErrInvalidSortField, opts.SortBy)
	}

	return opts, nil
}

// MatchesFilter reports whether the record passes every filter in opts.
func MatchesFilter(record *models.ExecutionRecord, opts ListExecutionsOptions) bool {
	if opts.WorkflowID != "" && record.WorkflowID != opts.WorkflowID {
		return false
	}

	if opts.Status != nil && record.Status != *opts.Status {
		return false
	}

	if opts.OwnerID != "" && record.OwnerID != opts.OwnerID {
		return false
	}

	for _, tag := range opts.Tags {
		if !slices.Contains(record.Tags, tag) {
			return false
		}
	}

	if opts.DateFrom != nil && record.CreatedAt.Before(*opts.DateFrom) {
		return false
	}

	if opts.DateTo != nil && record.CreatedAt.After(*opts.DateTo) {
		return false
	}

	if opts.HasBranches != nil && (len(record.Branches) > 0) != *opts.HasBranches {
		return false
	}

	return true
}

// SortRecords orders records in place by a validated sort field.
func SortRecords(records []*models.ExecutionRecord, sortBy, sortOrder string) {
	sort.Slice(records, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "started_at":
			less = timeBefore(records[i].StartedAt, records[j].StartedAt)
		case "finished_at":
			less = timeBefore(records[i].FinishedAt, records[j].FinishedAt)
		default:
			less = records[i].CreatedAt.Before(records[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// timeBefore orders nil timestamps first so unstarted records group together.
func timeBefore(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}

// Paginate slices one page out of an already filtered and sorted result set.
func Paginate(records []*models.ExecutionRecord, offset, limit int) *ExecutionListResult {
	totalCount := int64(len(records))

	if offset >= len(records) {
		return &ExecutionListResult{
			Executions:  make([]*models.ExecutionRecord, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}
	}

	end := offset + limit
	if end > len(records) {
		end = len(records)
	}

	return &ExecutionListResult{
		Executions:  records[offset:end],
		TotalCount:  totalCount,
		HasNextPage: end < len(records),
	}
}
