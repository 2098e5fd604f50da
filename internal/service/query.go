package service

import (
	"context"
	"fmt"

	"github.com/merchantpay/ledger-service/internal/domain"
	"github.com/merchantpay/ledger-service/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// SortField names a ledger column callers may order by. Anything else
// falls back to entry date.
type SortField string

const (
	SortByEntryDate SortField = "entryDate"
	SortByAmount    SortField = "amount"
	SortByCreatedAt SortField = "createdAt"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type ListEntriesRequest struct {
	Filter   repository.EntryFilter
	Page     int
	PageSize int
	SortBy   SortField
	SortDir  SortDirection
}

type EntryPage struct {
	Entries  []domain.LedgerEntry
	Total    int
	Page     int
	PageSize int
}

type queryLedgerRepo interface {
	List(ctx context.Context, f repository.EntryFilter, opts repository.ListOptions) ([]domain.LedgerEntry, int, error)
}

// QueryService is read-only paginated access over the ledger store for
// reporting. Absent filters mean no constraint.
type QueryService struct {
	ledger queryLedgerRepo
}

func NewQueryService(ledger queryLedgerRepo) *QueryService {
	return &QueryService{ledger: ledger}
}

func (s *QueryService) ListEntries(ctx context.Context, req ListEntriesRequest) (*EntryPage, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	opts := repository.ListOptions{
		SortColumn: sortColumn(req.SortBy),
		Descending: req.SortDir != SortAsc,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	}

	entries, total, err := s.ledger.List(ctx, req.Filter, opts)
	if err != nil {
		return nil, fmt.Errorf("ListEntries: %w", err)
	}

	return &EntryPage{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// sortColumn whitelists the ORDER BY column; the repository interpolates
// it into query text, so it must never come straight from a caller.
func sortColumn(f SortField) string {
	switch f {
	case SortByAmount:
		return "amount"
	case SortByCreatedAt:
		return "created_at"
	case SortByEntryDate:
		return "entry_date"
	default:
		return "entry_date"
	}
}
