package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/merchantpay/ledger-service/internal/domain"
)

const ledgerColumns = `id, account_id, customer_id, transaction_id, order_id,
	line_no, entry_type, amount, currency, entry_date, narration, actor_id, created_at`

// LedgerRepository is the append-only store of posted entries. It never
// updates or deletes rows.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// InsertSet writes every leg of one posting inside the caller's
// transaction. The unique (transaction_id, line_no) key makes concurrent
// writers of the same transaction collide on line 1.
func (r *LedgerRepository) InsertSet(ctx context.Context, tx *sql.Tx, entries []domain.LedgerEntry) error {
	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (
				id, account_id, customer_id, transaction_id, order_id,
				line_no, entry_type, amount, currency, entry_date, narration, actor_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			e.ID, e.AccountID, e.CustomerID, e.TransactionID, e.OrderID,
			e.LineNo, e.EntryType, e.Amount, e.Currency, e.EntryDate, e.Narration, e.ActorID, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("InsertSet: line %d: %w", e.LineNo, err)
		}
	}
	return nil
}

func (r *LedgerRepository) GetByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE transaction_id = $1 ORDER BY line_no`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows, "GetByTransactionID")
}

// SumByAccountAndType totals one entry side on one account, optionally
// restricted to a single customer's legs.
func (r *LedgerRepository) SumByAccountAndType(ctx context.Context, accountID string, entryType domain.EntryType, customerID *string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE account_id = $1 AND entry_type = $2`
	args := []any{accountID, entryType}
	if customerID != nil {
		query += ` AND customer_id = $3`
		args = append(args, *customerID)
	}

	var sum decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("SumByAccountAndType: %w", err)
	}
	return sum, nil
}

// SumByCustomerAndType totals one entry side across all of a customer's
// legs, any account.
func (r *LedgerRepository) SumByCustomerAndType(ctx context.Context, customerID string, entryType domain.EntryType) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE customer_id = $1 AND entry_type = $2`,
		customerID, entryType,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumByCustomerAndType: %w", err)
	}
	return sum, nil
}

// CountTransactionsSince counts distinct transaction IDs carrying the
// customer's legs on or after the cutoff date.
func (r *LedgerRepository) CountTransactionsSince(ctx context.Context, customerID string, cutoff time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT transaction_id) FROM ledger_entries
		WHERE customer_id = $1 AND entry_date >= $2`,
		customerID, cutoff,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountTransactionsSince: %w", err)
	}
	return n, nil
}

// EntryFilter narrows a ledger listing. Nil fields mean no constraint.
type EntryFilter struct {
	AccountID     *string
	CustomerID    *string
	TransactionID *string
	EntryType     *domain.EntryType
	DateFrom      *time.Time
	DateTo        *time.Time
}

func (f EntryFilter) whereClause() (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.AccountID != nil {
		add("account_id = $%d", *f.AccountID)
	}
	if f.CustomerID != nil {
		add("customer_id = $%d", *f.CustomerID)
	}
	if f.TransactionID != nil {
		add("transaction_id = $%d", *f.TransactionID)
	}
	if f.EntryType != nil {
		add("entry_type = $%d", *f.EntryType)
	}
	if f.DateFrom != nil {
		add("entry_date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("entry_date <= $%d", *f.DateTo)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListOptions carry pagination and ordering for List. SortColumn must be a
// column name vetted by the caller; it is interpolated into the query.
type ListOptions struct {
	SortColumn string
	Descending bool
	Limit      int
	Offset     int
}

// List returns one page of entries matching the filter plus the total
// match count.
func (r *LedgerRepository) List(ctx context.Context, f EntryFilter, opts ListOptions) ([]domain.LedgerEntry, int, error) {
	where, args := f.whereClause()

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries`+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	dir := "ASC"
	if opts.Descending {
		dir = "DESC"
	}
	query := fmt.Sprintf(
		`SELECT %s FROM ledger_entries%s ORDER BY %s %s, created_at, line_no LIMIT $%d OFFSET $%d`,
		ledgerColumns, where, opts.SortColumn, dir, len(args)+1, len(args)+2,
	)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows, "List")
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func collectEntries(rows *sql.Rows, op string) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.AccountID, &e.CustomerID, &e.TransactionID, &e.OrderID,
		&e.LineNo, &e.EntryType, &e.Amount, &e.Currency, &e.EntryDate,
		&e.Narration, &e.ActorID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
