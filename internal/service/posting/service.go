// Package posting turns business events into balanced, immutable ledger
// entry sets, exactly once per transaction ID.
package posting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/merchantpay/ledger-service/internal/domain"
)

type accountRegistry interface {
	GetActiveAccountByNameAndDomain(ctx context.Context, name string, dom domain.AccountDomain) (*domain.Account, error)
}

type ledgerRepo interface {
	InsertSet(ctx context.Context, tx *sql.Tx, entries []domain.LedgerEntry) error
	GetByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)
	SumByAccountAndType(ctx context.Context, accountID string, entryType domain.EntryType, customerID *string) (decimal.Decimal, error)
}

type Service struct {
	accounts accountRegistry
	ledger   ledgerRepo
	db       *sql.DB
	currency string
}

func NewService(accounts accountRegistry, ledger ledgerRepo, db *sql.DB, currency string) *Service {
	return &Service{
		accounts: accounts,
		ledger:   ledger,
		db:       db,
		currency: currency,
	}
}

// walletBalance projects the customer's wallet liability slice from
// committed entries. Liability grows on credit.
func (s *Service) walletBalance(ctx context.Context, wallet *domain.Account, customerID string) (decimal.Decimal, error) {
	credits, err := s.ledger.SumByAccountAndType(ctx, wallet.ID, domain.EntryTypeCredit, &customerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("walletBalance: %w", err)
	}
	debits, err := s.ledger.SumByAccountAndType(ctx, wallet.ID, domain.EntryTypeDebit, &customerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("walletBalance: %w", err)
	}
	return credits.Sub(debits), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
