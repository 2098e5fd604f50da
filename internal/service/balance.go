package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/merchantpay/ledger-service/internal/domain"
)

type balanceChartRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByNameAndDomain(ctx context.Context, name string, dom domain.AccountDomain) (*domain.Account, error)
}

type balanceLedgerRepo interface {
	SumByAccountAndType(ctx context.Context, accountID string, entryType domain.EntryType, customerID *string) (decimal.Decimal, error)
	SumByCustomerAndType(ctx context.Context, customerID string, entryType domain.EntryType) (decimal.Decimal, error)
	CountTransactionsSince(ctx context.Context, customerID string, cutoff time.Time) (int64, error)
}

// BalanceProjector derives balances by summarizing committed ledger
// entries. It never mutates the store; missing data projects to zero.
type BalanceProjector struct {
	accounts balanceChartRepo
	ledger   balanceLedgerRepo
}

func NewBalanceProjector(accounts balanceChartRepo, ledger balanceLedgerRepo) *BalanceProjector {
	return &BalanceProjector{accounts: accounts, ledger: ledger}
}

// AccountBalance is the sum on the account's increasing side minus the
// sum on the opposite side, optionally restricted to one customer's legs.
func (p *BalanceProjector) AccountBalance(ctx context.Context, accountID string, customerID *string) (decimal.Decimal, error) {
	acct, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("AccountBalance: %w", err)
	}

	inc := acct.Type.IncreasingSide()
	incSum, err := p.ledger.SumByAccountAndType(ctx, accountID, inc, customerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("AccountBalance: %w", err)
	}
	decSum, err := p.ledger.SumByAccountAndType(ctx, accountID, inc.Opposite(), customerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("AccountBalance: %w", err)
	}

	return incSum.Sub(decSum), nil
}

// CustomerWalletBalance is the customer's slice of the wallet liability
// account. It cannot go negative through validated postings.
func (p *BalanceProjector) CustomerWalletBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	wallet, err := p.accounts.GetByNameAndDomain(ctx, domain.AccountNameWalletLiability, domain.AccountDomainWallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CustomerWalletBalance: %w", err)
	}

	balance, err := p.AccountBalance(ctx, wallet.ID, &customerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CustomerWalletBalance: %w", err)
	}
	return balance, nil
}

func (p *BalanceProjector) TotalCreditsForCustomer(ctx context.Context, customerID string) (decimal.Decimal, error) {
	sum, err := p.ledger.SumByCustomerAndType(ctx, customerID, domain.EntryTypeCredit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("TotalCreditsForCustomer: %w", err)
	}
	return sum, nil
}

func (p *BalanceProjector) TotalDebitsForCustomer(ctx context.Context, customerID string) (decimal.Decimal, error) {
	sum, err := p.ledger.SumByCustomerAndType(ctx, customerID, domain.EntryTypeDebit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("TotalDebitsForCustomer: %w", err)
	}
	return sum, nil
}

// RecentTransactionCount counts the customer's distinct transaction IDs
// within the trailing window of whole days.
func (p *BalanceProjector) RecentTransactionCount(ctx context.Context, customerID string, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := p.ledger.CountTransactionsSince(ctx, customerID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("RecentTransactionCount: %w", err)
	}
	return n, nil
}
