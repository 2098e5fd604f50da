package service

import (
	"context"
	"fmt"
	"time"

	"github.com/merchantpay/ledger-service/internal/domain"
	"github.com/merchantpay/ledger-service/internal/logging"
)

type chartRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByNameAndDomain(ctx context.Context, name string, dom domain.AccountDomain) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, a *domain.Account) error
	UpdateMutableFields(ctx context.Context, id string, description *string, active *bool) (*domain.Account, error)
}

// ChartOfAccountsService is the registry of accounts postings are made
// against. The set is fixed at seed time; only description and active
// status change afterwards.
type ChartOfAccountsService struct {
	accounts chartRepo
}

func NewChartOfAccountsService(accounts chartRepo) *ChartOfAccountsService {
	return &ChartOfAccountsService{accounts: accounts}
}

func (s *ChartOfAccountsService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return a, nil
}

// GetActiveAccountByNameAndDomain resolves an account for posting. An
// account that exists but has been disabled reports ErrAccountInactive so
// callers can distinguish it from a missing account.
func (s *ChartOfAccountsService) GetActiveAccountByNameAndDomain(ctx context.Context, name string, dom domain.AccountDomain) (*domain.Account, error) {
	a, err := s.accounts.GetByNameAndDomain(ctx, name, dom)
	if err != nil {
		return nil, fmt.Errorf("GetActiveAccountByNameAndDomain: %w", err)
	}
	if !a.Active {
		return nil, fmt.Errorf("GetActiveAccountByNameAndDomain: %s: %w", a.ID, domain.ErrAccountInactive)
	}
	return a, nil
}

func (s *ChartOfAccountsService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return accounts, nil
}

func (s *ChartOfAccountsService) UpdateMutableFields(ctx context.Context, accountID string, description *string, active *bool) (*domain.Account, error) {
	a, err := s.accounts.UpdateMutableFields(ctx, accountID, description, active)
	if err != nil {
		return nil, fmt.Errorf("UpdateMutableFields: %w", err)
	}
	return a, nil
}

// Seed inserts the five canonical accounts if the registry is empty. A
// populated registry is left untouched, so startup can always call this.
func (s *ChartOfAccountsService) Seed(ctx context.Context) error {
	log := logging.FromContext(ctx)

	n, err := s.accounts.Count(ctx)
	if err != nil {
		return fmt.Errorf("Seed: %w", err)
	}
	if n > 0 {
		log.Debug("chart of accounts already seeded", "accounts", n)
		return nil
	}

	now := time.Now().UTC()
	for _, a := range seedAccounts {
		a.CreatedAt = now
		a.UpdatedAt = now
		if err := s.accounts.Create(ctx, &a); err != nil {
			return fmt.Errorf("Seed: %s: %w", a.ID, err)
		}
	}

	log.Info("chart of accounts seeded", "accounts", len(seedAccounts))
	return nil
}

var seedAccounts = []domain.Account{
	{
		ID:          "1001",
		Name:        domain.AccountNameCompanyBank,
		Type:        domain.AccountTypeAsset,
		Domain:      domain.AccountDomainReal,
		Description: "Main company bank account for real money transactions",
		Active:      true,
	},
	{
		ID:          "2001",
		Name:        domain.AccountNamePayoutExpenses,
		Type:        domain.AccountTypeExpense,
		Domain:      domain.AccountDomainWallet,
		Description: "Expenses incurred for customer payouts from wallet",
		Active:      true,
	},
	{
		ID:          "3001",
		Name:        domain.AccountNameWalletLiability,
		Type:        domain.AccountTypeLiability,
		Domain:      domain.AccountDomainWallet,
		Description: "Amount owed to customers in their wallets",
		Active:      true,
	},
	{
		ID:          "4001",
		Name:        domain.AccountNamePayoutClearing,
		Type:        domain.AccountTypeClearing,
		Domain:      domain.AccountDomainReal,
		Description: "Temporary account for pending payouts (real money)",
		Active:      true,
	},
	{
		ID:          "5001",
		Name:        domain.AccountNameSalesRevenue,
		Type:        domain.AccountTypeIncome,
		Domain:      domain.AccountDomainReal,
		Description: "Revenue from product/service sales (real money)",
		Active:      true,
	},
}
