package domain

import "time"

// AccountType classifies an account by its accounting nature. The type
// determines which entry side increases the account's natural balance.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeClearing  AccountType = "CLEARING"
)

func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeIncome,
		AccountTypeExpense, AccountTypeClearing:
		return true
	}
	return false
}

// IncreasingSide returns the entry side that grows the account's natural
// balance: debit for assets and expenses, credit for everything else.
func (t AccountType) IncreasingSide() EntryType {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return EntryTypeDebit
	default:
		return EntryTypeCredit
	}
}

// AccountDomain partitions real-money accounts from internal wallet accounts.
type AccountDomain string

const (
	AccountDomainReal   AccountDomain = "REAL"
	AccountDomainWallet AccountDomain = "WALLET"
)

func (d AccountDomain) IsValid() bool {
	return d == AccountDomainReal || d == AccountDomainWallet
}

// Canonical account names. (Name, Domain) is unique, so these resolve the
// five seed accounts without hardcoding account codes at call sites.
const (
	AccountNameCompanyBank     = "Company Bank A/C"
	AccountNamePayoutExpenses  = "Customer Payout Expenses"
	AccountNameWalletLiability = "Customer Wallet Liability"
	AccountNamePayoutClearing  = "Payout Pending / Clearing"
	AccountNameSalesRevenue    = "Sales Revenue"
)

// Account is chart-of-accounts reference data. Only Description and Active
// are mutable after seeding; accounts are never deleted while ledger
// entries reference them.
type Account struct {
	ID          string
	Name        string
	Type        AccountType
	Domain      AccountDomain
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
