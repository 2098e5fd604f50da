package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/merchantpay/ledger-service/internal/repository"
	"github.com/merchantpay/ledger-service/internal/service"
)

// Stable codes of the seed chart of accounts.
const (
	CompanyBankAccountID     = "1001"
	PayoutExpensesAccountID  = "2001"
	WalletLiabilityAccountID = "3001"
	PayoutClearingAccountID  = "4001"
	SalesRevenueAccountID    = "5001"
)

// SeedChartOfAccounts runs the production seed against the test database.
func SeedChartOfAccounts(t *testing.T, db *sql.DB) {
	t.Helper()

	chart := service.NewChartOfAccountsService(repository.NewAccountRepository(db))
	if err := chart.Seed(context.Background()); err != nil {
		t.Fatalf("seed chart of accounts: %v", err)
	}
}

// DeactivateAccount disables an account directly, bypassing the service
// layer, for inactive-account rejection tests.
func DeactivateAccount(t *testing.T, db *sql.DB, accountID string) {
	t.Helper()

	res, err := db.Exec(`UPDATE accounts SET active = FALSE WHERE account_id = $1`, accountID)
	if err != nil {
		t.Fatalf("deactivate account %s: %v", accountID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("deactivate account %s: %d rows affected", accountID, n)
	}
}

// CountEntriesForTransaction counts ledger rows carrying the transaction ID.
func CountEntriesForTransaction(t *testing.T, db *sql.DB, transactionID string) int {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE transaction_id = $1`, transactionID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count entries for %s: %v", transactionID, err)
	}
	return n
}

// SumEntriesByType totals one entry side of a transaction's rows.
func SumEntriesByType(t *testing.T, db *sql.DB, transactionID, entryType string) decimal.Decimal {
	t.Helper()

	var sum decimal.Decimal
	err := db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE transaction_id = $1 AND entry_type = $2`,
		transactionID, entryType,
	).Scan(&sum)
	if err != nil {
		t.Fatalf("sum %s entries for %s: %v", entryType, transactionID, err)
	}
	return sum
}
