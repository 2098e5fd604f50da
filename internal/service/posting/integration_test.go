package posting_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantpay/ledger-service/internal/domain"
	"github.com/merchantpay/ledger-service/internal/repository"
	"github.com/merchantpay/ledger-service/internal/service"
	"github.com/merchantpay/ledger-service/internal/service/posting"
	"github.com/merchantpay/ledger-service/internal/testutil"
)

func setupEngine(t *testing.T, db *sql.DB) (*posting.Service, *service.BalanceProjector) {
	t.Helper()

	accounts := repository.NewAccountRepository(db)
	ledger := repository.NewLedgerRepository(db)
	chart := service.NewChartOfAccountsService(accounts)

	return posting.NewService(chart, ledger, db, "INR"),
		service.NewBalanceProjector(accounts, ledger)
}

func requireBalanced(t *testing.T, db *sql.DB, transactionID string) {
	t.Helper()

	debits := testutil.SumEntriesByType(t, db, transactionID, "DEBIT")
	credits := testutil.SumEntriesByType(t, db, transactionID, "CREDIT")
	require.True(t, debits.Equal(credits),
		"transaction %s unbalanced: debits %s, credits %s", transactionID, debits, credits)
}

func TestPostWalletPayout_WritesBalancedSet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	engine, _ := setupEngine(t, db)
	ctx := context.Background()

	entries, err := engine.PostWalletPayout(ctx, posting.WalletPayoutRequest{
		ReferenceID:   "payout-1",
		TransactionID: "txn-payout-1",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(500),
		ActorID:       "ops-1",
	})

	require.NoError(t, err)
	require.Len(t, entries, 2)
	requireBalanced(t, db, "txn-payout-1")

	debit, credit := entries[0], entries[1]
	assert.Equal(t, testutil.PayoutExpensesAccountID, debit.AccountID)
	assert.Equal(t, domain.EntryTypeDebit, debit.EntryType)
	assert.Nil(t, debit.CustomerID, "company leg carries no customer")

	assert.Equal(t, testutil.WalletLiabilityAccountID, credit.AccountID)
	assert.Equal(t, domain.EntryTypeCredit, credit.EntryType)
	require.NotNil(t, credit.CustomerID)
	assert.Equal(t, "cust-1", *credit.CustomerID)

	for _, e := range entries {
		assert.Equal(t, "INR", e.Currency)
		assert.Equal(t, "ops-1", e.ActorID)
		assert.Equal(t, domain.NarrationWalletPayout, e.Narration)
	}
}

func TestPostWalletDeduction_DebitsWalletCreditsRevenue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	engine, projector := setupEngine(t, db)
	ctx := context.Background()

	_, err := engine.PostWalletPayout(ctx, posting.WalletPayoutRequest{
		ReferenceID:   "payout-1",
		TransactionID: "txn-a",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(500),
		ActorID:       "ops-1",
	})
	require.NoError(t, err)

	entries, err := engine.PostWalletDeduction(ctx, posting.WalletDeductionRequest{
		OrderID:       "order-9",
		TransactionID: "txn-b",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(200),
		ActorID:       "cust-1",
	})

	require.NoError(t, err)
	require.Len(t, entries, 2)
	requireBalanced(t, db, "txn-b")

	assert.Equal(t, testutil.WalletLiabilityAccountID, entries[0].AccountID)
	assert.Equal(t, domain.EntryTypeDebit, entries[0].EntryType)
	assert.Equal(t, testutil.SalesRevenueAccountID, entries[1].AccountID)
	assert.Equal(t, domain.EntryTypeCredit, entries[1].EntryType)
	require.NotNil(t, entries[0].OrderID)
	assert.Equal(t, "order-9", *entries[0].OrderID)

	balance, err := projector.CustomerWalletBalance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(300)), "wallet balance = %s", balance)
}

func TestPostWithdrawalApproved_ReducesLiabilityAndBank(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	engine, projector := setupEngine(t, db)
	ctx := context.Background()

	_, err := engine.PostWalletPayout(ctx, posting.WalletPayoutRequest{
		ReferenceID:   "payout-1",
		TransactionID: "txn-a",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(500),
		ActorID:       "ops-1",
	})
	require.NoError(t, err)

	entries, err := engine.PostWithdrawalApproved(ctx, posting.WithdrawalApprovedRequest{
		ReferenceID:   "wd-1",
		TransactionID: "txn-wd",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(100),
		ActorID:       "cust-1",
	})

	require.NoError(t, err)
	require.Len(t, entries, 2)
	requireBalanced(t, db, "txn-wd")

	assert.Equal(t, testutil.WalletLiabilityAccountID, entries[0].AccountID)
	assert.Equal(t, domain.EntryTypeDebit, entries[0].EntryType)
	assert.Equal(t, testutil.CompanyBankAccountID, entries[1].AccountID)
	assert.Equal(t, domain.EntryTypeCredit, entries[1].EntryType)

	balance, err := projector.CustomerWalletBalance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(400)), "wallet balance = %s", balance)
}

func TestPostRefundApproved_DestinationSelectsCreditLeg(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	engine, _ := setupEngine(t, db)
	ctx := context.Background()

	toWallet, err := engine.PostRefundApproved(ctx, posting.RefundApprovedRequest{
		PaymentTransactionID: "pay-1",
		TransactionID:        "txn-refund-wallet",
		CustomerID:           "cust-1",
		OrderID:              "order-1",
		Amount:               decimal.NewFromInt(150),
		ActorID:              "ops-1",
		Destination:          domain.RefundToWallet,
	})
	require.NoError(t, err)
	require.Len(t, toWallet, 2)
	requireBalanced(t, db, "txn-refund-wallet")
	assert.Equal(t, testutil.SalesRevenueAccountID, toWallet[0].AccountID)
	assert.Equal(t, domain.EntryTypeDebit, toWallet[0].EntryType)
	assert.Equal(t, testutil.WalletLiabilityAccountID, toWallet[1].AccountID)
	require.NotNil(t, toWallet[1].CustomerID)

	toBank, err := engine.PostRefundApproved(ctx, posting.RefundApprovedRequest{
		PaymentTransactionID: "pay-2",
		TransactionID:        "txn-refund-bank",
		CustomerID:           "cust-2",
		OrderID:              "order-2",
		Amount:               decimal.NewFromInt(80),
		ActorID:              "ops-1",
		Destination:          domain.RefundToBank,
	})
	require.NoError(t, err)
	require.Len(t, toBank, 2)
	requireBalanced(t, db, "txn-refund-bank")
	assert.Equal(t, testutil.CompanyBankAccountID, toBank[1].AccountID)
	assert.Nil(t, toBank[1].CustomerID, "bank refund has no customer leg")
}

func TestPosting_ReplayIsNoOp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	engine, projector := setupEngine(t, db)
	ctx := context.Background()

	req := posting.WalletPayoutRequest{
		ReferenceID:   "payout-1",
		TransactionID: "txn-replay",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(500),
		ActorID:       "ops-1",
	}

	first, err := engine.PostWalletPayout(ctx, req)
	require.NoError(t, err)

	second, err := engine.PostWalletPayout(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CountEntriesForTransaction(t, db, "txn-replay"))
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	// The first call returns the freshly built set, the replay returns
	// the stored one; the dates must not drift through the round trip.
	assert.True(t, first[0].EntryDate.Equal(second[0].EntryDate),
		"entry dates diverge: %s vs %s", first[0].EntryDate, second[0].EntryDate)

	balance, err := projector.CustomerWalletBalance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)), "wallet balance = %s", balance)
}

func TestPosting_ConcurrentDuplicatesCommitOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	engine, _ := setupEngine(t, db)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.PostWalletPayout(ctx, posting.WalletPayoutRequest{
				ReferenceID:   "payout-1",
				TransactionID: "txn-concurrent",
				CustomerID:    "cust-1",
				Amount:        decimal.NewFromInt(500),
				ActorID:       "ops-1",
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}
	assert.Equal(t, 2, testutil.CountEntriesForTransaction(t, db, "txn-concurrent"))
	requireBalanced(t, db, "txn-concurrent")
}

func TestPostWalletDeduction_OverdraftWritesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	engine, _ := setupEngine(t, db)
	ctx := context.Background()

	_, err := engine.PostWalletPayout(ctx, posting.WalletPayoutRequest{
		ReferenceID:   "payout-1",
		TransactionID: "txn-a",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(100),
		ActorID:       "ops-1",
	})
	require.NoError(t, err)

	_, err = engine.PostWalletDeduction(ctx, posting.WalletDeductionRequest{
		OrderID:       "order-1",
		TransactionID: "txn-overdraft",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(250),
		ActorID:       "cust-1",
	})

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 0, testutil.CountEntriesForTransaction(t, db, "txn-overdraft"))
}

func TestPosting_InactiveAccountWritesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	testutil.DeactivateAccount(t, db, testutil.WalletLiabilityAccountID)
	engine, _ := setupEngine(t, db)

	_, err := engine.PostWalletPayout(context.Background(), posting.WalletPayoutRequest{
		ReferenceID:   "payout-1",
		TransactionID: "txn-inactive",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(500),
		ActorID:       "ops-1",
	})

	require.ErrorIs(t, err, domain.ErrAccountInactive)
	assert.Equal(t, 0, testutil.CountEntriesForTransaction(t, db, "txn-inactive"))
}

// Full wallet lifecycle for one customer: payout 500, spend 200 on an
// order, withdraw 100 to the bank.
func TestWalletLifecycle_BalancesAndTotals(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedChartOfAccounts(t, db)
	engine, projector := setupEngine(t, db)
	ctx := context.Background()

	_, err := engine.PostWalletPayout(ctx, posting.WalletPayoutRequest{
		ReferenceID:   "payout-1",
		TransactionID: "txn-a",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(500),
		ActorID:       "ops-1",
	})
	require.NoError(t, err)

	_, err = engine.PostWalletDeduction(ctx, posting.WalletDeductionRequest{
		OrderID:       "order-1",
		TransactionID: "txn-b",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(200),
		ActorID:       "cust-1",
	})
	require.NoError(t, err)

	_, err = engine.PostWithdrawalApproved(ctx, posting.WithdrawalApprovedRequest{
		ReferenceID:   "wd-1",
		TransactionID: "txn-c",
		CustomerID:    "cust-1",
		Amount:        decimal.NewFromInt(100),
		ActorID:       "cust-1",
	})
	require.NoError(t, err)

	balance, err := projector.CustomerWalletBalance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(200)), "wallet balance = %s", balance)

	credits, err := projector.TotalCreditsForCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, credits.Equal(decimal.NewFromInt(500)), "credits = %s", credits)

	debits, err := projector.TotalDebitsForCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, debits.Equal(decimal.NewFromInt(300)), "debits = %s", debits)

	recent, err := projector.RecentTransactionCount(ctx, "cust-1", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), recent)
}
