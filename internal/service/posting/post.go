package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/merchantpay/ledger-service/internal/domain"
	"github.com/merchantpay/ledger-service/internal/logging"
)

// WalletDeductionRequest records a customer paying for an order (partly
// or fully) from wallet balance.
type WalletDeductionRequest struct {
	OrderID       string
	TransactionID string
	CustomerID    string
	Amount        decimal.Decimal
	ActorID       string
}

// WalletPayoutRequest records the company crediting a payout into the
// customer's wallet instead of their bank.
type WalletPayoutRequest struct {
	ReferenceID   string
	TransactionID string
	CustomerID    string
	Amount        decimal.Decimal
	ActorID       string
}

// WithdrawalApprovedRequest records a customer cashing out wallet balance
// to their bank.
type WithdrawalApprovedRequest struct {
	ReferenceID   string
	TransactionID string
	CustomerID    string
	Amount        decimal.Decimal
	ActorID       string
}

// RefundApprovedRequest records an approved refund. Destination is the
// refund target the caller recorded; it selects the credit leg.
type RefundApprovedRequest struct {
	PaymentTransactionID string
	TransactionID        string
	CustomerID           string
	OrderID              string
	Amount               decimal.Decimal
	ActorID              string
	Destination          domain.RefundDestination
}

// PostWalletDeduction debits the customer's wallet liability and credits
// sales revenue. Rejects with ErrInsufficientFunds if the wallet would go
// negative.
func (s *Service) PostWalletDeduction(ctx context.Context, req WalletDeductionRequest) ([]domain.LedgerEntry, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("PostWalletDeduction: %w", domain.ErrInvalidAmount)
	}

	wallet, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNameWalletLiability, domain.AccountDomainWallet)
	if err != nil {
		return nil, fmt.Errorf("PostWalletDeduction: %w", err)
	}
	revenue, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNameSalesRevenue, domain.AccountDomainReal)
	if err != nil {
		return nil, fmt.Errorf("PostWalletDeduction: %w", err)
	}

	entries, err := s.post(ctx, postRequest{
		transactionID: req.TransactionID,
		orderID:       optional(req.OrderID),
		customerID:    req.CustomerID,
		amount:        req.Amount,
		actorID:       req.ActorID,
		narration:     domain.NarrationWalletDeduction,
		debitWallet:   wallet,
		legs: []leg{
			{account: wallet, entryType: domain.EntryTypeDebit, customer: true},
			{account: revenue, entryType: domain.EntryTypeCredit},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("PostWalletDeduction: %w", err)
	}
	return entries, nil
}

// PostWalletPayout credits the customer's wallet liability and debits
// payout expenses.
func (s *Service) PostWalletPayout(ctx context.Context, req WalletPayoutRequest) ([]domain.LedgerEntry, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("PostWalletPayout: %w", domain.ErrInvalidAmount)
	}

	wallet, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNameWalletLiability, domain.AccountDomainWallet)
	if err != nil {
		return nil, fmt.Errorf("PostWalletPayout: %w", err)
	}
	expenses, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNamePayoutExpenses, domain.AccountDomainWallet)
	if err != nil {
		return nil, fmt.Errorf("PostWalletPayout: %w", err)
	}

	entries, err := s.post(ctx, postRequest{
		transactionID: req.TransactionID,
		orderID:       optional(req.ReferenceID),
		customerID:    req.CustomerID,
		amount:        req.Amount,
		actorID:       req.ActorID,
		narration:     domain.NarrationWalletPayout,
		legs: []leg{
			{account: expenses, entryType: domain.EntryTypeDebit},
			{account: wallet, entryType: domain.EntryTypeCredit, customer: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("PostWalletPayout: %w", err)
	}
	return entries, nil
}

// PostWithdrawalApproved debits the customer's wallet liability and
// credits the company bank account. Rejects with ErrInsufficientFunds if
// the wallet would go negative.
func (s *Service) PostWithdrawalApproved(ctx context.Context, req WithdrawalApprovedRequest) ([]domain.LedgerEntry, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("PostWithdrawalApproved: %w", domain.ErrInvalidAmount)
	}

	wallet, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNameWalletLiability, domain.AccountDomainWallet)
	if err != nil {
		return nil, fmt.Errorf("PostWithdrawalApproved: %w", err)
	}
	bank, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNameCompanyBank, domain.AccountDomainReal)
	if err != nil {
		return nil, fmt.Errorf("PostWithdrawalApproved: %w", err)
	}

	entries, err := s.post(ctx, postRequest{
		transactionID: req.TransactionID,
		orderID:       optional(req.ReferenceID),
		customerID:    req.CustomerID,
		amount:        req.Amount,
		actorID:       req.ActorID,
		narration:     domain.NarrationWithdrawalSuccess,
		debitWallet:   wallet,
		legs: []leg{
			{account: wallet, entryType: domain.EntryTypeDebit, customer: true},
			{account: bank, entryType: domain.EntryTypeCredit},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("PostWithdrawalApproved: %w", err)
	}
	return entries, nil
}

// PostRefundApproved debits sales revenue and credits either the
// customer's wallet liability or the company bank account, per the
// destination the refund service recorded.
func (s *Service) PostRefundApproved(ctx context.Context, req RefundApprovedRequest) ([]domain.LedgerEntry, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("PostRefundApproved: %w", domain.ErrInvalidAmount)
	}

	revenue, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNameSalesRevenue, domain.AccountDomainReal)
	if err != nil {
		return nil, fmt.Errorf("PostRefundApproved: %w", err)
	}

	var creditLeg leg
	switch req.Destination {
	case domain.RefundToWallet:
		wallet, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNameWalletLiability, domain.AccountDomainWallet)
		if err != nil {
			return nil, fmt.Errorf("PostRefundApproved: %w", err)
		}
		creditLeg = leg{account: wallet, entryType: domain.EntryTypeCredit, customer: true}
	case domain.RefundToBank:
		bank, err := s.accounts.GetActiveAccountByNameAndDomain(ctx, domain.AccountNameCompanyBank, domain.AccountDomainReal)
		if err != nil {
			return nil, fmt.Errorf("PostRefundApproved: %w", err)
		}
		creditLeg = leg{account: bank, entryType: domain.EntryTypeCredit}
	default:
		return nil, fmt.Errorf("PostRefundApproved: destination %q: %w", req.Destination, domain.ErrPostingFailed)
	}

	entries, err := s.post(ctx, postRequest{
		transactionID: req.TransactionID,
		orderID:       optional(req.OrderID),
		customerID:    req.CustomerID,
		amount:        req.Amount,
		actorID:       req.ActorID,
		narration:     domain.NarrationRefundSuccess,
		legs: []leg{
			{account: revenue, entryType: domain.EntryTypeDebit},
			creditLeg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("PostRefundApproved: %w", err)
	}

	logging.FromContext(ctx).Info("refund posted",
		"transaction_id", req.TransactionID,
		"payment_transaction_id", req.PaymentTransactionID,
		"destination", req.Destination,
	)
	return entries, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// leg is one side of a posting before it becomes a LedgerEntry. customer
// marks the leg that carries the customer ID; company-only legs leave it
// null.
type leg struct {
	account   *domain.Account
	entryType domain.EntryType
	customer  bool
}

type postRequest struct {
	transactionID string
	orderID       *string
	customerID    string
	amount        decimal.Decimal
	actorID       string
	narration     string
	legs          []leg

	// debitWallet, when set, requires the customer's balance on that
	// account to cover the amount before anything is written.
	debitWallet *domain.Account
}

// post runs the shared algorithm: validate the amount, replay an existing
// set unchanged, pre-check wallet cover, then write the full balanced set
// in one transaction. A lost uniqueness race resolves to the winner's
// committed set.
func (s *Service) post(ctx context.Context, req postRequest) ([]domain.LedgerEntry, error) {
	log := logging.FromContext(ctx)

	if !req.amount.IsPositive() {
		return nil, fmt.Errorf("post: %w", domain.ErrInvalidAmount)
	}

	existing, err := s.ledger.GetByTransactionID(ctx, req.transactionID)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	if len(existing) > 0 {
		log.Info("posting replay, returning committed set",
			"transaction_id", req.transactionID,
			"entries", len(existing),
		)
		return existing, nil
	}

	if req.debitWallet != nil {
		balance, err := s.walletBalance(ctx, req.debitWallet, req.customerID)
		if err != nil {
			return nil, fmt.Errorf("post: %w", err)
		}
		if balance.LessThan(req.amount) {
			return nil, fmt.Errorf("post: have %s, need %s: %w",
				balance, req.amount, domain.ErrInsufficientFunds)
		}
	}

	entries := s.buildEntries(req)

	if err := s.writeSet(ctx, entries); err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent caller with the same
			// transaction ID; the winner's set is already committed.
			committed, readErr := s.ledger.GetByTransactionID(ctx, req.transactionID)
			if readErr != nil {
				return nil, fmt.Errorf("post: read after conflict: %w", readErr)
			}
			log.Info("posting conflict resolved to committed set",
				"transaction_id", req.transactionID,
			)
			return committed, nil
		}
		return nil, fmt.Errorf("post: %w: %w", domain.ErrPostingFailed, err)
	}

	log.Info("posting committed",
		"transaction_id", req.transactionID,
		"customer_id", req.customerID,
		"amount", req.amount,
		"narration", req.narration,
	)
	return entries, nil
}

func (s *Service) buildEntries(req postRequest) []domain.LedgerEntry {
	now := time.Now().UTC()
	// entry_date is a plain date; storing midnight keeps a replayed set
	// byte-for-byte equal to the set returned by the first call.
	entryDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	entries := make([]domain.LedgerEntry, 0, len(req.legs))
	for i, l := range req.legs {
		var customerID *string
		if l.customer {
			c := req.customerID
			customerID = &c
		}
		entries = append(entries, domain.LedgerEntry{
			ID:            uuid.New(),
			AccountID:     l.account.ID,
			CustomerID:    customerID,
			TransactionID: req.transactionID,
			OrderID:       req.orderID,
			LineNo:        i + 1,
			EntryType:     l.entryType,
			Amount:        req.amount,
			Currency:      s.currency,
			EntryDate:     entryDate,
			Narration:     req.narration,
			ActorID:       req.actorID,
			CreatedAt:     now,
		})
	}
	return entries
}

func (s *Service) writeSet(ctx context.Context, entries []domain.LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("writeSet: begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.ledger.InsertSet(ctx, tx, entries); err != nil {
		return fmt.Errorf("writeSet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("writeSet: commit: %w", err)
	}
	return nil
}
