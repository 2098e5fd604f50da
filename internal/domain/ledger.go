package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

func (e EntryType) IsValid() bool {
	return e == EntryTypeDebit || e == EntryTypeCredit
}

func (e EntryType) Opposite() EntryType {
	if e == EntryTypeDebit {
		return EntryTypeCredit
	}
	return EntryTypeDebit
}

// RefundDestination says where an approved refund lands, as recorded by
// the refund service. It selects the credit leg of the posting.
type RefundDestination string

const (
	RefundToWallet RefundDestination = "WALLET"
	RefundToBank   RefundDestination = "BANK"
)

// Fixed narration vocabulary, one per business event.
const (
	NarrationWalletDeduction   = "Order Amount Deducted From Wallet"
	NarrationWalletPayout      = "Order Amount Credited to Customer Wallet"
	NarrationWithdrawalSuccess = "Successfully Withdrawn Wallet Amount"
	NarrationRefundSuccess     = "Amount Refunded Successfully"
)

// LedgerEntry is one leg of a balanced posting. Rows are append-only:
// once written they are never updated or deleted, and corrections are
// posted as offsetting sets under a new transaction ID.
type LedgerEntry struct {
	ID            uuid.UUID
	AccountID     string
	CustomerID    *string // nil for company-only legs
	TransactionID string
	OrderID       *string
	LineNo        int // 1-based position within the entry set
	EntryType     EntryType
	Amount        decimal.Decimal
	Currency      string
	EntryDate     time.Time
	Narration     string
	ActorID       string
	CreatedAt     time.Time
}
