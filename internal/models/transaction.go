package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType classifies what a ledger entry represents.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTrade      TransactionType = "TRADE"
	TransactionTypeFee        TransactionType = "FEE"
)

// TransactionStatus is the closed set of transaction states. Completion is
// the only event that mutates the owning account's balance.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is legal from s.
func (s TransactionStatus) Terminal() bool {
	return s != TransactionStatusPending
}

// Transaction is one signed ledger entry against an account. The amount is
// positive for credits and negative for debits. ReferenceNumber is globally
// unique, enforced at write time.
type Transaction struct {
	gorm.Model
	AccountID       uint              `gorm:"not null;index"`
	Account         Account           `gorm:"foreignKey:AccountID"`
	TransactionType TransactionType   `gorm:"not null"`
	Amount          decimal.Decimal   `gorm:"type:decimal(20,8);not null"`
	Currency        string            `gorm:"not null"`
	Status          TransactionStatus `gorm:"not null;index"`
	Description     string
	ReferenceNumber string `gorm:"uniqueIndex;not null"`
	PaymentMethod   string
	TradeID         *uint
	CompletedAt     *time.Time
	FailedAt        *time.Time
	CancelledAt     *time.Time
}

// IsCredit reports whether completing the transaction increases the balance.
func (t *Transaction) IsCredit() bool {
	return t.Amount.Cmp(decimal.Zero) > 0
}

// IsDebit reports whether completing the transaction decreases the balance.
func (t *Transaction) IsDebit() bool {
	return t.Amount.Cmp(decimal.Zero) < 0
}
