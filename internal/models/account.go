package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	AccountTypeDemo = "DEMO"
	AccountTypeLive = "LIVE"
)

// Account holds one user's balance in a single currency.
// The balance is only ever mutated by completing a Transaction; see the
// ledger package for the locking discipline around that.
type Account struct {
	gorm.Model
	UserID        uint            `gorm:"not null;index"`
	AccountNumber string          `gorm:"uniqueIndex;not null"`
	AccountType   string          `gorm:"not null;default:DEMO"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Currency      string          `gorm:"not null"`
	Active        bool            `gorm:"not null;default:true"`
}

// HasSufficientFunds reports whether the balance covers amount.
func (a *Account) HasSufficientFunds(amount decimal.Decimal) bool {
	return a.Balance.Cmp(amount) >= 0
}
