package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade is an open position rather than a standing instruction. It shares the
// order state machine but additionally tracks realized profit and loss,
// computed when the position is executed (closed) against a market price.
type Trade struct {
	gorm.Model
	UserID          uint                `gorm:"not null;index"`
	AccountID       uint                `gorm:"not null;index"`
	Account         Account             `gorm:"foreignKey:AccountID"`
	BaseCurrency    string              `gorm:"not null"`
	QuoteCurrency   string              `gorm:"not null"`
	Amount          decimal.Decimal     `gorm:"type:decimal(20,8);not null"`
	Price           decimal.Decimal     `gorm:"type:decimal(20,8);not null"`
	OrderType       OrderType           `gorm:"not null"`
	Side            Side                `gorm:"not null"`
	Status          OrderStatus         `gorm:"not null;index"`
	StopLossPrice   decimal.NullDecimal `gorm:"type:decimal(20,8)"`
	TakeProfitPrice decimal.NullDecimal `gorm:"type:decimal(20,8)"`
	ProfitLoss      decimal.Decimal     `gorm:"type:decimal(20,8);not null"`
	ExecutedAt      *time.Time
	CancelledAt     *time.Time
	RejectedAt      *time.Time
}

// ProfitLossAt computes the signed P&L of closing the position at
// executionPrice, using the stored entry price. A long position gains when
// the price rises, a short one when it falls.
func (t *Trade) ProfitLossAt(executionPrice decimal.Decimal) decimal.Decimal {
	pl := t.Amount.Mul(executionPrice.Sub(t.Price))
	if t.Side == SideSell {
		return pl.Neg()
	}
	return pl
}

// StopLossTriggered reports whether currentPrice satisfies the position's
// stop-loss condition. Same semantics as Order.StopLossTriggered.
func (t *Trade) StopLossTriggered(currentPrice decimal.Decimal) bool {
	if !t.StopLossPrice.Valid {
		return false
	}
	if t.Side == SideBuy {
		return currentPrice.Cmp(t.StopLossPrice.Decimal) <= 0
	}
	return currentPrice.Cmp(t.StopLossPrice.Decimal) >= 0
}

// TakeProfitTriggered reports whether currentPrice satisfies the position's
// take-profit condition.
func (t *Trade) TakeProfitTriggered(currentPrice decimal.Decimal) bool {
	if !t.TakeProfitPrice.Valid {
		return false
	}
	if t.Side == SideBuy {
		return currentPrice.Cmp(t.TakeProfitPrice.Decimal) >= 0
	}
	return currentPrice.Cmp(t.TakeProfitPrice.Decimal) <= 0
}

// PairSymbol renders the trade's currency pair as BASE/QUOTE.
func (t *Trade) PairSymbol() string {
	return t.BaseCurrency + "/" + t.QuoteCurrency
}
