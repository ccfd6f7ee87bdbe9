package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderType is the kind of conditional order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
)

// Side is the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus is the closed set of order (and trade) states. PENDING is the
// only non-terminal state; every transition out of it is one-way.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether no further transition is legal from s.
func (s OrderStatus) Terminal() bool {
	return s != OrderStatusPending
}

// Order is a standing instruction on one account. Created PENDING; resolved
// exactly once to EXECUTED, CANCELLED or REJECTED and immutable thereafter.
type Order struct {
	gorm.Model
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
	TotalCost       decimal.Decimal     `gorm:"type:decimal(20,8);not null"`
	ExecutedAt      *time.Time
	CancelledAt     *time.Time
	RejectedAt      *time.Time
}

// StopLossTriggered reports whether currentPrice satisfies the stop-loss
// condition. BUY stops out when the price falls to or below the stop price,
// SELL when it rises to or above it. Pure; never mutates the order.
func (o *Order) StopLossTriggered(currentPrice decimal.Decimal) bool {
	if !o.StopLossPrice.Valid {
		return false
	}
	if o.Side == SideBuy {
		return currentPrice.Cmp(o.StopLossPrice.Decimal) <= 0
	}
	return currentPrice.Cmp(o.StopLossPrice.Decimal) >= 0
}

// TakeProfitTriggered reports whether currentPrice satisfies the take-profit
// condition. Mirror image of StopLossTriggered.
func (o *Order) TakeProfitTriggered(currentPrice decimal.Decimal) bool {
	if !o.TakeProfitPrice.Valid {
		return false
	}
	if o.Side == SideBuy {
		return currentPrice.Cmp(o.TakeProfitPrice.Decimal) >= 0
	}
	return currentPrice.Cmp(o.TakeProfitPrice.Decimal) <= 0
}

func (o *Order) IsBuy() bool {
	return o.Side == SideBuy
}

func (o *Order) IsSell() bool {
	return o.Side == SideSell
}

// PairSymbol renders the order's currency pair as BASE/QUOTE.
func (o *Order) PairSymbol() string {
	return o.BaseCurrency + "/" + o.QuoteCurrency
}
