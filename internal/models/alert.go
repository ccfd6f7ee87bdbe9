package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertCondition is the comparison a price alert watches for.
type AlertCondition string

const (
	AlertConditionAbove  AlertCondition = "ABOVE"
	AlertConditionBelow  AlertCondition = "BELOW"
	AlertConditionEquals AlertCondition = "EQUALS"
)

const (
	NotificationTypeEmail = "EMAIL"
	NotificationTypePush  = "PUSH"
	NotificationTypeBoth  = "BOTH"
)

// Alert is a one-shot price watch owned by a user. Created active; the
// trigger transition sets triggered and clears active, and is irreversible.
// Active and triggered are never simultaneously true.
type Alert struct {
	gorm.Model
	UserID           uint            `gorm:"not null;index"`
	BaseCurrency     string          `gorm:"not null"`
	QuoteCurrency    string          `gorm:"not null"`
	TargetPrice      decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Condition        AlertCondition  `gorm:"not null"`
	Active           bool            `gorm:"not null;default:true"`
	Triggered        bool            `gorm:"not null;default:false"`
	TriggeredAt      *time.Time
	NotificationType string `gorm:"not null"`
}

// ConditionMet reports whether currentPrice satisfies the alert's condition.
// Always false once the alert is inactive or triggered. Comparisons are exact
// decimal comparisons, including EQUALS.
func (a *Alert) ConditionMet(currentPrice decimal.Decimal) bool {
	if !a.Active || a.Triggered {
		return false
	}
	switch a.Condition {
	case AlertConditionAbove:
		return currentPrice.Cmp(a.TargetPrice) >= 0
	case AlertConditionBelow:
		return currentPrice.Cmp(a.TargetPrice) <= 0
	case AlertConditionEquals:
		return currentPrice.Cmp(a.TargetPrice) == 0
	default:
		return false
	}
}

// Message renders the human-readable notification text for the alert.
func (a *Alert) Message() string {
	return fmt.Sprintf("Price alert for %s/%s: current price is %s %s",
		a.BaseCurrency, a.QuoteCurrency, strings.ToLower(string(a.Condition)), a.TargetPrice)
}

// PairSymbol renders the alert's currency pair as BASE/QUOTE.
func (a *Alert) PairSymbol() string {
	return a.BaseCurrency + "/" + a.QuoteCurrency
}
