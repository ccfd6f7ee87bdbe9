package trading

import (
	"forex-trading-bot-go/internal/ledger"
	"forex-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service owns the order and trade state machines. Every terminal transition
// is a conditional update keyed on the PENDING source state, so two
// concurrent evaluations of the same entity resolve to exactly one winner;
// the loser sees InvalidStateTransition.
type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
	logger *zap.Logger
}

// NewService creates a new trading service backed by the given ledger.
func NewService(db *gorm.DB, ledgerSvc *ledger.Service, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		ledger: ledgerSvc,
		logger: logger.Named("trading"),
	}
}

// EvaluateOrderTrigger reports whether currentPrice satisfies the order's
// stop-loss or take-profit condition. Pure: calling it any number of times
// never changes stored state; mutation happens only through ExecuteOrder.
func EvaluateOrderTrigger(o *models.Order, currentPrice decimal.Decimal) bool {
	return o.StopLossTriggered(currentPrice) || o.TakeProfitTriggered(currentPrice)
}

// EvaluateTradeTrigger is the trade counterpart of EvaluateOrderTrigger.
func EvaluateTradeTrigger(t *models.Trade, currentPrice decimal.Decimal) bool {
	return t.StopLossTriggered(currentPrice) || t.TakeProfitTriggered(currentPrice)
}
