package trading

import (
	"errors"
	"fmt"
	"time"

	"forex-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateTradeParams carries the inputs for a new trade (position).
type CreateTradeParams struct {
	UserID          uint
	AccountID       uint
	BaseCurrency    string
	QuoteCurrency   string
	Amount          decimal.Decimal
	Price           decimal.Decimal
	OrderType       models.OrderType
	Side            models.Side
	StopLossPrice   decimal.NullDecimal
	TakeProfitPrice decimal.NullDecimal
}

// CreateTrade records a new PENDING position. Funds sufficient to enter the
// position are required up front, mirroring order creation.
func (s *Service) CreateTrade(p CreateTradeParams) (*models.Trade, error) {
	cost := p.Amount.Mul(p.Price)
	if err := s.ledger.Reserve(p.AccountID, cost); err != nil {
		return nil, err
	}

	trade := models.Trade{
		UserID:          p.UserID,
		AccountID:       p.AccountID,
		BaseCurrency:    p.BaseCurrency,
		QuoteCurrency:   p.QuoteCurrency,
		Amount:          p.Amount,
		Price:           p.Price,
		OrderType:       p.OrderType,
		Side:            p.Side,
		Status:          models.OrderStatusPending,
		StopLossPrice:   p.StopLossPrice,
		TakeProfitPrice: p.TakeProfitPrice,
		ProfitLoss:      decimal.Zero,
	}

	if err := s.db.Create(&trade).Error; err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}

	s.logger.Info("Trade created",
		zap.Uint("trade_id", trade.ID),
		zap.Uint("account_id", p.AccountID),
		zap.String("pair", trade.PairSymbol()),
		zap.String("side", string(p.Side)))

	return &trade, nil
}

// GetTrade loads one trade by ID.
func (s *Service) GetTrade(id uint) (*models.Trade, error) {
	var trade models.Trade
	if err := s.db.First(&trade, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("trade %d: %w", id, models.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("failed to load trade %d: %w", id, err)
	}
	return &trade, nil
}

// ExecuteTrade closes a PENDING position at executionPrice. The realized
// profit or loss, computed against the entry price before it is overwritten,
// settles against the ledger in the same database transaction as the state
// claim. A loss that the balance cannot absorb rolls the whole thing back.
func (s *Service) ExecuteTrade(id uint, executionPrice decimal.Decimal) error {
	trade, err := s.GetTrade(id)
	if err != nil {
		return err
	}

	return s.ledger.WithAccountLock(trade.AccountID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			now := time.Now()
			profitLoss := trade.ProfitLossAt(executionPrice)

			res := tx.Model(&models.Trade{}).
				Where("id = ? AND status = ?", id, models.OrderStatusPending).
				Updates(map[string]interface{}{
					"status":      models.OrderStatusExecuted,
					"price":       executionPrice,
					"profit_loss": profitLoss,
					"executed_at": now,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to execute trade %d: %w", id, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("execute trade %d: %w", id, models.ErrInvalidStateTransition)
			}

			var account models.Account
			if err := tx.First(&account, trade.AccountID).Error; err != nil {
				return fmt.Errorf("failed to load account %d: %w", trade.AccountID, err)
			}

			tradeID := trade.ID
			txn, err := s.ledger.CreateTradeTransaction(tx, &account, &tradeID, profitLoss,
				fmt.Sprintf("Trade settlement: %s", trade.PairSymbol()))
			if err != nil {
				return err
			}
			if err := s.ledger.Settle(tx, txn); err != nil {
				return err
			}

			s.logger.Info("Trade executed",
				zap.Uint("trade_id", id),
				zap.String("pair", trade.PairSymbol()),
				zap.String("execution_price", executionPrice.String()),
				zap.String("profit_loss", profitLoss.String()))
			return nil
		})
	})
}

// CancelTrade transitions a PENDING trade to CANCELLED.
func (s *Service) CancelTrade(id uint) error {
	return s.finishTrade(id, models.OrderStatusCancelled, "cancelled_at")
}

// RejectTrade transitions a PENDING trade to REJECTED.
func (s *Service) RejectTrade(id uint) error {
	return s.finishTrade(id, models.OrderStatusRejected, "rejected_at")
}

func (s *Service) finishTrade(id uint, status models.OrderStatus, stampColumn string) error {
	res := s.db.Model(&models.Trade{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":    status,
			stampColumn: time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark trade %d %s: %w", id, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("trade %d to %s: %w", id, status, models.ErrInvalidStateTransition)
	}
	s.logger.Info("Trade resolved", zap.Uint("trade_id", id), zap.String("status", string(status)))
	return nil
}

// PendingTriggerTrades lists the PENDING stop-loss and take-profit trades
// referencing a currency pair, across all users.
func (s *Service) PendingTriggerTrades(base, quote string) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.
		Where("base_currency = ? AND quote_currency = ? AND status = ?", base, quote, models.OrderStatusPending).
		Where("stop_loss_price IS NOT NULL OR take_profit_price IS NOT NULL").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending trigger trades for %s/%s: %w", base, quote, err)
	}
	return trades, nil
}

// UserTrades lists a user's trades, optionally filtered by status.
func (s *Service) UserTrades(userID uint, status models.OrderStatus) ([]models.Trade, error) {
	q := s.db.Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var trades []models.Trade
	if err := q.Order("created_at DESC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades for user %d: %w", userID, err)
	}
	return trades, nil
}

// TotalProfitLoss sums the realized P&L of a user's executed trades.
func (s *Service) TotalProfitLoss(userID uint) (decimal.Decimal, error) {
	trades, err := s.UserTrades(userID, models.OrderStatusExecuted)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range trades {
		total = total.Add(trades[i].ProfitLoss)
	}
	return total, nil
}
