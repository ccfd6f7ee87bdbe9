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

// CreateOrderParams carries the inputs for a new order.
type CreateOrderParams struct {
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

// CreateOrder records a new PENDING order. The quoted cost (amount x price)
// is reserved against the account balance up front: an inactive account or
// an uncovered cost fails with InsufficientFunds and nothing is written.
func (s *Service) CreateOrder(p CreateOrderParams) (*models.Order, error) {
	totalCost := p.Amount.Mul(p.Price)
	if err := s.ledger.Reserve(p.AccountID, totalCost); err != nil {
		return nil, err
	}

	order := models.Order{
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
		TotalCost:       totalCost,
	}

	if err := s.db.Create(&order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("Order created",
		zap.Uint("order_id", order.ID),
		zap.Uint("account_id", p.AccountID),
		zap.String("pair", order.PairSymbol()),
		zap.String("type", string(p.OrderType)),
		zap.String("side", string(p.Side)),
		zap.String("total_cost", totalCost.String()))

	return &order, nil
}

// GetOrder loads one order by ID.
func (s *Service) GetOrder(id uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", id, models.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return &order, nil
}

// ExecuteOrder transitions a PENDING order to EXECUTED at executionPrice and
// settles it against the ledger in the same database transaction: the order
// claim, the TRADE transaction and the balance mutation commit or roll back
// as one unit. Executing a non-PENDING order fails with
// InvalidStateTransition and applies nothing, which is what makes
// double-execution impossible.
func (s *Service) ExecuteOrder(id uint, executionPrice decimal.Decimal) error {
	order, err := s.GetOrder(id)
	if err != nil {
		return err
	}

	return s.ledger.WithAccountLock(order.AccountID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			now := time.Now()
			totalCost := order.Amount.Mul(executionPrice)

			res := tx.Model(&models.Order{}).
				Where("id = ? AND status = ?", id, models.OrderStatusPending).
				Updates(map[string]interface{}{
					"status":      models.OrderStatusExecuted,
					"price":       executionPrice,
					"total_cost":  totalCost,
					"executed_at": now,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to execute order %d: %w", id, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("execute order %d: %w", id, models.ErrInvalidStateTransition)
			}

			var account models.Account
			if err := tx.First(&account, order.AccountID).Error; err != nil {
				return fmt.Errorf("failed to load account %d: %w", order.AccountID, err)
			}

			// BUY spends the quote currency, SELL earns it.
			settlement := totalCost.Neg()
			if order.Side == models.SideSell {
				settlement = totalCost
			}

			txn, err := s.ledger.CreateTradeTransaction(tx, &account, nil, settlement,
				fmt.Sprintf("Order execution: %s", order.PairSymbol()))
			if err != nil {
				return err
			}
			if err := s.ledger.Settle(tx, txn); err != nil {
				return err
			}

			s.logger.Info("Order executed",
				zap.Uint("order_id", id),
				zap.String("pair", order.PairSymbol()),
				zap.String("execution_price", executionPrice.String()),
				zap.String("settlement", settlement.String()))
			return nil
		})
	})
}

// CancelOrder transitions a PENDING order to CANCELLED.
func (s *Service) CancelOrder(id uint) error {
	return s.finishOrder(id, models.OrderStatusCancelled, "cancelled_at")
}

// RejectOrder transitions a PENDING order to REJECTED. Used when a
// settlement that was expected to succeed cannot, e.g. the funding
// disappeared between creation and trigger.
func (s *Service) RejectOrder(id uint) error {
	return s.finishOrder(id, models.OrderStatusRejected, "rejected_at")
}

func (s *Service) finishOrder(id uint, status models.OrderStatus, stampColumn string) error {
	res := s.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":    status,
			stampColumn: time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark order %d %s: %w", id, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %d to %s: %w", id, status, models.ErrInvalidStateTransition)
	}
	s.logger.Info("Order resolved", zap.Uint("order_id", id), zap.String("status", string(status)))
	return nil
}

// PendingTriggerOrders lists the PENDING stop-loss and take-profit orders
// referencing a currency pair, across all accounts.
func (s *Service) PendingTriggerOrders(base, quote string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.
		Where("base_currency = ? AND quote_currency = ? AND status = ?", base, quote, models.OrderStatusPending).
		Where("(order_type = ? AND stop_loss_price IS NOT NULL) OR (order_type = ? AND take_profit_price IS NOT NULL)",
			models.OrderTypeStopLoss, models.OrderTypeTakeProfit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending trigger orders for %s/%s: %w", base, quote, err)
	}
	return orders, nil
}

// PendingLimitOrders lists an account's PENDING limit orders. Limit orders
// are resolved by collaborators, not by the trigger loop.
func (s *Service) PendingLimitOrders(accountID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.
		Where("account_id = ? AND status = ? AND order_type = ?",
			accountID, models.OrderStatusPending, models.OrderTypeLimit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending limit orders for account %d: %w", accountID, err)
	}
	return orders, nil
}

// AccountOrders lists an account's orders, optionally filtered by status.
func (s *Service) AccountOrders(accountID uint, status models.OrderStatus) ([]models.Order, error) {
	q := s.db.Where("account_id = ?", accountID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var orders []models.Order
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders for account %d: %w", accountID, err)
	}
	return orders, nil
}
