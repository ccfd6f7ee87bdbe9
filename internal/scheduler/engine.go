package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"forex-trading-bot-go/internal/alerts"
	"forex-trading-bot-go/internal/config"
	"forex-trading-bot-go/internal/ledger"
	"forex-trading-bot-go/internal/models"
	"forex-trading-bot-go/internal/notifier"
	"forex-trading-bot-go/internal/rates"
	"forex-trading-bot-go/internal/trading"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine is the trigger scheduler: per price tick it evaluates the pending
// orders, trades and active alerts referencing the ticked pair and resolves
// the ones whose condition is met. At-most-once resolution is carried by the
// conditional state claims in the trading and alert services, so overlapping
// ticks for the same pair need no extra synchronization here: the losing
// evaluation observes InvalidStateTransition or AlreadyTriggered and moves on.
type Engine struct {
	logger     *zap.Logger
	cfg        *config.Config
	feed       rates.Source
	trading    *trading.Service
	alerts     *alerts.Service
	ledger     *ledger.Service
	dispatcher notifier.Dispatcher

	StartTime time.Time
	tickCount atomic.Uint64
}

// NewEngine creates a new trigger scheduler.
func NewEngine(logger *zap.Logger, cfg *config.Config, feed rates.Source,
	tradingSvc *trading.Service, alertSvc *alerts.Service, ledgerSvc *ledger.Service,
	dispatcher notifier.Dispatcher) *Engine {

	return &Engine{
		logger:     logger.Named("scheduler"),
		cfg:        cfg,
		feed:       feed,
		trading:    tradingSvc,
		alerts:     alertSvc,
		ledger:     ledgerSvc,
		dispatcher: dispatcher,
		StartTime:  time.Now(),
	}
}

// Run starts the evaluation loop.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trigger loop",
		zap.Duration("interval", interval),
		zap.Strings("pairs", e.cfg.Trading.Pairs))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trigger loop...")
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// TickCount returns the number of completed evaluation cycles.
func (e *Engine) TickCount() uint64 {
	return e.tickCount.Load()
}

// tick evaluates every configured pair against its latest known price. A
// pair with no fresh rate is skipped this cycle and retried on the next one.
func (e *Engine) tick() {
	for _, pair := range e.cfg.Trading.Pairs {
		base, quote, err := rates.SplitPair(pair)
		if err != nil {
			e.logger.Error("Skipping malformed pair", zap.String("pair", pair), zap.Error(err))
			continue
		}

		price, asOf, err := e.feed.LatestPrice(base, quote)
		if err != nil {
			if errors.Is(err, models.ErrRateUnavailable) || errors.Is(err, models.ErrStaleRate) {
				e.logger.Warn("No fresh rate, skipping pair this tick",
					zap.String("pair", pair), zap.Error(err))
				continue
			}
			e.logger.Error("Failed to read rate", zap.String("pair", pair), zap.Error(err))
			continue
		}

		e.OnPriceTick(base, quote, price, asOf)
	}
	e.tickCount.Add(1)
}

// OnPriceTick is the single evaluation entry point: it resolves every
// pending order, trade and active alert on the pair against price. Failures
// are isolated per entity; one entity's error never aborts its siblings.
func (e *Engine) OnPriceTick(base, quote string, price decimal.Decimal, asOf time.Time) {
	l := e.logger.With(
		zap.String("pair", base+"/"+quote),
		zap.String("price", price.String()),
		zap.Time("as_of", asOf))

	e.checkAlerts(l, base, quote, price)
	e.checkOrders(l, base, quote, price)
	e.checkTrades(l, base, quote, price)
}

func (e *Engine) checkAlerts(l *zap.Logger, base, quote string, price decimal.Decimal) {
	activeAlerts, err := e.alerts.ActiveAlertsForPair(base, quote)
	if err != nil {
		l.Error("Failed to load active alerts", zap.Error(err))
		return
	}

	for i := range activeAlerts {
		alert := &activeAlerts[i]
		if !alert.ConditionMet(price) {
			continue
		}

		switch err := e.alerts.Trigger(alert.ID); {
		case err == nil:
			l.Info("Alert fired", zap.Uint("alert_id", alert.ID))
		case errors.Is(err, models.ErrAlreadyTriggered):
			// Another tick claimed it first.
			l.Debug("Alert already claimed", zap.Uint("alert_id", alert.ID))
		default:
			l.Error("Failed to trigger alert", zap.Uint("alert_id", alert.ID), zap.Error(err))
		}
	}
}

func (e *Engine) checkOrders(l *zap.Logger, base, quote string, price decimal.Decimal) {
	orders, err := e.trading.PendingTriggerOrders(base, quote)
	if err != nil {
		l.Error("Failed to load pending orders", zap.Error(err))
		return
	}

	for i := range orders {
		order := &orders[i]
		if !trading.EvaluateOrderTrigger(order, price) {
			continue
		}

		switch err := e.trading.ExecuteOrder(order.ID, price); {
		case err == nil:
			l.Info("Order executed on trigger", zap.Uint("order_id", order.ID))
			e.notifyExecution(l, order.AccountID, fmt.Sprintf(
				"Your %s order on %s executed at %s", order.Side, order.PairSymbol(), price))
		case errors.Is(err, models.ErrInvalidStateTransition):
			// Another tick claimed it first.
			l.Debug("Order already claimed", zap.Uint("order_id", order.ID))
		case errors.Is(err, models.ErrInsufficientFunds):
			// The funding disappeared after creation. Retrying silently
			// could double-charge, so the order is rejected and escalated.
			l.Error("Order settlement lacked funds, rejecting",
				zap.Uint("order_id", order.ID), zap.Error(err))
			if rejectErr := e.trading.RejectOrder(order.ID); rejectErr != nil &&
				!errors.Is(rejectErr, models.ErrInvalidStateTransition) {
				l.Error("Failed to reject order", zap.Uint("order_id", order.ID), zap.Error(rejectErr))
			}
		default:
			l.Error("Failed to execute order", zap.Uint("order_id", order.ID), zap.Error(err))
		}
	}
}

func (e *Engine) checkTrades(l *zap.Logger, base, quote string, price decimal.Decimal) {
	trades, err := e.trading.PendingTriggerTrades(base, quote)
	if err != nil {
		l.Error("Failed to load pending trades", zap.Error(err))
		return
	}

	for i := range trades {
		trade := &trades[i]
		if !trading.EvaluateTradeTrigger(trade, price) {
			continue
		}

		switch err := e.trading.ExecuteTrade(trade.ID, price); {
		case err == nil:
			l.Info("Trade executed on trigger", zap.Uint("trade_id", trade.ID))
			e.notifyUser(l, trade.UserID, fmt.Sprintf(
				"Your %s position on %s closed at %s", trade.Side, trade.PairSymbol(), price))
		case errors.Is(err, models.ErrInvalidStateTransition):
			l.Debug("Trade already claimed", zap.Uint("trade_id", trade.ID))
		case errors.Is(err, models.ErrInsufficientFunds):
			l.Error("Trade settlement lacked funds, rejecting",
				zap.Uint("trade_id", trade.ID), zap.Error(err))
			if rejectErr := e.trading.RejectTrade(trade.ID); rejectErr != nil &&
				!errors.Is(rejectErr, models.ErrInvalidStateTransition) {
				l.Error("Failed to reject trade", zap.Uint("trade_id", trade.ID), zap.Error(rejectErr))
			}
		default:
			l.Error("Failed to execute trade", zap.Uint("trade_id", trade.ID), zap.Error(err))
		}
	}
}

// notifyExecution resolves the account owner and sends a fire-and-forget
// confirmation.
func (e *Engine) notifyExecution(l *zap.Logger, accountID uint, message string) {
	account, err := e.ledger.GetAccount(accountID)
	if err != nil {
		l.Error("Failed to resolve account for notification",
			zap.Uint("account_id", accountID), zap.Error(err))
		return
	}
	e.notifyUser(l, account.UserID, message)
}

func (e *Engine) notifyUser(l *zap.Logger, userID uint, message string) {
	if err := e.dispatcher.Notify(userID, notifier.ChannelEmail, "Trade Confirmation", message); err != nil {
		l.Error("Failed to dispatch confirmation", zap.Uint("user_id", userID), zap.Error(err))
	}
}
