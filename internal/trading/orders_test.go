package trading

import (
	"sync"
	"testing"

	"forex-trading-bot-go/internal/database"
	"forex-trading-bot-go/internal/ledger"
	"forex-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

// setupTrading creates trading and ledger services over a fresh in-memory
// database plus one funded account.
func setupTrading(t *testing.T, balance string) (*Service, *ledger.Service, *models.Account) {
	db, err := database.Open("file::memory:")
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(db, zap.NewNop())
	svc := NewService(db, ledgerSvc, zap.NewNop())

	account, err := ledgerSvc.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)

	if balance != "0" {
		txn, err := ledgerSvc.CreateTransaction(account.ID, models.TransactionTypeDeposit,
			dec(balance), "USD", "initial funding", "")
		require.NoError(t, err)
		require.NoError(t, ledgerSvc.CompleteTransaction(txn.ID))
	}

	return svc, ledgerSvc, account
}

func TestCreateOrder_ReservesQuotedCost(t *testing.T) {
	svc, ledgerSvc, account := setupTrading(t, "10000")

	order, err := svc.CreateOrder(CreateOrderParams{
		AccountID:     account.ID,
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Amount:        dec("1000"),
		Price:         dec("1.10"),
		OrderType:     models.OrderTypeStopLoss,
		Side:          models.SideBuy,
		StopLossPrice: nullDec("1.05"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.TotalCost.Equal(dec("1100")), "total cost %s", order.TotalCost)

	// Creation reserves nothing permanently: the balance is untouched
	// until execution settles.
	reloaded, err := ledgerSvc.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("10000")))
}

func TestCreateOrder_InsufficientFunds(t *testing.T) {
	svc, _, account := setupTrading(t, "1000")

	_, err := svc.CreateOrder(CreateOrderParams{
		AccountID:     account.ID,
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Amount:        dec("1000"),
		Price:         dec("1.10"), // cost 1100 > balance 1000
		OrderType:     models.OrderTypeLimit,
		Side:          models.SideBuy,
	})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

// The stop-loss scenario: BUY 1000 EUR at 1.10 with a stop at 1.05. A tick
// at 1.10 leaves the order alone; a tick at 1.04 stops it out and debits the
// recomputed cost exactly once.
func TestStopLossRoundTrip(t *testing.T) {
	svc, ledgerSvc, account := setupTrading(t, "10000")

	order, err := svc.CreateOrder(CreateOrderParams{
		AccountID:     account.ID,
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Amount:        dec("1000"),
		Price:         dec("1.10"),
		OrderType:     models.OrderTypeStopLoss,
		Side:          models.SideBuy,
		StopLossPrice: nullDec("1.05"),
	})
	require.NoError(t, err)

	assert.False(t, EvaluateOrderTrigger(order, dec("1.10")))
	assert.True(t, EvaluateOrderTrigger(order, dec("1.04")))

	require.NoError(t, svc.ExecuteOrder(order.ID, dec("1.04")))

	executed, err := svc.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExecuted, executed.Status)
	assert.True(t, executed.Price.Equal(dec("1.04")))
	assert.True(t, executed.TotalCost.Equal(dec("1040")), "total cost %s", executed.TotalCost)
	assert.NotNil(t, executed.ExecutedAt)

	reloaded, err := ledgerSvc.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("8960")), "balance %s", reloaded.Balance)

	// The settlement left a completed TRADE transaction behind.
	txns, err := ledgerSvc.AccountTransactions(account.ID, models.TransactionStatusCompleted)
	require.NoError(t, err)
	var settlements int
	for _, txn := range txns {
		if txn.TransactionType == models.TransactionTypeTrade {
			settlements++
			assert.True(t, txn.Amount.Equal(dec("-1040")))
		}
	}
	assert.Equal(t, 1, settlements)
}

func TestExecuteOrder_SellSideCreditsProceeds(t *testing.T) {
	svc, ledgerSvc, account := setupTrading(t, "10000")

	order, err := svc.CreateOrder(CreateOrderParams{
		AccountID:       account.ID,
		BaseCurrency:    "EUR",
		QuoteCurrency:   "USD",
		Amount:          dec("500"),
		Price:           dec("1.20"),
		OrderType:       models.OrderTypeTakeProfit,
		Side:            models.SideSell,
		TakeProfitPrice: nullDec("1.15"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.ExecuteOrder(order.ID, dec("1.15")))

	reloaded, err := ledgerSvc.GetAccount(account.ID)
	require.NoError(t, err)
	// 10000 + 500 x 1.15
	assert.True(t, reloaded.Balance.Equal(dec("10575")), "balance %s", reloaded.Balance)
}

func TestExecuteOrder_TwiceFailsLoudly(t *testing.T) {
	svc, ledgerSvc, account := setupTrading(t, "10000")

	order, err := svc.CreateOrder(CreateOrderParams{
		AccountID:     account.ID,
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Amount:        dec("100"),
		Price:         dec("1.10"),
		OrderType:     models.OrderTypeStopLoss,
		Side:          models.SideBuy,
		StopLossPrice: nullDec("1.05"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.ExecuteOrder(order.ID, dec("1.04")))
	err = svc.ExecuteOrder(order.ID, dec("1.04"))
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)

	// The ledger mutation applied exactly once.
	reloaded, err := ledgerSvc.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("9896")), "balance %s", reloaded.Balance)
}

func TestExecuteOrder_ConcurrentDoubleResolution(t *testing.T) {
	svc, ledgerSvc, account := setupTrading(t, "10000")

	order, err := svc.CreateOrder(CreateOrderParams{
		AccountID:       account.ID,
		BaseCurrency:    "EUR",
		QuoteCurrency:   "USD",
		Amount:          dec("1000"),
		Price:           dec("1.10"),
		OrderType:       models.OrderTypeTakeProfit,
		Side:            models.SideBuy,
		TakeProfitPrice: nullDec("1.15"),
	})
	require.NoError(t, err)

	// Two overlapping ticks both see the order PENDING and satisfying its
	// condition. Exactly one wins the claim.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.ExecuteOrder(order.ID, dec("1.16"))
		}()
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	reloaded, err := ledgerSvc.GetAccount(account.ID)
	require.NoError(t, err)
	// 10000 - 1000 x 1.16, applied once.
	assert.True(t, reloaded.Balance.Equal(dec("8840")), "balance %s", reloaded.Balance)
}

func TestExecuteOrder_InsufficientFundsRollsEverythingBack(t *testing.T) {
	svc, ledgerSvc, account := setupTrading(t, "1200")

	order, err := svc.CreateOrder(CreateOrderParams{
		AccountID:     account.ID,
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Amount:        dec("1000"),
		Price:         dec("1.10"),
		OrderType:     models.OrderTypeStopLoss,
		Side:          models.SideBuy,
		StopLossPrice: nullDec("1.05"),
	})
	require.NoError(t, err)

	// Drain the account after the order was created.
	withdrawal, err := ledgerSvc.CreateTransaction(account.ID, models.TransactionTypeWithdrawal,
		dec("-1000"), "USD", "", "")
	require.NoError(t, err)
	require.NoError(t, ledgerSvc.CompleteTransaction(withdrawal.ID))

	err = svc.ExecuteOrder(order.ID, dec("1.04"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// The claim rolled back with the settlement: the order is still
	// PENDING and the balance untouched.
	reloaded, err := svc.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, reloaded.Status)

	acct, err := ledgerSvc.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(dec("200")))
}

func TestCancelOrder_BlocksLaterExecution(t *testing.T) {
	svc, _, account := setupTrading(t, "10000")

	order, err := svc.CreateOrder(CreateOrderParams{
		AccountID:     account.ID,
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Amount:        dec("100"),
		Price:         dec("1.10"),
		OrderType:     models.OrderTypeLimit,
		Side:          models.SideBuy,
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelOrder(order.ID))
	assert.ErrorIs(t, svc.ExecuteOrder(order.ID, dec("1.10")), models.ErrInvalidStateTransition)
	assert.ErrorIs(t, svc.CancelOrder(order.ID), models.ErrInvalidStateTransition)
	assert.ErrorIs(t, svc.RejectOrder(order.ID), models.ErrInvalidStateTransition)
}

func TestEvaluateOrderTrigger_IsPure(t *testing.T) {
	svc, _, account := setupTrading(t, "10000")

	order, err := svc.CreateOrder(CreateOrderParams{
		AccountID:     account.ID,
		BaseCurrency:  "EUR",
		QuoteCurrency: "USD",
		Amount:        dec("100"),
		Price:         dec("1.10"),
		OrderType:     models.OrderTypeStopLoss,
		Side:          models.SideBuy,
		StopLossPrice: nullDec("1.05"),
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.True(t, EvaluateOrderTrigger(order, dec("1.01")))
	}

	reloaded, err := svc.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, reloaded.Status)
	assert.True(t, reloaded.Price.Equal(dec("1.10")))
}

func TestPendingTriggerOrders_SelectsOnlyArmedOrders(t *testing.T) {
	svc, _, account := setupTrading(t, "100000")

	mk := func(orderType models.OrderType, sl, tp decimal.NullDecimal) *models.Order {
		o, err := svc.CreateOrder(CreateOrderParams{
			AccountID:       account.ID,
			BaseCurrency:    "EUR",
			QuoteCurrency:   "USD",
			Amount:          dec("10"),
			Price:           dec("1.10"),
			OrderType:       orderType,
			Side:            models.SideBuy,
			StopLossPrice:   sl,
			TakeProfitPrice: tp,
		})
		require.NoError(t, err)
		return o
	}

	armed := mk(models.OrderTypeStopLoss, nullDec("1.05"), decimal.NullDecimal{})
	mk(models.OrderTypeLimit, decimal.NullDecimal{}, decimal.NullDecimal{})
	mk(models.OrderTypeStopLoss, decimal.NullDecimal{}, decimal.NullDecimal{}) // unarmed
	executed := mk(models.OrderTypeTakeProfit, decimal.NullDecimal{}, nullDec("1.15"))
	require.NoError(t, svc.ExecuteOrder(executed.ID, dec("1.16")))

	pending, err := svc.PendingTriggerOrders("EUR", "USD")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, armed.ID, pending[0].ID)

	// Different pair sees nothing.
	other, err := svc.PendingTriggerOrders("GBP", "USD")
	require.NoError(t, err)
	assert.Empty(t, other)
}
