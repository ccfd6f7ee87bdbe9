package ledger

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"forex-trading-bot-go/internal/database"
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

// setupLedger creates a ledger service on a fresh in-memory database.
func setupLedger(t *testing.T) *Service {
	db, err := database.Open("file::memory:")
	require.NoError(t, err)
	return NewService(db, zap.NewNop())
}

// fund deposits amount into the account and completes the transaction.
func fund(t *testing.T, s *Service, accountID uint, amount string) {
	txn, err := s.CreateTransaction(accountID, models.TransactionTypeDeposit,
		dec(amount), "USD", "test deposit", "BANK_TRANSFER")
	require.NoError(t, err)
	require.NoError(t, s.CompleteTransaction(txn.ID))
}

func TestCreateAccount_StartsEmptyAndActive(t *testing.T) {
	s := setupLedger(t)

	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)

	assert.True(t, account.Active)
	assert.True(t, account.Balance.IsZero())
	assert.Len(t, account.AccountNumber, 12)
}

func TestCompleteTransaction_MutatesBalanceExactlyOnce(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)

	txn, err := s.CreateTransaction(account.ID, models.TransactionTypeDeposit,
		dec("100"), "USD", "deposit", "CREDIT_CARD")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)

	require.NoError(t, s.CompleteTransaction(txn.ID))

	reloaded, err := s.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("100")), "balance %s", reloaded.Balance)

	// Completing an already-completed transaction is a loud failure, not a
	// silent no-op, and must not apply the amount again.
	err = s.CompleteTransaction(txn.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)

	reloaded, err = s.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("100")))
}

func TestBalance_ConservationOverTransactionSequence(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)

	amounts := []string{"500", "-120", "42.5", "-0.5", "78"}
	expected := decimal.Zero
	for _, a := range amounts {
		txn, err := s.CreateTransaction(account.ID, models.TransactionTypeDeposit,
			dec(a), "USD", "entry", "")
		require.NoError(t, err)
		require.NoError(t, s.CompleteTransaction(txn.ID))
		expected = expected.Add(dec(a))
	}

	reloaded, err := s.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(expected),
		"balance %s, expected %s", reloaded.Balance, expected)
}

func TestCreateTransaction_WithdrawalNeedsFunds(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)
	fund(t, s, account.ID, "50")

	_, err = s.CreateTransaction(account.ID, models.TransactionTypeWithdrawal,
		dec("-100"), "USD", "too much", "")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// Nothing mutated.
	reloaded, err := s.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("50")))
}

func TestCompleteTransaction_NeverCommitsNegativeBalance(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)
	fund(t, s, account.ID, "100")

	// Two withdrawals that each pass the creation-time check but cannot
	// both settle.
	first, err := s.CreateTransaction(account.ID, models.TransactionTypeWithdrawal,
		dec("-80"), "USD", "", "")
	require.NoError(t, err)
	second, err := s.CreateTransaction(account.ID, models.TransactionTypeWithdrawal,
		dec("-80"), "USD", "", "")
	require.NoError(t, err)

	require.NoError(t, s.CompleteTransaction(first.ID))
	err = s.CompleteTransaction(second.ID)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	reloaded, err := s.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("20")))

	// The failed completion rolled back the claim too: the transaction is
	// still PENDING, not half-applied.
	txn, err := s.GetTransaction(second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)
}

func TestFailAndCancel_DoNotTouchBalance(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)
	fund(t, s, account.ID, "100")

	failed, err := s.CreateTransaction(account.ID, models.TransactionTypeDeposit, dec("30"), "USD", "", "")
	require.NoError(t, err)
	require.NoError(t, s.FailTransaction(failed.ID))

	cancelled, err := s.CreateTransaction(account.ID, models.TransactionTypeDeposit, dec("30"), "USD", "", "")
	require.NoError(t, err)
	require.NoError(t, s.CancelTransaction(cancelled.ID))

	reloaded, err := s.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("100")))

	// Terminal transactions cannot be completed afterwards.
	assert.ErrorIs(t, s.CompleteTransaction(failed.ID), models.ErrInvalidStateTransition)
	assert.ErrorIs(t, s.CompleteTransaction(cancelled.ID), models.ErrInvalidStateTransition)
}

func TestInactiveAccount_RejectsLedgerActivity(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)
	fund(t, s, account.ID, "100")

	txn, err := s.CreateTransaction(account.ID, models.TransactionTypeDeposit, dec("10"), "USD", "", "")
	require.NoError(t, err)

	require.NoError(t, s.DeactivateAccount(account.ID))

	_, err = s.CreateTransaction(account.ID, models.TransactionTypeDeposit, dec("10"), "USD", "", "")
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// A pending transaction can no longer settle against the deactivated
	// account either.
	assert.ErrorIs(t, s.CompleteTransaction(txn.ID), models.ErrInsufficientFunds)

	assert.ErrorIs(t, s.Reserve(account.ID, dec("1")), models.ErrInsufficientFunds)
}

func TestReserve_ChecksWithoutMutating(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)
	fund(t, s, account.ID, "100")

	require.NoError(t, s.Reserve(account.ID, dec("100")))
	assert.ErrorIs(t, s.Reserve(account.ID, dec("100.01")), models.ErrInsufficientFunds)

	reloaded, err := s.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("100")))
}

func TestConcurrentCompletions_SerializePerAccount(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)

	const n = 20
	ids := make([]uint, n)
	for i := 0; i < n; i++ {
		txn, err := s.CreateTransaction(account.ID, models.TransactionTypeDeposit,
			dec("10"), "USD", fmt.Sprintf("deposit %d", i), "")
		require.NoError(t, err)
		ids[i] = txn.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			errs <- s.CompleteTransaction(id)
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	reloaded, err := s.GetAccount(account.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("200")), "balance %s", reloaded.Balance)
}

func TestReferenceNumbers_UniqueAcrossConcurrentCreation(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)

	const n = 30
	var wg sync.WaitGroup
	refs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := s.CreateTransaction(account.ID, models.TransactionTypeDeposit,
				dec("1"), "USD", "", "")
			if err == nil {
				refs <- txn.ReferenceNumber
			} else {
				refs <- ""
			}
		}()
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]bool)
	for ref := range refs {
		require.NotEmpty(t, ref)
		assert.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	s := setupLedger(t)

	_, err := s.GetAccount(999)
	assert.ErrorIs(t, err, models.ErrResourceNotFound)

	_, err = s.GetTransaction(999)
	assert.ErrorIs(t, err, models.ErrResourceNotFound)

	_, err = s.GetTransactionByReference("nope")
	assert.ErrorIs(t, err, models.ErrResourceNotFound)
}

func TestAccountTransactions_FilterByStatus(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)

	done, err := s.CreateTransaction(account.ID, models.TransactionTypeDeposit, dec("10"), "USD", "", "")
	require.NoError(t, err)
	require.NoError(t, s.CompleteTransaction(done.ID))
	_, err = s.CreateTransaction(account.ID, models.TransactionTypeDeposit, dec("10"), "USD", "", "")
	require.NoError(t, err)

	pending, err := s.AccountTransactions(account.ID, models.TransactionStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := s.AccountTransactions(account.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestErrorsSurviveWrapping(t *testing.T) {
	s := setupLedger(t)
	account, err := s.CreateAccount(1, "USD", models.AccountTypeDemo)
	require.NoError(t, err)

	err = s.Reserve(account.ID, dec("1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientFunds))
}
