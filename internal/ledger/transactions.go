package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"forex-trading-bot-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reference numbers occasionally collide after truncation; the insert is
// retried with a fresh number instead of pre-checking existence.
const maxReferenceAttempts = 5

// CreateTransaction records a new PENDING transaction against an account.
// Negative amounts are pre-checked against the balance so callers get an
// immediate InsufficientFunds instead of a doomed completion later.
func (s *Service) CreateTransaction(accountID uint, txType models.TransactionType,
	amount decimal.Decimal, currency, description, paymentMethod string) (*models.Transaction, error) {

	account, err := s.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, fmt.Errorf("account %d is inactive: %w", accountID, models.ErrInsufficientFunds)
	}
	if amount.Cmp(decimal.Zero) < 0 {
		if err := s.Reserve(accountID, amount.Abs()); err != nil {
			return nil, err
		}
	}

	txn := models.Transaction{
		AccountID:       accountID,
		TransactionType: txType,
		Amount:          amount,
		Currency:        currency,
		Status:          models.TransactionStatusPending,
		Description:     description,
		PaymentMethod:   paymentMethod,
	}

	if err := s.insertWithReference(s.db, &txn); err != nil {
		return nil, err
	}

	s.logger.Info("Transaction created",
		zap.Uint("transaction_id", txn.ID),
		zap.Uint("account_id", accountID),
		zap.String("type", string(txType)),
		zap.String("amount", amount.String()),
		zap.String("reference", txn.ReferenceNumber))

	return &txn, nil
}

// CreateTradeTransaction records a settlement entry inside an already-open
// database transaction. Used by order and trade execution so the entry is
// committed or rolled back together with the state transition it settles.
func (s *Service) CreateTradeTransaction(tx *gorm.DB, account *models.Account,
	tradeID *uint, amount decimal.Decimal, description string) (*models.Transaction, error) {

	txn := models.Transaction{
		AccountID:       account.ID,
		TransactionType: models.TransactionTypeTrade,
		Amount:          amount,
		Currency:        account.Currency,
		Status:          models.TransactionStatusPending,
		Description:     description,
		TradeID:         tradeID,
	}

	if err := s.insertWithReference(tx, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// insertWithReference inserts txn, generating a fresh reference number and
// retrying on a uniqueness conflict. A sqlite constraint failure aborts only
// the statement, so retrying inside an enclosing transaction is safe.
func (s *Service) insertWithReference(tx *gorm.DB, txn *models.Transaction) error {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		txn.ReferenceNumber = newReferenceNumber()
		err := tx.Create(txn).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		s.logger.Warn("Reference number collision, retrying",
			zap.String("reference", txn.ReferenceNumber),
			zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("failed to create transaction after %d reference attempts", maxReferenceAttempts)
}

// GetTransaction loads one transaction by ID.
func (s *Service) GetTransaction(id uint) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.First(&txn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %d: %w", id, models.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	return &txn, nil
}

// GetTransactionByReference loads one transaction by its reference number.
func (s *Service) GetTransactionByReference(reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.Where("reference_number = ?", reference).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", reference, models.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("failed to load transaction %s: %w", reference, err)
	}
	return &txn, nil
}

// AccountTransactions lists an account's transactions, optionally filtered
// by status.
func (s *Service) AccountTransactions(accountID uint, status models.TransactionStatus) ([]models.Transaction, error) {
	q := s.db.Where("account_id = ?", accountID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var txns []models.Transaction
	if err := q.Order("created_at DESC").Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %d: %w", accountID, err)
	}
	return txns, nil
}

// CompleteTransaction transitions a PENDING transaction to COMPLETED and
// applies its amount to the account balance. The claim and the balance
// update commit atomically; completing an already-terminal transaction
// fails with InvalidStateTransition rather than silently succeeding.
func (s *Service) CompleteTransaction(id uint) error {
	txn, err := s.GetTransaction(id)
	if err != nil {
		return err
	}

	return s.WithAccountLock(txn.AccountID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			return s.Settle(tx, txn)
		})
	})
}

// Settle performs the PENDING->COMPLETED claim and the balance mutation for
// txn inside tx. Callers must hold the account's mutex.
func (s *Service) Settle(tx *gorm.DB, txn *models.Transaction) error {
	now := time.Now()
	res := tx.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":       models.TransactionStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete transaction %d: %w", txn.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete transaction %d: %w", txn.ID, models.ErrInvalidStateTransition)
	}

	newBalance, err := s.Apply(tx, txn.AccountID, txn.Amount)
	if err != nil {
		return err
	}

	s.logger.Info("Transaction completed",
		zap.Uint("transaction_id", txn.ID),
		zap.Uint("account_id", txn.AccountID),
		zap.String("amount", txn.Amount.String()),
		zap.String("new_balance", newBalance.String()))

	return nil
}

// FailTransaction transitions a PENDING transaction to FAILED. No balance
// effect.
func (s *Service) FailTransaction(id uint) error {
	return s.finishWithoutBalance(id, models.TransactionStatusFailed, "failed_at")
}

// CancelTransaction transitions a PENDING transaction to CANCELLED. No
// balance effect.
func (s *Service) CancelTransaction(id uint) error {
	return s.finishWithoutBalance(id, models.TransactionStatusCancelled, "cancelled_at")
}

func (s *Service) finishWithoutBalance(id uint, status models.TransactionStatus, stampColumn string) error {
	res := s.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":    status,
			stampColumn: time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark transaction %d %s: %w", id, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction %d to %s: %w", id, status, models.ErrInvalidStateTransition)
	}
	return nil
}

// newReferenceNumber derives a 16-character reference from a UUID.
func newReferenceNumber() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
