package ledger

import (
	"errors"
	"fmt"
	"strings"

	"forex-trading-bot-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateAccount opens a new account with a zero balance.
func (s *Service) CreateAccount(userID uint, currency, accountType string) (*models.Account, error) {
	account := models.Account{
		UserID:        userID,
		AccountNumber: newAccountNumber(),
		AccountType:   accountType,
		Balance:       decimal.Zero,
		Currency:      currency,
		Active:        true,
	}

	if err := s.db.Create(&account).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account created",
		zap.Uint("account_id", account.ID),
		zap.Uint("user_id", userID),
		zap.String("currency", currency))

	return &account, nil
}

// GetAccount loads one account by ID.
func (s *Service) GetAccount(id uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d: %w", id, models.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("failed to load account %d: %w", id, err)
	}
	return &account, nil
}

// UserAccounts lists all accounts owned by a user.
func (s *Service) UserAccounts(userID uint) ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Where("user_id = ?", userID).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts for user %d: %w", userID, err)
	}
	return accounts, nil
}

// DeactivateAccount soft-deactivates an account. The row is kept; it may
// still own transactions and orders.
func (s *Service) DeactivateAccount(id uint) error {
	res := s.db.Model(&models.Account{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate account %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %d: %w", id, models.ErrResourceNotFound)
	}
	s.logger.Info("Account deactivated", zap.Uint("account_id", id))
	return nil
}

// Reserve is a pre-check with no side effects: it verifies the account is
// active and the balance covers amount, so order and trade creation can
// reject up front.
func (s *Service) Reserve(accountID uint, amount decimal.Decimal) error {
	account, err := s.GetAccount(accountID)
	if err != nil {
		return err
	}
	if !account.Active {
		return fmt.Errorf("account %d is inactive: %w", accountID, models.ErrInsufficientFunds)
	}
	if !account.HasSufficientFunds(amount) {
		return fmt.Errorf("account %d balance %s below required %s: %w",
			accountID, account.Balance, amount, models.ErrInsufficientFunds)
	}
	return nil
}

// Apply adds signedAmount to the account balance and returns the new
// balance. It must be called inside a database transaction while the
// caller holds the account's mutex, together with the PENDING->COMPLETED
// transition of the transaction it settles, so a partial application can
// never be committed.
func (s *Service) Apply(tx *gorm.DB, accountID uint, signedAmount decimal.Decimal) (decimal.Decimal, error) {
	var account models.Account
	if err := tx.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, fmt.Errorf("account %d: %w", accountID, models.ErrResourceNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to load account %d: %w", accountID, err)
	}

	if !account.Active {
		return decimal.Zero, fmt.Errorf("account %d is inactive: %w", accountID, models.ErrInsufficientFunds)
	}

	newBalance := account.Balance.Add(signedAmount)
	if newBalance.Cmp(decimal.Zero) < 0 {
		return decimal.Zero, fmt.Errorf("account %d balance %s cannot absorb %s: %w",
			accountID, account.Balance, signedAmount, models.ErrInsufficientFunds)
	}

	if err := tx.Model(&account).Update("balance", newBalance).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance for account %d: %w", accountID, err)
	}

	return newBalance, nil
}

// newAccountNumber derives a 12-character account number from a UUID.
func newAccountNumber() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
