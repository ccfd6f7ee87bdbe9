package alerts

import (
	"errors"
	"fmt"
	"time"

	"forex-trading-bot-go/internal/models"
	"forex-trading-bot-go/internal/notifier"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service owns the alert state machine. An alert fires at most once: the
// trigger transition is a conditional update on (active AND NOT triggered),
// so a concurrent second trigger observes AlreadyTriggered.
type Service struct {
	db         *gorm.DB
	logger     *zap.Logger
	dispatcher notifier.Dispatcher
}

// NewService creates a new alert service.
func NewService(db *gorm.DB, dispatcher notifier.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		db:         db,
		logger:     logger.Named("alerts"),
		dispatcher: dispatcher,
	}
}

// CreateAlert records a new active alert. At most one active alert may exist
// per (user, pair); uniqueness is enforced by a partial index at write time,
// so two concurrent creates cannot both succeed. The condition is
// deliberately not part of the key: a user cannot hold simultaneous ABOVE
// and BELOW alerts on one pair.
func (s *Service) CreateAlert(userID uint, base, quote string, targetPrice decimal.Decimal,
	condition models.AlertCondition, notificationType string) (*models.Alert, error) {

	alert := models.Alert{
		UserID:           userID,
		BaseCurrency:     base,
		QuoteCurrency:    quote,
		TargetPrice:      targetPrice,
		Condition:        condition,
		Active:           true,
		NotificationType: notificationType,
	}

	if err := s.db.Create(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("alert for %s/%s: %w", base, quote, models.ErrDuplicateActiveAlert)
		}
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.logger.Info("Alert created",
		zap.Uint("alert_id", alert.ID),
		zap.Uint("user_id", userID),
		zap.String("pair", alert.PairSymbol()),
		zap.String("condition", string(condition)),
		zap.String("target_price", targetPrice.String()))

	return &alert, nil
}

// GetAlert loads one alert by ID.
func (s *Service) GetAlert(id uint) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("alert %d: %w", id, models.ErrResourceNotFound)
		}
		return nil, fmt.Errorf("failed to load alert %d: %w", id, err)
	}
	return &alert, nil
}

// Trigger fires an alert: triggered becomes true, active false, both in one
// irreversible step. A second call fails with AlreadyTriggered so the
// scheduler can detect the race. Notification delivery is fire-and-forget.
func (s *Service) Trigger(id uint) error {
	alert, err := s.GetAlert(id)
	if err != nil {
		return err
	}

	now := time.Now()
	res := s.db.Model(&models.Alert{}).
		Where("id = ? AND active = ? AND triggered = ?", id, true, false).
		Updates(map[string]interface{}{
			"active":       false,
			"triggered":    true,
			"triggered_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to trigger alert %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("trigger alert %d: %w", id, models.ErrAlreadyTriggered)
	}

	s.logger.Info("Alert triggered",
		zap.Uint("alert_id", id),
		zap.String("pair", alert.PairSymbol()))

	s.notify(alert)
	return nil
}

// notify delivers the alert message on the configured channels. Failures are
// logged, never propagated.
func (s *Service) notify(alert *models.Alert) {
	message := alert.Message()
	channels := []string{}
	switch alert.NotificationType {
	case models.NotificationTypeEmail:
		channels = append(channels, notifier.ChannelEmail)
	case models.NotificationTypePush:
		channels = append(channels, notifier.ChannelPush)
	case models.NotificationTypeBoth:
		channels = append(channels, notifier.ChannelEmail, notifier.ChannelPush)
	}
	for _, ch := range channels {
		if err := s.dispatcher.Notify(alert.UserID, ch, "Price Alert", message); err != nil {
			s.logger.Error("Failed to dispatch alert notification",
				zap.Uint("alert_id", alert.ID),
				zap.String("channel", ch),
				zap.Error(err))
		}
	}
}

// DeactivateAlert switches an alert off without marking it triggered.
func (s *Service) DeactivateAlert(id uint) error {
	res := s.db.Model(&models.Alert{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate alert %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alert %d: %w", id, models.ErrResourceNotFound)
	}
	s.logger.Info("Alert deactivated", zap.Uint("alert_id", id))
	return nil
}

// DeleteAlert removes an alert entirely.
func (s *Service) DeleteAlert(id uint) error {
	res := s.db.Delete(&models.Alert{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete alert %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alert %d: %w", id, models.ErrResourceNotFound)
	}
	return nil
}

// ActiveAlertsForPair lists the active alerts referencing a currency pair,
// across all users.
func (s *Service) ActiveAlertsForPair(base, quote string) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.
		Where("base_currency = ? AND quote_currency = ? AND active = ?", base, quote, true).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts for %s/%s: %w", base, quote, err)
	}
	return alerts, nil
}

// UserAlerts lists all of a user's alerts.
func (s *Service) UserAlerts(userID uint) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := s.db.Where("user_id = ?", userID).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts for user %d: %w", userID, err)
	}
	return alerts, nil
}

// UserActiveAlerts lists a user's active alerts.
func (s *Service) UserActiveAlerts(userID uint) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := s.db.Where("user_id = ? AND active = ?", userID, true).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list active alerts for user %d: %w", userID, err)
	}
	return alerts, nil
}

// UserTriggeredAlerts lists a user's triggered alerts.
func (s *Service) UserTriggeredAlerts(userID uint) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := s.db.Where("user_id = ? AND triggered = ?", userID, true).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list triggered alerts for user %d: %w", userID, err)
	}
	return alerts, nil
}
