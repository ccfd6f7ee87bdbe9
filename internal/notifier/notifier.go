package notifier

import (
	"go.uber.org/zap"
)

const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// Dispatcher delivers notifications to users. Delivery is fire-and-forget:
// callers log failures and never propagate them into trigger evaluation.
type Dispatcher interface {
	Notify(userID uint, channel, subject, message string) error
}

// LogDispatcher writes notifications to the log. It stands in for the
// external email/push delivery collaborators.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a log-backed dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.Named("notifier")}
}

var _ Dispatcher = (*LogDispatcher)(nil)

func (d *LogDispatcher) Notify(userID uint, channel, subject, message string) error {
	d.logger.Info("Notification dispatched",
		zap.Uint("user_id", userID),
		zap.String("channel", channel),
		zap.String("subject", subject),
		zap.String("message", message))
	return nil
}
