package pavolmon

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Notifier shows desktop notifications
type Notifier interface {
	Notify(title string, message string)
}

// ToastNotifier is the beeep-backed Notifier
type ToastNotifier struct {
	logger *zap.SugaredLogger
}

func NewToastNotifier(logger *zap.SugaredLogger) (*ToastNotifier, error) {
	logger = logger.Named("notifier")

	tn := &ToastNotifier{logger: logger}

	logger.Debug("Created toast notifier instance")

	return tn, nil
}

// Notify sends a toast notification, failures are only logged
func (tn *ToastNotifier) Notify(title string, message string) {
	tn.logger.Infow("Sending toast notification", "title", title, "message", message)

	if err := beeep.Notify(title, message, ""); err != nil {
		tn.logger.Warnw("Failed to send toast notification", "error", err)
	}
}

// noopNotifier is used when notifications are disabled
type noopNotifier struct{}

func (noopNotifier) Notify(string, string) {}
