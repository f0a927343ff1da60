package notification

import (
	"context"
	"log/slog"
)

const (
	// KindDecision indicates a lender decision on an application.
	KindDecision = "application_decision"
	// KindDisbursement indicates a confirmed loan disbursement.
	KindDisbursement = "loan_disbursement"
	// KindPayment indicates a confirmed loan repayment.
	KindPayment = "loan_payment"
)

// Message describes a notification payload. Destination is a holder key, not
// a wallet address.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
