package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindTransactionCompleted is sent for every COMPLETED record.
	KindTransactionCompleted = "transaction.completed"
	// KindTransactionFailed is sent for every FAILED record.
	KindTransactionFailed = "transaction.failed"
)

// Event describes one appended transaction record.
type Event struct {
	Kind          string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	Type          string    `json:"transaction_type"`
	Status        string    `json:"status"`
	FromWalletID  string    `json:"from_wallet_id,omitempty"`
	ToWalletID    string    `json:"to_wallet_id,omitempty"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notifier delivers transaction events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", event.Kind,
		"transaction_id", event.TransactionID,
		"type", event.Type,
		"from_wallet_id", event.FromWalletID,
		"to_wallet_id", event.ToWalletID,
		"amount", event.Amount,
	)
	return nil
}

// Multi fans an event out to several notifiers and returns the first error.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, event Event) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
