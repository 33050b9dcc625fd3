package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TopicDelivered   = "order.delivered.v1"
	TopicRiskFlagged = "order.risk_flagged.v1"
)

type DeliveredEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	ProductID  uuid.UUID `json:"product_id"`
	Product    string    `json:"product"`
	PlayerID   string    `json:"player_id"`
	Codes      []string  `json:"codes"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RiskFlagEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	Score      int       `json:"score"`
	Reasons    []string  `json:"reasons"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier requests delivery and review messages. Sending happens elsewhere;
// callers treat failures as non-fatal.
type Notifier interface {
	NotifyDelivered(ctx context.Context, evt DeliveredEvent) error
	NotifyRiskFlag(ctx context.Context, evt RiskFlagEvent) error
}

// LogNotifier only logs. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyDelivered(ctx context.Context, evt DeliveredEvent) error {
	n.logger.Info("delivery notification",
		zap.String("orderId", evt.OrderID.String()),
		zap.String("email", evt.Email),
		zap.Int("codes", len(evt.Codes)))
	return nil
}

func (n *LogNotifier) NotifyRiskFlag(ctx context.Context, evt RiskFlagEvent) error {
	n.logger.Info("risk flag notification",
		zap.String("orderId", evt.OrderID.String()),
		zap.Int("score", evt.Score),
		zap.Strings("reasons", evt.Reasons))
	return nil
}
