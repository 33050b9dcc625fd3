package orders

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/audit"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/stock"
)

type CallbackOutcome struct {
	OrderID   uuid.UUID             `json:"order_id"`
	Status    models.OrderStatus    `json:"status"`
	Delivery  models.DeliveryStatus `json:"delivery_status"`
	Duplicate bool                  `json:"duplicate"`
}

var errDuplicateTransaction = errors.New("transaction already recorded")

// HandleCallback verifies a gateway callback and applies it to the order.
// Replays of an applied transaction and callbacks for already paid orders are
// successful no-ops. An invalid hash or a paid amount that differs from the
// order amount is recorded as a security event and leaves the order untouched.
func (m *Manager) HandleCallback(ctx context.Context, payload map[string]string, sourceIP string) (*CallbackOutcome, error) {
	result, err := m.gateway.ProcessCallback(ctx, payload)
	if err != nil {
		return nil, err
	}

	orderID, err := uuid.Parse(result.OrderID)
	if err != nil {
		return nil, orderNotFound()
	}
	order, err := m.loadOrder(m.db.WithContext(ctx), orderID, false)
	if err != nil {
		return nil, err
	}

	if !result.HashValid {
		m.securityEvent(ctx, audit.EventInvalidSignature, sourceIP, result.OrderID, payload)
		return nil, apperrors.New(apperrors.CodeInvalidSignature, "Invalid callback signature.")
	}
	if result.Status == models.PaymentSuccess && !result.Amount.Equal(order.Amount) {
		m.securityEvent(ctx, audit.EventAmountMismatch, sourceIP, result.OrderID, payload)
		return nil, apperrors.New(apperrors.CodeInvalidSignature, "Callback amount does not match the order.")
	}

	lockKey := "callback:" + result.TransactionID
	reserved, err := m.locks.Reserve(ctx, lockKey, m.lockTTL)
	if err != nil {
		m.logger.Warn("idempotency store unavailable, relying on transaction id uniqueness",
			zap.Error(err),
			zap.String("transactionId", result.TransactionID))
	} else if !reserved {
		return nil, apperrors.New(apperrors.CodeConflict, "Callback for this transaction is already being processed.")
	} else {
		defer func() {
			if err := m.locks.Release(context.WithoutCancel(ctx), lockKey); err != nil {
				m.logger.Warn("failed to release idempotency key", zap.Error(err), zap.String("key", lockKey))
			}
		}()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to encode callback payload", err)
	}

	now := m.now()
	next := models.OrderFailed
	if result.Status == models.PaymentSuccess {
		next = models.OrderPaid
	}

	outcome := &CallbackOutcome{OrderID: orderID}
	var previous models.OrderStatus
	var changed bool
	var alloc *stock.Allocation

	err = m.inTx(ctx, "failed to apply payment callback", func(tx *gorm.DB) error {
		locked, err := m.loadOrder(tx, orderID, true)
		if err != nil {
			return err
		}
		order = locked
		previous = locked.Status

		if locked.Status == models.OrderPaid {
			outcome.Duplicate = true
			return nil
		}

		var seen int64
		if err := tx.Model(&models.Payment{}).
			Where("transaction_id = ?", result.TransactionID).
			Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			outcome.Duplicate = true
			return nil
		}

		if locked.Status != next && !locked.CanTransitionTo(next) {
			return illegal("Order cannot move from " + string(locked.Status) + " to " + string(next) + ".")
		}

		payment := models.Payment{
			OrderID:       orderID,
			TransactionID: result.TransactionID,
			Status:        result.Status,
			Amount:        result.Amount,
			HashValid:     result.HashValid,
			RawPayload:    datatypes.JSON(raw),
			VerifiedAt:    &now,
		}
		if err := tx.Create(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateTransaction
			}
			return err
		}

		if locked.Status == next {
			return nil
		}

		changed = true
		locked.Status = next
		if next == models.OrderPaid {
			locked.PaidAt = &now
			if locked.DeliveryState().Status != models.DeliveryHold {
				alloc, err = m.allocator.Assign(tx, locked, now)
				if err != nil {
					return err
				}
			}
		}
		return tx.Save(locked).Error
	})
	if errors.Is(err, errDuplicateTransaction) {
		outcome.Duplicate = true
		changed = false
		alloc = nil
		order, err = m.loadOrder(m.db.WithContext(ctx), orderID, false)
	}
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Code == apperrors.CodeIllegalTransition {
			m.logger.Warn("callback rejected",
				zap.String("orderId", orderID.String()),
				zap.String("transactionId", result.TransactionID),
				zap.String("status", string(result.Status)))
		}
		return nil, err
	}

	outcome.Status = order.Status
	outcome.Delivery = order.DeliveryState().Status

	if outcome.Duplicate {
		m.logger.Info("duplicate callback ignored",
			zap.String("orderId", orderID.String()),
			zap.String("transactionId", result.TransactionID))
		return outcome, nil
	}

	if changed {
		m.logger.Info("order status changed by callback",
			zap.String("orderId", orderID.String()),
			zap.String("from", string(previous)),
			zap.String("to", string(order.Status)))
		m.recordOrder(ctx, audit.ActionOrderStatus, nil, orderID, map[string]interface{}{
			"from":           previous,
			"to":             order.Status,
			"transaction_id": result.TransactionID,
			"amount":         result.Amount.StringFixed(2),
		})
		m.afterAssign(ctx, nil, order, alloc)
	}
	return outcome, nil
}

func (m *Manager) securityEvent(ctx context.Context, event, sourceIP, orderID string, payload map[string]string) {
	if err := m.audit.RecordSecurity(ctx, audit.SecurityEvent{
		Event:    event,
		SourceIP: sourceIP,
		OrderID:  orderID,
		Payload:  payload,
	}); err != nil {
		m.logger.Error("failed to record security event",
			zap.Error(err),
			zap.String("event", event),
			zap.String("sourceIp", sourceIP),
			zap.Any("payload", payload))
	}
}
