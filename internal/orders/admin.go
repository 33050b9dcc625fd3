package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/audit"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/stock"
)

const defaultRefundReason = "refunded by admin"

// Approve releases an order held for review. A paid order is fulfilled right
// away; if no stock is left it waits in pending with an awaiting-stock message.
func (m *Manager) Approve(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	var alloc *stock.Allocation

	err := m.inTx(ctx, "failed to approve order", func(tx *gorm.DB) error {
		locked, err := m.loadOrder(tx, orderID, true)
		if err != nil {
			return err
		}
		order = locked

		delivery := locked.DeliveryState()
		if delivery.Status != models.DeliveryHold {
			return illegal("Only orders on hold can be approved.")
		}

		now := m.now()
		delivery.Status = models.DeliveryPending
		delivery.Message = ""
		delivery.ApprovedBy = &actor.ID
		delivery.UpdatedBy = &actor.ID
		delivery.UpdatedAt = &now
		locked.SetDelivery(delivery)

		if locked.Status == models.OrderPaid {
			alloc, err = m.assign(tx, locked, now)
			if err != nil {
				return err
			}
		}
		return tx.Save(locked).Error
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("order approved",
		zap.String("orderId", orderID.String()),
		zap.String("adminId", actor.ID.String()),
		zap.String("delivery", string(order.DeliveryState().Status)))
	m.recordOrder(ctx, audit.ActionOrderApproved, &actor.ID, orderID, map[string]interface{}{
		"status":   order.Status,
		"delivery": order.DeliveryState().Status,
	})
	m.afterAssign(ctx, &actor.ID, order, alloc)

	return order, nil
}

// Refund returns the order's codes to the pool and cancels delivery. It is
// allowed from any delivery state.
func (m *Manager) Refund(ctx context.Context, actor models.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRefundReason
	}

	var order *models.Order
	var previous models.OrderStatus
	var released int64

	err := m.inTx(ctx, "failed to refund order", func(tx *gorm.DB) error {
		locked, err := m.loadOrder(tx, orderID, true)
		if err != nil {
			return err
		}
		order = locked
		previous = locked.Status

		if !locked.CanTransitionTo(models.OrderRefunded) {
			return illegal("Order is already refunded.")
		}

		released, err = m.allocator.Release(tx, orderID)
		if err != nil {
			return err
		}

		now := m.now()
		delivery := locked.DeliveryState()
		delivery.Status = models.DeliveryCancelled
		delivery.Items = []string{}
		delivery.Message = reason
		delivery.UpdatedBy = &actor.ID
		delivery.UpdatedAt = &now
		locked.SetDelivery(delivery)
		locked.Status = models.OrderRefunded

		return tx.Save(locked).Error
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("order refunded",
		zap.String("orderId", orderID.String()),
		zap.String("adminId", actor.ID.String()),
		zap.Int64("released", released))
	m.recordOrder(ctx, audit.ActionOrderRefunded, &actor.ID, orderID, map[string]interface{}{
		"from":     previous,
		"reason":   reason,
		"released": released,
	})
	if released > 0 {
		m.record(ctx, audit.Entry{
			Action:     audit.ActionStockReleased,
			ActorID:    &actor.ID,
			EntityType: "order",
			EntityID:   orderID.String(),
			Meta:       map[string]interface{}{"count": released},
		})
	}

	return order, nil
}

type DeliveryUpdate struct {
	Status  models.DeliveryStatus
	Message string
}

// UpdateDelivery overrides the delivery status. It never touches stock.
func (m *Manager) UpdateDelivery(ctx context.Context, actor models.Actor, orderID uuid.UUID, update DeliveryUpdate) (*models.Order, error) {
	if !update.Status.Valid() {
		return nil, apperrors.Validation("status", "must be one of: pending delivered hold cancelled")
	}

	var order *models.Order
	var previous models.DeliveryStatus

	err := m.inTx(ctx, "failed to update delivery", func(tx *gorm.DB) error {
		locked, err := m.loadOrder(tx, orderID, true)
		if err != nil {
			return err
		}
		order = locked

		now := m.now()
		delivery := locked.DeliveryState()
		previous = delivery.Status
		delivery.Status = update.Status
		delivery.Message = strings.TrimSpace(update.Message)
		delivery.UpdatedBy = &actor.ID
		delivery.UpdatedAt = &now
		if update.Status == models.DeliveryDelivered && delivery.DeliveredAt == nil {
			delivery.DeliveredAt = &now
		}
		locked.SetDelivery(delivery)

		return tx.Save(locked).Error
	})
	if err != nil {
		return nil, err
	}

	m.recordOrder(ctx, audit.ActionDeliveryUpdated, &actor.ID, orderID, map[string]interface{}{
		"from":    previous,
		"to":      update.Status,
		"message": update.Message,
	})
	return order, nil
}

// RetryFulfillment runs allocation again for a paid order waiting for stock.
func (m *Manager) RetryFulfillment(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	var alloc *stock.Allocation

	err := m.inTx(ctx, "failed to fulfill order", func(tx *gorm.DB) error {
		locked, err := m.loadOrder(tx, orderID, true)
		if err != nil {
			return err
		}
		order = locked

		if locked.Status != models.OrderPaid || locked.DeliveryState().Status != models.DeliveryPending {
			return illegal("Only paid orders awaiting delivery can be fulfilled.")
		}

		alloc, err = m.assign(tx, locked, m.now())
		if err != nil {
			return err
		}
		return tx.Save(locked).Error
	})
	if err != nil {
		return nil, err
	}

	m.afterAssign(ctx, &actor.ID, order, alloc)
	return order, nil
}

// assign runs the allocator for an admin action. An order that still holds a
// code, e.g. after a delivery override, is not given a second one.
func (m *Manager) assign(tx *gorm.DB, order *models.Order, now time.Time) (*stock.Allocation, error) {
	alloc, err := m.allocator.Assign(tx, order, now)
	if errors.Is(err, stock.ErrAlreadyAssigned) {
		return nil, illegal("Order already holds an assigned code; refund or override it instead.")
	}
	return alloc, err
}
