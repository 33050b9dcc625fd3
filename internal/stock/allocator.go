package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farellandr/ucshop/internal/models"
)

// ErrAlreadyAssigned is returned by Assign when the order still holds a code.
var ErrAlreadyAssigned = errors.New("order already holds an assigned code")

// Allocation is the outcome of one assignment attempt.
type Allocation struct {
	Delivered bool
	Code      string
	StockID   uuid.UUID
}

// Allocator hands out stock codes in FIFO order. All methods run inside the
// caller's transaction so the stock row and the order change commit together.
type Allocator struct {
	logger *zap.Logger
}

func NewAllocator(logger *zap.Logger) *Allocator {
	return &Allocator{logger: logger}
}

// Assign locks the oldest available code of the order's product and assigns it.
// Running out of stock is not an error: the order's delivery moves to pending
// with an awaiting-stock message. The caller persists the order.
func (a *Allocator) Assign(tx *gorm.DB, order *models.Order, now time.Time) (*Allocation, error) {
	var held int64
	if err := tx.Model(&models.Stock{}).
		Where("order_id = ? AND status = ?", order.ID, models.StockAssigned).
		Count(&held).Error; err != nil {
		return nil, fmt.Errorf("count assigned stock: %w", err)
	}
	if held > 0 {
		return nil, ErrAlreadyAssigned
	}

	var row models.Stock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("product_id = ? AND status = ?", order.ProductID, models.StockAvailable).
		Order("created_at ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return a.exhausted(order, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select stock: %w", err)
	}

	res := tx.Model(&models.Stock{}).
		Where("id = ? AND status = ?", row.ID, models.StockAvailable).
		Updates(map[string]interface{}{
			"status":      models.StockAssigned,
			"order_id":    order.ID,
			"assigned_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("assign stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		a.logger.Warn("stock row taken concurrently",
			zap.String("stockId", row.ID.String()),
			zap.String("orderId", order.ID.String()))
		return a.exhausted(order, now), nil
	}

	state := order.DeliveryState()
	state.Status = models.DeliveryDelivered
	state.Items = []string{row.Code}
	state.Message = ""
	state.DeliveredAt = &now
	state.UpdatedAt = &now
	order.SetDelivery(state)

	a.logger.Info("stock assigned",
		zap.String("orderId", order.ID.String()),
		zap.String("stockId", row.ID.String()))

	return &Allocation{Delivered: true, Code: row.Code, StockID: row.ID}, nil
}

func (a *Allocator) exhausted(order *models.Order, now time.Time) *Allocation {
	state := order.DeliveryState()
	state.Status = models.DeliveryPending
	state.Items = []string{}
	state.Message = models.MessageAwaitingStock
	state.UpdatedAt = &now
	order.SetDelivery(state)

	a.logger.Warn("no stock available",
		zap.String("orderId", order.ID.String()),
		zap.String("productId", order.ProductID.String()))

	return &Allocation{Delivered: false}
}

// Release returns every code assigned to the order to the available pool.
func (a *Allocator) Release(tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	res := tx.Model(&models.Stock{}).
		Where("order_id = ? AND status = ?", orderID, models.StockAssigned).
		Updates(map[string]interface{}{
			"status":      models.StockAvailable,
			"order_id":    nil,
			"assigned_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("release stock: %w", res.Error)
	}
	return res.RowsAffected, nil
}
