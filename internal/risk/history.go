package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farellandr/ucshop/internal/models"
)

// GormHistory reads order history from the orders table.
type GormHistory struct {
	db *gorm.DB
}

func NewGormHistory(db *gorm.DB) *GormHistory {
	return &GormHistory{db: db}
}

// CompletedOrders counts paid orders. Refunded orders are reversed sales and
// do not count.
func (h *GormHistory) CompletedOrders(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&models.Order{}).
		Where("user_id = ? AND status = ?", userID, models.OrderPaid).
		Count(&count).Error
	return count, err
}

func (h *GormHistory) OrdersFromIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&models.Order{}).
		Where("client_ip = ? AND created_at >= ?", ip, since).
		Count(&count).Error
	return count, err
}

func (h *GormHistory) PlayerIDs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var ids []string
	err := h.db.WithContext(ctx).Model(&models.Order{}).
		Where("user_id = ?", userID).
		Distinct().
		Pluck("player_id", &ids).Error
	return ids, err
}

func (h *GormHistory) FailedOrdersSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&models.Order{}).
		Where("user_id = ? AND status = ? AND updated_at >= ?", userID, models.OrderFailed, since).
		Count(&count).Error
	return count, err
}
