// Package orders runs the order lifecycle: checkout, payment callbacks,
// fulfillment and the admin corrections around them.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/audit"
	"github.com/farellandr/ucshop/internal/gateway"
	"github.com/farellandr/ucshop/internal/idempotency"
	"github.com/farellandr/ucshop/internal/models"
	"github.com/farellandr/ucshop/internal/notify"
	"github.com/farellandr/ucshop/internal/stock"
)

const (
	MinPlayerIDLength = 6
	DefaultLockTTL    = 30 * time.Second
)

type PaymentGateway interface {
	Configured(ctx context.Context) error
	CreatePayment(ctx context.Context, order *models.Order, product *models.Product, user *models.User) (*gateway.PaymentRequest, error)
	ProcessCallback(ctx context.Context, payload map[string]string) (*gateway.CallbackResult, error)
}

type RiskAssessor interface {
	Assess(ctx context.Context, order *models.Order, user *models.User, requestIP string) (models.RiskAssessment, error)
}

type Dependencies struct {
	DB        *gorm.DB
	Gateway   PaymentGateway
	Risk      RiskAssessor
	Allocator *stock.Allocator
	Notifier  notify.Notifier
	Audit     audit.Recorder
	Locks     idempotency.Store
	LockTTL   time.Duration
	Logger    *zap.Logger
}

type Manager struct {
	db        *gorm.DB
	gateway   PaymentGateway
	risk      RiskAssessor
	allocator *stock.Allocator
	notifier  notify.Notifier
	audit     audit.Recorder
	locks     idempotency.Store
	lockTTL   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewManager(deps Dependencies) *Manager {
	if deps.LockTTL <= 0 {
		deps.LockTTL = DefaultLockTTL
	}
	return &Manager{
		db:        deps.DB,
		gateway:   deps.Gateway,
		risk:      deps.Risk,
		allocator: deps.Allocator,
		notifier:  deps.Notifier,
		audit:     deps.Audit,
		locks:     deps.Locks,
		lockTTL:   deps.LockTTL,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

func orderNotFound() *apperrors.Error {
	return apperrors.New(apperrors.CodeNotFound, "Order not found.")
}

func illegal(message string) *apperrors.Error {
	return apperrors.New(apperrors.CodeIllegalTransition, message)
}

// Get returns the order if the actor owns it or is an admin.
func (m *Manager) Get(ctx context.Context, actor models.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := m.loadOrder(m.db.WithContext(ctx), orderID, false)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && order.UserID != actor.ID {
		return nil, orderNotFound()
	}
	return order, nil
}

func (m *Manager) loadOrder(tx *gorm.DB, orderID uuid.UUID, lock bool) (*models.Order, error) {
	if lock {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var order models.Order
	if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderNotFound()
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to load order", err)
	}
	return &order, nil
}

func (m *Manager) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := m.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "User not found.")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to load user", err)
	}
	return &user, nil
}

// inTx runs fn in a transaction and keeps business errors intact.
func (m *Manager) inTx(ctx context.Context, message string, fn func(tx *gorm.DB) error) error {
	err := m.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Wrap(apperrors.CodeDatabase, message, err)
}

func (m *Manager) record(ctx context.Context, entry audit.Entry) {
	if err := m.audit.Record(ctx, entry); err != nil {
		m.logger.Error("failed to record audit entry",
			zap.Error(err),
			zap.String("action", entry.Action),
			zap.String("entityId", entry.EntityID))
	}
}

func (m *Manager) recordOrder(ctx context.Context, action string, actorID *uuid.UUID, orderID uuid.UUID, meta map[string]interface{}) {
	m.record(ctx, audit.Entry{
		Action:     action,
		ActorID:    actorID,
		EntityType: "order",
		EntityID:   orderID.String(),
		Meta:       meta,
	})
}

func (m *Manager) notifyDelivered(ctx context.Context, order *models.Order) {
	user, err := m.loadUser(ctx, order.UserID)
	if err != nil {
		m.logger.Error("failed to load user for delivery notification",
			zap.Error(err),
			zap.String("orderId", order.ID.String()))
		return
	}

	delivery := order.DeliveryState()
	if err := m.notifier.NotifyDelivered(ctx, notify.DeliveredEvent{
		OrderID:    order.ID,
		UserID:     user.ID,
		Email:      user.Email,
		ProductID:  order.ProductID,
		Product:    order.ProductTitle,
		PlayerID:   order.PlayerID,
		Codes:      delivery.Items,
		OccurredAt: m.now(),
	}); err != nil {
		m.logger.Error("failed to send delivery notification",
			zap.Error(err),
			zap.String("orderId", order.ID.String()))
	}
}

func (m *Manager) notifyRiskFlag(ctx context.Context, order *models.Order) {
	assessment := order.RiskAssessment()
	if err := m.notifier.NotifyRiskFlag(ctx, notify.RiskFlagEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Score:      assessment.Score,
		Reasons:    assessment.Reasons,
		OccurredAt: m.now(),
	}); err != nil {
		m.logger.Error("failed to send risk flag notification",
			zap.Error(err),
			zap.String("orderId", order.ID.String()))
	}
}

// afterAssign records and announces a successful allocation.
func (m *Manager) afterAssign(ctx context.Context, actorID *uuid.UUID, order *models.Order, alloc *stock.Allocation) {
	if alloc == nil || !alloc.Delivered {
		return
	}
	m.record(ctx, audit.Entry{
		Action:     audit.ActionStockAssigned,
		ActorID:    actorID,
		EntityType: "stock",
		EntityID:   alloc.StockID.String(),
		Meta:       map[string]interface{}{"order_id": order.ID.String()},
	})
	m.notifyDelivered(ctx, order)
}
