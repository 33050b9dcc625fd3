package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/farellandr/ucshop/internal/models"
)

const (
	ActionOrderCreated      = "order.created"
	ActionOrderRiskFlagged  = "order.risk_flagged"
	ActionPaymentLinkFailed = "order.payment_link_failed"
	ActionPaymentLinkIssued = "order.payment_link_issued"
	ActionOrderStatus       = "order.status_changed"
	ActionStockAssigned     = "stock.assigned"
	ActionStockReleased     = "stock.released"
	ActionStockImported     = "stock.imported"
	ActionOrderApproved     = "order.approved"
	ActionOrderRefunded     = "order.refunded"
	ActionDeliveryUpdated   = "order.delivery_updated"
	ActionGatewayUpdated    = "settings.gateway_updated"

	EventInvalidSignature = "callback.invalid_signature"
	EventAmountMismatch   = "callback.amount_mismatch"
)

type Entry struct {
	Action     string
	ActorID    *uuid.UUID
	EntityType string
	EntityID   string
	Meta       map[string]interface{}
}

type SecurityEvent struct {
	Event    string
	SourceIP string
	OrderID  string
	Payload  map[string]string
}

// Recorder is the audit sink. Callers treat failures as non-fatal.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	RecordSecurity(ctx context.Context, event SecurityEvent) error
}

type GormRecorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormRecorder(db *gorm.DB, logger *zap.Logger) *GormRecorder {
	return &GormRecorder{db: db, logger: logger}
}

func (r *GormRecorder) Record(ctx context.Context, entry Entry) error {
	meta, err := marshalJSON(entry.Meta)
	if err != nil {
		return err
	}

	row := models.AuditLog{
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Meta:       meta,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (r *GormRecorder) RecordSecurity(ctx context.Context, event SecurityEvent) error {
	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return err
	}

	r.logger.Warn("security event",
		zap.String("event", event.Event),
		zap.String("sourceIp", event.SourceIP),
		zap.String("orderId", event.OrderID),
		zap.Any("payload", event.Payload))

	row := models.SecurityLog{
		Event:    event.Event,
		SourceIP: event.SourceIP,
		OrderID:  event.OrderID,
		Payload:  payload,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to write security log: %w", err)
	}
	return nil
}

func marshalJSON(v interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit meta: %w", err)
	}
	if string(raw) == "null" {
		return datatypes.JSON("{}"), nil
	}
	return datatypes.JSON(raw), nil
}
