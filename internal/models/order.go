package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderFailed   OrderStatus = "failed"
	OrderRefunded OrderStatus = "refunded"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryHold      DeliveryStatus = "hold"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryDelivered, DeliveryHold, DeliveryCancelled:
		return true
	}
	return false
}

type RiskStatus string

const (
	RiskClear   RiskStatus = "CLEAR"
	RiskFlagged RiskStatus = "FLAGGED"
)

const (
	MessagePendingReview = "order pending review"
	MessageAwaitingStock = "awaiting stock"
)

// DeliveryState is the delivery sub-record of an order.
type DeliveryState struct {
	Status      DeliveryStatus `json:"status"`
	Items       []string       `json:"items"`
	Message     string         `json:"message,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	ApprovedBy  *uuid.UUID     `json:"approved_by,omitempty"`
	UpdatedBy   *uuid.UUID     `json:"updated_by,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// RiskAssessment is computed once at order creation and never recomputed.
type RiskAssessment struct {
	Score   int        `json:"score"`
	Status  RiskStatus `json:"status"`
	Reasons []string   `json:"reasons"`
}

func (r RiskAssessment) Flagged() bool {
	return r.Status == RiskFlagged
}

type RequestMeta struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Order is one purchase intent. Product fields are a snapshot taken at
// creation; Amount is never read from the product again.
type Order struct {
	ID           uuid.UUID                          `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID                          `gorm:"type:uuid;not null;index"`
	ProductID    uuid.UUID                          `gorm:"type:uuid;not null;index"`
	ProductTitle string                             `gorm:"not null"`
	UCAmount     int                                `gorm:"not null"`
	Amount       decimal.Decimal                    `gorm:"type:decimal(12,2);not null"`
	PlayerID     string                             `gorm:"not null;index"`
	PlayerName   string                             `gorm:"not null"`
	Status       OrderStatus                        `gorm:"not null;default:'pending';index"`
	Delivery     datatypes.JSONType[DeliveryState]  `gorm:"not null"`
	Risk         datatypes.JSONType[RiskAssessment] `gorm:"not null"`
	Meta         datatypes.JSONType[RequestMeta]
	ClientIP     string `gorm:"index"`
	PaymentURL   string
	PaidAt       *time.Time
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
}

func (order *Order) BeforeCreate(tx *gorm.DB) (err error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending: {OrderPaid, OrderFailed, OrderRefunded},
	OrderPaid:    {OrderRefunded},
	OrderFailed:  {OrderRefunded},
}

// CanTransitionTo reports whether the status machine allows moving to next.
// A failed order can never become paid.
func (order *Order) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[order.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (order *Order) DeliveryState() DeliveryState {
	return order.Delivery.Data()
}

func (order *Order) SetDelivery(state DeliveryState) {
	if state.Items == nil {
		state.Items = []string{}
	}
	order.Delivery = datatypes.NewJSONType(state)
}

func (order *Order) RiskAssessment() RiskAssessment {
	return order.Risk.Data()
}
