package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment is the immutable record of one gateway transaction result.
// TransactionID is the idempotency key for callbacks.
type Payment struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	TransactionID string          `gorm:"not null;uniqueIndex"`
	Status        PaymentStatus   `gorm:"not null;default:'pending'"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	HashValid     bool            `gorm:"not null"`
	RawPayload    datatypes.JSON
	VerifiedAt    *time.Time
	CreatedAt     time.Time
}

func (payment *Payment) BeforeCreate(tx *gorm.DB) (err error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return
}
