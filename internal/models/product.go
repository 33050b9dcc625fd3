package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a purchasable UC package. Only the fields the order flow reads are modelled.
type Product struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Title         string          `gorm:"not null"`
	UCAmount      int             `gorm:"not null"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	IsActive      bool            `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (product *Product) BeforeCreate(tx *gorm.DB) (err error) {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return
}
