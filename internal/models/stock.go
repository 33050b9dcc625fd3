package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StockStatus string

const (
	StockAvailable StockStatus = "available"
	StockAssigned  StockStatus = "assigned"
)

// Stock is one redeemable code. Code is unique per product.
type Stock struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey"`
	ProductID  uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_stock_product_code;index:idx_stock_fifo,priority:1"`
	Code       string      `gorm:"not null;uniqueIndex:idx_stock_product_code"`
	Status     StockStatus `gorm:"not null;default:'available';index:idx_stock_fifo,priority:2"`
	OrderID    *uuid.UUID  `gorm:"type:uuid;index"`
	AssignedAt *time.Time
	CreatedBy  *uuid.UUID `gorm:"type:uuid"`
	CreatedAt  time.Time  `gorm:"index:idx_stock_fifo,priority:3"`
	UpdatedAt  time.Time
}

func (Stock) TableName() string {
	return "stock"
}

func (stock *Stock) BeforeCreate(tx *gorm.DB) (err error) {
	if stock.ID == uuid.Nil {
		stock.ID = uuid.New()
	}
	return
}
