package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GatewaySetting holds payment gateway credentials. Key and salt are stored
// encrypted; only the row with IsActive set is used.
type GatewaySetting struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Provider        string     `gorm:"not null"`
	BaseURL         string     `gorm:"not null"`
	MerchantID      string     `gorm:"not null"`
	MerchantKeyEnc  string     `gorm:"not null"`
	MerchantSaltEnc string     `gorm:"not null"`
	TestMode        bool       `gorm:"not null;default:false"`
	IsActive        bool       `gorm:"not null;default:false;index"`
	UpdatedBy       *uuid.UUID `gorm:"type:uuid"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (setting *GatewaySetting) BeforeCreate(tx *gorm.DB) (err error) {
	if setting.ID == uuid.Nil {
		setting.ID = uuid.New()
	}
	return
}
