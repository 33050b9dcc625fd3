package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Action     string     `gorm:"not null;index"`
	ActorID    *uuid.UUID `gorm:"type:uuid;index"`
	EntityType string     `gorm:"not null"`
	EntityID   string     `gorm:"not null;index"`
	Meta       datatypes.JSON
	CreatedAt  time.Time
}

func (log *AuditLog) BeforeCreate(tx *gorm.DB) (err error) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return
}

// SecurityLog keeps rejected gateway callbacks for investigation.
type SecurityLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Event     string    `gorm:"not null;index"`
	SourceIP  string
	OrderID   string    `gorm:"index"`
	Payload   datatypes.JSON
	CreatedAt time.Time
}

func (log *SecurityLog) BeforeCreate(tx *gorm.DB) (err error) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return
}
