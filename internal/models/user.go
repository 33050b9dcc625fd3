package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	AuthProviderLocal = "local"
)

type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email         string    `gorm:"uniqueIndex;not null"`
	FirstName     string
	LastName      string
	PhoneNumber   string
	PhoneVerified bool   `gorm:"not null;default:false"`
	AuthProvider  string `gorm:"not null;default:'local'"`
	Role          string `gorm:"not null;default:'customer'"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return
}

// UsesOAuth reports whether the account was created through a third-party provider.
func (user *User) UsesOAuth() bool {
	return user.AuthProvider != "" && user.AuthProvider != AuthProviderLocal
}

func (user *User) EmailDomain() string {
	at := strings.LastIndex(user.Email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(user.Email[at+1:])
}
