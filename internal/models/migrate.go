package models

import "gorm.io/gorm"

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Product{},
		&Order{},
		&Stock{},
		&Payment{},
		&GatewaySetting{},
		&AuditLog{},
		&SecurityLog{},
	)
}
