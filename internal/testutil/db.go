// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/farellandr/ucshop/internal/models"
)

// NewDB opens a migrated in-memory SQLite database. A single connection
// serializes transactions, so concurrent callers queue instead of failing.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, createdAgo time.Duration, mutate ...func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{
		Email:         uuid.NewString()[:8] + "@example.com",
		FirstName:     "Ada",
		LastName:      "Player",
		PhoneNumber:   "+900000000000",
		PhoneVerified: true,
		AuthProvider:  models.AuthProviderLocal,
		Role:          models.RoleCustomer,
		CreatedAt:     time.Now().Add(-createdAgo),
	}
	for _, m := range mutate {
		m(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateProduct(t *testing.T, db *gorm.DB, price string) *models.Product {
	t.Helper()

	product := &models.Product{
		Title:         "660 UC",
		UCAmount:      660,
		Price:         decimal.RequireFromString(price).Add(decimal.NewFromInt(50)),
		DiscountPrice: decimal.RequireFromString(price),
		IsActive:      true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// AddStock inserts available codes, oldest first in argument order.
func AddStock(t *testing.T, db *gorm.DB, productID uuid.UUID, codes ...string) []models.Stock {
	t.Helper()

	base := time.Now().Add(-time.Hour)
	rows := make([]models.Stock, 0, len(codes))
	for i, code := range codes {
		row := models.Stock{
			ProductID: productID,
			Code:      code,
			Status:    models.StockAvailable,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.Create(&row).Error)
		rows = append(rows, row)
	}
	return rows
}

func ReloadOrder(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Order {
	t.Helper()

	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", id).Error)
	return &order
}

func ReloadStock(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Stock {
	t.Helper()

	var stock models.Stock
	require.NoError(t, db.First(&stock, "id = ?", id).Error)
	return &stock
}
