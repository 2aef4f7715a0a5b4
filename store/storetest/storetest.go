// Package storetest opens throwaway in-memory databases for tests.
package storetest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/rentpay/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated sqlite database private to the test. A single
// connection is used, so code running inside a transaction must issue all of
// its queries through the transaction handle.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// Fixture is a property with one active lease and one caretaker.
type Fixture struct {
	Property  models.Property
	Tenant    models.User
	Caretaker models.User
	Lease     models.Lease
}

// Seed creates a fixture for room 7 of a property collected by shortcode
// 174379, with rent 5000, deposit 10000 and water at 150 per unit.
func Seed(t testing.TB, db *gorm.DB) *Fixture {
	t.Helper()

	f := &Fixture{}
	f.Property = models.Property{ID: 1, Name: "Joyce Apartments", BillerShortcode: "174379"}
	require.NoError(t, db.Create(&f.Property).Error)

	f.Tenant = models.User{Email: "tenant@example.com", Name: "Wanjiru", Phone: "254712345678", Role: models.RoleTenant, IsActive: true}
	require.NoError(t, db.Create(&f.Tenant).Error)

	propertyID := f.Property.ID
	f.Caretaker = models.User{Email: "caretaker@example.com", Name: "Otieno", Phone: "254722000111", Role: models.RoleCaretaker, PropertyID: &propertyID, IsActive: true}
	require.NoError(t, db.Create(&f.Caretaker).Error)

	f.Lease = models.Lease{
		TenantID:      f.Tenant.ID,
		PropertyID:    f.Property.ID,
		RoomNumber:    7,
		MonthlyRent:   decimal.NewFromInt(5000),
		DepositAmount: decimal.NewFromInt(10000),
		WaterRate:     decimal.NewFromInt(150),
		StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:        models.LeaseActive,
	}
	require.NoError(t, db.Omit("Tenant", "Property").Create(&f.Lease).Error)
	return f
}
