package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	LeaseActive     = "active"
	LeaseTerminated = "terminated"
)

// Property is a building collected for by exactly one biller identity.
type Property struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
	Name            string         `gorm:"size:255;not null" json:"name"`
	BillerShortcode string         `gorm:"size:20;index" json:"biller_shortcode"`
}

func (Property) TableName() string {
	return "properties"
}

type Lease struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
	TenantID      uint            `gorm:"not null;index" json:"tenant_id"`
	Tenant        User            `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	PropertyID    uint            `gorm:"not null;index:idx_lease_room" json:"property_id"`
	Property      Property        `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
	RoomNumber    int             `gorm:"not null;index:idx_lease_room" json:"room_number"`
	MonthlyRent   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"monthly_rent"`
	DepositAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"deposit_amount"`
	WaterRate     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"water_rate"` // per unit
	StartDate     time.Time       `gorm:"not null" json:"start_date"`
	EndDate       *time.Time      `json:"end_date"`
	Status        string          `gorm:"size:20;default:'active';index" json:"status"` // active, terminated
}

func (Lease) TableName() string {
	return "leases"
}
