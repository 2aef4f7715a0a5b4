package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WaterCharge is one month's metered water bill for a lease. AmountRequired
// is always UnitsConsumed * UnitRate.
type WaterCharge struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
	LeaseID           uint            `gorm:"not null;uniqueIndex:idx_water_period" json:"lease_id"`
	TenantID          uint            `gorm:"not null;index" json:"tenant_id"`
	PropertyID        uint            `gorm:"not null;index" json:"property_id"`
	Month             int             `gorm:"not null;uniqueIndex:idx_water_period" json:"month"`
	Year              int             `gorm:"not null;uniqueIndex:idx_water_period" json:"year"`
	PreviousReading   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"previous_reading"`
	CurrentReading    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"current_reading"`
	UnitsConsumed     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"units_consumed"`
	UnitRate          decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"unit_rate"`
	PeriodLedger      `gorm:"embedded"`
	DueReminderSent   bool `gorm:"not null;default:false" json:"due_reminder_sent"`
	OverdueNoticeSent bool `gorm:"not null;default:false" json:"overdue_notice_sent"`
}

func (WaterCharge) TableName() string {
	return "water_charges"
}

// NewWaterCharge builds an empty entry for the period; readings are applied
// with SetReadings.
func NewWaterCharge(lease Lease, month, year, dueDay int, now time.Time) *WaterCharge {
	c := &WaterCharge{
		LeaseID:    lease.ID,
		TenantID:   lease.TenantID,
		PropertyID: lease.PropertyID,
		Month:      month,
		Year:       year,
		UnitRate:   lease.WaterRate,
	}
	c.DueDate = DueDateFor(month, year, dueDay, now.Location())
	c.Recompute(now)
	return c
}

// SetReadings re-derives consumption and the amount due. A regressed meter
// yields zero consumption rather than a credit.
func (c *WaterCharge) SetReadings(previous, current, rate decimal.Decimal, now time.Time) error {
	if previous.IsNegative() || current.IsNegative() || rate.IsNegative() {
		return ErrInvalidReading
	}
	units := current.Sub(previous)
	if units.IsNegative() {
		units = decimal.Zero
	}
	c.PreviousReading = previous
	c.CurrentReading = current
	c.UnitRate = rate
	c.UnitsConsumed = units
	c.AmountRequired = units.Mul(rate)
	c.Recompute(now)
	if !c.Status.Is(ChargePaid) {
		c.PaidAt = nil
	}
	return nil
}

func (c *WaterCharge) Eligible(kind NotificationKind, now time.Time, p ReminderPolicy) bool {
	switch kind {
	case NotifyWaterDueReminder:
		return c.dueReminderEligible(c.DueReminderSent, c.Month, c.Year, now, p)
	case NotifyWaterOverdue:
		return c.overdueNoticeEligible(c.OverdueNoticeSent, now, p)
	}
	return false
}

func (c *WaterCharge) MarkSent(kind NotificationKind) {
	switch kind {
	case NotifyWaterDueReminder:
		c.DueReminderSent = true
	case NotifyWaterOverdue:
		c.OverdueNoticeSent = true
	}
}
