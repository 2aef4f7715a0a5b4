package models

import (
	"time"

	"gorm.io/gorm"
)

// RentCharge is one month's rent obligation for a lease.
type RentCharge struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
	LeaseID           uint           `gorm:"not null;uniqueIndex:idx_rent_period" json:"lease_id"`
	TenantID          uint           `gorm:"not null;index" json:"tenant_id"`
	PropertyID        uint           `gorm:"not null;index" json:"property_id"`
	Month             int            `gorm:"not null;uniqueIndex:idx_rent_period" json:"month"`
	Year              int            `gorm:"not null;uniqueIndex:idx_rent_period" json:"year"`
	PeriodLedger      `gorm:"embedded"`
	DueReminderSent   bool `gorm:"not null;default:false" json:"due_reminder_sent"`
	OverdueNoticeSent bool `gorm:"not null;default:false" json:"overdue_notice_sent"`
}

func (RentCharge) TableName() string {
	return "rent_charges"
}

// NewRentCharge builds the entry for lease in the given period.
func NewRentCharge(lease Lease, month, year, dueDay int, now time.Time) *RentCharge {
	c := &RentCharge{
		LeaseID:    lease.ID,
		TenantID:   lease.TenantID,
		PropertyID: lease.PropertyID,
		Month:      month,
		Year:       year,
	}
	c.AmountRequired = lease.MonthlyRent
	c.DueDate = DueDateFor(month, year, dueDay, now.Location())
	c.Recompute(now)
	return c
}

// Eligible reports whether a notification of kind may be created now. It
// never marks anything as sent.
func (c *RentCharge) Eligible(kind NotificationKind, now time.Time, p ReminderPolicy) bool {
	switch kind {
	case NotifyRentDueReminder:
		return c.dueReminderEligible(c.DueReminderSent, c.Month, c.Year, now, p)
	case NotifyRentOverdue:
		return c.overdueNoticeEligible(c.OverdueNoticeSent, now, p)
	}
	return false
}

// MarkSent sets the one-way sent flag for kind.
func (c *RentCharge) MarkSent(kind NotificationKind) {
	switch kind {
	case NotifyRentDueReminder:
		c.DueReminderSent = true
	case NotifyRentOverdue:
		c.OverdueNoticeSent = true
	}
}
