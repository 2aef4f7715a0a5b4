package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationKind string

const (
	NotifyPaymentReceived  NotificationKind = "payment_received"
	NotifyPaymentFailed    NotificationKind = "payment_failed"
	NotifyRefundIssued     NotificationKind = "refund_issued"
	NotifyRentDueReminder  NotificationKind = "rent_due_reminder"
	NotifyRentOverdue      NotificationKind = "rent_overdue"
	NotifyWaterDueReminder NotificationKind = "water_due_reminder"
	NotifyWaterOverdue     NotificationKind = "water_overdue"
	NotifyDepositReminder  NotificationKind = "deposit_reminder"
)

// Notification is the row handed to the notification store. Delivery is
// somebody else's job.
type Notification struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	RecipientID uint              `gorm:"not null;index" json:"recipient_id"`
	Kind        NotificationKind  `gorm:"size:40;not null;index" json:"kind"`
	Title       string            `gorm:"size:255;not null" json:"title"`
	Message     string            `gorm:"type:text;not null" json:"message"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	ReadAt      *time.Time        `json:"read_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
