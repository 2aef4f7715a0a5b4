package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DepositCharge is the one-off security deposit of a lease.
type DepositCharge struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
	LeaseID        uint            `gorm:"not null;uniqueIndex" json:"lease_id"`
	TenantID       uint            `gorm:"not null;index" json:"tenant_id"`
	PropertyID     uint            `gorm:"not null;index" json:"property_id"`
	AmountRequired decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_required"`
	AmountPaid     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"amount_paid"`
	RefundedAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"refunded_amount"`
	Balance        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"balance"`
	Status         ChargeStatus    `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"status"`
	DueDate        time.Time       `gorm:"not null" json:"due_date"`
	PaidAt         *time.Time      `json:"paid_at"`
	RefundedAt     *time.Time      `json:"refunded_at"`
	ReminderSent   bool            `gorm:"not null;default:false" json:"reminder_sent"`
}

func (DepositCharge) TableName() string {
	return "deposit_charges"
}

func NewDepositCharge(lease Lease) *DepositCharge {
	c := &DepositCharge{
		LeaseID:        lease.ID,
		TenantID:       lease.TenantID,
		PropertyID:     lease.PropertyID,
		AmountRequired: lease.DepositAmount,
		DueDate:        lease.StartDate,
	}
	c.Recompute()
	return c
}

// Recompute derives balance and status. The balance grows back by whatever
// has been refunded. It returns true when the status changed.
func (c *DepositCharge) Recompute() bool {
	if c.AmountPaid.GreaterThan(c.AmountRequired) {
		c.AmountPaid = c.AmountRequired
	}
	c.Balance = c.AmountRequired.Sub(c.AmountPaid).Add(c.RefundedAmount)
	before := c.Status
	c.Status = DepositStatus(c.AmountRequired, c.AmountPaid, c.RefundedAmount)
	return before != c.Status
}

// ApplyPayment credits amount, clamped to the amount required.
func (c *DepositCharge) ApplyPayment(amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	before := c.AmountPaid
	c.AmountPaid = c.AmountPaid.Add(amount)
	c.Recompute()
	if c.Status.Is(ChargePaid) && c.PaidAt == nil {
		paidAt := now
		c.PaidAt = &paidAt
	}
	return c.AmountPaid.Sub(before), nil
}

// ApplyRefund returns part or all of the paid deposit to the tenant.
func (c *DepositCharge) ApplyRefund(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if c.RefundedAmount.Add(amount).GreaterThan(c.AmountPaid) {
		return ErrRefundExceedsPaid
	}
	c.RefundedAmount = c.RefundedAmount.Add(amount)
	c.Recompute()
	refundedAt := now
	c.RefundedAt = &refundedAt
	return nil
}

func (c *DepositCharge) Eligible(kind NotificationKind, now time.Time, _ ReminderPolicy) bool {
	if kind != NotifyDepositReminder || c.ReminderSent {
		return false
	}
	return c.Status.Is(ChargeUnpaid) && !now.Before(c.DueDate)
}

func (c *DepositCharge) MarkSent(kind NotificationKind) {
	if kind == NotifyDepositReminder {
		c.ReminderSent = true
	}
}
