package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentCancelled
}

type PaymentSource string

const (
	SourceSTKPush PaymentSource = "stk_push"
	SourcePaybill PaymentSource = "paybill"
)

// PaymentRequest is one attempt to collect money. Push payments are keyed by
// the provider's CheckoutRequestID; paybill deposits arrive already paid and
// are keyed by the provider receipt. Rows are never deleted.
type PaymentRequest struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CheckoutRequestID *string         `gorm:"uniqueIndex;size:100" json:"checkout_request_id,omitempty"`
	MerchantRequestID string          `gorm:"size:100" json:"merchant_request_id,omitempty"`
	ProviderReceipt   *string         `gorm:"uniqueIndex;size:50" json:"provider_receipt,omitempty"`
	Source            PaymentSource   `gorm:"size:20;not null" json:"source"`
	Phone             string          `gorm:"size:15;not null" json:"phone"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	BillerShortcode   string          `gorm:"size:20;not null;index" json:"biller_shortcode"`
	AccountReference  string          `gorm:"size:20" json:"account_reference"`
	Description       string          `gorm:"size:255" json:"description"`
	TenantID          *uint           `gorm:"index" json:"tenant_id,omitempty"`
	LeaseID           *uint           `gorm:"index" json:"lease_id,omitempty"`
	ChargeType        ChargeType      `gorm:"size:10" json:"charge_type,omitempty"`
	ChargeID          *uint           `json:"charge_id,omitempty"`
	Status            PaymentStatus   `gorm:"size:20;not null;default:'pending';index" json:"status"` // pending, paid, failed, cancelled
	ResultCode        *int            `json:"result_code,omitempty"`
	FailureReason     string          `gorm:"type:text" json:"failure_reason,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	InitiatedByID     *uint           `json:"initiated_by_id,omitempty"`
}

// TableName overrides the table name
func (PaymentRequest) TableName() string {
	return "payment_requests"
}

// CorrelationKey returns the push correlation key, or "" for paybill rows.
func (p PaymentRequest) CorrelationKey() string {
	if p.CheckoutRequestID == nil {
		return ""
	}
	return *p.CheckoutRequestID
}

// ChargeRef returns the ledger entry this request pays down, if any.
func (p PaymentRequest) ChargeRef() (ChargeRef, bool) {
	if p.ChargeID == nil || p.ChargeType == "" {
		return ChargeRef{}, false
	}
	return ChargeRef{Type: p.ChargeType, ID: *p.ChargeID}, true
}
