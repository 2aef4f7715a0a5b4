package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	DirectionPayment = "payment"
	DirectionRefund  = "refund"
)

const (
	MethodMpesaSTK     = "mpesa_stk"
	MethodMpesaPaybill = "mpesa_paybill"
	MethodCash         = "cash"
	MethodBank         = "bank"
	MethodManual       = "manual"
)

// ChargePayment records every credit or refund applied to a ledger entry.
type ChargePayment struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time       `json:"created_at"`
	ChargeType       ChargeType      `gorm:"size:10;not null;index:idx_charge_payment_entry" json:"charge_type"`
	ChargeID         uint            `gorm:"not null;index:idx_charge_payment_entry" json:"charge_id"`
	LeaseID          uint            `gorm:"not null;index" json:"lease_id"`
	TenantID         uint            `gorm:"not null;index" json:"tenant_id"`
	Direction        string          `gorm:"size:10;not null" json:"direction"` // payment, refund
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	AmountApplied    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_applied"`
	Method           string          `gorm:"size:20;not null" json:"method"`
	Reference        string          `gorm:"size:100" json:"reference"`
	Notes            string          `gorm:"type:text" json:"notes"`
	RecordedByID     *uint           `json:"recorded_by_id,omitempty"`
	PaymentRequestID *uint           `gorm:"index" json:"payment_request_id,omitempty"`
}

func (ChargePayment) TableName() string {
	return "charge_payments"
}

const (
	EventSTKCallback     = "stk_callback"
	EventC2BValidation   = "c2b_validation"
	EventC2BConfirmation = "c2b_confirmation"
)

// CallbackEvent keeps the raw body of every provider delivery for audit and replay.
type CallbackEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	Kind           string         `gorm:"size:30;not null;index" json:"kind"`
	CorrelationKey string         `gorm:"size:100;index" json:"correlation_key"`
	Payload        datatypes.JSON `json:"payload"`
	Outcome        string         `gorm:"size:40" json:"outcome"`
}

func (CallbackEvent) TableName() string {
	return "callback_events"
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Property{}, &Lease{},
		&PaymentRequest{}, &RentCharge{}, &WaterCharge{}, &DepositCharge{},
		&ChargePayment{}, &Notification{}, &CallbackEvent{},
	}
}
