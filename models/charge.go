package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/errs"
)

type ChargeType string

const (
	ChargeRent    ChargeType = "rent"
	ChargeWater   ChargeType = "water"
	ChargeDeposit ChargeType = "deposit"
)

// ParseChargeType accepts the URL/JSON spelling of a ledger type.
func ParseChargeType(s string) (ChargeType, error) {
	switch ChargeType(s) {
	case ChargeRent, ChargeWater, ChargeDeposit:
		return ChargeType(s), nil
	}
	return "", errs.New(errs.KindValidation, fmt.Sprintf("unknown charge type %q", s))
}

// ChargeRef points at one ledger entry of any type.
type ChargeRef struct {
	Type ChargeType `json:"type"`
	ID   uint       `json:"id"`
}

// Ledger status values. Only the recompute routines in this package can turn
// one of these into a ChargeStatus.
const (
	ChargeUnpaid            = "unpaid"
	ChargePartiallyPaid     = "partially_paid"
	ChargePaid              = "paid"
	ChargeOverdue           = "overdue"
	ChargeRefunded          = "refunded"
	ChargePartiallyRefunded = "partially_refunded"
)

var (
	ErrInvalidAmount     = errs.New(errs.KindInvariant, "amount must be greater than zero")
	ErrRefundExceedsPaid = errs.New(errs.KindInvariant, "refund exceeds amount paid")
	ErrInvalidReading    = errs.New(errs.KindInvariant, "meter readings and rate must not be negative")
)

// ChargeStatus is derived state. It has no exported constructor: callers read
// it, compare it, and persist it, but cannot set it.
type ChargeStatus struct {
	value string
}

func (s ChargeStatus) String() string {
	if s.value == "" {
		return ChargeUnpaid
	}
	return s.value
}

// Is reports whether s equals one of the given status values.
func (s ChargeStatus) Is(values ...string) bool {
	for _, v := range values {
		if s.String() == v {
			return true
		}
	}
	return false
}

func (s ChargeStatus) Value() (driver.Value, error) {
	return s.String(), nil
}

func (s *ChargeStatus) Scan(src interface{}) error {
	var v string
	switch t := src.(type) {
	case string:
		v = t
	case []byte:
		v = string(t)
	case nil:
		v = ChargeUnpaid
	default:
		return fmt.Errorf("charge status: unsupported scan type %T", src)
	}
	switch v {
	case ChargeUnpaid, ChargePartiallyPaid, ChargePaid, ChargeOverdue, ChargeRefunded, ChargePartiallyRefunded:
		s.value = v
		return nil
	}
	return fmt.Errorf("charge status: unknown value %q", v)
}

func (ChargeStatus) GormDataType() string {
	return "string"
}

func (s ChargeStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// PeriodicStatus is the rent/water status for the given amounts at now.
// Paid wins over overdue.
func PeriodicStatus(required, paid decimal.Decimal, dueDate, now time.Time) ChargeStatus {
	balance := required.Sub(paid)
	var v string
	switch {
	case !balance.IsPositive():
		v = ChargePaid
	case paid.IsPositive():
		v = ChargePartiallyPaid
	default:
		v = ChargeUnpaid
	}
	if v != ChargePaid && !dueDate.IsZero() && now.After(dueDate) {
		v = ChargeOverdue
	}
	return ChargeStatus{value: v}
}

// DepositStatus is the deposit status for the given amounts.
func DepositStatus(required, paid, refunded decimal.Decimal) ChargeStatus {
	switch {
	case paid.GreaterThanOrEqual(required) && refunded.IsZero():
		return ChargeStatus{value: ChargePaid}
	case refunded.IsPositive() && refunded.GreaterThanOrEqual(paid):
		return ChargeStatus{value: ChargeRefunded}
	case refunded.IsPositive():
		return ChargeStatus{value: ChargePartiallyRefunded}
	}
	return ChargeStatus{value: ChargeUnpaid}
}

// ReminderPolicy configures when reminder notifications become eligible.
type ReminderPolicy struct {
	ReminderDay      int // day of the billing month from which the due reminder fires
	OverdueAfterDays int // days past the due date before the overdue notice fires
}

// PeriodLedger is the balance/status block shared by rent and water entries.
type PeriodLedger struct {
	AmountRequired decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_required"`
	AmountPaid     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"amount_paid"`
	Balance        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"balance"`
	Status         ChargeStatus    `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"status"`
	DueDate        time.Time       `gorm:"not null" json:"due_date"`
	PaidAt         *time.Time      `json:"paid_at"`
}

// Recompute clamps paid to required, floors the balance at zero and derives the
// status. It returns true when the status changed.
func (l *PeriodLedger) Recompute(now time.Time) bool {
	if l.AmountPaid.IsNegative() {
		l.AmountPaid = decimal.Zero
	}
	if l.AmountPaid.GreaterThan(l.AmountRequired) {
		l.AmountPaid = l.AmountRequired
	}
	l.Balance = l.AmountRequired.Sub(l.AmountPaid)
	before := l.Status
	l.Status = PeriodicStatus(l.AmountRequired, l.AmountPaid, l.DueDate, now)
	return before != l.Status
}

// ApplyPayment credits amount and recomputes. The returned value is the part
// of amount actually applied after the overpayment clamp.
func (l *PeriodLedger) ApplyPayment(amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	before := l.AmountPaid
	l.AmountPaid = l.AmountPaid.Add(amount)
	l.Recompute(now)
	if l.Status.Is(ChargePaid) && l.PaidAt == nil {
		paidAt := now
		l.PaidAt = &paidAt
	}
	return l.AmountPaid.Sub(before), nil
}

func (l *PeriodLedger) dueReminderEligible(sent bool, month, year int, now time.Time, p ReminderPolicy) bool {
	if sent {
		return false
	}
	if PeriodicStatus(l.AmountRequired, l.AmountPaid, l.DueDate, now).Is(ChargePaid) {
		return false
	}
	return now.Year() == year && int(now.Month()) == month && now.Day() >= p.ReminderDay
}

func (l *PeriodLedger) overdueNoticeEligible(sent bool, now time.Time, p ReminderPolicy) bool {
	if sent {
		return false
	}
	if !PeriodicStatus(l.AmountRequired, l.AmountPaid, l.DueDate, now).Is(ChargeOverdue) {
		return false
	}
	return !now.Before(l.DueDate.AddDate(0, 0, p.OverdueAfterDays))
}

// DueDateFor returns the due date of a billing period, clamping dueDay to the
// length of the month.
func DueDateFor(month, year, dueDay int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, loc).Day()
	if dueDay > last {
		dueDay = last
	}
	if dueDay < 1 {
		dueDay = 1
	}
	// End of the due day: the entry turns overdue from the next day.
	return time.Date(year, time.Month(month), dueDay, 23, 59, 59, 0, loc)
}
