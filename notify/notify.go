// Package notify turns ledger and payment events into notification requests
// and hands them to a sink. It never decides whether an event should fire;
// the ledgers' sent flags do that.
package notify

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/models"
)

// Request is one notification to create.
type Request struct {
	RecipientID uint                    `json:"recipient_id"`
	Kind        models.NotificationKind `json:"kind"`
	Title       string                  `json:"title"`
	Message     string                  `json:"message"`
	Metadata    map[string]interface{}  `json:"metadata,omitempty"`
}

// Event describes something that happened to a payment or a ledger entry.
type Event struct {
	Kind     models.NotificationKind
	TenantID uint
	StaffIDs []uint

	TenantName string
	Room       int
	Charge     *models.ChargeRef
	Period     string // e.g. "March 2026"; empty for deposits

	Amount  decimal.Decimal
	Balance decimal.Decimal
	DueDate time.Time
	Receipt string
	Reason  string

	PaymentRequestID uint
}

func (e Event) metadata() map[string]interface{} {
	m := map[string]interface{}{}
	if e.Charge != nil {
		m["charge_type"] = string(e.Charge.Type)
		m["charge_id"] = e.Charge.ID
	}
	if e.Receipt != "" {
		m["receipt"] = e.Receipt
	}
	if e.PaymentRequestID != 0 {
		m["payment_request_id"] = e.PaymentRequestID
	}
	if !e.Amount.IsZero() {
		m["amount"] = e.Amount.StringFixed(2)
	}
	return m
}

func (e Event) chargeLabel() string {
	if e.Charge == nil {
		return "account"
	}
	switch e.Charge.Type {
	case models.ChargeRent:
		return "rent"
	case models.ChargeWater:
		return "water bill"
	case models.ChargeDeposit:
		return "deposit"
	}
	return string(e.Charge.Type)
}

func (e Event) forPeriod() string {
	if e.Period == "" {
		return ""
	}
	return " for " + e.Period
}

func ksh(d decimal.Decimal) string {
	return "KES " + d.StringFixed(2)
}

// Build maps ev to the notifications it produces. It is a pure function.
func Build(ev Event) []Request {
	meta := ev.metadata()
	tenant := func(title, msg string) Request {
		return Request{RecipientID: ev.TenantID, Kind: ev.Kind, Title: title, Message: msg, Metadata: meta}
	}
	staff := func(title, msg string) []Request {
		out := make([]Request, 0, len(ev.StaffIDs))
		for _, id := range ev.StaffIDs {
			out = append(out, Request{RecipientID: id, Kind: ev.Kind, Title: title, Message: msg, Metadata: meta})
		}
		return out
	}
	who := ev.TenantName
	if who == "" {
		who = "A tenant"
	}
	if ev.Room > 0 {
		who = fmt.Sprintf("%s (room %d)", who, ev.Room)
	}

	var out []Request
	switch ev.Kind {
	case models.NotifyPaymentReceived:
		msg := fmt.Sprintf("We received %s towards your %s%s.", ksh(ev.Amount), ev.chargeLabel(), ev.forPeriod())
		if ev.Receipt != "" {
			msg += " Receipt " + ev.Receipt + "."
		}
		msg += " Balance: " + ksh(ev.Balance) + "."
		out = append(out, tenant("Payment received", msg))
		out = append(out, staff("Tenant payment received",
			fmt.Sprintf("%s paid %s towards %s%s.", who, ksh(ev.Amount), ev.chargeLabel(), ev.forPeriod()))...)

	case models.NotifyPaymentFailed:
		msg := fmt.Sprintf("Your payment of %s did not go through.", ksh(ev.Amount))
		if ev.Reason != "" {
			msg += " " + ev.Reason
		}
		out = append(out, tenant("Payment failed", msg))

	case models.NotifyRefundIssued:
		out = append(out, tenant("Deposit refund issued",
			fmt.Sprintf("%s of your deposit has been refunded.", ksh(ev.Amount))))

	case models.NotifyRentDueReminder, models.NotifyWaterDueReminder:
		out = append(out, tenant(fmt.Sprintf("Your %s is due", ev.chargeLabel()),
			fmt.Sprintf("Your %s%s of %s is due on %s.", ev.chargeLabel(), ev.forPeriod(), ksh(ev.Balance), ev.DueDate.Format("2 Jan 2006"))))

	case models.NotifyRentOverdue, models.NotifyWaterOverdue:
		out = append(out, tenant(fmt.Sprintf("Your %s is overdue", ev.chargeLabel()),
			fmt.Sprintf("Your %s%s was due on %s. Outstanding balance: %s.", ev.chargeLabel(), ev.forPeriod(), ev.DueDate.Format("2 Jan 2006"), ksh(ev.Balance))))
		out = append(out, staff("Overdue balance",
			fmt.Sprintf("%s owes %s on %s%s.", who, ksh(ev.Balance), ev.chargeLabel(), ev.forPeriod()))...)

	case models.NotifyDepositReminder:
		out = append(out, tenant("Deposit outstanding",
			fmt.Sprintf("Your deposit balance of %s is outstanding.", ksh(ev.Balance))))
	}

	if ev.TenantID == 0 {
		// No tenant to address; keep only staff copies.
		kept := out[:0]
		for _, r := range out {
			if r.RecipientID != 0 {
				kept = append(kept, r)
			}
		}
		out = kept
	}
	return out
}
