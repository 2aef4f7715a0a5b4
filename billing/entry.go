package billing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/utils"
)

// Entry is a ledger row of any type together with the fields every type shares.
type Entry struct {
	Ref            models.ChargeRef    `json:"ref"`
	LeaseID        uint                `json:"lease_id"`
	TenantID       uint                `json:"tenant_id"`
	PropertyID     uint                `json:"property_id"`
	Period         string              `json:"period,omitempty"`
	AmountRequired decimal.Decimal     `json:"amount_required"`
	AmountPaid     decimal.Decimal     `json:"amount_paid"`
	Balance        decimal.Decimal     `json:"balance"`
	Status         models.ChargeStatus `json:"status"`
	DueDate        time.Time           `json:"due_date"`
	Row            interface{}         `json:"entry"`
}

func rentEntry(c *models.RentCharge) *Entry {
	return &Entry{
		Ref:            models.ChargeRef{Type: models.ChargeRent, ID: c.ID},
		LeaseID:        c.LeaseID,
		TenantID:       c.TenantID,
		PropertyID:     c.PropertyID,
		Period:         utils.PeriodLabel(c.Month, c.Year),
		AmountRequired: c.AmountRequired,
		AmountPaid:     c.AmountPaid,
		Balance:        c.Balance,
		Status:         c.Status,
		DueDate:        c.DueDate,
		Row:            c,
	}
}

func waterEntry(c *models.WaterCharge) *Entry {
	return &Entry{
		Ref:            models.ChargeRef{Type: models.ChargeWater, ID: c.ID},
		LeaseID:        c.LeaseID,
		TenantID:       c.TenantID,
		PropertyID:     c.PropertyID,
		Period:         utils.PeriodLabel(c.Month, c.Year),
		AmountRequired: c.AmountRequired,
		AmountPaid:     c.AmountPaid,
		Balance:        c.Balance,
		Status:         c.Status,
		DueDate:        c.DueDate,
		Row:            c,
	}
}

func depositEntry(c *models.DepositCharge) *Entry {
	return &Entry{
		Ref:            models.ChargeRef{Type: models.ChargeDeposit, ID: c.ID},
		LeaseID:        c.LeaseID,
		TenantID:       c.TenantID,
		PropertyID:     c.PropertyID,
		AmountRequired: c.AmountRequired,
		AmountPaid:     c.AmountPaid,
		Balance:        c.Balance,
		Status:         c.Status,
		DueDate:        c.DueDate,
		Row:            c,
	}
}
