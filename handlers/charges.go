package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/billing"
	"github.com/yourusername/rentpay/middleware"
	"github.com/yourusername/rentpay/models"
)

type ChargeHandler struct {
	ledger *billing.Service
}

func NewChargeHandler(ledger *billing.Service) *ChargeHandler {
	return &ChargeHandler{ledger: ledger}
}

func chargeRef(c *gin.Context) (models.ChargeRef, bool) {
	t, err := models.ParseChargeType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.ChargeRef{}, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid charge id"})
		return models.ChargeRef{}, false
	}
	return models.ChargeRef{Type: t, ID: uint(id)}, true
}

func recordedBy(c *gin.Context) *uint {
	if id, _, ok := middleware.CurrentUser(c); ok {
		return &id
	}
	return nil
}

type GenerateChargesRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Generate creates the period's rent entries. An empty body means the
// current period.
func (h *ChargeHandler) Generate(c *gin.Context) {
	var req GenerateChargesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Month == 0 && req.Year == 0 {
		req.Month, req.Year = h.ledger.CurrentPeriod()
	}

	res, err := h.ledger.GeneratePeriodCharges(c.Request.Context(), req.Month, req.Year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type LedgerPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes"`
}

func (h *ChargeHandler) RecordPayment(c *gin.Context) {
	ref, ok := chargeRef(c)
	if !ok {
		return
	}
	var req LedgerPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.ledger.RecordPayment(c.Request.Context(), billing.Credit{
		Ref:          ref,
		Amount:       req.Amount,
		Method:       req.Method,
		Reference:    req.Reference,
		Notes:        req.Notes,
		RecordedByID: recordedBy(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// RecordRefund returns money from a deposit; no other type can be refunded.
func (h *ChargeHandler) RecordRefund(c *gin.Context) {
	ref, ok := chargeRef(c)
	if !ok {
		return
	}
	if ref.Type != models.ChargeDeposit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only deposits can be refunded"})
		return
	}
	var req LedgerPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.ledger.RecordRefund(c.Request.Context(), billing.Refund{
		DepositID:    ref.ID,
		Amount:       req.Amount,
		Method:       req.Method,
		Reference:    req.Reference,
		Notes:        req.Notes,
		RecordedByID: recordedBy(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type MeterReadingRequest struct {
	TenantID uint             `json:"tenant_id" binding:"required"`
	Month    int              `json:"month" binding:"required"`
	Year     int              `json:"year" binding:"required"`
	Current  decimal.Decimal  `json:"current"`
	Previous *decimal.Decimal `json:"previous"`
	Rate     *decimal.Decimal `json:"rate"`
}

func (h *ChargeHandler) RecordMeterReading(c *gin.Context) {
	var req MeterReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.ledger.RecordMeterReading(c.Request.Context(), billing.Reading{
		TenantID: req.TenantID,
		Month:    req.Month,
		Year:     req.Year,
		Current:  req.Current,
		Previous: req.Previous,
		Rate:     req.Rate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Get returns an entry, brought up to date, with its payment history.
// Tenants only see their own entries.
func (h *ChargeHandler) Get(c *gin.Context) {
	ref, ok := chargeRef(c)
	if !ok {
		return
	}

	entry, err := h.ledger.GetCharge(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	if userID, role, ok := middleware.CurrentUser(c); ok && role == models.RoleTenant && entry.TenantID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Charge not found"})
		return
	}

	history, err := h.ledger.History(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"charge": entry, "history": history})
}

func (h *ChargeHandler) CheckReminders(c *gin.Context) {
	res, err := h.ledger.CheckReminders(c.Request.Context())
	if err != nil {
		// Partial failures still report what was sent.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Some reminders could not be processed", "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}
