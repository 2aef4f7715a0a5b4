package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/middleware"
	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/mpesa"
	"github.com/yourusername/rentpay/payments"
)

type PaymentHandler struct {
	engine *payments.Engine
	logger zerolog.Logger
}

func NewPaymentHandler(engine *payments.Engine, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{engine: engine, logger: logger}
}

type InitiatePushRequest struct {
	TenantID         uint            `json:"tenant_id"`
	Phone            string          `json:"phone"`
	Amount           decimal.Decimal `json:"amount"`
	BillerShortcode  string          `json:"biller_shortcode"`
	AccountReference string          `json:"account_reference"`
	Description      string          `json:"description"`
	ChargeType       string          `json:"charge_type"`
	ChargeID         *uint           `json:"charge_id"`
}

// InitiatePush sends an STK push. Tenants may only pay for themselves.
func (h *PaymentHandler) InitiatePush(c *gin.Context) {
	var req InitiatePushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, role, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if role == models.RoleTenant {
		if req.TenantID != 0 && req.TenantID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Tenants can only pay for their own lease"})
			return
		}
		req.TenantID = userID
	}

	p, err := h.engine.Initiate(c.Request.Context(), payments.InitiateRequest{
		TenantID:         req.TenantID,
		Phone:            req.Phone,
		Amount:           req.Amount,
		BillerShortcode:  req.BillerShortcode,
		AccountReference: req.AccountReference,
		Description:      req.Description,
		ChargeType:       models.ChargeType(req.ChargeType),
		ChargeID:         req.ChargeID,
		InitiatedByID:    &userID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment":             p,
		"checkout_request_id": p.CorrelationKey(),
		"message":             "Payment prompt sent. Enter your M-Pesa PIN on your phone to complete the payment.",
	})
}

// Callback receives the provider's STK result. Anything other than an
// unparseable body is acknowledged so the provider stops retrying.
func (h *PaymentHandler) Callback(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	outcome, err := h.engine.HandleCallback(c.Request.Context(), raw)
	if outcome == payments.OutcomeMalformed {
		c.JSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mpesa.AcceptCallback())
}

// C2BValidation answers the provider's paybill pre-check.
func (h *PaymentHandler) C2BValidation(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, mpesa.RejectC2B(mpesa.C2BOtherError))
		return
	}
	c.JSON(http.StatusOK, h.engine.ValidateDirect(c.Request.Context(), raw))
}

// C2BConfirmation records a paybill payment. Rejections travel in the body;
// the HTTP status is always 200.
func (h *PaymentHandler) C2BConfirmation(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, mpesa.RejectC2B(mpesa.C2BOtherError))
		return
	}
	resp, _, _ := h.engine.IngestDirect(c.Request.Context(), raw)
	c.JSON(http.StatusOK, resp)
}

// Status polls the provider for a pending request and reconciles the answer.
// Tenants only see their own requests.
func (h *PaymentHandler) Status(c *gin.Context) {
	checkoutID := c.Param("checkoutRequestId")
	if userID, role, ok := middleware.CurrentUser(c); ok && role == models.RoleTenant {
		p, err := h.engine.Request(c.Request.Context(), checkoutID)
		if err != nil {
			respondError(c, err)
			return
		}
		if p.TenantID == nil || *p.TenantID != userID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment request not found"})
			return
		}
	}

	res, err := h.engine.Poll(c.Request.Context(), checkoutID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
