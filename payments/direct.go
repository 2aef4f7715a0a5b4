package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/yourusername/rentpay/billing"
	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/mpesa"
	"github.com/yourusername/rentpay/store"
	"github.com/yourusername/rentpay/utils"
)

// directTarget is what a paybill payment resolved to.
type directTarget struct {
	biller mpesa.Biller
	lease  *models.Lease
}

// checkDirect runs the checks shared by validation and confirmation. It
// returns a C2B rejection code, or "" when the payment is acceptable.
func (e *Engine) checkDirect(ctx context.Context, p mpesa.C2BPayload) (*directTarget, string, error) {
	if !p.TransAmount.IsPositive() {
		return nil, mpesa.C2BInvalidAmount, nil
	}
	prefix, room, err := utils.ParseAccountReference(p.BillRefNumber)
	if err != nil {
		return nil, mpesa.C2BInvalidAccountNumber, nil
	}
	biller, ok := e.router.ByPrefix(prefix)
	if !ok {
		return nil, mpesa.C2BInvalidAccountNumber, nil
	}
	if p.BusinessShortCode != "" && p.BusinessShortCode != biller.Shortcode {
		return nil, mpesa.C2BInvalidShortcode, nil
	}
	lease, err := e.store.ActiveLeaseForBillerRoom(ctx, biller.Shortcode, biller.PropertyID, room)
	if errors.Is(err, store.ErrNotFound) {
		return nil, mpesa.C2BInvalidAccountNumber, nil
	}
	if err != nil {
		return nil, mpesa.C2BOtherError, err
	}
	return &directTarget{biller: biller, lease: lease}, "", nil
}

func decodeC2B(raw []byte) (mpesa.C2BPayload, error) {
	var p mpesa.C2BPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	p.TransID = strings.TrimSpace(p.TransID)
	return p, nil
}

// ValidateDirect answers the provider's pre-payment validation call without
// persisting anything beyond the audit row.
func (e *Engine) ValidateDirect(ctx context.Context, raw []byte) mpesa.C2BResponse {
	p, err := decodeC2B(raw)
	ev := e.audit(ctx, models.EventC2BValidation, p.TransID, raw)
	if err != nil {
		e.closeAudit(ctx, ev, OutcomeMalformed)
		e.logger.Warn().Err(err).Msg("Malformed paybill validation request")
		return mpesa.RejectC2B(mpesa.C2BOtherError)
	}

	_, code, err := e.checkDirect(ctx, p)
	if err != nil {
		e.logger.Error().Err(err).Str("account_reference", p.BillRefNumber).Msg("Paybill validation failed")
	}
	if code != "" {
		e.closeAudit(ctx, ev, OutcomeRejected)
		e.logger.Warn().Str("account_reference", p.BillRefNumber).Str("code", code).Msg("Paybill payment rejected at validation")
		return mpesa.RejectC2B(code)
	}
	e.closeAudit(ctx, ev, OutcomePending)
	return mpesa.AcceptC2B()
}

// IngestDirect records a paybill payment that had no push request. The
// provider receipt is globally unique, so a repeated delivery is accepted
// again without crediting twice.
func (e *Engine) IngestDirect(ctx context.Context, raw []byte) (mpesa.C2BResponse, Outcome, error) {
	p, err := decodeC2B(raw)
	ev := e.audit(ctx, models.EventC2BConfirmation, p.TransID, raw)
	if err == nil && p.TransID == "" {
		err = errors.New("missing TransID")
	}
	if err != nil {
		e.metrics.Direct.WithLabelValues(string(OutcomeMalformed)).Inc()
		e.closeAudit(ctx, ev, OutcomeMalformed)
		e.logger.Warn().Err(err).Msg("Malformed paybill confirmation")
		return mpesa.RejectC2B(mpesa.C2BOtherError), OutcomeMalformed, err
	}
	log := e.logger.With().Str("receipt", p.TransID).Str("account_reference", p.BillRefNumber).Logger()

	target, code, err := e.checkDirect(ctx, p)
	if err != nil {
		e.metrics.Direct.WithLabelValues(string(OutcomeError)).Inc()
		e.closeAudit(ctx, ev, OutcomeError)
		log.Error().Err(err).Msg("Failed to resolve paybill payment")
		return mpesa.RejectC2B(code), OutcomeError, err
	}
	if code != "" {
		e.metrics.Direct.WithLabelValues(string(OutcomeRejected)).Inc()
		e.closeAudit(ctx, ev, OutcomeRejected)
		log.Warn().Str("code", code).Msg("Paybill payment not applicable")
		return mpesa.RejectC2B(code), OutcomeRejected, nil
	}

	phone, err := mpesa.NormalizePhone(p.MSISDN)
	if err != nil {
		// Some deliveries carry a masked or hashed MSISDN.
		phone = ""
	}
	paidAt := p.PaidAt(e.now())
	receipt := p.TransID
	lease := target.lease
	tenantID, leaseID := lease.TenantID, lease.ID

	var (
		outcome Outcome
		req     *models.PaymentRequest
		entry   *billing.Entry
	)
	err = e.store.Tx(ctx, func(tx *store.Store) error {
		ref, err := tx.OldestOutstanding(ctx, lease.ID, models.ChargeRent)
		linked := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		resultCode := mpesa.ResultSuccess
		req = &models.PaymentRequest{
			ProviderReceipt:  &receipt,
			Source:           models.SourcePaybill,
			Phone:            phone,
			Amount:           p.TransAmount,
			BillerShortcode:  target.biller.Shortcode,
			AccountReference: strings.ToUpper(strings.TrimSpace(p.BillRefNumber)),
			Description:      "Paybill payment",
			TenantID:         &tenantID,
			LeaseID:          &leaseID,
			Status:           models.PaymentPaid,
			ResultCode:       &resultCode,
			PaidAt:           &paidAt,
		}
		if linked {
			chargeID := ref.ID
			req.ChargeType = ref.Type
			req.ChargeID = &chargeID
		}
		inserted, err := tx.InsertDirectPayment(ctx, req)
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeDuplicate
			return nil
		}
		outcome = OutcomePaid
		if !linked {
			return nil
		}

		reqID := req.ID
		entry, _, err = e.ledger.CreditTx(ctx, tx, billing.Credit{
			Ref:              ref,
			Amount:           p.TransAmount,
			Method:           models.MethodMpesaPaybill,
			Reference:        receipt,
			PaymentRequestID: &reqID,
		})
		return err
	})
	if err != nil {
		e.metrics.Direct.WithLabelValues(string(OutcomeError)).Inc()
		e.closeAudit(ctx, ev, OutcomeError)
		log.Error().Err(err).Msg("Failed to record paybill payment")
		return mpesa.RejectC2B(mpesa.C2BOtherError), OutcomeError, err
	}

	e.metrics.Direct.WithLabelValues(string(outcome)).Inc()
	e.closeAudit(ctx, ev, outcome)
	if outcome == OutcomeDuplicate {
		log.Warn().Msg("Duplicate paybill confirmation ignored")
		return mpesa.AcceptC2B(), outcome, nil
	}
	if entry == nil {
		log.Info().Uint("lease_id", lease.ID).Msg("Paybill payment recorded with no outstanding rent")
	} else {
		log.Info().Uint("lease_id", lease.ID).Str("balance", entry.Balance.String()).Msg("Paybill payment credited")
	}
	e.notifyReceived(ctx, req, entry, p.TransAmount)
	return mpesa.AcceptC2B(), outcome, nil
}
