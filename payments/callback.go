package payments

import (
	"context"

	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/mpesa"
)

// HandleCallback reconciles an STK callback. Only a payload that cannot be
// parsed is an error; unknown and already-resolved requests are logged and
// reported through the outcome so the provider still gets its acknowledgement.
func (e *Engine) HandleCallback(ctx context.Context, raw []byte) (Outcome, error) {
	cb, err := mpesa.ParseCallback(raw)
	key := ""
	if cb != nil {
		key = cb.CheckoutRequestID
	}
	ev := e.audit(ctx, models.EventSTKCallback, key, raw)
	if err != nil {
		e.metrics.Callbacks.WithLabelValues(string(OutcomeMalformed)).Inc()
		e.closeAudit(ctx, ev, OutcomeMalformed)
		e.logger.Warn().Err(err).Msg("Malformed STK callback")
		return OutcomeMalformed, err
	}

	code := cb.ResultCode
	st := settlement{resultCode: &code, method: models.MethodMpesaSTK}
	if cb.Succeeded() {
		st.status = models.PaymentPaid
		st.receipt = cb.ReceiptNumber
		st.phone = cb.PhoneNumber
		st.paidAt = e.now()
		if cb.TransactionDate != nil {
			st.paidAt = *cb.TransactionDate
		}
		if cb.Amount != nil {
			st.amount = *cb.Amount
		}
	} else {
		st.status = models.PaymentFailed
		st.reason = cb.ResultDesc
	}

	outcome, _, err := e.settle(ctx, cb.CheckoutRequestID, st)
	e.metrics.Callbacks.WithLabelValues(string(outcome)).Inc()
	e.closeAudit(ctx, ev, outcome)

	log := e.logger.With().Str("checkout_request_id", cb.CheckoutRequestID).Int("result_code", cb.ResultCode).Logger()
	switch outcome {
	case OutcomeError:
		log.Error().Err(err).Msg("Failed to reconcile STK callback")
		return outcome, err
	case OutcomeUnknown:
		log.Warn().Msg("STK callback for unknown checkout request")
	case OutcomeDuplicate:
		log.Warn().Msg("STK callback for already resolved request ignored")
	default:
		log.Info().Str("outcome", string(outcome)).Str("receipt", cb.ReceiptNumber).Msg("STK callback reconciled")
	}
	return outcome, nil
}
