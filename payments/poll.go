package payments

import (
	"context"

	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/mpesa"
)

// PollResult is the state of a request after a poll.
type PollResult struct {
	Outcome    Outcome                `json:"outcome"`
	ResultCode *int                   `json:"result_code,omitempty"`
	ResultDesc string                 `json:"result_desc,omitempty"`
	Request    *models.PaymentRequest `json:"payment"`
}

// Request loads a push request by its checkout id.
func (e *Engine) Request(ctx context.Context, checkoutID string) (*models.PaymentRequest, error) {
	return e.store.FindByCheckoutID(ctx, checkoutID)
}

// Poll asks the provider about a pending request and applies the answer.
// A request that is already resolved is returned as is without a provider
// call; "still processing" leaves it pending and is not an error.
func (e *Engine) Poll(ctx context.Context, checkoutID string) (*PollResult, error) {
	p, err := e.store.FindByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		e.metrics.Polls.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return &PollResult{Outcome: OutcomeDuplicate, Request: p}, nil
	}

	q, err := e.gateway.QueryStatus(ctx, checkoutID, p.BillerShortcode)
	if err != nil {
		e.metrics.Polls.WithLabelValues(string(OutcomeError)).Inc()
		e.logger.Warn().Err(err).Str("checkout_request_id", checkoutID).Msg("Status query failed")
		return nil, err
	}
	if q.Processing {
		e.metrics.Polls.WithLabelValues(string(OutcomePending)).Inc()
		return &PollResult{Outcome: OutcomePending, ResultDesc: q.ResultDesc, Request: p}, nil
	}

	code := q.ResultCode
	st := settlement{resultCode: &code, method: models.MethodMpesaSTK, reason: q.ResultDesc}
	switch code {
	case mpesa.ResultSuccess:
		st.status = models.PaymentPaid
		st.paidAt = e.now()
	case mpesa.ResultCancelledByUser:
		st.status = models.PaymentCancelled
	case mpesa.ResultInsufficient, mpesa.ResultTimeout:
		e.metrics.Polls.WithLabelValues(string(OutcomePending)).Inc()
		return &PollResult{Outcome: OutcomePending, ResultCode: &code, ResultDesc: q.ResultDesc, Request: p}, nil
	default:
		st.status = models.PaymentFailed
	}

	outcome, updated, err := e.settle(ctx, checkoutID, st)
	e.metrics.Polls.WithLabelValues(string(outcome)).Inc()
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = p
	}
	e.logger.Info().Str("checkout_request_id", checkoutID).Int("result_code", code).Str("outcome", string(outcome)).Msg("Poll reconciled")
	return &PollResult{Outcome: outcome, ResultCode: &code, ResultDesc: q.ResultDesc, Request: updated}, nil
}
