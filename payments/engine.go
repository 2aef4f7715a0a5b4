// Package payments reconciles mobile-money payment requests. Three paths can
// resolve a pending request: the provider callback, an on-demand poll and,
// for payments with no prior request, direct paybill ingestion. All of them
// go through the same compare-and-set so only the first one takes effect.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/billing"
	"github.com/yourusername/rentpay/errs"
	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/mpesa"
	"github.com/yourusername/rentpay/notify"
	"github.com/yourusername/rentpay/store"
	"github.com/yourusername/rentpay/utils"
	"gorm.io/datatypes"
)

// Gateway is the part of the provider client the engine needs.
type Gateway interface {
	InitiatePush(ctx context.Context, req mpesa.PushRequest) (*mpesa.PushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID, shortcode string) (*mpesa.QueryResult, error)
}

// Outcome is what a reconciliation call did.
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePending   Outcome = "pending"
	OutcomeDuplicate Outcome = "already_resolved"
	OutcomeUnknown   Outcome = "unknown_request"
	OutcomeRejected  Outcome = "rejected"
	OutcomeMalformed Outcome = "malformed"
	OutcomeError     Outcome = "error"
)

type Deps struct {
	Store    *store.Store
	Gateway  Gateway
	Router   *mpesa.Router
	Ledger   *billing.Service
	Notifier billing.Notifier
	Metrics  *Metrics
	Logger   zerolog.Logger
}

type Engine struct {
	store    *store.Store
	gateway  Gateway
	router   *mpesa.Router
	ledger   *billing.Service
	notifier billing.Notifier
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewEngine(d Deps) *Engine {
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	return &Engine{
		store:    d.Store,
		gateway:  d.Gateway,
		router:   d.Router,
		ledger:   d.Ledger,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		logger:   d.Logger.With().Str("component", "payments").Logger(),
		now:      time.Now,
	}
}

// InitiateRequest asks for an STK push. Only Phone or TenantID is strictly
// needed: the lease, biller, target entry, amount and account reference are
// derived from the tenant's active lease when left empty.
type InitiateRequest struct {
	TenantID         uint
	Phone            string
	Amount           decimal.Decimal
	BillerShortcode  string
	AccountReference string
	Description      string
	ChargeType       models.ChargeType
	ChargeID         *uint
	InitiatedByID    *uint
}

// Initiate sends the push and records the pending request. Nothing is stored
// when the provider does not accept the push.
func (e *Engine) Initiate(ctx context.Context, in InitiateRequest) (*models.PaymentRequest, error) {
	if in.Amount.IsNegative() {
		return nil, errs.New(errs.KindValidation, "amount must be greater than zero")
	}
	if in.ChargeType == "" {
		in.ChargeType = models.ChargeRent
	}
	if _, err := models.ParseChargeType(string(in.ChargeType)); err != nil {
		return nil, err
	}

	var (
		lease  *models.Lease
		tenant *models.User
		err    error
	)
	if in.TenantID != 0 {
		if tenant, err = e.store.GetUser(ctx, in.TenantID); err != nil {
			return nil, err
		}
		lease, err = e.store.ActiveLeaseForTenant(ctx, in.TenantID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	phone := in.Phone
	if phone == "" && tenant != nil {
		phone = tenant.Phone
	}
	if phone, err = mpesa.NormalizePhone(phone); err != nil {
		e.metrics.Initiations.WithLabelValues("invalid").Inc()
		return nil, err
	}

	shortcode := in.BillerShortcode
	if shortcode == "" && lease != nil {
		shortcode = lease.Property.BillerShortcode
		if shortcode == "" {
			if b, ok := e.router.ByProperty(lease.PropertyID); ok {
				shortcode = b.Shortcode
			}
		}
	}
	if shortcode == "" {
		e.metrics.Initiations.WithLabelValues("invalid").Inc()
		return nil, errs.New(errs.KindValidation, "biller shortcode is required when the tenant has no active lease")
	}
	biller, err := e.router.Biller(shortcode)
	if err != nil {
		e.metrics.Initiations.WithLabelValues("invalid").Inc()
		return nil, err
	}

	var target *billing.Entry
	if lease != nil {
		target, err = e.resolveTarget(ctx, lease, in.ChargeType, in.ChargeID)
		if err != nil {
			return nil, err
		}
	}

	amount := in.Amount
	if !amount.IsInteger() {
		e.metrics.Initiations.WithLabelValues("invalid").Inc()
		return nil, errs.New(errs.KindValidation, "amount must be whole shillings")
	}
	if amount.IsZero() && target != nil {
		// Pushes are whole shillings; a fractional balance is rounded up and
		// the ledger clamps the excess.
		amount = target.Balance.Ceil()
	}
	if !amount.IsPositive() {
		e.metrics.Initiations.WithLabelValues("invalid").Inc()
		return nil, errs.New(errs.KindValidation, "amount must be greater than zero")
	}

	accountRef := in.AccountReference
	if accountRef == "" {
		if lease == nil {
			return nil, errs.New(errs.KindValidation, "account reference is required when the tenant has no active lease")
		}
		accountRef = utils.FormatAccountReference(biller.AccountPrefix, lease.RoomNumber)
	}
	description := in.Description
	if description == "" {
		description = "Rent payment"
		if target != nil && target.Period != "" {
			description = fmt.Sprintf("%s %s", target.Ref.Type, target.Period)
		}
	}

	res, err := e.gateway.InitiatePush(ctx, mpesa.PushRequest{
		Phone:            phone,
		Amount:           amount,
		BillerShortcode:  biller.Shortcode,
		AccountReference: accountRef,
		Description:      description,
	})
	if err != nil {
		e.metrics.Initiations.WithLabelValues("rejected").Inc()
		e.logger.Warn().Err(err).Str("shortcode", biller.Shortcode).Str("phone", phone).Msg("STK push not accepted")
		return nil, err
	}

	checkoutID := res.CheckoutRequestID
	p := &models.PaymentRequest{
		CheckoutRequestID: &checkoutID,
		MerchantRequestID: res.MerchantRequestID,
		Source:            models.SourceSTKPush,
		Phone:             phone,
		Amount:            amount,
		BillerShortcode:   biller.Shortcode,
		AccountReference:  accountRef,
		Description:       description,
		Status:            models.PaymentPending,
		InitiatedByID:     in.InitiatedByID,
	}
	if in.TenantID != 0 {
		tenantID := in.TenantID
		p.TenantID = &tenantID
	}
	if lease != nil {
		leaseID := lease.ID
		p.LeaseID = &leaseID
	}
	if target != nil {
		chargeID := target.Ref.ID
		p.ChargeType = target.Ref.Type
		p.ChargeID = &chargeID
	}
	if err := e.store.CreatePaymentRequest(ctx, p); err != nil {
		// The provider has already prompted the payer; a later callback for
		// this key will be logged as unknown.
		e.logger.Error().Err(err).Str("checkout_request_id", checkoutID).Msg("Failed to persist accepted STK push")
		return nil, err
	}

	e.metrics.Initiations.WithLabelValues("accepted").Inc()
	e.logger.Info().
		Str("checkout_request_id", checkoutID).
		Str("shortcode", biller.Shortcode).
		Str("account_reference", accountRef).
		Str("amount", amount.String()).
		Msg("STK push initiated")
	return p, nil
}

// resolveTarget picks the entry a payment pays down: chargeID when given,
// otherwise the oldest outstanding entry of type t. No outstanding entry is
// not an error.
func (e *Engine) resolveTarget(ctx context.Context, lease *models.Lease, t models.ChargeType, chargeID *uint) (*billing.Entry, error) {
	ref := models.ChargeRef{Type: t}
	if chargeID != nil {
		ref.ID = *chargeID
	} else {
		found, err := e.store.OldestOutstanding(ctx, lease.ID, t)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		ref = found
	}

	entry, err := e.ledger.GetCharge(ctx, ref)
	if err != nil {
		return nil, err
	}
	if entry.LeaseID != lease.ID {
		return nil, errs.New(errs.KindValidation, "charge does not belong to the tenant's lease")
	}
	return entry, nil
}

// settlement is a terminal transition to apply to a pending request.
type settlement struct {
	status     models.PaymentStatus
	resultCode *int
	reason     string
	receipt    string
	phone      string
	amount     decimal.Decimal // credited to the ledger on success
	paidAt     time.Time
	method     string
}

func (s settlement) fields() map[string]interface{} {
	f := map[string]interface{}{}
	if s.resultCode != nil {
		f["result_code"] = *s.resultCode
	}
	switch s.status {
	case models.PaymentPaid:
		if s.receipt != "" {
			f["provider_receipt"] = s.receipt
		}
		if s.phone != "" {
			f["phone"] = s.phone
		}
		f["paid_at"] = s.paidAt
	default:
		f["failure_reason"] = s.reason
	}
	return f
}

// settle applies st to the pending request keyed by checkoutID. It reports
// OutcomeDuplicate when another writer got there first.
func (e *Engine) settle(ctx context.Context, checkoutID string, st settlement) (Outcome, *models.PaymentRequest, error) {
	var (
		outcome Outcome
		req     *models.PaymentRequest
		entry   *billing.Entry
	)
	err := e.store.Tx(ctx, func(tx *store.Store) error {
		p, err := tx.FindByCheckoutID(ctx, checkoutID)
		if errors.Is(err, store.ErrNotFound) {
			outcome = OutcomeUnknown
			return nil
		}
		if err != nil {
			return err
		}
		req = p
		if p.Status.IsTerminal() {
			outcome = OutcomeDuplicate
			return nil
		}

		won, err := tx.TransitionIfPending(ctx, checkoutID, st.status, st.fields())
		if err != nil {
			return err
		}
		if !won {
			outcome = OutcomeDuplicate
			return nil
		}
		if req, err = tx.FindByCheckoutID(ctx, checkoutID); err != nil {
			return err
		}
		outcome = Outcome(st.status)

		ref, linked := req.ChargeRef()
		if st.status != models.PaymentPaid || !linked {
			return nil
		}
		amount := st.amount
		if !amount.IsPositive() {
			amount = req.Amount
		}
		reqID := req.ID
		entry, _, err = e.ledger.CreditTx(ctx, tx, billing.Credit{
			Ref:              ref,
			Amount:           amount,
			Method:           st.method,
			Reference:        st.receipt,
			PaymentRequestID: &reqID,
		})
		if errors.Is(err, store.ErrNotFound) {
			// The entry is gone; the payment itself still stands.
			e.logger.Warn().Str("checkout_request_id", checkoutID).Uint("charge_id", ref.ID).Msg("Linked charge not found, payment not credited")
			entry = nil
			return nil
		}
		return err
	})
	if err != nil {
		return OutcomeError, nil, err
	}

	switch outcome {
	case OutcomePaid:
		e.notifyReceived(ctx, req, entry, st.amount)
	case OutcomeFailed, OutcomeCancelled:
		e.notifyFailed(ctx, req)
	}
	return outcome, req, nil
}

func (e *Engine) notifyReceived(ctx context.Context, p *models.PaymentRequest, entry *billing.Entry, amount decimal.Decimal) {
	if !amount.IsPositive() {
		amount = p.Amount
	}
	ev := notify.Event{
		Kind:             models.NotifyPaymentReceived,
		Amount:           amount,
		PaymentRequestID: p.ID,
	}
	if p.ProviderReceipt != nil {
		ev.Receipt = *p.ProviderReceipt
	}
	if entry != nil {
		e.ledger.NotifyEntry(ctx, ev, entry)
		return
	}
	if e.notifier == nil || p.TenantID == nil {
		return
	}
	ev.TenantID = *p.TenantID
	if p.LeaseID != nil {
		if lease, err := e.store.GetLease(ctx, *p.LeaseID); err == nil {
			ev.Room = lease.RoomNumber
			staff, _ := e.store.StaffForProperty(ctx, lease.PropertyID)
			for _, u := range staff {
				ev.StaffIDs = append(ev.StaffIDs, u.ID)
			}
		}
	}
	e.notifier.Notify(ctx, ev)
}

func (e *Engine) notifyFailed(ctx context.Context, p *models.PaymentRequest) {
	if e.notifier == nil || p.TenantID == nil {
		return
	}
	reason := p.FailureReason
	if p.Status == models.PaymentCancelled {
		reason = "The request was cancelled."
	}
	e.notifier.Notify(ctx, notify.Event{
		Kind:             models.NotifyPaymentFailed,
		TenantID:         *p.TenantID,
		Amount:           p.Amount,
		Reason:           reason,
		PaymentRequestID: p.ID,
	})
}

// audit stores the raw provider body. Bodies that are not JSON are kept as a
// JSON string.
func (e *Engine) audit(ctx context.Context, kind, key string, raw []byte) *models.CallbackEvent {
	payload := raw
	if !json.Valid(raw) {
		payload, _ = json.Marshal(string(raw))
	}
	ev := &models.CallbackEvent{Kind: kind, CorrelationKey: key, Payload: datatypes.JSON(payload)}
	if err := e.store.RecordEvent(ctx, ev); err != nil {
		e.logger.Error().Err(err).Str("kind", kind).Msg("Failed to record provider event")
		return nil
	}
	return ev
}

func (e *Engine) closeAudit(ctx context.Context, ev *models.CallbackEvent, outcome Outcome) {
	if ev == nil {
		return
	}
	if err := e.store.SetEventOutcome(ctx, ev.ID, string(outcome)); err != nil {
		e.logger.Error().Err(err).Uint("event_id", ev.ID).Msg("Failed to record event outcome")
	}
}
