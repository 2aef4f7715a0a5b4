// Package billing owns the rent, water and deposit ledgers. Every mutation
// and the recompute it triggers commit together.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/errs"
	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/notify"
	"github.com/yourusername/rentpay/store"
	"github.com/yourusername/rentpay/utils"
)

// Notifier creates notifications for an event. Delivery failures are its own
// business.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) int
}

type Config struct {
	DueDay   int
	Policy   models.ReminderPolicy
	Location *time.Location
	Clock    func() time.Time // defaults to time.Now
}

type Service struct {
	store    *store.Store
	notifier Notifier
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(st *store.Store, notifier Notifier, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DueDay == 0 {
		cfg.DueDay = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		store:    st,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "billing").Logger(),
		now:      cfg.Clock,
	}
}

func (s *Service) clock() time.Time {
	return s.now().In(s.cfg.Location)
}

// CurrentPeriod is the billing month and year at the service's clock.
func (s *Service) CurrentPeriod() (int, int) {
	return utils.CurrentPeriod(s.now(), s.cfg.Location)
}

// GenerateResult counts what GeneratePeriodCharges created.
type GenerateResult struct {
	Month           int `json:"month"`
	Year            int `json:"year"`
	RentCreated     int `json:"rent_created"`
	RentExisting    int `json:"rent_existing"`
	DepositsCreated int `json:"deposits_created"`
}

// GeneratePeriodCharges creates the rent entry of every active lease for the
// period, and the lease's deposit entry if it has none. Running it twice is
// harmless.
func (s *Service) GeneratePeriodCharges(ctx context.Context, month, year int) (*GenerateResult, error) {
	if err := utils.ValidatePeriod(month, year); err != nil {
		return nil, err
	}
	now := s.clock()
	periodEnd := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, s.cfg.Location)
	res := &GenerateResult{Month: month, Year: year}

	err := s.store.Tx(ctx, func(tx *store.Store) error {
		leases, err := tx.ActiveLeases(ctx)
		if err != nil {
			return err
		}
		for _, lease := range leases {
			if !lease.StartDate.Before(periodEnd) {
				continue
			}
			created, err := tx.CreateIfAbsent(ctx, models.NewRentCharge(lease, month, year, s.cfg.DueDay, now))
			if err != nil {
				return err
			}
			if created {
				res.RentCreated++
			} else {
				res.RentExisting++
			}

			if lease.DepositAmount.IsPositive() {
				created, err := tx.CreateIfAbsent(ctx, models.NewDepositCharge(lease))
				if err != nil {
					return err
				}
				if created {
					res.DepositsCreated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("month", month).Int("year", year).
		Int("rent_created", res.RentCreated).
		Int("deposits_created", res.DepositsCreated).
		Msg("Generated period charges")
	return res, nil
}

// Credit is money applied to a ledger entry.
type Credit struct {
	Ref              models.ChargeRef
	Amount           decimal.Decimal
	Method           string
	Reference        string
	Notes            string
	RecordedByID     *uint
	PaymentRequestID *uint
}

// CreditTx applies c inside the caller's transaction and records it in the
// payment history. It returns the updated entry and the amount actually
// applied after the overpayment clamp.
func (s *Service) CreditTx(ctx context.Context, tx *store.Store, c Credit) (*Entry, decimal.Decimal, error) {
	if !c.Amount.IsPositive() {
		return nil, decimal.Zero, models.ErrInvalidAmount
	}
	now := s.clock()

	var (
		entry   *Entry
		applied decimal.Decimal
	)
	switch c.Ref.Type {
	case models.ChargeRent:
		row, err := tx.LockRent(ctx, c.Ref.ID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if applied, err = row.ApplyPayment(c.Amount, now); err != nil {
			return nil, decimal.Zero, err
		}
		if err := tx.Save(ctx, row); err != nil {
			return nil, decimal.Zero, err
		}
		entry = rentEntry(row)
	case models.ChargeWater:
		row, err := tx.LockWater(ctx, c.Ref.ID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if applied, err = row.ApplyPayment(c.Amount, now); err != nil {
			return nil, decimal.Zero, err
		}
		if err := tx.Save(ctx, row); err != nil {
			return nil, decimal.Zero, err
		}
		entry = waterEntry(row)
	case models.ChargeDeposit:
		row, err := tx.LockDeposit(ctx, c.Ref.ID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if applied, err = row.ApplyPayment(c.Amount, now); err != nil {
			return nil, decimal.Zero, err
		}
		if err := tx.Save(ctx, row); err != nil {
			return nil, decimal.Zero, err
		}
		entry = depositEntry(row)
	default:
		return nil, decimal.Zero, errs.New(errs.KindValidation, fmt.Sprintf("unknown charge type %q", c.Ref.Type))
	}

	method := c.Method
	if method == "" {
		method = models.MethodManual
	}
	err := tx.CreateChargePayment(ctx, &models.ChargePayment{
		ChargeType:       c.Ref.Type,
		ChargeID:         c.Ref.ID,
		LeaseID:          entry.LeaseID,
		TenantID:         entry.TenantID,
		Direction:        models.DirectionPayment,
		Amount:           c.Amount,
		AmountApplied:    applied,
		Method:           method,
		Reference:        c.Reference,
		Notes:            c.Notes,
		RecordedByID:     c.RecordedByID,
		PaymentRequestID: c.PaymentRequestID,
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	if applied.LessThan(c.Amount) {
		s.logger.Warn().
			Str("charge_type", string(c.Ref.Type)).Uint("charge_id", c.Ref.ID).
			Str("amount", c.Amount.String()).Str("applied", applied.String()).
			Msg("Payment exceeded balance, excess not applied")
	}
	return entry, applied, nil
}

var validMethods = map[string]bool{
	models.MethodCash: true, models.MethodBank: true, models.MethodManual: true,
	models.MethodMpesaSTK: true, models.MethodMpesaPaybill: true,
}

// RecordPayment credits a manually entered payment.
func (s *Service) RecordPayment(ctx context.Context, c Credit) (*Entry, error) {
	if c.Method != "" && !validMethods[c.Method] {
		return nil, errs.New(errs.KindValidation, fmt.Sprintf("unknown payment method %q", c.Method))
	}
	var entry *Entry
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		var err error
		entry, _, err = s.CreditTx(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("charge_type", string(c.Ref.Type)).Uint("charge_id", c.Ref.ID).
		Str("amount", c.Amount.String()).Str("status", entry.Status.String()).
		Msg("Recorded payment")
	s.NotifyEntry(ctx, notify.Event{Kind: models.NotifyPaymentReceived, Amount: c.Amount, Receipt: c.Reference}, entry)
	return entry, nil
}

// Refund is money returned from a deposit.
type Refund struct {
	DepositID    uint
	Amount       decimal.Decimal
	Method       string
	Reference    string
	Notes        string
	RecordedByID *uint
}

// RecordRefund returns part or all of a paid deposit. Refunding more than was
// paid is rejected and leaves the entry unchanged.
func (s *Service) RecordRefund(ctx context.Context, r Refund) (*Entry, error) {
	if r.Method != "" && !validMethods[r.Method] {
		return nil, errs.New(errs.KindValidation, fmt.Sprintf("unknown payment method %q", r.Method))
	}
	method := r.Method
	if method == "" {
		method = models.MethodManual
	}
	now := s.clock()

	var entry *Entry
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		row, err := tx.LockDeposit(ctx, r.DepositID)
		if err != nil {
			return err
		}
		if err := row.ApplyRefund(r.Amount, now); err != nil {
			return err
		}
		if err := tx.Save(ctx, row); err != nil {
			return err
		}
		entry = depositEntry(row)
		return tx.CreateChargePayment(ctx, &models.ChargePayment{
			ChargeType:    models.ChargeDeposit,
			ChargeID:      row.ID,
			LeaseID:       row.LeaseID,
			TenantID:      row.TenantID,
			Direction:     models.DirectionRefund,
			Amount:        r.Amount,
			AmountApplied: r.Amount,
			Method:        method,
			Reference:     r.Reference,
			Notes:         r.Notes,
			RecordedByID:  r.RecordedByID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Uint("deposit_id", r.DepositID).Str("amount", r.Amount.String()).Str("status", entry.Status.String()).Msg("Recorded refund")
	s.NotifyEntry(ctx, notify.Event{Kind: models.NotifyRefundIssued, Amount: r.Amount, Receipt: r.Reference}, entry)
	return entry, nil
}

// Reading is a water meter reading for one tenant and period. A nil Previous
// carries over the last recorded reading; a nil Rate keeps the entry's rate,
// falling back to the lease's.
type Reading struct {
	TenantID uint
	Month    int
	Year     int
	Current  decimal.Decimal
	Previous *decimal.Decimal
	Rate     *decimal.Decimal
}

// RecordMeterReading creates or revises the tenant's water entry for the
// period.
func (s *Service) RecordMeterReading(ctx context.Context, r Reading) (*Entry, error) {
	if err := utils.ValidatePeriod(r.Month, r.Year); err != nil {
		return nil, err
	}
	if r.Current.IsNegative() || (r.Previous != nil && r.Previous.IsNegative()) || (r.Rate != nil && r.Rate.IsNegative()) {
		return nil, models.ErrInvalidReading
	}
	now := s.clock()

	var entry *Entry
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		lease, err := tx.ActiveLeaseForTenant(ctx, r.TenantID)
		if err != nil {
			return err
		}

		row, err := tx.WaterFor(ctx, lease.ID, r.Month, r.Year)
		switch {
		case errors.Is(err, store.ErrNotFound):
			row = models.NewWaterCharge(*lease, r.Month, r.Year, s.cfg.DueDay, now)
		case err != nil:
			return err
		default:
			if row, err = tx.LockWater(ctx, row.ID); err != nil {
				return err
			}
		}

		previous := decimal.Zero
		switch {
		case r.Previous != nil:
			previous = *r.Previous
		case row.ID != 0:
			previous = row.PreviousReading
		default:
			last, err := tx.PreviousWater(ctx, lease.ID, r.Month, r.Year)
			if err == nil {
				previous = last.CurrentReading
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		rate := lease.WaterRate
		if r.Rate != nil {
			rate = *r.Rate
		} else if row.ID != 0 {
			rate = row.UnitRate
		}

		if err := row.SetReadings(previous, r.Current, rate, now); err != nil {
			return err
		}
		if err := tx.Save(ctx, row); err != nil {
			return err
		}
		entry = waterEntry(row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Uint("water_charge_id", entry.Ref.ID).Str("amount_required", entry.AmountRequired.String()).Msg("Recorded meter reading")
	return entry, nil
}

// GetCharge loads an entry and brings its time-dependent status up to date,
// persisting the change if there was one.
func (s *Service) GetCharge(ctx context.Context, ref models.ChargeRef) (*Entry, error) {
	now := s.clock()
	var entry *Entry
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		switch ref.Type {
		case models.ChargeRent:
			row, err := tx.LockRent(ctx, ref.ID)
			if err != nil {
				return err
			}
			if row.Recompute(now) {
				if err := tx.Save(ctx, row); err != nil {
					return err
				}
			}
			entry = rentEntry(row)
		case models.ChargeWater:
			row, err := tx.LockWater(ctx, ref.ID)
			if err != nil {
				return err
			}
			if row.Recompute(now) {
				if err := tx.Save(ctx, row); err != nil {
					return err
				}
			}
			entry = waterEntry(row)
		case models.ChargeDeposit:
			row, err := tx.LockDeposit(ctx, ref.ID)
			if err != nil {
				return err
			}
			if row.Recompute() {
				if err := tx.Save(ctx, row); err != nil {
					return err
				}
			}
			entry = depositEntry(row)
		default:
			return errs.New(errs.KindValidation, fmt.Sprintf("unknown charge type %q", ref.Type))
		}
		return nil
	})
	return entry, err
}

// History lists the payments and refunds applied to an entry.
func (s *Service) History(ctx context.Context, ref models.ChargeRef) ([]models.ChargePayment, error) {
	return s.store.ChargePayments(ctx, ref)
}

// NotifyEntry fills in the recipients and entry details of ev and dispatches it.
func (s *Service) NotifyEntry(ctx context.Context, ev notify.Event, entry *Entry) int {
	if s.notifier == nil {
		return 0
	}
	ref := entry.Ref
	ev.Charge = &ref
	ev.TenantID = entry.TenantID
	ev.Period = entry.Period
	ev.Balance = entry.Balance
	ev.DueDate = entry.DueDate

	if lease, err := s.store.GetLease(ctx, entry.LeaseID); err == nil {
		ev.Room = lease.RoomNumber
	}
	if tenant, err := s.store.GetUser(ctx, entry.TenantID); err == nil {
		ev.TenantName = tenant.Name
	}
	staff, err := s.store.StaffForProperty(ctx, entry.PropertyID)
	if err != nil {
		s.logger.Error().Err(err).Uint("property_id", entry.PropertyID).Msg("Failed to load staff for notification")
	}
	for _, u := range staff {
		ev.StaffIDs = append(ev.StaffIDs, u.ID)
	}
	return s.notifier.Notify(ctx, ev)
}
