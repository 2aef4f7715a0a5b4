package billing

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/notify"
	"github.com/yourusername/rentpay/store"
)

// ReminderResult counts the notifications marked sent per kind.
type ReminderResult struct {
	Sent map[models.NotificationKind]int `json:"sent"`
}

type remindable interface {
	Eligible(kind models.NotificationKind, now time.Time, p models.ReminderPolicy) bool
	MarkSent(kind models.NotificationKind)
}

// CheckReminders evaluates every unsettled entry against the reminder policy.
// Each eligible kind is marked sent in the same transaction that refreshes the
// entry's status, and the notification goes out after commit. A failure on one
// entry does not stop the others.
func (s *Service) CheckReminders(ctx context.Context) (*ReminderResult, error) {
	res := &ReminderResult{Sent: map[models.NotificationKind]int{}}
	var errList []error

	rents, err := s.store.UnsettledRent(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range rents {
		errList = append(errList, s.remind(ctx, res, models.ChargeRef{Type: models.ChargeRent, ID: c.ID},
			models.NotifyRentDueReminder, models.NotifyRentOverdue))
	}

	waters, err := s.store.UnsettledWater(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range waters {
		errList = append(errList, s.remind(ctx, res, models.ChargeRef{Type: models.ChargeWater, ID: c.ID},
			models.NotifyWaterDueReminder, models.NotifyWaterOverdue))
	}

	deposits, err := s.store.UnpaidDeposits(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range deposits {
		errList = append(errList, s.remind(ctx, res, models.ChargeRef{Type: models.ChargeDeposit, ID: c.ID},
			models.NotifyDepositReminder))
	}

	return res, errors.Join(errList...)
}

func (s *Service) remind(ctx context.Context, res *ReminderResult, ref models.ChargeRef, kinds ...models.NotificationKind) error {
	now := s.clock()
	var (
		entry *Entry
		fired []models.NotificationKind
	)

	err := s.store.Tx(ctx, func(tx *store.Store) error {
		var row remindable
		switch ref.Type {
		case models.ChargeRent:
			c, err := tx.LockRent(ctx, ref.ID)
			if err != nil {
				return err
			}
			c.Recompute(now)
			row, entry = c, rentEntry(c)
		case models.ChargeWater:
			c, err := tx.LockWater(ctx, ref.ID)
			if err != nil {
				return err
			}
			c.Recompute(now)
			row, entry = c, waterEntry(c)
		case models.ChargeDeposit:
			c, err := tx.LockDeposit(ctx, ref.ID)
			if err != nil {
				return err
			}
			c.Recompute()
			row, entry = c, depositEntry(c)
		}

		for _, kind := range kinds {
			if row.Eligible(kind, now, s.cfg.Policy) {
				row.MarkSent(kind)
				fired = append(fired, kind)
			}
		}
		return tx.Save(ctx, row)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("charge_type", string(ref.Type)).Uint("charge_id", ref.ID).Msg("Reminder check failed")
		return err
	}

	for _, kind := range fired {
		res.Sent[kind]++
		s.NotifyEntry(ctx, notify.Event{Kind: kind}, entry)
	}
	return nil
}
