package store

import (
	"context"
	"fmt"

	"github.com/yourusername/rentpay/errs"
	"github.com/yourusername/rentpay/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) lock(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (s *Store) LockRent(ctx context.Context, id uint) (*models.RentCharge, error) {
	var c models.RentCharge
	if err := s.lock(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("rent charge %d", id))
	}
	return &c, nil
}

func (s *Store) LockWater(ctx context.Context, id uint) (*models.WaterCharge, error) {
	var c models.WaterCharge
	if err := s.lock(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("water charge %d", id))
	}
	return &c, nil
}

func (s *Store) LockDeposit(ctx context.Context, id uint) (*models.DepositCharge, error) {
	var c models.DepositCharge
	if err := s.lock(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("deposit charge %d", id))
	}
	return &c, nil
}

// OldestOutstanding finds the earliest entry of type t on the lease that still
// has money owing.
func (s *Store) OldestOutstanding(ctx context.Context, leaseID uint, t models.ChargeType) (models.ChargeRef, error) {
	q := s.db.WithContext(ctx).Where("lease_id = ? AND balance > 0", leaseID)
	switch t {
	case models.ChargeRent:
		q = q.Model(&models.RentCharge{}).Where("status <> ?", models.ChargePaid).Order("year, month")
	case models.ChargeWater:
		q = q.Model(&models.WaterCharge{}).Where("status <> ?", models.ChargePaid).Order("year, month")
	case models.ChargeDeposit:
		q = q.Model(&models.DepositCharge{}).Where("status = ?", models.ChargeUnpaid)
	default:
		return models.ChargeRef{}, errs.New(errs.KindValidation, fmt.Sprintf("unknown charge type %q", t))
	}

	var found []uint
	if err := q.Limit(1).Pluck("id", &found).Error; err != nil {
		return models.ChargeRef{}, fmt.Errorf("failed to find outstanding %s: %w", t, err)
	}
	if len(found) == 0 {
		return models.ChargeRef{}, fmt.Errorf("outstanding %s for lease %d: %w", t, leaseID, ErrNotFound)
	}
	return models.ChargeRef{Type: t, ID: found[0]}, nil
}

func (s *Store) RentFor(ctx context.Context, leaseID uint, month, year int) (*models.RentCharge, error) {
	var c models.RentCharge
	err := s.db.WithContext(ctx).Where("lease_id = ? AND month = ? AND year = ?", leaseID, month, year).First(&c).Error
	if err != nil {
		return nil, notFound(err, "rent charge")
	}
	return &c, nil
}

func (s *Store) WaterFor(ctx context.Context, leaseID uint, month, year int) (*models.WaterCharge, error) {
	var c models.WaterCharge
	err := s.db.WithContext(ctx).Where("lease_id = ? AND month = ? AND year = ?", leaseID, month, year).First(&c).Error
	if err != nil {
		return nil, notFound(err, "water charge")
	}
	return &c, nil
}

// PreviousWater returns the latest water entry of the lease strictly before
// the given period.
func (s *Store) PreviousWater(ctx context.Context, leaseID uint, month, year int) (*models.WaterCharge, error) {
	var c models.WaterCharge
	err := s.db.WithContext(ctx).
		Where("lease_id = ? AND (year < ? OR (year = ? AND month < ?))", leaseID, year, year, month).
		Order("year DESC, month DESC").
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "previous water charge")
	}
	return &c, nil
}

func (s *Store) DepositForLease(ctx context.Context, leaseID uint) (*models.DepositCharge, error) {
	var c models.DepositCharge
	if err := s.db.WithContext(ctx).Where("lease_id = ?", leaseID).First(&c).Error; err != nil {
		return nil, notFound(err, "deposit charge")
	}
	return &c, nil
}

// UnsettledRent lists rent entries that are not paid, for the reminder check.
func (s *Store) UnsettledRent(ctx context.Context) ([]models.RentCharge, error) {
	var out []models.RentCharge
	err := s.db.WithContext(ctx).Where("status <> ?", models.ChargePaid).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) UnsettledWater(ctx context.Context) ([]models.WaterCharge, error) {
	var out []models.WaterCharge
	err := s.db.WithContext(ctx).Where("status <> ?", models.ChargePaid).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) UnpaidDeposits(ctx context.Context) ([]models.DepositCharge, error) {
	var out []models.DepositCharge
	err := s.db.WithContext(ctx).Where("status = ? AND reminder_sent = ?", models.ChargeUnpaid, false).Order("id").Find(&out).Error
	return out, err
}

// Save writes every column of a ledger entry.
func (s *Store) Save(ctx context.Context, entry interface{}) error {
	if err := s.db.WithContext(ctx).Save(entry).Error; err != nil {
		return fmt.Errorf("failed to save %T: %w", entry, err)
	}
	return nil
}

// CreateIfAbsent inserts entry unless a row with the same unique period
// already exists. It reports whether a row was inserted.
func (s *Store) CreateIfAbsent(ctx context.Context, entry interface{}) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create %T: %w", entry, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CreateChargePayment(ctx context.Context, cp *models.ChargePayment) error {
	if err := s.db.WithContext(ctx).Create(cp).Error; err != nil {
		return fmt.Errorf("failed to record charge payment: %w", err)
	}
	return nil
}

func (s *Store) ChargePayments(ctx context.Context, ref models.ChargeRef) ([]models.ChargePayment, error) {
	var out []models.ChargePayment
	err := s.db.WithContext(ctx).Where("charge_type = ? AND charge_id = ?", ref.Type, ref.ID).Order("id").Find(&out).Error
	return out, err
}
