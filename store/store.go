// Package store is the gorm data access layer shared by the ledgers and the
// reconciliation engine.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/rentpay/errs"
	"github.com/yourusername/rentpay/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errs.New(errs.KindNotFound, "record not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle, bound to the current transaction when
// called inside Tx.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Tx runs fn in a database transaction. Every query fn issues must go through
// the Store it is handed.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// ---- payment requests ----

func (s *Store) CreatePaymentRequest(ctx context.Context, p *models.PaymentRequest) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (s *Store) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	err := s.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&p).Error
	if err != nil {
		return nil, notFound(err, "payment request "+checkoutRequestID)
	}
	return &p, nil
}

func (s *Store) FindByReceipt(ctx context.Context, receipt string) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	err := s.db.WithContext(ctx).Where("provider_receipt = ?", receipt).First(&p).Error
	if err != nil {
		return nil, notFound(err, "payment receipt "+receipt)
	}
	return &p, nil
}

// TransitionIfPending moves the request keyed by checkoutRequestID out of
// pending in a single conditional UPDATE. It reports false when the row was
// not pending (or does not exist), in which case nothing was written.
func (s *Store) TransitionIfPending(ctx context.Context, checkoutRequestID string, to models.PaymentStatus, fields map[string]interface{}) (bool, error) {
	if !to.IsTerminal() {
		return false, errs.New(errs.KindInvariant, fmt.Sprintf("cannot transition to non-terminal status %q", to))
	}
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	res := s.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("checkout_request_id = ? AND status = ?", checkoutRequestID, models.PaymentPending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition payment request: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// InsertDirectPayment stores a paybill payment keyed by its provider receipt.
// It reports false, without error, when the receipt was already recorded.
func (s *Store) InsertDirectPayment(ctx context.Context, p *models.PaymentRequest) (bool, error) {
	if p.ProviderReceipt == nil || *p.ProviderReceipt == "" {
		return false, errs.New(errs.KindValidation, "direct payment needs a provider receipt")
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider_receipt"}}, DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert direct payment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ---- leases and people ----

func (s *Store) ActiveLeaseForTenant(ctx context.Context, tenantID uint) (*models.Lease, error) {
	var lease models.Lease
	err := s.db.WithContext(ctx).
		Preload("Property").
		Where("tenant_id = ? AND status = ?", tenantID, models.LeaseActive).
		Order("start_date DESC").
		First(&lease).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("active lease for tenant %d", tenantID))
	}
	return &lease, nil
}

// ActiveLeaseForBillerRoom finds the active lease in room across the
// properties a biller collects for: the configured propertyID, if any, and
// every property whose biller_shortcode is shortcode.
func (s *Store) ActiveLeaseForBillerRoom(ctx context.Context, shortcode string, propertyID uint, room int) (*models.Lease, error) {
	db := s.db.WithContext(ctx)
	properties := db.Model(&models.Property{}).Select("id").Where("biller_shortcode = ? OR id = ?", shortcode, propertyID)

	var lease models.Lease
	err := db.Preload("Property").
		Where("property_id IN (?) AND room_number = ? AND status = ?", properties, room, models.LeaseActive).
		Order("start_date DESC").
		First(&lease).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("active lease for room %d of biller %s", room, shortcode))
	}
	return &lease, nil
}

func (s *Store) ActiveLeases(ctx context.Context) ([]models.Lease, error) {
	var leases []models.Lease
	err := s.db.WithContext(ctx).Where("status = ?", models.LeaseActive).Order("id").Find(&leases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active leases: %w", err)
	}
	return leases, nil
}

func (s *Store) GetLease(ctx context.Context, id uint) (*models.Lease, error) {
	var lease models.Lease
	if err := s.db.WithContext(ctx).Preload("Property").First(&lease, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("lease %d", id))
	}
	return &lease, nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("user %d", id))
	}
	return &user, nil
}

// StaffForProperty returns the active caretakers and admins assigned to
// propertyID, plus admins with no assignment.
func (s *Store) StaffForProperty(ctx context.Context, propertyID uint) ([]models.User, error) {
	var staff []models.User
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where(s.db.Where("role IN ? AND property_id = ?", []string{models.RoleCaretaker, models.RoleAdmin}, propertyID).
			Or("role = ? AND property_id IS NULL", models.RoleAdmin)).
		Order("id").
		Find(&staff).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return staff, nil
}

// ---- audit ----

func (s *Store) RecordEvent(ctx context.Context, ev *models.CallbackEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to record callback event: %w", err)
	}
	return nil
}

func (s *Store) SetEventOutcome(ctx context.Context, id uint, outcome string) error {
	return s.db.WithContext(ctx).Model(&models.CallbackEvent{}).Where("id = ?", id).Update("outcome", outcome).Error
}
