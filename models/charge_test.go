package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testLease() Lease {
	return Lease{
		ID:            1,
		TenantID:      10,
		PropertyID:    100,
		RoomNumber:    7,
		MonthlyRent:   d(5000),
		DepositAmount: d(10000),
		WaterRate:     d(150),
		StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPeriodicStatus(t *testing.T) {
	due := time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC)
	before := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	after := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		required int64
		paid     int64
		now      time.Time
		expected string
	}{
		{"unpaid before due", 5000, 0, before, ChargeUnpaid},
		{"partial before due", 5000, 2000, before, ChargePartiallyPaid},
		{"paid before due", 5000, 5000, before, ChargePaid},
		{"unpaid after due", 5000, 0, after, ChargeOverdue},
		{"partial after due", 5000, 2000, after, ChargeOverdue},
		{"paid wins over overdue", 5000, 5000, after, ChargePaid},
		{"nothing required", 0, 0, after, ChargePaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := PeriodicStatus(d(tt.required), d(tt.paid), due, tt.now)
			assert.Equal(t, tt.expected, status.String())
			// Same inputs, same answer.
			assert.Equal(t, status, PeriodicStatus(d(tt.required), d(tt.paid), due, tt.now))
		})
	}
}

func TestDepositStatus(t *testing.T) {
	tests := []struct {
		name                     string
		required, paid, refunded int64
		expected                 string
	}{
		{"unpaid", 10000, 0, 0, ChargeUnpaid},
		{"partial payment is still unpaid", 10000, 4000, 0, ChargeUnpaid},
		{"paid", 10000, 10000, 0, ChargePaid},
		{"partially refunded", 10000, 10000, 3000, ChargePartiallyRefunded},
		{"fully refunded", 10000, 10000, 10000, ChargeRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DepositStatus(d(tt.required), d(tt.paid), d(tt.refunded)).String())
		})
	}
}

func TestRentCharge_Overpayment(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := NewRentCharge(testLease(), 3, 2026, 5, now)
	require.Equal(t, ChargeUnpaid, c.Status.String())

	applied, err := c.ApplyPayment(d(6500), now)
	require.NoError(t, err)

	assert.True(t, applied.Equal(d(5000)))
	assert.True(t, c.AmountPaid.Equal(d(5000)))
	assert.True(t, c.Balance.IsZero())
	assert.Equal(t, ChargePaid, c.Status.String())
	assert.NotNil(t, c.PaidAt)
}

func TestRentCharge_PaidStaysPaidAfterDueDate(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := NewRentCharge(testLease(), 3, 2026, 5, now)
	_, err := c.ApplyPayment(d(5000), now)
	require.NoError(t, err)

	c.Recompute(time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, ChargePaid, c.Status.String())
}

func TestRentCharge_RejectsNonPositiveAmounts(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := NewRentCharge(testLease(), 3, 2026, 5, now)

	for _, amount := range []int64{0, -100} {
		_, err := c.ApplyPayment(d(amount), now)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.True(t, c.AmountPaid.IsZero())
	assert.Equal(t, ChargeUnpaid, c.Status.String())
}

func TestRentCharge_BalanceNeverNegative(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := NewRentCharge(testLease(), 3, 2026, 5, now)

	for _, amount := range []int64{1000, 3000, 2500, 700, 10} {
		_, err := c.ApplyPayment(d(amount), now)
		require.NoError(t, err)
		assert.False(t, c.Balance.IsNegative())
		assert.True(t, c.AmountPaid.LessThanOrEqual(c.AmountRequired))
	}
	assert.Equal(t, ChargePaid, c.Status.String())
}

func TestRentCharge_ReminderEligibility(t *testing.T) {
	policy := ReminderPolicy{ReminderDay: 5, OverdueAfterDays: 3}
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewRentCharge(testLease(), 3, 2026, 5, created)

	t.Run("before reminder day", func(t *testing.T) {
		assert.False(t, c.Eligible(NotifyRentDueReminder, time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC), policy))
	})

	reminderDay := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	t.Run("check does not mark sent", func(t *testing.T) {
		assert.True(t, c.Eligible(NotifyRentDueReminder, reminderDay, policy))
		assert.True(t, c.Eligible(NotifyRentDueReminder, reminderDay, policy))
		assert.False(t, c.DueReminderSent)
	})

	t.Run("mark sent disables kind", func(t *testing.T) {
		c.MarkSent(NotifyRentDueReminder)
		assert.False(t, c.Eligible(NotifyRentDueReminder, reminderDay, policy))
		c.Recompute(reminderDay)
		assert.True(t, c.DueReminderSent)
	})

	t.Run("other month", func(t *testing.T) {
		other := NewRentCharge(testLease(), 3, 2026, 5, created)
		assert.False(t, other.Eligible(NotifyRentDueReminder, time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC), policy))
	})

	t.Run("overdue needs grace days", func(t *testing.T) {
		assert.False(t, c.Eligible(NotifyRentOverdue, time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC), policy))
		assert.True(t, c.Eligible(NotifyRentOverdue, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), policy))
	})

	t.Run("paid entries get nothing", func(t *testing.T) {
		paid := NewRentCharge(testLease(), 3, 2026, 5, created)
		_, err := paid.ApplyPayment(d(5000), created)
		require.NoError(t, err)
		assert.False(t, paid.Eligible(NotifyRentDueReminder, reminderDay, policy))
		assert.False(t, paid.Eligible(NotifyRentOverdue, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), policy))
	})
}

func TestWaterCharge_SetReadings(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("consumption", func(t *testing.T) {
		c := NewWaterCharge(testLease(), 3, 2026, 5, now)
		require.NoError(t, c.SetReadings(d(100), d(112), d(150), now))
		assert.True(t, c.UnitsConsumed.Equal(d(12)))
		assert.True(t, c.AmountRequired.Equal(d(1800)))
		assert.Equal(t, ChargeUnpaid, c.Status.String())
	})

	t.Run("regressed meter clamps to zero", func(t *testing.T) {
		c := NewWaterCharge(testLease(), 3, 2026, 5, now)
		require.NoError(t, c.SetReadings(d(100), d(60), d(150), now))
		assert.True(t, c.UnitsConsumed.IsZero())
		assert.True(t, c.AmountRequired.IsZero())
		assert.True(t, c.Balance.IsZero())
	})

	t.Run("downward revision clamps paid", func(t *testing.T) {
		c := NewWaterCharge(testLease(), 3, 2026, 5, now)
		require.NoError(t, c.SetReadings(d(100), d(120), d(100), now))
		_, err := c.ApplyPayment(d(2000), now)
		require.NoError(t, err)
		require.NoError(t, c.SetReadings(d(100), d(110), d(100), now))
		assert.True(t, c.AmountPaid.Equal(d(1000)))
		assert.True(t, c.Balance.IsZero())
		assert.Equal(t, ChargePaid, c.Status.String())
	})

	t.Run("negative reading rejected", func(t *testing.T) {
		c := NewWaterCharge(testLease(), 3, 2026, 5, now)
		err := c.SetReadings(d(-1), d(10), d(150), now)
		assert.ErrorIs(t, err, ErrInvalidReading)
		assert.True(t, c.CurrentReading.IsZero())
	})
}

func TestDepositCharge_Refunds(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewDepositCharge(testLease())
	require.Equal(t, ChargeUnpaid, c.Status.String())

	_, err := c.ApplyPayment(d(12000), now)
	require.NoError(t, err)
	assert.True(t, c.AmountPaid.Equal(d(10000)))
	assert.Equal(t, ChargePaid, c.Status.String())
	assert.True(t, c.Balance.IsZero())

	require.NoError(t, c.ApplyRefund(d(4000), now))
	assert.Equal(t, ChargePartiallyRefunded, c.Status.String())
	assert.True(t, c.Balance.Equal(d(4000)))

	assert.ErrorIs(t, c.ApplyRefund(d(7000), now), ErrRefundExceedsPaid)
	assert.True(t, c.RefundedAmount.Equal(d(4000)))

	require.NoError(t, c.ApplyRefund(d(6000), now))
	assert.Equal(t, ChargeRefunded, c.Status.String())
	assert.True(t, c.Balance.Equal(d(10000)))
}

func TestChargeStatus_Scan(t *testing.T) {
	var s ChargeStatus
	require.NoError(t, s.Scan([]byte("overdue")))
	assert.True(t, s.Is(ChargeOverdue))

	assert.Error(t, s.Scan("settled"))

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"overdue"`, string(b))
}

func TestDueDateFor_ClampsToMonthEnd(t *testing.T) {
	due := DueDateFor(2, 2026, 31, time.UTC)
	assert.Equal(t, 28, due.Day())
	assert.Equal(t, time.February, due.Month())
}
