package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAccountReference(t *testing.T) {
	tests := []struct {
		ref        string
		wantPrefix string
		wantRoom   int
		wantErr    bool
	}{
		{ref: "JOYCE007", wantPrefix: "JOYCE", wantRoom: 7},
		{ref: "LAWRENCE011", wantPrefix: "LAWRENCE", wantRoom: 11},
		{ref: " joyce12 ", wantPrefix: "JOYCE", wantRoom: 12},
		{ref: "ROOM9", wantErr: true},
		{ref: "JOYCE", wantErr: true},
		{ref: "JOYCE000", wantErr: true},
		{ref: "TOOLONGPREFIX1", wantErr: true},
		{ref: "JOY-CE01", wantErr: true},
		{ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			prefix, room, err := ParseAccountReference(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAccountReference)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, prefix)
			assert.Equal(t, tt.wantRoom, room)
		})
	}
}

func TestFormatAccountReference(t *testing.T) {
	assert.Equal(t, "JOYCE007", FormatAccountReference("joyce", 7))
	assert.Equal(t, "LAWRENCE011", FormatAccountReference("LAWRENCE", 11))
	assert.Equal(t, "JOYCE1204", FormatAccountReference("JOYCE", 1204))

	prefix, room, err := ParseAccountReference(FormatAccountReference("JOYCE", 42))
	assert.NoError(t, err)
	assert.Equal(t, "JOYCE", prefix)
	assert.Equal(t, 42, room)
}

func TestPeriods(t *testing.T) {
	assert.NoError(t, ValidatePeriod(3, 2026))
	assert.ErrorIs(t, ValidatePeriod(13, 2026), ErrInvalidPeriod)
	assert.ErrorIs(t, ValidatePeriod(0, 2026), ErrInvalidPeriod)
	assert.ErrorIs(t, ValidatePeriod(1, 1999), ErrInvalidPeriod)

	eat := time.FixedZone("EAT", 3*60*60)
	m, y := CurrentPeriod(time.Date(2026, 12, 31, 22, 0, 0, 0, time.UTC), eat)
	assert.Equal(t, 1, m)
	assert.Equal(t, 2027, y)

	assert.Equal(t, "March 2026", PeriodLabel(3, 2026))
}
