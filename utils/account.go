package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/rentpay/errs"
)

var ErrInvalidAccountReference = errs.New(errs.KindValidation, "account reference must be a 5-8 letter prefix followed by a room number")

var ErrInvalidPeriod = errs.New(errs.KindValidation, "month must be 1-12 and year must be 2000-2100")

var accountReferencePattern = regexp.MustCompile(`^([A-Z]{5,8})(\d{1,6})$`)

// ParseAccountReference splits a paybill account number such as JOYCE007 into
// its prefix and room number. Matching is case-insensitive; leading zeros in
// the room are ignored.
func ParseAccountReference(ref string) (string, int, error) {
	m := accountReferencePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(ref)))
	if m == nil {
		return "", 0, ErrInvalidAccountReference
	}
	room, err := strconv.Atoi(m[2])
	if err != nil || room <= 0 {
		return "", 0, ErrInvalidAccountReference
	}
	return m[1], room, nil
}

// FormatAccountReference is the inverse of ParseAccountReference, with the
// room padded to three digits.
func FormatAccountReference(prefix string, room int) string {
	return fmt.Sprintf("%s%03d", strings.ToUpper(prefix), room)
}

func ValidatePeriod(month, year int) error {
	if month < 1 || month > 12 || year < 2000 || year > 2100 {
		return ErrInvalidPeriod
	}
	return nil
}

// CurrentPeriod returns the billing month and year of now in loc.
func CurrentPeriod(now time.Time, loc *time.Location) (int, int) {
	if loc != nil {
		now = now.In(loc)
	}
	return int(now.Month()), now.Year()
}

// PeriodLabel renders a period for people, e.g. "March 2026".
func PeriodLabel(month, year int) string {
	return fmt.Sprintf("%s %d", time.Month(month), year)
}
