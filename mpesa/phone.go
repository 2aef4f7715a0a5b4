package mpesa

import (
	"regexp"
	"strings"

	"github.com/yourusername/rentpay/errs"
)

var ErrInvalidPhoneFormat = errs.New(errs.KindValidation, "phone number must be a Kenyan mobile number (07XXXXXXXX, 01XXXXXXXX or 254XXXXXXXXX)")

var canonicalPhonePattern = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhone converts local and international spellings to 2547XXXXXXXX
// (or 2541XXXXXXXX), which is the only form the provider accepts.
func NormalizePhone(raw string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	p = strings.TrimPrefix(p, "+")

	switch {
	case strings.HasPrefix(p, "254"):
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case len(p) == 9 && (p[0] == '7' || p[0] == '1'):
		p = "254" + p
	}

	if !canonicalPhonePattern.MatchString(p) {
		return "", ErrInvalidPhoneFormat
	}
	return p, nil
}
