package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")
	sentinel := New(KindConfiguration, "unknown biller shortcode")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", base, KindUnknown},
		{"new", New(KindValidation, "bad phone"), KindValidation},
		{"wrapped by fmt", fmt.Errorf("resolving: %w", sentinel), KindConfiguration},
		{"wrap", Wrap(KindGateway, "mpesa.InitiatePush", base), KindGateway},
		{"outermost wins", Wrap(KindGateway, "op", New(KindValidation, "x")), KindGateway},
		{"kindless wrapper", &Error{Op: "op", Err: New(KindNotFound, "missing")}, KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError(t *testing.T) {
	base := errors.New("timeout")
	err := Wrap(KindGateway, "mpesa.QueryStatus", base)

	assert.Equal(t, "mpesa.QueryStatus: timeout", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, Is(err, KindGateway))
	assert.Nil(t, Wrap(KindGateway, "op", nil))

	withMsg := &Error{Kind: KindInvariant, Msg: "refund exceeds amount paid", Err: base}
	assert.Equal(t, "refund exceeds amount paid: timeout", withMsg.Error())
}
