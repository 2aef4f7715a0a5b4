package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "254712345678", want: "254712345678"},
		{in: "+254712345678", want: "254712345678"},
		{in: "0712345678", want: "254712345678"},
		{in: "0112 345-678", want: "254112345678"},
		{in: "712345678", want: "254712345678"},
		{in: "(0712) 345678", want: "254712345678"},
		{in: "", wantErr: true},
		{in: "0812345678", wantErr: true},
		{in: "25471234567", wantErr: true},
		{in: "2547123456789", wantErr: true},
		{in: "07123abc78", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhoneFormat)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
