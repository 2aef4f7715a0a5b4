package mpesa

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/errs"
)

var ErrMalformedCallback = errs.New(errs.KindValidation, "malformed payment callback")

// Provider timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

// Callback is the typed form of an STK push result delivery. Metadata fields
// are optional and only present on success.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	Amount          *decimal.Decimal
	ReceiptNumber   string
	TransactionDate *time.Time
	PhoneNumber     string

	// Metadata keeps every name/value item verbatim, including unknown ones.
	Metadata map[string]string
}

type callbackEnvelope struct {
	Body struct {
		STKCallback *struct {
			MerchantRequestID string   `json:"MerchantRequestID"`
			CheckoutRequestID string   `json:"CheckoutRequestID"`
			ResultCode        *flexInt `json:"ResultCode"`
			ResultDesc        string   `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []callbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type callbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseCallback decodes the provider's loosely typed callback. The checkout
// request id and the result code are mandatory; metadata items may be missing,
// reordered or carry unknown names.
func ParseCallback(raw []byte) (*Callback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Wrap(errs.KindValidation, "mpesa.ParseCallback", ErrMalformedCallback)
	}
	stk := env.Body.STKCallback
	if stk == nil || strings.TrimSpace(stk.CheckoutRequestID) == "" || stk.ResultCode == nil {
		return nil, ErrMalformedCallback
	}

	cb := &Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: strings.TrimSpace(stk.CheckoutRequestID),
		ResultCode:        int(*stk.ResultCode),
		ResultDesc:        stk.ResultDesc,
		Metadata:          map[string]string{},
	}
	if stk.CallbackMetadata == nil {
		return cb, nil
	}

	for _, item := range stk.CallbackMetadata.Item {
		value := rawScalar(item.Value)
		cb.Metadata[item.Name] = value
		switch item.Name {
		case "Amount":
			if amt, err := decimal.NewFromString(value); err == nil {
				cb.Amount = &amt
			}
		case "MpesaReceiptNumber":
			cb.ReceiptNumber = value
		case "PhoneNumber":
			if p, err := NormalizePhone(value); err == nil {
				cb.PhoneNumber = p
			} else {
				cb.PhoneNumber = value
			}
		case "TransactionDate":
			if ts, err := time.ParseInLocation("20060102150405", value, eat); err == nil {
				cb.TransactionDate = &ts
			}
		}
	}
	return cb, nil
}

// Succeeded reports a result code of 0.
func (c *Callback) Succeeded() bool {
	return c.ResultCode == 0
}

// rawScalar renders a JSON number or string without float conversion, so
// 12-digit phone numbers survive intact.
func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(raw)
}

// flexInt accepts 0, "0" and 0.0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := rawScalar(b)
	if s == "" {
		return ErrMalformedCallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexInt(int(v))
	return nil
}
