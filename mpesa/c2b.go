package mpesa

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result codes a paybill validation/confirmation endpoint may answer with.
const (
	C2BAccepted             = "0"
	C2BInvalidMSISDN        = "C2B00011"
	C2BInvalidAccountNumber = "C2B00012"
	C2BInvalidAmount        = "C2B00013"
	C2BInvalidShortcode     = "C2B00015"
	C2BOtherError           = "C2B00016"
)

// C2BPayload is a direct-to-paybill payment notification.
type C2BPayload struct {
	TransactionType   string          `json:"TransactionType"`
	TransID           string          `json:"TransID"`
	TransTime         string          `json:"TransTime"`
	TransAmount       decimal.Decimal `json:"TransAmount"`
	BusinessShortCode string          `json:"BusinessShortCode"`
	BillRefNumber     string          `json:"BillRefNumber"`
	InvoiceNumber     string          `json:"InvoiceNumber"`
	OrgAccountBalance string          `json:"OrgAccountBalance"`
	ThirdPartyTransID string          `json:"ThirdPartyTransID"`
	MSISDN            string          `json:"MSISDN"`
	FirstName         string          `json:"FirstName"`
	MiddleName        string          `json:"MiddleName"`
	LastName          string          `json:"LastName"`
}

// PaidAt parses TransTime, falling back to fallback when absent or garbled.
func (p C2BPayload) PaidAt(fallback time.Time) time.Time {
	if ts, err := time.ParseInLocation("20060102150405", p.TransTime, eat); err == nil {
		return ts
	}
	return fallback
}

// C2BResponse is the acknowledgement body. The HTTP status is always 200;
// rejection travels in ResultCode.
type C2BResponse struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func AcceptC2B() C2BResponse {
	return C2BResponse{ResultCode: C2BAccepted, ResultDesc: "Accepted"}
}

func RejectC2B(code string) C2BResponse {
	return C2BResponse{ResultCode: code, ResultDesc: "Rejected"}
}

// CallbackAck is the body the provider expects back from the STK callback URL.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func AcceptCallback() CallbackAck {
	return CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}
}
