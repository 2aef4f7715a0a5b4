package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yourusername/rentpay/errs"
)

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	// Returned with HTTP 500 by the query API while the payer has not answered yet.
	queryStillProcessingCode = "500.001.1001"
)

// Result codes with reconciliation meaning.
const (
	ResultSuccess         = 0
	ResultInsufficient    = 1
	ResultCancelledByUser = 1032
	ResultTimeout         = 1037
)

// GatewayError is a non-success answer from the provider.
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mpesa api error (http %d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("mpesa api error (http %d): %s", e.StatusCode, e.Message)
}

// ClientConfig configures the gateway client.
type ClientConfig struct {
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration
}

// Client talks to the mobile-money API on behalf of any configured biller.
type Client struct {
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	router      *Router
	tokens      TokenCache
	logger      zerolog.Logger
	now         func() time.Time
}

func NewClient(cfg ClientConfig, router *Router, tokens TokenCache, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		callbackURL: cfg.CallbackURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		router: router,
		tokens: tokens,
		logger: logger.With().Str("component", "mpesa_client").Logger(),
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type apiErrorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// GetAccessToken authenticates with the consumer key and secret. It does not
// consult the cache.
func (c *Client) GetAccessToken(ctx context.Context, consumerKey, consumerSecret string) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating token request failed: %w", err)
	}
	req.SetBasicAuth(consumerKey, consumerSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, errs.Wrap(errs.KindGateway, "mpesa.GetAccessToken", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, errs.Wrap(errs.KindGateway, "mpesa.GetAccessToken", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, errs.Wrap(errs.KindGateway, "mpesa.GetAccessToken", parseAPIError(resp.StatusCode, body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", time.Time{}, errs.Wrap(errs.KindGateway, "mpesa.GetAccessToken", &GatewayError{StatusCode: resp.StatusCode, Message: "unreadable token response"})
	}
	ttl, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3599
	}
	return tr.AccessToken, c.now().Add(time.Duration(ttl) * time.Second), nil
}

// accessToken returns the cached token for shortcode, fetching a fresh one on a miss.
func (c *Client) accessToken(ctx context.Context, creds Credentials) (string, error) {
	if token, ok := c.tokens.Get(ctx, creds.Shortcode); ok {
		return token, nil
	}
	token, expiresAt, err := c.GetAccessToken(ctx, creds.ConsumerKey, creds.ConsumerSecret)
	if err != nil {
		return "", err
	}
	c.tokens.Set(ctx, creds.Shortcode, token, expiresAt)
	return token, nil
}

// Password builds base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

func (c *Client) timestamp() string {
	return c.now().In(eat).Format("20060102150405")
}

// PushRequest is an STK push: a payment prompt on the payer's handset.
type PushRequest struct {
	Phone            string
	Amount           decimal.Decimal
	BillerShortcode  string
	AccountReference string
	Description      string
}

// PushResult is the synchronous accept.
type PushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	CustomerMessage   string
	ResponseDesc      string
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiatePush sends an STK push. The phone is normalised first; a malformed
// number never reaches the network.
func (c *Client) InitiatePush(ctx context.Context, req PushRequest) (*PushResult, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, errs.New(errs.KindValidation, "amount must be greater than zero")
	}
	if !req.Amount.IsInteger() {
		return nil, errs.New(errs.KindValidation, "amount must be whole shillings")
	}
	creds, err := c.router.Resolve(req.BillerShortcode)
	if err != nil {
		return nil, err
	}

	ts := c.timestamp()
	body := stkPushBody{
		BusinessShortCode: creds.Shortcode,
		Password:          Password(creds.Shortcode, creds.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:           req.Amount.StringFixed(0),
		PartyA:           phone,
		PartyB:           creds.Shortcode,
		PhoneNumber:      phone,
		CallBackURL:      c.callbackURL,
		AccountReference: truncate(req.AccountReference, 12),
		TransactionDesc:  truncate(req.Description, 13),
	}

	var out stkPushResponse
	status, err := c.doAuthorized(ctx, creds, stkPushPath, body, &out)
	if err != nil {
		return nil, errs.Wrap(errs.KindGateway, "mpesa.InitiatePush", err)
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, errs.Wrap(errs.KindGateway, "mpesa.InitiatePush", &GatewayError{
			StatusCode: status,
			Code:       out.ResponseCode,
			Message:    out.ResponseDescription,
		})
	}

	c.logger.Info().
		Str("checkout_request_id", out.CheckoutRequestID).
		Str("shortcode", creds.Shortcode).
		Str("amount", body.Amount).
		Msg("STK push accepted")

	return &PushResult{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
		CustomerMessage:   out.CustomerMessage,
		ResponseDesc:      out.ResponseDescription,
	}, nil
}

// QueryResult is the provider's view of a push. Processing means the payer
// has not responded yet and there is no result code.
type QueryResult struct {
	ResultCode int
	ResultDesc string
	Processing bool
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string   `json:"ResponseCode"`
	ResponseDescription string   `json:"ResponseDescription"`
	ResultCode          *flexInt `json:"ResultCode"`
	ResultDesc          string   `json:"ResultDesc"`
}

// QueryStatus asks the provider for the outcome of a push. It has no side
// effects on the provider and is safe to repeat.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID, shortcode string) (*QueryResult, error) {
	creds, err := c.router.Resolve(shortcode)
	if err != nil {
		return nil, err
	}

	ts := c.timestamp()
	body := stkQueryBody{
		BusinessShortCode: creds.Shortcode,
		Password:          Password(creds.Shortcode, creds.Passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var out stkQueryResponse
	if _, err := c.doAuthorized(ctx, creds, stkQueryPath, body, &out); err != nil {
		var ge *GatewayError
		if errors.As(err, &ge) && ge.Code == queryStillProcessingCode {
			return &QueryResult{Processing: true, ResultDesc: ge.Message}, nil
		}
		return nil, errs.Wrap(errs.KindGateway, "mpesa.QueryStatus", err)
	}
	if out.ResultCode == nil {
		return &QueryResult{Processing: true, ResultDesc: out.ResponseDescription}, nil
	}
	return &QueryResult{ResultCode: int(*out.ResultCode), ResultDesc: out.ResultDesc}, nil
}

// doAuthorized POSTs body with a bearer token. A 401 drops the cached token
// and the call is retried exactly once with a fresh one.
func (c *Client) doAuthorized(ctx context.Context, creds Credentials, path string, body, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encoding request failed: %w", err)
	}

	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx, creds)
		if err != nil {
			return 0, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return 0, fmt.Errorf("creating request failed: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("HTTP request failed: %w", err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return resp.StatusCode, fmt.Errorf("reading response body failed: %w", readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn().Str("shortcode", creds.Shortcode).Str("path", path).Msg("Access token rejected, refreshing")
			c.tokens.Invalidate(ctx, creds.Shortcode)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("parsing JSON response failed: %w", err)
		}
		return resp.StatusCode, nil
	}
}

func parseAPIError(status int, body []byte) *GatewayError {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.ErrorCode != "" || apiErr.ErrorMessage != "") {
		return &GatewayError{StatusCode: status, Code: apiErr.ErrorCode, Message: apiErr.ErrorMessage}
	}
	return &GatewayError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
