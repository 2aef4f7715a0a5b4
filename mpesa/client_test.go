package mpesa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/rentpay/errs"
)

func testBillers() []Biller {
	return []Biller{
		{Name: "Joyce Apartments", Shortcode: "174379", ConsumerKey: "key-a", ConsumerSecret: "secret-a", Passkey: "pass-a", AccountPrefix: "JOYCE", PropertyID: 1},
		{Name: "Lawrence Court", Shortcode: "600999", ConsumerKey: "key-b", ConsumerSecret: "secret-b", Passkey: "pass-b", AccountPrefix: "LAWRENCE", PropertyID: 2},
	}
}

type fakeProvider struct {
	tokenCalls  int32
	pushCalls   int32
	rejectFirst int32 // number of authorized calls to answer with 401
	queryReply  func(w http.ResponseWriter)
	lastPush    stkPushBody
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.tokenCalls, 1)
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": user + "-token-" + string(rune('0'+n)),
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc(stkPushPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.pushCalls, 1)
		if atomic.LoadInt32(&f.rejectFirst) > 0 {
			atomic.AddInt32(&f.rejectFirst, -1)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"errorCode": "404.001.04", "errorMessage": "Invalid Access Token"})
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPush))
		json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID":   "29115-34620561-1",
			"CheckoutRequestID":   "ws_CO_191220191020363925",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage":     "Success. Request accepted for processing",
		})
	})
	mux.HandleFunc(stkQueryPath, func(w http.ResponseWriter, r *http.Request) {
		f.queryReply(w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, f *fakeProvider) *Client {
	router, err := NewRouter(testBillers())
	require.NoError(t, err)
	srv := f.server(t)
	now := func() time.Time { return time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC) }
	cache := NewMemoryTokenCache()
	cache.now = now
	c := NewClient(ClientConfig{BaseURL: srv.URL, CallbackURL: "https://example.com/cb", Timeout: 5 * time.Second}, router, cache, zerolog.Nop())
	c.now = now
	return c
}

func TestInitiatePush(t *testing.T) {
	f := &fakeProvider{}
	c := newTestClient(t, f)

	res, err := c.InitiatePush(context.Background(), PushRequest{
		Phone:            "0712 345 678",
		Amount:           decimal.NewFromInt(5000),
		BillerShortcode:  "174379",
		AccountReference: "JOYCE007",
		Description:      "Rent March",
	})
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", res.CheckoutRequestID)
	assert.Equal(t, "254712345678", f.lastPush.PhoneNumber)
	assert.Equal(t, "254712345678", f.lastPush.PartyA)
	assert.Equal(t, "174379", f.lastPush.PartyB)
	assert.Equal(t, "5000", f.lastPush.Amount)
	assert.Equal(t, "20260302090000", f.lastPush.Timestamp)
	assert.Equal(t, Password("174379", "pass-a", "20260302090000"), f.lastPush.Password)
	assert.Equal(t, "https://example.com/cb", f.lastPush.CallBackURL)
}

func TestInitiatePush_ReusesCachedToken(t *testing.T) {
	f := &fakeProvider{}
	c := newTestClient(t, f)
	req := PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(10), BillerShortcode: "174379"}

	for i := 0; i < 3; i++ {
		_, err := c.InitiatePush(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))

	// A second biller has its own token.
	req.BillerShortcode = "600999"
	_, err := c.InitiatePush(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))
}

func TestInitiatePush_RetriesOnceAfter401(t *testing.T) {
	f := &fakeProvider{rejectFirst: 1}
	c := newTestClient(t, f)

	_, err := c.InitiatePush(context.Background(), PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(10), BillerShortcode: "174379"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.pushCalls))
}

func TestInitiatePush_GivesUpAfterSecond401(t *testing.T) {
	f := &fakeProvider{rejectFirst: 5}
	c := newTestClient(t, f)

	_, err := c.InitiatePush(context.Background(), PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(10), BillerShortcode: "174379"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindGateway))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.pushCalls))
}

func TestInitiatePush_LocalValidation(t *testing.T) {
	f := &fakeProvider{}
	c := newTestClient(t, f)

	_, err := c.InitiatePush(context.Background(), PushRequest{Phone: "12345", Amount: decimal.NewFromInt(10), BillerShortcode: "174379"})
	assert.ErrorIs(t, err, ErrInvalidPhoneFormat)

	_, err = c.InitiatePush(context.Background(), PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(10), BillerShortcode: "000000"})
	assert.ErrorIs(t, err, ErrUnknownBiller)
	assert.True(t, errs.Is(err, errs.KindConfiguration))

	_, err = c.InitiatePush(context.Background(), PushRequest{Phone: "254712345678", Amount: decimal.RequireFromString("4999.50"), BillerShortcode: "174379"})
	assert.True(t, errs.Is(err, errs.KindValidation))

	assert.Equal(t, int32(0), atomic.LoadInt32(&f.tokenCalls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.pushCalls))
}

func TestQueryStatus(t *testing.T) {
	tests := []struct {
		name       string
		reply      func(w http.ResponseWriter)
		processing bool
		code       int
	}{
		{
			name: "cancelled",
			reply: func(w http.ResponseWriter) {
				w.Write([]byte(`{"ResponseCode":"0","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`))
			},
			code: ResultCancelledByUser,
		},
		{
			name: "numeric success",
			reply: func(w http.ResponseWriter) {
				w.Write([]byte(`{"ResponseCode":"0","ResultCode":0,"ResultDesc":"The service request is processed successfully."}`))
			},
			code: ResultSuccess,
		},
		{
			name: "still processing",
			reply: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"requestId":"1","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`))
			},
			processing: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{queryReply: tt.reply}
			c := newTestClient(t, f)

			res, err := c.QueryStatus(context.Background(), "ws_CO_1", "174379")
			require.NoError(t, err)
			assert.Equal(t, tt.processing, res.Processing)
			if !tt.processing {
				assert.Equal(t, tt.code, res.ResultCode)
			}
		})
	}
}

func TestQueryStatus_ProviderFailure(t *testing.T) {
	f := &fakeProvider{queryReply: func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorCode":"400.002.02","errorMessage":"Bad Request - Invalid CheckoutRequestID"}`))
	}}
	c := newTestClient(t, f)

	_, err := c.QueryStatus(context.Background(), "nope", "174379")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindGateway))
	assert.Contains(t, err.Error(), "400.002.02")
}
