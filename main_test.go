package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/rentpay/config"
	"github.com/yourusername/rentpay/middleware"
	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/store/storetest"
)

const testBillers = `billers:
  - name: Joyce Apartments
    shortcode: "174379"
    consumer_key: key
    consumer_secret: secret
    passkey: pass
    account_prefix: JOYCE
    property_id: 1
`

func setupTestServer(t *testing.T) (*gin.Engine, *storetest.Fixture, *config.Config) {
	gin.SetMode(gin.TestMode)
	db := storetest.Open(t)
	fixture := storetest.Seed(t, db)

	billersFile := t.TempDir() + "/billers.yaml"
	require.NoError(t, os.WriteFile(billersFile, []byte(testBillers), 0o600))
	cfg := &config.Config{
		JWTSecret:            "test-secret",
		JWTRefreshSecret:     "test-refresh-secret",
		MpesaBaseURL:         "http://127.0.0.1:0",
		MpesaTimeout:         time.Second,
		BillersFile:          billersFile,
		NotificationExchange: "rentpay.notifications",
		RentDueDay:           5,
		ReminderDay:          5,
		OverdueNoticeDays:    3,
	}

	a, err := newApp(cfg, db, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return setupRouter(a), fixture, cfg
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := setupTestServer(t)

	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rentpay_http_requests_total")
}

func TestRouteProtection(t *testing.T) {
	router, fixture, cfg := setupTestServer(t)
	tenantToken, _ := middleware.GenerateToken(fixture.Tenant.ID, models.RoleTenant, cfg.JWTSecret, time.Hour)
	staffToken, _ := middleware.GenerateToken(fixture.Caretaker.ID, models.RoleCaretaker, cfg.JWTSecret, time.Hour)

	tests := []struct {
		name           string
		method         string
		path           string
		token          string
		body           string
		expectedStatus int
	}{
		{"Callback Needs No Token", "POST", "/api/v1/payments/callback", "", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_x","ResultCode":1032}}}`, http.StatusOK},
		{"C2B Needs No Token", "POST", "/api/v1/payments/c2b/validation", "", `{"TransID":"Q1","TransAmount":"10","BillRefNumber":"ROOM9"}`, http.StatusOK},
		{"Push Needs Token", "POST", "/api/v1/payments/stk-push", "", `{}`, http.StatusUnauthorized},
		{"Tenant Cannot Generate", "POST", "/api/v1/charges/generate", tenantToken, `{"month":3,"year":2026}`, http.StatusForbidden},
		{"Caretaker Generates", "POST", "/api/v1/charges/generate", staffToken, `{"month":3,"year":2026}`, http.StatusOK},
		{"Tenant Cannot Record Payment", "POST", "/api/v1/charges/rent/1/payments", tenantToken, `{"amount":"10"}`, http.StatusForbidden},
		{"Tenant Reads Own Charge", "GET", "/api/v1/charges/rent/1", tenantToken, "", http.StatusOK},
		{"Unknown Poll Key", "GET", "/api/v1/payments/status/ws_CO_none", tenantToken, "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestRefreshToken(t *testing.T) {
	router, fixture, cfg := setupTestServer(t)
	refresh, _ := middleware.GenerateToken(fixture.Tenant.ID, models.RoleTenant, cfg.JWTRefreshSecret, time.Hour)
	access, _ := middleware.GenerateToken(fixture.Tenant.ID, models.RoleTenant, cfg.JWTSecret, time.Hour)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/auth/refresh", bytes.NewBufferString(`{"refresh_token":"`+refresh+`"}`))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")

	// An access token is signed with the other secret.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/v1/auth/refresh", bytes.NewBufferString(`{"refresh_token":"`+access+`"}`))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
