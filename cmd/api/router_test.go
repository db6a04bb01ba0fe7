package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/app"
	"github.com/noah-isme/backend-billing/internal/config"
)

func testServer(t *testing.T, env map[string]string) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	base := map[string]string{
		"DATABASE_URL":    "",
		"DB_AUTO_MIGRATE": "false",
		"REDIS_URL":       "redis://" + mr.Addr(),
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadForTests(base)
	require.NoError(t, err)
	deps, err := app.Build(context.Background(), cfg, zerolog.Nop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	return newRouter(deps, routerOptions{
		Logger:           zerolog.Nop(),
		MetricsNamespace: "billing_test",
		MetricsEnabled:   true,
		MetricsRegistry:  prometheus.NewRegistry(),
		SecurityHeaders:  true,
	})
}

func send(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterCalculatePreview(t *testing.T) {
	h := testServer(t, nil)
	rec := send(h, http.MethodPost, "/api/v1/sales/bills/calculate",
		`{"items":[{"itemId":3,"quantity":"2","rate":"250"}],"transportation":"100"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"grandTotal":690.00`)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRouterCreateIsIdempotent(t *testing.T) {
	h := testServer(t, nil)
	body := `{"billDate":"2024-04-10","salesPartyId":7,"modeOfPayment":"CASH","items":[{"itemId":1,"quantity":"1","rate":"100"}]}`
	headers := map[string]string{"Idempotency-Key": "order-1"}

	first := send(h, http.MethodPost, "/api/v1/sales/bills", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := send(h, http.MethodPost, "/api/v1/sales/bills", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())

	list := send(h, http.MethodGet, "/api/v1/sales/bills", "", nil)
	require.Equal(t, http.StatusOK, list.Code)
	require.Equal(t, "1", list.Header().Get("X-Total-Count"))

	var out struct {
		Data []struct {
			BillNumber string `json:"billNumber"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &out))
	require.Len(t, out.Data, 1)
	require.Equal(t, "SB/2024/00001", out.Data[0].BillNumber)
}

func TestRouterCalculateRateLimited(t *testing.T) {
	h := testServer(t, map[string]string{"RATE_LIMIT_CALCULATE_PER_MIN": "2"})
	payload := `{"items":[{"itemId":1,"quantity":"1","rate":"1"}]}`
	for range 2 {
		rec := send(h, http.MethodPost, "/api/v1/sales/bills/calculate", payload, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := send(h, http.MethodPost, "/api/v1/sales/bills/calculate", payload, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestRouterBodyLimit(t *testing.T) {
	h := testServer(t, map[string]string{"BODY_LIMIT_BYTES": "16"})
	rec := send(h, http.MethodPost, "/api/v1/purchase/bills/calculate",
		`{"items":[{"description":"Cement","quantity":"1","rate":"1"}]}`, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouterHealthAndFallbacks(t *testing.T) {
	h := testServer(t, nil)

	live := send(h, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, live.Code)

	ready := send(h, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, ready.Code)
	require.Contains(t, ready.Body.String(), `"redis":"ok"`)

	missing := send(h, http.MethodGet, "/api/v1/unknown", "", nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Contains(t, missing.Body.String(), `"NOT_FOUND"`)
}

func TestRouterCORSPreflight(t *testing.T) {
	h := testServer(t, map[string]string{"CORS_ALLOWED_ORIGINS": "https://app.example.com"})
	rec := send(h, http.MethodOptions, "/api/v1/sales/bills", "", map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Idempotency-Key",
	})
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterLedgerAndDashboard(t *testing.T) {
	h := testServer(t, nil)
	rec := send(h, http.MethodPost, "/api/v1/purchase/bills",
		`{"billNumber":"V-9","billDate":"2024-03-10","partyId":3,"items":[{"description":"Cement","quantity":"10","rate":"500"}]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = send(h, http.MethodPost, "/api/v1/purchase/payments",
		`{"partyId":3,"paymentDate":"2024-03-15","amount":"2000","modeOfPayment":"NEFT"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = send(h, http.MethodGet, "/api/v1/ledger/purchase/party/3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"closingBalance":3900.00`)

	rec = send(h, http.MethodGet, "/api/v1/dashboard/purchase/pending-payments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pendingAmount":3900.00`)

	rec = send(h, http.MethodGet, "/api/v1/dashboard/summary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalPurchases":5900.00`)

	rec = send(h, http.MethodGet, "/api/v1/ledger/sales/party/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
