package previewclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/preview"
	"github.com/noah-isme/backend-billing/internal/previewclient"
	"github.com/noah-isme/backend-billing/internal/pricing"
	"github.com/noah-isme/backend-billing/internal/resilience"
)

var _ preview.Engine = (*previewclient.Client)(nil)

func request() pricing.Request {
	return pricing.Request{
		Items:  []pricing.LineItem{{ItemID: 1, Quantity: decimal.NewFromInt(20), Rate: decimal.NewFromInt(800)}},
		Extras: pricing.Extras{Transportation: decimal.NewFromInt(300)},
	}
}

func TestCalculateDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/sales/bills/calculate", r.URL.Path)
		var body billing.CalculateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Items, 1)
		require.True(t, decimal.NewFromInt(300).Equal(*body.Transportation))

		res := pricing.NewEngine(pricing.DefaultTaxBps).Calculate(body.PricingRequest())
		common.JSON(w, http.StatusOK, map[string]any{"data": billing.NewCalculationResponse(billing.KindSales, res)})
	}))
	defer srv.Close()

	c, err := previewclient.New(previewclient.Config{BaseURL: srv.URL + "/", Kind: billing.KindSales})
	require.NoError(t, err)
	res, err := c.Calculate(context.Background(), request())
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(16000).Equal(res.TaxableAmount))
	require.True(t, decimal.NewFromInt(2880).Equal(res.GST))
	require.True(t, decimal.NewFromInt(19180).Equal(res.GrandTotal))
	require.True(t, decimal.NewFromInt(19180).Equal(res.Subtotal))
}

func TestCalculateReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid payload", nil)
	}))
	defer srv.Close()

	c, err := previewclient.New(previewclient.Config{BaseURL: srv.URL, Kind: billing.KindPurchase})
	require.NoError(t, err)
	_, err = c.Calculate(context.Background(), request())
	var apiErr *previewclient.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "VALIDATION_ERROR", apiErr.Body.Code)
}

func TestCalculateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		res := pricing.Compute(nil, pricing.Extras{})
		common.JSON(w, http.StatusOK, map[string]any{"data": billing.NewCalculationResponse(billing.KindPurchase, res)})
	}))
	defer srv.Close()

	c, err := previewclient.New(previewclient.Config{
		BaseURL:     srv.URL,
		Kind:        billing.KindPurchase,
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
		Breaker:     resilience.NewBreaker(10, 0.9, time.Second),
	})
	require.NoError(t, err)
	res, err := c.Calculate(context.Background(), request())
	require.NoError(t, err)
	require.True(t, res.IsZero())
	require.Equal(t, int32(2), calls.Load())
}

func TestCalculateMissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		common.JSON(w, http.StatusOK, map[string]any{})
	}))
	defer srv.Close()

	c, err := previewclient.New(previewclient.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Calculate(context.Background(), request())
	require.Error(t, err)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := previewclient.New(previewclient.Config{})
	require.Error(t, err)
}

func TestSessionOverRemoteEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body billing.CalculateRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		res := pricing.NewEngine(pricing.DefaultTaxBps).Calculate(body.PricingRequest())
		common.JSON(w, http.StatusOK, map[string]any{"data": billing.NewCalculationResponse(billing.KindSales, res)})
	}))
	defer srv.Close()

	c, err := previewclient.New(previewclient.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	s := preview.NewSession(preview.Config{Engine: c})
	defer s.Close()

	s.SetItems(request().Items)
	s.SetTransportation(decimal.NewFromInt(300))
	s.Flush(context.Background())

	st := s.State()
	require.False(t, st.Calculating)
	require.NotNil(t, st.Preview)
	require.True(t, decimal.NewFromInt(19180).Equal(st.Preview.GrandTotal))
}

func TestSupersededCallsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body billing.CalculateRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		select {
		case <-r.Context().Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
		res := pricing.NewEngine(pricing.DefaultTaxBps).Calculate(body.PricingRequest())
		common.JSON(w, http.StatusOK, map[string]any{"data": billing.NewCalculationResponse(billing.KindSales, res)})
	}))
	defer srv.Close()

	c, err := previewclient.New(previewclient.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := c.Calculate(ctx, request())
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}

	res, err := c.Calculate(context.Background(), request())
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(19180).Equal(res.GrandTotal))
}
