package ledger_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/ledger"
)

func newRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t, false)
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		(&ledger.Handler{
			Svc: f.ledger,
			Now: func() time.Time { return time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC) },
		}).Register(r)
	})
	return r, f
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPartyLedgerEndpoint(t *testing.T) {
	h, f := newRouter(t)
	f.sale(t, 7, "2024-03-02", "10", "500") // 5900
	f.pay(t, billing.KindSales, 7, "2024-03-05", "900")

	rec := get(t, h, "/api/v1/ledger/sales/party/7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data ledger.PartyLedgerResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Transactions, 2)
	require.Equal(t, "SB/2024/00001", body.Data.Transactions[0].Reference)
	require.Equal(t, "2024-03-05", body.Data.Transactions[1].Date)
	require.Equal(t, "900.00", body.Data.Transactions[1].Credit.String())
	require.Equal(t, "5000.00", body.Data.ClosingBalance.String())

	rec = get(t, h, "/api/v1/ledger/sales/party/7/outstanding")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outstanding":5000.00`)

	rec = get(t, h, "/api/v1/ledger/sales/all")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"balance":5000.00`)

	rec = get(t, h, "/api/v1/ledger/sales/party/0")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardEndpoints(t *testing.T) {
	h, f := newRouter(t)
	f.purchase(t, "V-1", 3, "2024-03-10", "10", "100") // 1180
	f.purchase(t, "V-2", 4, "2024-01-10", "1", "100")  // 118
	f.pay(t, billing.KindPurchase, 3, "2024-03-11", "180")

	rec := get(t, h, "/api/v1/dashboard/purchase/monthly-total")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, `{"data":{"year":2024,"month":3,"totalAmount":1180.00,"billCount":1}}`, rec.Body.String())

	rec = get(t, h, "/api/v1/dashboard/purchase/yearly-trend?year=2024")
	require.Equal(t, http.StatusOK, rec.Code)
	var trend struct {
		Data ledger.YearlyTrendResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trend))
	require.Len(t, trend.Data.MonthlyData, 12)
	require.Equal(t, "118.00", trend.Data.MonthlyData[0].Total.String())

	for _, path := range []string{"/api/v1/dashboard/purchase/top-parties?limit=1", "/api/v1/dashboard/purchase/top-vendors?limit=1"} {
		rec = get(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.JSONEq(t, `{"data":[{"partyId":3,"totalAmount":1180.00,"billCount":1}]}`, rec.Body.String())
	}

	for _, path := range []string{"/api/v1/dashboard/purchase/pending", "/api/v1/dashboard/purchase/pending-payments"} {
		rec = get(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var pending struct {
			Data []ledger.PendingResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
		require.Len(t, pending.Data, 2)
		require.Equal(t, "V-2", pending.Data[0].BillNumber)
		require.Equal(t, "1000.00", pending.Data[1].PendingAmount.String())
	}

	rec = get(t, h, "/api/v1/dashboard/sales/pending-collections")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":[]}`, rec.Body.String())

	rec = get(t, h, "/api/v1/dashboard/purchase/pending-collections")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/api/v1/dashboard/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalPurchases":1298.00`)
	require.Contains(t, rec.Body.String(), `"currentMonthGSTLiability":-180.00`)

	rec = get(t, h, "/api/v1/dashboard/sales/monthly-total?month=13")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = get(t, h, "/api/v1/dashboard/sales/yearly-trend?year=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
