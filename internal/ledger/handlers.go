package ledger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
)

// Handler exposes party ledgers and the dashboard.
type Handler struct {
	Svc *Service
	Now func() time.Time
}

// dashboard names for the top-parties and pending reports per kind
var dashboardAliases = map[billing.Kind][2]string{
	billing.KindPurchase: {"top-vendors", "pending-payments"},
	billing.KindSales:    {"top-customers", "pending-collections"},
}

// Register mounts the ledger and dashboard routes.
func (h *Handler) Register(r chi.Router) {
	for _, kind := range billing.Kinds() {
		r.Route("/ledger/"+string(kind), func(r chi.Router) {
			r.Get("/all", h.summaries(kind))
			r.Get("/party/{partyId}", h.partyLedger(kind))
			r.Get("/party/{partyId}/outstanding", h.outstanding(kind))
		})
		r.Route("/dashboard/"+string(kind), func(r chi.Router) {
			aliases := dashboardAliases[kind]
			r.Get("/monthly-total", h.monthlyTotal(kind))
			r.Get("/yearly-trend", h.yearlyTrend(kind))
			r.Get("/top-parties", h.topParties(kind))
			r.Get("/"+aliases[0], h.topParties(kind))
			r.Get("/pending", h.pending(kind))
			r.Get("/"+aliases[1], h.pending(kind))
		})
	}
	r.Get("/dashboard/summary", h.summary)
}

func (h *Handler) partyLedger(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partyID, err := common.ParseID("partyId", chi.URLParam(r, "partyId"))
		if err != nil {
			common.WriteError(w, err)
			return
		}
		l, err := h.Svc.PartyLedger(r.Context(), kind, partyID)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, NewPartyLedgerResponse(l))
	}
}

func (h *Handler) outstanding(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partyID, err := common.ParseID("partyId", chi.URLParam(r, "partyId"))
		if err != nil {
			common.WriteError(w, err)
			return
		}
		o, err := h.Svc.Outstanding(r.Context(), kind, partyID)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, OutstandingResponse{Kind: o.Kind, PartyID: o.PartyID, Outstanding: money(o.Amount)})
	}
}

func (h *Handler) summaries(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := h.Svc.Summaries(r.Context(), kind)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, summaryRows(rows))
	}
}

func (h *Handler) monthlyTotal(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := h.now()
		year, err := queryInt(r, "year", now.Year())
		if err != nil {
			common.WriteError(w, err)
			return
		}
		month, err := queryInt(r, "month", int(now.Month()))
		if err != nil {
			common.WriteError(w, err)
			return
		}
		t, err := h.Svc.MonthlyTotal(r.Context(), kind, year, month)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, MonthlyTotalResponse{
			Year:        t.Year,
			Month:       t.Month,
			TotalAmount: money(t.TotalAmount),
			BillCount:   t.BillCount,
		})
	}
}

func (h *Handler) yearlyTrend(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, err := queryInt(r, "year", h.now().Year())
		if err != nil {
			common.WriteError(w, err)
			return
		}
		t, err := h.Svc.YearlyTrend(r.Context(), kind, year)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, trendResponse(t))
	}
}

func (h *Handler) topParties(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", defaultTopLimit)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		rows, err := h.Svc.TopParties(r.Context(), kind, limit)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, topRows(rows))
	}
}

func (h *Handler) pending(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := h.Svc.Pending(r.Context(), kind)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		common.Data(w, http.StatusOK, pendingRows(rows))
	}
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	d, err := h.Svc.Summary(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, dashboardResponse(d))
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v := common.AtoiDefault(raw, -1)
	if v < 0 {
		return 0, common.BadRequest(name+" must be a non-negative integer", nil)
	}
	return v, nil
}
