package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/pricing"
	"github.com/noah-isme/backend-billing/internal/report"
)

// Middlewares are optional per-route wrappers supplied by the server.
type Middlewares struct {
	// Idempotency guards bill creation.
	Idempotency func(http.Handler) http.Handler
	// CalculateLimit throttles the preview endpoints.
	CalculateLimit func(http.Handler) http.Handler
}

// Handler exposes the bill, payment and GST report endpoints.
type Handler struct {
	Svc *Service
}

// Register mounts the routes on r, which is expected to be the /api/v1 router.
func (h *Handler) Register(r chi.Router, mw Middlewares) {
	for _, kind := range Kinds() {
		kind := kind
		r.Route("/"+string(kind)+"/bills", func(r chi.Router) {
			r.With(optional(mw.CalculateLimit)).Post("/calculate", h.calculate(kind))
			r.Get("/", h.list(kind))
			r.With(optional(mw.Idempotency)).Post("/", h.create(kind))
			r.Get("/{id}", h.get(kind))
			r.Put("/{id}", h.update(kind))
			r.Delete("/{id}", h.delete(kind))
		})
		r.Route("/"+string(kind)+"/payments", func(r chi.Router) {
			r.Get("/", h.listPayments(kind))
			r.With(optional(mw.Idempotency)).Post("/", h.createPayment(kind))
			r.Get("/{id}", h.getPayment(kind))
			r.Put("/{id}", h.updatePayment(kind))
			r.Delete("/{id}", h.deletePayment(kind))
		})
	}
	r.Route("/gst/liability", func(r chi.Router) {
		r.Get("/", h.monthlyLiability)
		r.Get("/quarterly", h.quarterlyLiability)
		r.Get("/export", h.exportLiability)
	})
}

func (h *Handler) calculate(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CalculateRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		res, err := h.Svc.Calculate(r.Context(), kind, req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": NewCalculationResponse(kind, res)})
	}
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, perPage := common.ParsePagination(r, defaultListLimit)
		filter := ListFilter{Kind: kind, Page: page, Limit: perPage}
		q := r.URL.Query()
		if v := q.Get("partyId"); v != "" {
			id, err := common.ParseID("partyId", v)
			if err != nil {
				h.writeError(w, err)
				return
			}
			filter.PartyID = id
		}
		var err error
		if filter.From, err = queryDate(q.Get("from")); err != nil {
			h.writeError(w, badRequest("from must be YYYY-MM-DD", err))
			return
		}
		if filter.To, err = queryDate(q.Get("to")); err != nil {
			h.writeError(w, badRequest("to must be YYYY-MM-DD", err))
			return
		}
		if !filter.To.IsZero() {
			// inclusive upper bound for callers
			filter.To = filter.To.AddDate(0, 0, 1)
		}
		result, err := h.Svc.List(r.Context(), filter)
		if err != nil {
			h.writeError(w, err)
			return
		}
		rows := make([]BillResponse, 0, len(result.Items))
		for _, b := range result.Items {
			rows = append(rows, NewBillResponse(b))
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
		common.JSON(w, http.StatusOK, map[string]any{
			"data":       rows,
			"pagination": common.NewPagination(result.Page, result.Limit, result.Total),
		})
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BillRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		bill, err := h.Svc.Create(r.Context(), kind, req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/api/v1/%s/bills/%d", kind, bill.ID))
		common.JSON(w, http.StatusCreated, map[string]any{"data": NewBillResponse(bill)})
	}
}

func (h *Handler) get(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		bill, err := h.Svc.Get(r.Context(), kind, id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": NewBillResponse(bill)})
	}
}

func (h *Handler) update(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		var req BillRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		bill, err := h.Svc.Update(r.Context(), kind, id, req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": NewBillResponse(bill)})
	}
}

func (h *Handler) delete(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.Svc.Delete(r.Context(), kind, id); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) listPayments(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, perPage := common.ParsePagination(r, defaultListLimit)
		filter := PaymentFilter{Kind: kind, Page: page, Limit: perPage}
		q := r.URL.Query()
		if v := q.Get("partyId"); v != "" {
			id, err := common.ParseID("partyId", v)
			if err != nil {
				h.writeError(w, err)
				return
			}
			filter.PartyID = id
		}
		var err error
		if filter.From, err = queryDate(q.Get("from")); err != nil {
			h.writeError(w, badRequest("from must be YYYY-MM-DD", err))
			return
		}
		if filter.To, err = queryDate(q.Get("to")); err != nil {
			h.writeError(w, badRequest("to must be YYYY-MM-DD", err))
			return
		}
		if !filter.To.IsZero() {
			filter.To = filter.To.AddDate(0, 0, 1)
		}
		result, err := h.Svc.ListPayments(r.Context(), filter)
		if err != nil {
			h.writeError(w, err)
			return
		}
		rows := make([]PaymentResponse, 0, len(result.Items))
		for _, p := range result.Items {
			rows = append(rows, NewPaymentResponse(p))
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
		common.JSON(w, http.StatusOK, map[string]any{
			"data":       rows,
			"pagination": common.NewPagination(result.Page, result.Limit, result.Total),
		})
	}
}

func (h *Handler) createPayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PaymentRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		p, err := h.Svc.CreatePayment(r.Context(), kind, req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/api/v1/%s/payments/%d", kind, p.ID))
		common.JSON(w, http.StatusCreated, map[string]any{"data": NewPaymentResponse(p)})
	}
}

func (h *Handler) getPayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		p, err := h.Svc.GetPayment(r.Context(), kind, id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": NewPaymentResponse(p)})
	}
}

func (h *Handler) updatePayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		var req PaymentRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		p, err := h.Svc.UpdatePayment(r.Context(), kind, id, req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": NewPaymentResponse(p)})
	}
}

func (h *Handler) deletePayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.Svc.DeletePayment(r.Context(), kind, id); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) monthlyLiability(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", time.Now().UTC().Year())
	if err != nil {
		h.writeError(w, err)
		return
	}
	month, err := queryInt(r, "month", int(time.Now().UTC().Month()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	period, err := MonthPeriod(year, month)
	if err != nil {
		h.writeError(w, badRequest(err.Error(), err))
		return
	}
	h.writeLiability(w, r, period)
}

func (h *Handler) quarterlyLiability(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", time.Now().UTC().Year())
	if err != nil {
		h.writeError(w, err)
		return
	}
	quarter, err := queryInt(r, "quarter", (int(time.Now().UTC().Month())-1)/3+1)
	if err != nil {
		h.writeError(w, err)
		return
	}
	period, err := QuarterPeriod(year, quarter)
	if err != nil {
		h.writeError(w, badRequest(err.Error(), err))
		return
	}
	h.writeLiability(w, r, period)
}

func (h *Handler) writeLiability(w http.ResponseWriter, r *http.Request, period Period) {
	out, err := h.Svc.GSTLiability(r.Context(), period)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewLiabilityResponse(out)})
}

// exportLiability streams an xlsx workbook for one month, or for every month
// of the year when month is omitted.
func (h *Handler) exportLiability(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", time.Now().UTC().Year())
	if err != nil {
		h.writeError(w, err)
		return
	}
	months := []int{}
	if r.URL.Query().Get("month") != "" {
		month, err := queryInt(r, "month", 0)
		if err != nil {
			h.writeError(w, err)
			return
		}
		months = append(months, month)
	} else {
		for m := 1; m <= 12; m++ {
			months = append(months, m)
		}
	}

	rows := make([]report.LiabilityRow, 0, len(months))
	for _, m := range months {
		period, err := MonthPeriod(year, m)
		if err != nil {
			h.writeError(w, badRequest(err.Error(), err))
			return
		}
		l, err := h.Svc.GSTLiability(r.Context(), period)
		if err != nil {
			h.writeError(w, err)
			return
		}
		rows = append(rows, report.LiabilityRow{
			Period:      l.Period,
			PurchaseGST: l.PurchaseGST,
			SalesGST:    l.SalesGST,
			NetGST:      l.NetGST,
			Status:      string(l.Status),
		})
	}

	var buf bytes.Buffer
	if err := report.WriteGSTLiability(&buf, rows); err != nil {
		h.writeError(w, fmt.Errorf("billing: render export: %w", err))
		return
	}
	name := fmt.Sprintf("gst-liability-%d.xlsx", year)
	if len(months) == 1 {
		name = fmt.Sprintf("gst-liability-%d-%02d.xlsx", year, months[0])
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "bill not found", nil)
		return
	case errors.Is(err, ErrPaymentNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "payment not found", nil)
		return
	case errors.Is(err, ErrDuplicateNumber):
		common.JSONError(w, http.StatusConflict, common.CodeConflict, "bill number already exists", nil)
		return
	}
	if _, ok := common.AsAppError(err); !ok && errors.Is(err, pricing.ErrRoundOffOutOfRange) {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, err.Error(), nil)
		return
	}
	common.WriteError(w, err)
}

func decode(r *http.Request, dst any) error {
	// unknown fields such as client-side totals are ignored
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return common.NewAppError(common.CodeTooLarge, "request body too large", http.StatusRequestEntityTooLarge, err)
		}
		return common.BadRequest("invalid JSON payload", err)
	}
	return nil
}

func badRequest(message string, err error) error {
	return common.BadRequest(message, err)
}

func pathID(r *http.Request) (int64, error) {
	return common.ParseID("id", chi.URLParam(r, "id"))
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(name+" must be an integer", err)
	}
	return v, nil
}

func queryDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, raw)
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
