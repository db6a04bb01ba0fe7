package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/cache"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	scopeGST         = "gst"
)

// Service implements bill submission, listing and GST reporting.
type Service struct {
	Store    Store
	Engine   pricing.Engine
	Validate *validator.Validate
	Events   *events.Bus
	Cache    *cache.Cache
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Calculate prices a preview payload. Incomplete lines are skipped.
func (s *Service) Calculate(ctx context.Context, kind Kind, req CalculateRequest) (pricing.Result, error) {
	if err := s.validator().StructCtx(ctx, req); err != nil {
		return pricing.Result{}, fromValidator(err)
	}
	obs.CountPricing(string(kind), "preview")
	return s.Engine.Calculate(req.PricingRequest()), nil
}

// Create validates and stores a new bill with server-computed totals.
func (s *Service) Create(ctx context.Context, kind Kind, req BillRequest) (Bill, error) {
	bill, err := s.buildBill(ctx, kind, req)
	if err != nil {
		return Bill{}, err
	}
	if kind == KindSales && strings.TrimSpace(bill.Number) == "" {
		seq, err := s.Store.NextSequence(ctx, kind, bill.Date.Year())
		if err != nil {
			return Bill{}, fmt.Errorf("billing: next sequence: %w", err)
		}
		bill.Number = SalesNumber(bill.Date.Year(), seq)
	}
	if err := s.Store.Insert(ctx, &bill); err != nil {
		return Bill{}, err
	}
	s.afterMutation(ctx, events.TopicBillCreated, bill)
	obs.CountBillMutation(string(kind), "create")
	return bill, nil
}

// Update replaces a bill's header and items, recomputing totals.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, req BillRequest) (Bill, error) {
	existing, err := s.Store.Get(ctx, kind, id)
	if err != nil {
		return Bill{}, err
	}
	bill, err := s.buildBill(ctx, kind, req)
	if err != nil {
		return Bill{}, err
	}
	bill.ID = existing.ID
	if strings.TrimSpace(bill.Number) == "" {
		bill.Number = existing.Number
	}
	if err := s.Store.Update(ctx, &bill); err != nil {
		return Bill{}, err
	}
	s.afterMutation(ctx, events.TopicBillUpdated, bill)
	// the old month changes too when a bill moves between periods
	if !sameMonth(existing.Date, bill.Date) {
		s.emit(ctx, events.TopicBillUpdated, existing)
	}
	obs.CountBillMutation(string(kind), "update")
	return bill, nil
}

// Get returns one bill.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (Bill, error) {
	return s.Store.Get(ctx, kind, id)
}

// List returns a page of bills. Results are cached per kind until the next mutation.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	scope := listScope(filter.Kind)
	key := s.cacheKey(ctx, scope,
		strconv.FormatInt(filter.PartyID, 10),
		filter.From.Format(dateLayout),
		filter.To.Format(dateLayout),
		strconv.Itoa(filter.Page),
		strconv.Itoa(filter.Limit),
	)
	var cached Page
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}
	bills, total, err := s.Store.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	page := Page{Items: bills, Total: total, Page: filter.Page, Limit: filter.Limit}
	s.writeCache(ctx, key, page)
	return page, nil
}

// Delete removes a bill.
func (s *Service) Delete(ctx context.Context, kind Kind, id int64) error {
	existing, err := s.Store.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, kind, id); err != nil {
		return err
	}
	s.afterMutation(ctx, events.TopicBillDeleted, existing)
	obs.CountBillMutation(string(kind), "delete")
	return nil
}

// GSTLiability nets sales GST against purchase GST for the period, served
// from cache when possible.
func (s *Service) GSTLiability(ctx context.Context, period Period) (GSTLiability, error) {
	key := s.cacheKey(ctx, scopeGST, period.Label, period.From.Format(dateLayout), period.To.Format(dateLayout))
	var cached GSTLiability
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}
	out, err := s.computeLiability(ctx, period)
	if err != nil {
		return GSTLiability{}, err
	}
	s.writeCache(ctx, key, out)
	return out, nil
}

// RefreshGSTLiability recomputes the period from the store and rewrites the
// cache entry. The key is taken before reading so a concurrent mutation
// leaves the result under an already retired generation.
func (s *Service) RefreshGSTLiability(ctx context.Context, period Period) (GSTLiability, error) {
	key := s.cacheKey(ctx, scopeGST, period.Label, period.From.Format(dateLayout), period.To.Format(dateLayout))
	out, err := s.computeLiability(ctx, period)
	if err != nil {
		return GSTLiability{}, err
	}
	s.writeCache(ctx, key, out)
	return out, nil
}

// SalesNumber formats a generated sales bill number.
func SalesNumber(year int, seq int64) string {
	return fmt.Sprintf("SB/%d/%05d", year, seq)
}

func (s *Service) computeLiability(ctx context.Context, period Period) (GSTLiability, error) {
	purchase, err := s.Store.SumGST(ctx, KindPurchase, period.From, period.To)
	if err != nil {
		return GSTLiability{}, fmt.Errorf("billing: sum purchase gst: %w", err)
	}
	sales, err := s.Store.SumGST(ctx, KindSales, period.From, period.To)
	if err != nil {
		return GSTLiability{}, fmt.Errorf("billing: sum sales gst: %w", err)
	}
	obs.CountPricing("", "report")
	return NewGSTLiability(period.Label, purchase, sales), nil
}

func (s *Service) buildBill(ctx context.Context, kind Kind, req BillRequest) (Bill, error) {
	if err := s.validator().StructCtx(ctx, req); err != nil {
		return Bill{}, fromValidator(err)
	}
	var fields []FieldError
	date, _ := time.Parse(dateLayout, req.BillDate)
	var due *time.Time
	if req.DueDate != "" {
		d, _ := time.Parse(dateLayout, req.DueDate)
		if d.Before(date) {
			fields = append(fields, FieldError{Field: "dueDate", Rule: "gtefield=billDate"})
		}
		due = &d
	}
	if req.Party() <= 0 {
		fields = append(fields, FieldError{Field: "partyId", Rule: "required"})
	}
	if kind == KindPurchase && strings.TrimSpace(req.BillNumber) == "" {
		fields = append(fields, FieldError{Field: "billNumber", Rule: "required"})
	}
	if req.Transportation != nil {
		switch {
		case req.Transportation.IsNegative():
			fields = append(fields, FieldError{Field: "transportation", Rule: "gte=0"})
		case req.Transportation.GreaterThan(maxBillAmount):
			fields = append(fields, FieldError{Field: "transportation", Rule: "lte=" + maxBillAmount.String()})
		}
	}
	fields = append(fields, checkLines(kind, req.Items)...)
	if len(fields) > 0 {
		return Bill{}, validationError("invalid bill", fields)
	}

	calc := CalculateRequest{Items: req.Items, Transportation: req.Transportation}
	res := s.Engine.Calculate(calc.PricingRequest())
	obs.CountPricing(string(kind), "submission")
	if res.GrandTotal.GreaterThan(maxBillAmount) {
		return Bill{}, validationError("bill total too large", []FieldError{{Field: "grandTotal", Rule: "lte=" + maxBillAmount.String()}})
	}
	if req.RoundOff != nil {
		var err error
		if res, err = res.WithRoundOff(*req.RoundOff); err != nil {
			return Bill{}, &common.AppError{
				Code:       common.CodeValidation,
				Message:    "round off must be below one and keep the grand total whole",
				HTTPStatus: http.StatusUnprocessableEntity,
				Err:        err,
				Details:    map[string]any{"fields": []FieldError{{Field: "roundOff", Rule: "range"}}},
			}
		}
	}

	items := make([]Item, 0, len(req.Items))
	for i, it := range req.Items {
		line := it.lineItem()
		items = append(items, Item{
			Serial:      i + 1,
			ItemID:      it.ItemID,
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			Rate:        it.Rate,
			Amount:      line.Amount(),
		})
	}
	return Bill{
		Kind:              kind,
		Number:            strings.TrimSpace(req.BillNumber),
		Date:              date,
		PartyID:           req.Party(),
		BillingAddressID:  req.BillingAddressID,
		ShippingAddressID: req.ShippingAddressID,
		VehicleDetails:    strings.TrimSpace(req.VehicleDetails),
		PaymentMode:       PaymentMode(req.ModeOfPayment),
		DueDate:           due,
		BuyerOrderNo:      strings.TrimSpace(req.BuyerOrderNo),
		TermsOfDelivery:   strings.TrimSpace(req.TermsOfDelivery),
		Items:             items,
		Totals: Totals{
			TaxableAmount:  res.TaxableAmount,
			GST:            res.GST,
			Transportation: res.Transportation,
			RoundOff:       res.SuggestedRoundOff,
			GrandTotal:     res.GrandTotal,
		},
	}, nil
}

// BillEvent is the payload of bill.* events.
type BillEvent struct {
	ID         int64           `json:"id"`
	Kind       Kind            `json:"kind"`
	Number     string          `json:"number"`
	BillDate   string          `json:"billDate"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

func (s *Service) afterMutation(ctx context.Context, topic string, bill Bill) {
	if err := s.Cache.Invalidate(ctx, listScope(bill.Kind), listScope(""), scopeGST, ScopeLedger); err != nil {
		s.Logger.Warn().Err(err).Str("kind", string(bill.Kind)).Msg("billing_cache_invalidate_failed")
	}
	s.emit(ctx, topic, bill)
}

func (s *Service) emit(ctx context.Context, topic string, bill Bill) {
	if s.Events == nil {
		return
	}
	payload := BillEvent{
		ID:         bill.ID,
		Kind:       bill.Kind,
		Number:     bill.Number,
		BillDate:   bill.Date.Format(dateLayout),
		GrandTotal: bill.Totals.GrandTotal,
	}
	if _, err := s.Events.Emit(ctx, topic, strconv.FormatInt(bill.ID, 10), payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Int64("bill_id", bill.ID).Msg("billing_event_emit_failed")
	}
}

func (s *Service) cacheKey(ctx context.Context, scope string, parts ...string) string {
	key, err := s.Cache.Key(ctx, scope, parts...)
	if err != nil {
		obs.CountReportCache("error")
		s.Logger.Warn().Err(err).Str("scope", scope).Msg("billing_cache_key_failed")
		return ""
	}
	return key
}

func (s *Service) readCache(ctx context.Context, key string, dst any) bool {
	if key == "" {
		return false
	}
	ok, err := s.Cache.GetJSON(ctx, key, dst)
	switch {
	case err != nil:
		obs.CountReportCache("error")
		s.Logger.Warn().Err(err).Msg("billing_cache_read_failed")
		return false
	case ok:
		obs.CountReportCache("hit")
		return true
	}
	obs.CountReportCache("miss")
	return false
}

func (s *Service) writeCache(ctx context.Context, key string, v any) {
	if key == "" {
		return
	}
	if err := s.Cache.SetJSON(ctx, key, v); err != nil {
		s.Logger.Warn().Err(err).Msg("billing_cache_write_failed")
	}
}

func (s *Service) validator() *validator.Validate {
	if s.Validate == nil {
		s.Validate = NewValidator()
	}
	return s.Validate
}

func listScope(kind Kind) string {
	if kind == "" {
		return "bills"
	}
	return "bills:" + string(kind)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// IsValidation reports whether err is a VALIDATION_ERROR.
func IsValidation(err error) bool {
	var appErr *common.AppError
	return errors.As(err, &appErr) && appErr.Code == common.CodeValidation
}
