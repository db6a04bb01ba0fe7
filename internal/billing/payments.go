package billing

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

// ScopeLedger is the cache scope of ledger and dashboard read models. Bill
// and payment mutations both invalidate it.
const ScopeLedger = "ledger"

// PaymentEvent is the payload of payment.* events.
type PaymentEvent struct {
	ID          int64           `json:"id"`
	Kind        Kind            `json:"kind"`
	PartyID     int64           `json:"partyId"`
	PaymentDate string          `json:"paymentDate"`
	Amount      decimal.Decimal `json:"amount"`
}

// CreatePayment records a payment against a party.
func (s *Service) CreatePayment(ctx context.Context, kind Kind, req PaymentRequest) (Payment, error) {
	p, err := s.buildPayment(ctx, kind, req)
	if err != nil {
		return Payment{}, err
	}
	if err := s.Store.InsertPayment(ctx, &p); err != nil {
		return Payment{}, err
	}
	s.afterPayment(ctx, events.TopicPaymentCreated, p)
	obs.CountBillMutation(string(kind), "payment_create")
	return p, nil
}

// UpdatePayment replaces a payment.
func (s *Service) UpdatePayment(ctx context.Context, kind Kind, id int64, req PaymentRequest) (Payment, error) {
	if _, err := s.Store.GetPayment(ctx, kind, id); err != nil {
		return Payment{}, err
	}
	p, err := s.buildPayment(ctx, kind, req)
	if err != nil {
		return Payment{}, err
	}
	p.ID = id
	if err := s.Store.UpdatePayment(ctx, &p); err != nil {
		return Payment{}, err
	}
	s.afterPayment(ctx, events.TopicPaymentUpdated, p)
	obs.CountBillMutation(string(kind), "payment_update")
	return p, nil
}

// GetPayment returns one payment.
func (s *Service) GetPayment(ctx context.Context, kind Kind, id int64) (Payment, error) {
	return s.Store.GetPayment(ctx, kind, id)
}

// ListPayments returns a page of payments, newest first.
func (s *Service) ListPayments(ctx context.Context, filter PaymentFilter) (PaymentPage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	items, total, err := s.Store.ListPayments(ctx, filter)
	if err != nil {
		return PaymentPage{}, err
	}
	return PaymentPage{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// DeletePayment removes a payment.
func (s *Service) DeletePayment(ctx context.Context, kind Kind, id int64) error {
	existing, err := s.Store.GetPayment(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeletePayment(ctx, kind, id); err != nil {
		return err
	}
	s.afterPayment(ctx, events.TopicPaymentDeleted, existing)
	obs.CountBillMutation(string(kind), "payment_delete")
	return nil
}

func (s *Service) buildPayment(ctx context.Context, kind Kind, req PaymentRequest) (Payment, error) {
	if err := s.validator().StructCtx(ctx, req); err != nil {
		return Payment{}, fromValidator(err)
	}
	var fields []FieldError
	amount, ok := req.Value()
	switch {
	case !ok:
		fields = append(fields, FieldError{Field: "amount", Rule: "required"})
	case !amount.IsPositive():
		fields = append(fields, FieldError{Field: "amount", Rule: "gt=0"})
	case !amount.Equal(amount.Truncate(pricing.MoneyPlaces)):
		fields = append(fields, FieldError{Field: "amount", Rule: "max_scale=2"})
	case amount.GreaterThan(maxBillAmount):
		fields = append(fields, FieldError{Field: "amount", Rule: "lte=" + maxBillAmount.String()})
	}
	mode := PaymentMode(req.ModeOfPayment)
	if !mode.Settles() {
		fields = append(fields, FieldError{Field: "modeOfPayment", Rule: "oneof"})
	}
	if len(fields) > 0 {
		return Payment{}, validationError("invalid payment", fields)
	}
	date, _ := time.Parse(dateLayout, req.PaymentDate)
	return Payment{
		Kind:      kind,
		PartyID:   req.PartyID,
		Date:      date,
		Amount:    amount,
		Mode:      mode,
		Reference: strings.TrimSpace(req.TransactionReference),
		Remarks:   strings.TrimSpace(req.Remarks),
	}, nil
}

func (s *Service) afterPayment(ctx context.Context, topic string, p Payment) {
	if err := s.Cache.Invalidate(ctx, ScopeLedger); err != nil {
		s.Logger.Warn().Err(err).Str("kind", string(p.Kind)).Msg("billing_cache_invalidate_failed")
	}
	if s.Events == nil {
		return
	}
	payload := PaymentEvent{
		ID:          p.ID,
		Kind:        p.Kind,
		PartyID:     p.PartyID,
		PaymentDate: p.Date.Format(dateLayout),
		Amount:      p.Amount,
	}
	if _, err := s.Events.Emit(ctx, topic, strconv.FormatInt(p.ID, 10), payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Int64("payment_id", p.ID).Msg("billing_event_emit_failed")
	}
}
