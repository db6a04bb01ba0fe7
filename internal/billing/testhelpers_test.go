package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/cache"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

type recordedEvents struct {
	mu     sync.Mutex
	topics []string
	events []events.Event
}

func (r *recordedEvents) Notify(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, ev.Topic)
	r.events = append(r.events, ev)
	return nil
}

func (r *recordedEvents) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

type fixture struct {
	svc    *billing.Service
	store  *billing.MemoryStore
	events *recordedEvents
	redis  *miniredis.Miniredis
}

func newFixture(t *testing.T, withCache bool) fixture {
	t.Helper()
	store := billing.NewMemoryStore()
	rec := &recordedEvents{}
	svc := &billing.Service{
		Store:    store,
		Engine:   pricing.NewEngine(pricing.DefaultTaxBps),
		Validate: billing.NewValidator(),
		Events:   &events.Bus{Notifiers: []events.Notifier{rec}},
	}
	f := fixture{svc: svc, store: store, events: rec}
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		svc.Cache = cache.New(client, time.Minute, "test")
		f.redis = mr
	}
	return f
}

func salesRequest(date string, lines ...billing.ItemRequest) billing.BillRequest {
	return billing.BillRequest{
		BillDate:      date,
		SalesPartyID:  7,
		ModeOfPayment: "UPI",
		Items:         lines,
	}
}

func purchaseRequest(number string, party int64, date string, lines ...billing.ItemRequest) billing.BillRequest {
	return billing.BillRequest{
		BillNumber: number,
		BillDate:   date,
		PartyID:    party,
		Items:      lines,
	}
}

func catalogLine(id int64, qty, rate string) billing.ItemRequest {
	return billing.ItemRequest{ItemID: id, Quantity: dec(qty), Rate: dec(rate)}
}

func textLine(desc, qty, rate string) billing.ItemRequest {
	return billing.ItemRequest{Description: desc, Quantity: dec(qty), Rate: dec(rate)}
}

func mustDate(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		t.Fatalf("parse %q: %v", v, err)
	}
	return d
}
