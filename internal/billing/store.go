package billing

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Store persists bills and payments. Implementations must enforce number
// uniqueness: sales numbers are unique per kind, purchase numbers per party.
// A zero Limit on a filter returns every match.
type Store interface {
	NextSequence(ctx context.Context, kind Kind, year int) (int64, error)
	Insert(ctx context.Context, bill *Bill) error
	Update(ctx context.Context, bill *Bill) error
	Get(ctx context.Context, kind Kind, id int64) (Bill, error)
	List(ctx context.Context, filter ListFilter) ([]Bill, int, error)
	Delete(ctx context.Context, kind Kind, id int64) error
	SumGST(ctx context.Context, kind Kind, from, to time.Time) (decimal.Decimal, error)

	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, kind Kind, id int64) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error)
	DeletePayment(ctx context.Context, kind Kind, id int64) error

	Ping(ctx context.Context) error
}

// MemoryStore keeps bills in process memory. It is the default store when no
// database is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	bills       map[int64]Bill
	payments    map[int64]Payment
	seqs        map[string]int64
	lastID      int64
	lastItem    int64
	lastPayment int64
	now         func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bills:    make(map[int64]Bill),
		payments: make(map[int64]Payment),
		seqs:     make(map[string]int64),
		now:      time.Now,
	}
}

// NextSequence returns the next per-kind, per-year counter value.
func (m *MemoryStore) NextSequence(_ context.Context, kind Kind, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(kind) + ":" + strconv.Itoa(year)
	m.seqs[key]++
	return m.seqs[key], nil
}

// Insert stores a new bill, assigning ids and timestamps.
func (m *MemoryStore) Insert(_ context.Context, bill *Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.numberTakenLocked(*bill) {
		return ErrDuplicateNumber
	}
	m.lastID++
	bill.ID = m.lastID
	now := m.now().UTC()
	bill.CreatedAt = now
	bill.UpdatedAt = now
	m.assignItemIDsLocked(bill)
	m.bills[bill.ID] = cloneBill(*bill)
	return nil
}

// Update replaces an existing bill and its items.
func (m *MemoryStore) Update(_ context.Context, bill *Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.bills[bill.ID]
	if !ok || existing.Kind != bill.Kind {
		return ErrNotFound
	}
	if m.numberTakenLocked(*bill) {
		return ErrDuplicateNumber
	}
	bill.CreatedAt = existing.CreatedAt
	bill.UpdatedAt = m.now().UTC()
	m.assignItemIDsLocked(bill)
	m.bills[bill.ID] = cloneBill(*bill)
	return nil
}

// Get returns a bill by kind and id.
func (m *MemoryStore) Get(_ context.Context, kind Kind, id int64) (Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bill, ok := m.bills[id]
	if !ok || bill.Kind != kind {
		return Bill{}, ErrNotFound
	}
	return cloneBill(bill), nil
}

// List returns bills newest first (by date, then id).
func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]Bill, int, error) {
	m.mu.RLock()
	matched := make([]Bill, 0, len(m.bills))
	for _, bill := range m.bills {
		if matches(bill, filter) {
			matched = append(matched, bill)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	offset := filter.Offset()
	if offset >= total {
		return []Bill{}, total, nil
	}
	end := total
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}
	out := make([]Bill, 0, end-offset)
	for _, bill := range matched[offset:end] {
		out = append(out, cloneBill(bill))
	}
	return out, total, nil
}

// Delete removes a bill.
func (m *MemoryStore) Delete(_ context.Context, kind Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bill, ok := m.bills[id]
	if !ok || bill.Kind != kind {
		return ErrNotFound
	}
	delete(m.bills, id)
	return nil
}

// SumGST totals the GST of bills of kind dated within [from, to).
func (m *MemoryStore) SumGST(_ context.Context, kind Kind, from, to time.Time) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, bill := range m.bills {
		if bill.Kind != kind || bill.Date.Before(from) || !bill.Date.Before(to) {
			continue
		}
		sum = sum.Add(bill.Totals.GST)
	}
	return sum, nil
}

// InsertPayment stores a new payment.
func (m *MemoryStore) InsertPayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPayment++
	p.ID = m.lastPayment
	now := m.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.payments[p.ID] = *p
	return nil
}

// UpdatePayment replaces an existing payment.
func (m *MemoryStore) UpdatePayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.payments[p.ID]
	if !ok || existing.Kind != p.Kind {
		return ErrPaymentNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = m.now().UTC()
	m.payments[p.ID] = *p
	return nil
}

// GetPayment returns a payment by kind and id.
func (m *MemoryStore) GetPayment(_ context.Context, kind Kind, id int64) (Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok || p.Kind != kind {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments returns payments newest first (by date, then id).
func (m *MemoryStore) ListPayments(_ context.Context, filter PaymentFilter) ([]Payment, int, error) {
	m.mu.RLock()
	matched := make([]Payment, 0, len(m.payments))
	for _, p := range m.payments {
		if paymentMatches(p, filter) {
			matched = append(matched, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	offset := filter.Offset()
	if offset >= total {
		return []Payment{}, total, nil
	}
	end := total
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}
	return append([]Payment(nil), matched[offset:end]...), total, nil
}

// DeletePayment removes a payment.
func (m *MemoryStore) DeletePayment(_ context.Context, kind Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Kind != kind {
		return ErrPaymentNotFound
	}
	delete(m.payments, id)
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) numberTakenLocked(bill Bill) bool {
	number := strings.TrimSpace(bill.Number)
	for id, other := range m.bills {
		if id == bill.ID || other.Kind != bill.Kind || !strings.EqualFold(other.Number, number) {
			continue
		}
		if bill.Kind == KindSales || other.PartyID == bill.PartyID {
			return true
		}
	}
	return false
}

func (m *MemoryStore) assignItemIDsLocked(bill *Bill) {
	for i := range bill.Items {
		m.lastItem++
		bill.Items[i].ID = m.lastItem
		bill.Items[i].Serial = i + 1
	}
}

func matches(bill Bill, f ListFilter) bool {
	if f.Kind != "" && bill.Kind != f.Kind {
		return false
	}
	if f.PartyID > 0 && bill.PartyID != f.PartyID {
		return false
	}
	if !f.From.IsZero() && bill.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !bill.Date.Before(f.To) {
		return false
	}
	return true
}

func paymentMatches(p Payment, f PaymentFilter) bool {
	if f.Kind != "" && p.Kind != f.Kind {
		return false
	}
	if f.PartyID > 0 && p.PartyID != f.PartyID {
		return false
	}
	if !f.From.IsZero() && p.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !p.Date.Before(f.To) {
		return false
	}
	return true
}

func cloneBill(b Bill) Bill {
	b.Items = append([]Item(nil), b.Items...)
	if b.BillingAddressID != nil {
		v := *b.BillingAddressID
		b.BillingAddressID = &v
	}
	if b.ShippingAddressID != nil {
		v := *b.ShippingAddressID
		b.ShippingAddressID = &v
	}
	if b.DueDate != nil {
		v := *b.DueDate
		b.DueDate = &v
	}
	return b
}
