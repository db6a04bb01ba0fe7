package pg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/events"
)

const uniqueViolation = "23505"

// ErrStoreUnavailable indicates the pool was not configured.
var ErrStoreUnavailable = errors.New("pg: store unavailable")

// Store implements billing.Store and events.EventStore on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ billing.Store     = (*Store)(nil)
	_ events.EventStore = (*Store)(nil)
)

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const billColumns = `id, kind, number, bill_date, party_id, billing_address_id, shipping_address_id,
vehicle_details, payment_mode, due_date, buyer_order_no, terms_of_delivery,
taxable_amount, gst, transportation, round_off, grand_total, created_at, updated_at`

// NextSequence bumps and returns the per-kind, per-year counter.
func (s *Store) NextSequence(ctx context.Context, kind billing.Kind, year int) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var next int64
	err := s.pool.QueryRow(ctx, `INSERT INTO bill_sequences (kind, year, last_value) VALUES ($1, $2, 1)
ON CONFLICT (kind, year) DO UPDATE SET last_value = bill_sequences.last_value + 1
RETURNING last_value`, string(kind), year).Scan(&next)
	return next, err
}

// Insert stores the bill and its items in one transaction.
func (s *Store) Insert(ctx context.Context, bill *billing.Bill) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t := bill.Totals
		err := tx.QueryRow(ctx, `INSERT INTO bills (kind, number, bill_date, party_id, billing_address_id, shipping_address_id,
vehicle_details, payment_mode, due_date, buyer_order_no, terms_of_delivery,
taxable_amount, gst, transportation, round_off, grand_total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id, created_at, updated_at`,
			string(bill.Kind), bill.Number, bill.Date, bill.PartyID, bill.BillingAddressID, bill.ShippingAddressID,
			bill.VehicleDetails, string(bill.PaymentMode), bill.DueDate, bill.BuyerOrderNo, bill.TermsOfDelivery,
			Numeric(t.TaxableAmount), Numeric(t.GST), Numeric(t.Transportation), Numeric(t.RoundOff), Numeric(t.GrandTotal),
		).Scan(&bill.ID, &bill.CreatedAt, &bill.UpdatedAt)
		if err != nil {
			return err
		}
		return insertItems(ctx, tx, bill)
	})
	return mapError(err)
}

// Update rewrites the bill header and replaces its items.
func (s *Store) Update(ctx context.Context, bill *billing.Bill) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t := bill.Totals
		err := tx.QueryRow(ctx, `UPDATE bills SET number = $3, bill_date = $4, party_id = $5, billing_address_id = $6,
shipping_address_id = $7, vehicle_details = $8, payment_mode = $9, due_date = $10, buyer_order_no = $11,
terms_of_delivery = $12, taxable_amount = $13, gst = $14, transportation = $15, round_off = $16,
grand_total = $17, updated_at = now()
WHERE id = $1 AND kind = $2
RETURNING created_at, updated_at`,
			bill.ID, string(bill.Kind), bill.Number, bill.Date, bill.PartyID, bill.BillingAddressID, bill.ShippingAddressID,
			bill.VehicleDetails, string(bill.PaymentMode), bill.DueDate, bill.BuyerOrderNo, bill.TermsOfDelivery,
			Numeric(t.TaxableAmount), Numeric(t.GST), Numeric(t.Transportation), Numeric(t.RoundOff), Numeric(t.GrandTotal),
		).Scan(&bill.CreatedAt, &bill.UpdatedAt)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, bill.ID); err != nil {
			return err
		}
		return insertItems(ctx, tx, bill)
	})
	return mapError(err)
}

// Get loads a bill with its items.
func (s *Store) Get(ctx context.Context, kind billing.Kind, id int64) (billing.Bill, error) {
	if s == nil || s.pool == nil {
		return billing.Bill{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1 AND kind = $2`, id, string(kind))
	bill, err := scanBill(row)
	if err != nil {
		return billing.Bill{}, mapError(err)
	}
	items, err := s.loadItems(ctx, []int64{bill.ID})
	if err != nil {
		return billing.Bill{}, err
	}
	bill.Items = items[bill.ID]
	return bill, nil
}

// List returns bills newest first with the unpaginated count.
func (s *Store) List(ctx context.Context, filter billing.ListFilter) ([]billing.Bill, int, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	where, args := listWhere(filter)
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bills`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + billColumns + ` FROM bills` + where + ` ORDER BY bill_date DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bills := make([]billing.Bill, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, bill)
		ids = append(ids, bill.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return bills, total, nil
	}
	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range bills {
		bills[i].Items = items[bills[i].ID]
	}
	return bills, total, nil
}

// Delete removes a bill; items cascade.
func (s *Store) Delete(ctx context.Context, kind billing.Kind, id int64) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM bills WHERE id = $1 AND kind = $2`, id, string(kind))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrNotFound
	}
	return nil
}

// SumGST totals GST of bills of kind dated within [from, to).
func (s *Store) SumGST(ctx context.Context, kind billing.Kind, from, to time.Time) (decimal.Decimal, error) {
	if s == nil || s.pool == nil {
		return decimal.Zero, ErrStoreUnavailable
	}
	var sum pgtype.Numeric
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(gst), 0) FROM bills WHERE kind = $1 AND bill_date >= $2 AND bill_date < $3`,
		string(kind), from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return Decimal(sum), nil
}

const paymentColumns = `id, kind, party_id, payment_date, amount, mode, reference, remarks, created_at, updated_at`

// InsertPayment stores a payment.
func (s *Store) InsertPayment(ctx context.Context, p *billing.Payment) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	return s.pool.QueryRow(ctx, `INSERT INTO payments (kind, party_id, payment_date, amount, mode, reference, remarks)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at`,
		string(p.Kind), p.PartyID, p.Date, Numeric(p.Amount), string(p.Mode), p.Reference, p.Remarks,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// UpdatePayment rewrites a payment.
func (s *Store) UpdatePayment(ctx context.Context, p *billing.Payment) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	err := s.pool.QueryRow(ctx, `UPDATE payments SET party_id = $3, payment_date = $4, amount = $5, mode = $6,
reference = $7, remarks = $8, updated_at = now()
WHERE id = $1 AND kind = $2
RETURNING created_at, updated_at`,
		p.ID, string(p.Kind), p.PartyID, p.Date, Numeric(p.Amount), string(p.Mode), p.Reference, p.Remarks,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapPaymentError(err)
}

// GetPayment loads one payment.
func (s *Store) GetPayment(ctx context.Context, kind billing.Kind, id int64) (billing.Payment, error) {
	if s == nil || s.pool == nil {
		return billing.Payment{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND kind = $2`, id, string(kind))
	p, err := scanPayment(row)
	return p, mapPaymentError(err)
}

// ListPayments returns payments newest first with the unpaginated count.
func (s *Store) ListPayments(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, int, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	where, args := whereClause("payment_date", string(filter.Kind), filter.PartyID, filter.From, filter.To)
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM payments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + paymentColumns + ` FROM payments` + where + ` ORDER BY payment_date DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]billing.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// DeletePayment removes a payment.
func (s *Store) DeletePayment(ctx context.Context, kind billing.Kind, id int64) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM payments WHERE id = $1 AND kind = $2`, id, string(kind))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrPaymentNotFound
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	return s.pool.Ping(ctx)
}

// InsertEvent persists a domain event.
func (s *Store) InsertEvent(ctx context.Context, event events.Event) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)`, event.ID, event.Topic, event.AggregateID, []byte(event.Payload), event.OccurredAt)
	return err
}

func insertItems(ctx context.Context, tx pgx.Tx, bill *billing.Bill) error {
	for i := range bill.Items {
		it := &bill.Items[i]
		it.Serial = i + 1
		var itemID *int64
		if it.ItemID > 0 {
			v := it.ItemID
			itemID = &v
		}
		err := tx.QueryRow(ctx, `INSERT INTO bill_items (bill_id, serial, item_id, description, quantity, rate, amount)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			bill.ID, it.Serial, itemID, it.Description, Numeric(it.Quantity), Numeric(it.Rate), Numeric(it.Amount),
		).Scan(&it.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadItems(ctx context.Context, billIDs []int64) (map[int64][]billing.Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT bill_id, id, serial, item_id, description, quantity, rate, amount
FROM bill_items WHERE bill_id = ANY($1) ORDER BY bill_id, serial`, billIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]billing.Item, len(billIDs))
	for rows.Next() {
		var (
			billID              int64
			it                  billing.Item
			itemID              *int64
			quantity, rate, amt pgtype.Numeric
		)
		if err := rows.Scan(&billID, &it.ID, &it.Serial, &itemID, &it.Description, &quantity, &rate, &amt); err != nil {
			return nil, err
		}
		if itemID != nil {
			it.ItemID = *itemID
		}
		it.Quantity, it.Rate, it.Amount = Decimal(quantity), Decimal(rate), Decimal(amt)
		out[billID] = append(out[billID], it)
	}
	return out, rows.Err()
}

func scanBill(row pgx.Row) (billing.Bill, error) {
	var (
		b                                     billing.Bill
		kind, mode                            string
		taxable, gst, transport, round, grand pgtype.Numeric
	)
	err := row.Scan(&b.ID, &kind, &b.Number, &b.Date, &b.PartyID, &b.BillingAddressID, &b.ShippingAddressID,
		&b.VehicleDetails, &mode, &b.DueDate, &b.BuyerOrderNo, &b.TermsOfDelivery,
		&taxable, &gst, &transport, &round, &grand, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return billing.Bill{}, err
	}
	b.Kind = billing.Kind(kind)
	b.PaymentMode = billing.PaymentMode(mode)
	b.Totals = billing.Totals{
		TaxableAmount:  Decimal(taxable),
		GST:            Decimal(gst),
		Transportation: Decimal(transport),
		RoundOff:       Decimal(round),
		GrandTotal:     Decimal(grand),
	}
	return b, nil
}

func listWhere(f billing.ListFilter) (string, []any) {
	return whereClause("bill_date", string(f.Kind), f.PartyID, f.From, f.To)
}

// whereClause builds the shared kind/party/date-range filter of bills and payments.
func whereClause(dateColumn, kind string, partyID int64, from, to time.Time) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if kind != "" {
		add("kind = ?", kind)
	}
	if partyID > 0 {
		add("party_id = ?", partyID)
	}
	if !from.IsZero() {
		add(dateColumn+" >= ?", from)
	}
	if !to.IsZero() {
		add(dateColumn+" < ?", to)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanPayment(row pgx.Row) (billing.Payment, error) {
	var (
		p          billing.Payment
		kind, mode string
		amount     pgtype.Numeric
	)
	err := row.Scan(&p.ID, &kind, &p.PartyID, &p.Date, &amount, &mode, &p.Reference, &p.Remarks, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return billing.Payment{}, err
	}
	p.Kind = billing.Kind(kind)
	p.Mode = billing.PaymentMode(mode)
	p.Amount = Decimal(amount)
	return p, nil
}

func mapPaymentError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.ErrPaymentNotFound
	}
	return err
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return billing.ErrDuplicateNumber
	}
	return err
}
