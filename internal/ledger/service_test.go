package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/cache"
	"github.com/noah-isme/backend-billing/internal/ledger"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

type fixture struct {
	billing *billing.Service
	ledger  *ledger.Service
}

func newFixture(t *testing.T, withCache bool) fixture {
	t.Helper()
	store := billing.NewMemoryStore()
	var c *cache.Cache
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		c = cache.New(client, time.Minute, "test")
	}
	return fixture{
		billing: &billing.Service{
			Store:    store,
			Engine:   pricing.NewEngine(pricing.DefaultTaxBps),
			Validate: billing.NewValidator(),
			Cache:    c,
		},
		ledger: &ledger.Service{
			Source: store,
			Cache:  c,
			Now:    func() time.Time { return time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC) },
		},
	}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// purchase creates a purchase bill whose grand total is 1.18 * qty * rate.
func (f fixture) purchase(t *testing.T, number string, party int64, date, qty, rate string) billing.Bill {
	t.Helper()
	b, err := f.billing.Create(context.Background(), billing.KindPurchase, billing.BillRequest{
		BillNumber: number,
		BillDate:   date,
		PartyID:    party,
		Items:      []billing.ItemRequest{{Description: "Cement", Quantity: dec(qty), Rate: dec(rate)}},
	})
	require.NoError(t, err)
	return b
}

func (f fixture) sale(t *testing.T, party int64, date, qty, rate string) billing.Bill {
	t.Helper()
	b, err := f.billing.Create(context.Background(), billing.KindSales, billing.BillRequest{
		BillDate:      date,
		SalesPartyID:  party,
		ModeOfPayment: "CREDIT",
		Items:         []billing.ItemRequest{{ItemID: 1, Quantity: dec(qty), Rate: dec(rate)}},
	})
	require.NoError(t, err)
	return b
}

func (f fixture) pay(t *testing.T, kind billing.Kind, party int64, date, amount string) billing.Payment {
	t.Helper()
	a := dec(amount)
	p, err := f.billing.CreatePayment(context.Background(), kind, billing.PaymentRequest{
		PartyID:       party,
		PaymentDate:   date,
		Amount:        &a,
		ModeOfPayment: "CASH",
	})
	require.NoError(t, err)
	return p
}

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s got %s", want, got)
}

func TestPartyLedgerRunningBalance(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.pay(t, billing.KindPurchase, 3, "2024-03-01", "500")
	f.purchase(t, "V-2", 3, "2024-03-05", "10", "100") // 1180
	f.purchase(t, "V-1", 3, "2024-03-01", "10", "200") // 2360
	f.pay(t, billing.KindPurchase, 3, "2024-03-06", "1000")
	f.purchase(t, "V-9", 4, "2024-03-02", "1", "1")

	l, err := f.ledger.PartyLedger(ctx, billing.KindPurchase, 3)
	require.NoError(t, err)
	require.Len(t, l.Entries, 4)

	// same date: the bill is listed before the payment
	require.Equal(t, ledger.EntryBill, l.Entries[0].Type)
	require.Equal(t, "V-1", l.Entries[0].Reference)
	require.Equal(t, ledger.EntryPayment, l.Entries[1].Type)
	require.Equal(t, "CASH", l.Entries[1].Reference)
	requireDec(t, "2360", l.Entries[0].Balance)
	requireDec(t, "1860", l.Entries[1].Balance)
	requireDec(t, "3040", l.Entries[2].Balance)
	requireDec(t, "2040", l.Entries[3].Balance)

	requireDec(t, "3540", l.TotalDebit)
	requireDec(t, "1500", l.TotalCredit)
	requireDec(t, "2040", l.ClosingBalance)

	out, err := f.ledger.Outstanding(ctx, billing.KindPurchase, 3)
	require.NoError(t, err)
	requireDec(t, "2040", out.Amount)
}

func TestPartyLedgerEmptyParty(t *testing.T) {
	f := newFixture(t, false)
	l, err := f.ledger.PartyLedger(context.Background(), billing.KindSales, 99)
	require.NoError(t, err)
	require.Empty(t, l.Entries)
	requireDec(t, "0", l.ClosingBalance)
}

func TestSummariesPerParty(t *testing.T) {
	f := newFixture(t, false)
	f.sale(t, 9, "2024-03-02", "1", "1000") // 1180
	f.sale(t, 7, "2024-03-03", "2", "1000") // 2360
	f.pay(t, billing.KindSales, 7, "2024-03-04", "360")
	f.pay(t, billing.KindSales, 8, "2024-03-04", "50")

	rows, err := f.ledger.Summaries(context.Background(), billing.KindSales)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []int64{7, 8, 9}, []int64{rows[0].PartyID, rows[1].PartyID, rows[2].PartyID})
	requireDec(t, "2000", rows[0].Balance)
	requireDec(t, "-50", rows[1].Balance)
	requireDec(t, "1180", rows[2].Balance)
}

func TestPendingAllocatesOldestFirst(t *testing.T) {
	f := newFixture(t, false)
	older := f.purchase(t, "A-1", 3, "2024-01-10", "10", "100") // 1180
	newer := f.purchase(t, "A-2", 3, "2024-02-10", "10", "100") // 1180
	f.purchase(t, "B-1", 4, "2024-01-05", "1", "100")           // 118
	f.pay(t, billing.KindPurchase, 3, "2024-03-01", "1500")
	f.pay(t, billing.KindPurchase, 4, "2024-03-01", "118")

	rows, err := f.ledger.Pending(context.Background(), billing.KindPurchase)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, newer.ID, rows[0].BillID)
	require.NotEqual(t, older.ID, rows[0].BillID)
	requireDec(t, "320", rows[0].PaidAmount)
	requireDec(t, "860", rows[0].PendingAmount)
	requireDec(t, "1180", rows[0].TotalAmount)
}

func TestMonthlyTotalAndTrend(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.sale(t, 7, "2024-03-02", "1", "1000")
	f.sale(t, 8, "2024-03-31", "1", "500")
	f.sale(t, 7, "2024-04-01", "1", "100")
	f.sale(t, 7, "2023-12-31", "1", "100")

	m, err := f.ledger.MonthlyTotal(ctx, billing.KindSales, 2024, 3)
	require.NoError(t, err)
	require.Equal(t, 2, m.BillCount)
	requireDec(t, "1770", m.TotalAmount)

	trend, err := f.ledger.YearlyTrend(ctx, billing.KindSales, 2024)
	require.NoError(t, err)
	require.Len(t, trend.Months, 12)
	require.Equal(t, "January", trend.Months[0].MonthName)
	require.Zero(t, trend.Months[0].Count)
	require.Equal(t, 2, trend.Months[2].Count)
	requireDec(t, "118", trend.Months[3].Total)

	_, err = f.ledger.MonthlyTotal(ctx, billing.KindSales, 2024, 13)
	require.Error(t, err)
	_, err = f.ledger.YearlyTrend(ctx, billing.KindSales, 1999)
	require.Error(t, err)
}

func TestTopPartiesRanksAndLimits(t *testing.T) {
	f := newFixture(t, false)
	f.purchase(t, "A", 5, "2024-03-01", "1", "100")
	f.purchase(t, "B", 3, "2024-03-01", "1", "300")
	f.purchase(t, "C", 4, "2024-03-01", "1", "300")
	f.purchase(t, "D", 5, "2024-03-02", "1", "100")

	rows, err := f.ledger.TopParties(context.Background(), billing.KindPurchase, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(3), rows[0].PartyID)
	require.Equal(t, int64(4), rows[1].PartyID)

	rows, err = f.ledger.TopParties(context.Background(), billing.KindPurchase, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, 2, rows[2].BillCount)
}

func TestDashboardSummary(t *testing.T) {
	f := newFixture(t, false)
	f.purchase(t, "P-1", 3, "2024-02-10", "10", "100") // taxable 1000, gst 180
	f.purchase(t, "P-2", 3, "2024-03-10", "10", "50")  // taxable 500, gst 90
	f.sale(t, 7, "2024-03-11", "10", "300")            // taxable 3000, gst 540
	f.pay(t, billing.KindPurchase, 3, "2024-03-12", "1180")
	f.pay(t, billing.KindSales, 7, "2024-03-12", "3000")

	d, err := f.ledger.Summary(context.Background())
	require.NoError(t, err)
	requireDec(t, "1770", d.TotalPurchases)
	requireDec(t, "3540", d.TotalSales)
	requireDec(t, "1500", d.Profit)
	requireDec(t, "590", d.PendingPurchasePayments)
	requireDec(t, "540", d.PendingSalesCollections)
	requireDec(t, "450", d.CurrentMonthGSTLiability)
}

func TestLedgerCacheRetiredByMutations(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.purchase(t, "V-1", 3, "2024-03-01", "10", "100")

	l, err := f.ledger.PartyLedger(ctx, billing.KindPurchase, 3)
	require.NoError(t, err)
	requireDec(t, "1180", l.ClosingBalance)

	p := f.pay(t, billing.KindPurchase, 3, "2024-03-02", "180")
	l, err = f.ledger.PartyLedger(ctx, billing.KindPurchase, 3)
	require.NoError(t, err)
	requireDec(t, "1000", l.ClosingBalance)
	require.True(t, l.Entries[1].Date.Equal(p.Date))

	f.purchase(t, "V-2", 3, "2024-03-03", "1", "100")
	l, err = f.ledger.PartyLedger(ctx, billing.KindPurchase, 3)
	require.NoError(t, err)
	requireDec(t, "1118", l.ClosingBalance)

	require.NoError(t, f.billing.DeletePayment(ctx, billing.KindPurchase, p.ID))
	l, err = f.ledger.PartyLedger(ctx, billing.KindPurchase, 3)
	require.NoError(t, err)
	requireDec(t, "1298", l.ClosingBalance)
}
