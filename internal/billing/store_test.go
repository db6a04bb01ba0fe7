package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
)

func day(v string) time.Time {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMemoryStoreSequencesPerKindAndYear(t *testing.T) {
	s := billing.NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextSequence(ctx, billing.KindSales, 2024)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	got, err := s.NextSequence(ctx, billing.KindSales, 2025)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
	got, err = s.NextSequence(ctx, billing.KindPurchase, 2024)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
}

func TestMemoryStoreSalesNumbersUniquePerKind(t *testing.T) {
	s := billing.NewMemoryStore()
	ctx := context.Background()

	a := billing.Bill{Kind: billing.KindSales, Number: "SB/2024/00001", PartyID: 1, Date: day("2024-01-02")}
	require.NoError(t, s.Insert(ctx, &a))
	b := billing.Bill{Kind: billing.KindSales, Number: "sb/2024/00001", PartyID: 2, Date: day("2024-01-02")}
	require.ErrorIs(t, s.Insert(ctx, &b), billing.ErrDuplicateNumber)

	// the same number is fine on the other kind
	c := billing.Bill{Kind: billing.KindPurchase, Number: "SB/2024/00001", PartyID: 1, Date: day("2024-01-02")}
	require.NoError(t, s.Insert(ctx, &c))
}

func TestMemoryStoreUpdateKeepsCreatedAtAndChecksNumbers(t *testing.T) {
	s := billing.NewMemoryStore()
	ctx := context.Background()

	a := billing.Bill{Kind: billing.KindPurchase, Number: "A", PartyID: 1, Date: day("2024-01-02"),
		Items: []billing.Item{{Description: "x"}, {Description: "y"}}}
	require.NoError(t, s.Insert(ctx, &a))
	require.Equal(t, 1, a.Items[0].Serial)
	require.Equal(t, 2, a.Items[1].Serial)
	require.NotZero(t, a.Items[1].ID)

	b := billing.Bill{Kind: billing.KindPurchase, Number: "B", PartyID: 1, Date: day("2024-01-03")}
	require.NoError(t, s.Insert(ctx, &b))

	b.Number = "A"
	require.ErrorIs(t, s.Update(ctx, &b), billing.ErrDuplicateNumber)

	a.Number = "A2"
	created := a.CreatedAt
	require.NoError(t, s.Update(ctx, &a))
	got, err := s.Get(ctx, billing.KindPurchase, a.ID)
	require.NoError(t, err)
	require.Equal(t, "A2", got.Number)
	require.Equal(t, created, got.CreatedAt)

	missing := billing.Bill{ID: 999, Kind: billing.KindPurchase}
	require.ErrorIs(t, s.Update(ctx, &missing), billing.ErrNotFound)
}

func TestMemoryStoreListOrderingAndPaging(t *testing.T) {
	s := billing.NewMemoryStore()
	ctx := context.Background()

	dates := []string{"2024-01-05", "2024-01-07", "2024-01-07", "2024-01-01"}
	for i, d := range dates {
		b := billing.Bill{Kind: billing.KindSales, Number: string(rune('A' + i)), PartyID: int64(i%2 + 1), Date: day(d)}
		require.NoError(t, s.Insert(ctx, &b))
	}

	rows, total, err := s.List(ctx, billing.ListFilter{Kind: billing.KindSales, Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, []string{"C", "B"}, []string{rows[0].Number, rows[1].Number})

	rows, _, err = s.List(ctx, billing.ListFilter{Kind: billing.KindSales, Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "D"}, []string{rows[0].Number, rows[1].Number})

	rows, total, err = s.List(ctx, billing.ListFilter{Kind: billing.KindSales, Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Empty(t, rows)

	rows, total, err = s.List(ctx, billing.ListFilter{Kind: billing.KindSales, PartyID: 2, From: day("2024-01-06"), To: day("2024-01-08")})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "B", rows[0].Number)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := billing.NewMemoryStore()
	ctx := context.Background()
	b := billing.Bill{Kind: billing.KindSales, Number: "X", Date: day("2024-01-01"), Items: []billing.Item{{ItemID: 1}}}
	require.NoError(t, s.Insert(ctx, &b))

	got, err := s.Get(ctx, billing.KindSales, b.ID)
	require.NoError(t, err)
	got.Items[0].ItemID = 99

	again, err := s.Get(ctx, billing.KindSales, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), again.Items[0].ItemID)
}

func TestMemoryStoreSumGSTHalfOpenRange(t *testing.T) {
	s := billing.NewMemoryStore()
	ctx := context.Background()
	for i, d := range []string{"2024-02-29", "2024-03-01", "2024-03-31", "2024-04-01"} {
		b := billing.Bill{Kind: billing.KindSales, Number: d, PartyID: int64(i), Date: day(d), Totals: billing.Totals{GST: dec("10.5")}}
		require.NoError(t, s.Insert(ctx, &b))
	}
	sum, err := s.SumGST(ctx, billing.KindSales, day("2024-03-01"), day("2024-04-01"))
	require.NoError(t, err)
	require.True(t, dec("21").Equal(sum))

	sum, err = s.SumGST(ctx, billing.KindPurchase, day("2024-03-01"), day("2024-04-01"))
	require.NoError(t, err)
	require.True(t, sum.IsZero())
}

func TestPeriods(t *testing.T) {
	p, err := billing.MonthPeriod(2024, 12)
	require.NoError(t, err)
	require.Equal(t, "2024-12", p.Label)
	require.Equal(t, day("2025-01-01"), p.To)

	q, err := billing.QuarterPeriod(2024, 4)
	require.NoError(t, err)
	require.Equal(t, day("2024-10-01"), q.From)
	require.Equal(t, day("2025-01-01"), q.To)

	_, err = billing.MonthPeriod(2024, 13)
	require.Error(t, err)
	_, err = billing.QuarterPeriod(2024, 0)
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := billing.ParseKind(" Sales ")
	require.NoError(t, err)
	require.Equal(t, billing.KindSales, k)
	_, err = billing.ParseKind("refund")
	require.Error(t, err)
}
