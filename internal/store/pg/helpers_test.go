package pg

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
)

func TestNumericRoundTrip(t *testing.T) {
	for _, v := range []string{"0", "5900", "19180.00", "-0.92", "1.005", "123456789.12"} {
		d := decimal.RequireFromString(v)
		require.Truef(t, d.Equal(Decimal(Numeric(d))), "round trip %s", v)
	}
	require.True(t, Decimal(pgtype.Numeric{}).IsZero())
	require.True(t, Decimal(pgtype.Numeric{Valid: true, NaN: true}).IsZero())
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/billing?sslmode=disable", MigrateURL("postgres://u:p@db:5432/billing?sslmode=disable"))
	require.Equal(t, "pgx5://db/billing", MigrateURL("postgresql://db/billing"))
	require.Equal(t, "pgx5://db/billing", MigrateURL("pgx5://db/billing"))
}

func TestListWhere(t *testing.T) {
	where, args := listWhere(billing.ListFilter{})
	require.Empty(t, where)
	require.Empty(t, args)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	where, args = listWhere(billing.ListFilter{Kind: billing.KindSales, PartyID: 7, From: from, To: to})
	require.Equal(t, " WHERE kind = $1 AND party_id = $2 AND bill_date >= $3 AND bill_date < $4", where)
	require.Equal(t, []any{"sales", int64(7), from, to}, args)
}

func TestPaymentWhereUsesPaymentDate(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	where, args := whereClause("payment_date", "purchase", 0, from, time.Time{})
	require.Equal(t, " WHERE kind = $1 AND payment_date >= $2", where)
	require.Equal(t, []any{"purchase", from}, args)
}

func TestMapPaymentError(t *testing.T) {
	require.NoError(t, mapPaymentError(nil))
	require.ErrorIs(t, mapPaymentError(pgx.ErrNoRows), billing.ErrPaymentNotFound)
}

func TestMapError(t *testing.T) {
	require.NoError(t, mapError(nil))
	require.ErrorIs(t, mapError(pgx.ErrNoRows), billing.ErrNotFound)
	require.ErrorIs(t, mapError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})), billing.ErrDuplicateNumber)

	other := errors.New("boom")
	require.Equal(t, other, mapError(other))
}

func TestNilStoreIsUnavailable(t *testing.T) {
	var s *Store
	require.ErrorIs(t, s.Ping(t.Context()), ErrStoreUnavailable)
}
