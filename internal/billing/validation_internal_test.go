package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCheckLinesReportsIncompleteLinePerLine(t *testing.T) {
	items := []ItemRequest{
		{Description: "Cement", Quantity: decimal.RequireFromString("1.2345"), Rate: decimal.NewFromInt(5)},
		{Description: "Sand", Quantity: decimal.Zero, Rate: decimal.NewFromInt(5)},
	}
	fields := checkLines(KindPurchase, items)
	require.Equal(t, []FieldError{
		{Field: "items[0].quantity", Rule: "max_scale=3"},
		{Field: "items[1]", Rule: "incomplete"},
	}, fields)
}

func TestCheckLinesSkipsIncompleteWhenLineHasOtherErrors(t *testing.T) {
	items := []ItemRequest{{Quantity: decimal.Zero, Rate: decimal.NewFromInt(5)}}
	fields := checkLines(KindSales, items)
	require.Equal(t, []FieldError{{Field: "items[0].itemId", Rule: "required"}}, fields)
}
