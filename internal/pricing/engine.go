package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTaxBps is the flat GST rate (18%) expressed in basis points.
const DefaultTaxBps = 1800

const (
	// MoneyPlaces is the number of fractional digits kept for paise-level amounts.
	MoneyPlaces = 2
	bpsScale    = 10000
)

// ErrRoundOffOutOfRange is returned when a round-off override would move the grand
// total by a whole unit or more, or leave it fractional.
var ErrRoundOffOutOfRange = errors.New("pricing: round off must be below one unit and produce a whole grand total")

var (
	half = decimal.NewFromFloat(0.5)
	one  = decimal.NewFromInt(1)
)

// LineItem describes a bill line. Either Description (free-text purchase lines) or
// ItemID (catalog sales lines) identifies it.
type LineItem struct {
	Description string
	ItemID      int64
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
}

// Amount returns quantity * rate rounded to paise.
func (it LineItem) Amount() decimal.Decimal {
	return RoundHalfUp(it.Quantity.Mul(it.Rate), MoneyPlaces)
}

// Extras carries surcharges added after tax.
type Extras struct {
	Transportation decimal.Decimal
}

// Request is the wire-independent input of a calculation.
type Request struct {
	Items  []LineItem
	Extras Extras
}

// Result aggregates computed bill totals.
type Result struct {
	TaxableAmount     decimal.Decimal
	GST               decimal.Decimal
	Subtotal          decimal.Decimal
	Transportation    decimal.Decimal
	SuggestedRoundOff decimal.Decimal
	GrandTotal        decimal.Decimal
}

// Engine computes bill totals using a single flat tax rate.
type Engine struct {
	TaxBps int
}

// NewEngine returns an engine for the provided tax rate, falling back to 18%.
func NewEngine(taxBps int) Engine {
	if taxBps <= 0 {
		taxBps = DefaultTaxBps
	}
	return Engine{TaxBps: taxBps}
}

// Compute calculates bill totals with the default 18% GST rate.
func Compute(items []LineItem, extras Extras) Result {
	return NewEngine(DefaultTaxBps).Compute(items, extras)
}

// Compute calculates totals for the valid subset of items. Incomplete lines are
// skipped rather than rejected so partially edited bills still price.
func (e Engine) Compute(items []LineItem, extras Extras) Result {
	taxable := decimal.Zero
	for _, it := range items {
		if !Valid(it) {
			continue
		}
		taxable = taxable.Add(it.Amount())
	}
	gst := RoundHalfUp(taxable.Mul(e.rate()), MoneyPlaces)
	transportation := normaliseSurcharge(extras.Transportation)
	subtotal := taxable.Add(gst).Add(transportation)
	grand := RoundHalfUp(subtotal, 0)
	return Result{
		TaxableAmount:     taxable,
		GST:               gst,
		Subtotal:          subtotal,
		Transportation:    transportation,
		SuggestedRoundOff: grand.Sub(subtotal),
		GrandTotal:        grand,
	}
}

// Calculate is Compute over a Request.
func (e Engine) Calculate(req Request) Result {
	return e.Compute(req.Items, req.Extras)
}

func (e Engine) rate() decimal.Decimal {
	bps := e.TaxBps
	if bps <= 0 {
		bps = DefaultTaxBps
	}
	return decimal.New(int64(bps), 0).Div(decimal.New(bpsScale, 0))
}

// Valid reports whether the item participates in pricing.
func Valid(it LineItem) bool {
	if strings.TrimSpace(it.Description) == "" && it.ItemID <= 0 {
		return false
	}
	return it.Quantity.IsPositive() && !it.Rate.IsNegative()
}

// FilterValid returns the items that participate in pricing, preserving order.
func FilterValid(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		if Valid(it) {
			out = append(out, it)
		}
	}
	return out
}

// WithRoundOff replaces the suggested round off with a caller-chosen adjustment.
func (r Result) WithRoundOff(roundOff decimal.Decimal) (Result, error) {
	if roundOff.Abs().GreaterThanOrEqual(one) {
		return r, ErrRoundOffOutOfRange
	}
	grand := r.Subtotal.Add(roundOff)
	if !grand.Equal(grand.Truncate(0)) || grand.IsNegative() {
		return r, ErrRoundOffOutOfRange
	}
	r.SuggestedRoundOff = roundOff
	r.GrandTotal = grand
	return r, nil
}

// IsZero reports whether nothing was priced.
func (r Result) IsZero() bool {
	return r.TaxableAmount.IsZero() && r.Transportation.IsZero() && r.GrandTotal.IsZero()
}

// RoundHalfUp rounds d to the given number of decimal places, moving halves up.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

func normaliseSurcharge(v decimal.Decimal) decimal.Decimal {
	if !v.IsPositive() {
		return decimal.Zero
	}
	return RoundHalfUp(v, MoneyPlaces)
}
