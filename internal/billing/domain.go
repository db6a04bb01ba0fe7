package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a bill does not exist for the requested kind.
	ErrNotFound = errors.New("billing: bill not found")
	// ErrDuplicateNumber is returned when a bill number is already taken.
	ErrDuplicateNumber = errors.New("billing: duplicate bill number")
	// ErrPaymentNotFound is returned when a payment does not exist for the requested kind.
	ErrPaymentNotFound = errors.New("billing: payment not found")
)

// Kind distinguishes vendor (purchase) bills from customer (sales) bills.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSales    Kind = "sales"
)

// Kinds lists every bill kind.
func Kinds() []Kind { return []Kind{KindPurchase, KindSales} }

// ParseKind validates a kind taken from a URL or payload.
func ParseKind(v string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(v))) {
	case KindPurchase:
		return KindPurchase, nil
	case KindSales:
		return KindSales, nil
	}
	return "", fmt.Errorf("billing: unknown bill kind %q", v)
}

// PaymentMode is the settlement channel recorded on a bill.
type PaymentMode string

const (
	PaymentCash   PaymentMode = "CASH"
	PaymentCheque PaymentMode = "CHEQUE"
	PaymentUPI    PaymentMode = "UPI"
	PaymentNEFT   PaymentMode = "NEFT"
	PaymentRTGS   PaymentMode = "RTGS"
	PaymentCredit PaymentMode = "CREDIT"
)

// PaymentModes lists the supported channels.
func PaymentModes() []PaymentMode {
	return []PaymentMode{PaymentCash, PaymentCheque, PaymentUPI, PaymentNEFT, PaymentRTGS, PaymentCredit}
}

// Valid reports whether the mode is one of the supported channels. Empty is allowed.
func (m PaymentMode) Valid() bool {
	switch m {
	case "", PaymentCash, PaymentCheque, PaymentUPI, PaymentNEFT, PaymentRTGS, PaymentCredit:
		return true
	}
	return false
}

// Settles reports whether the mode can record money changing hands. CREDIT
// describes bill terms and is not accepted on payments.
func (m PaymentMode) Settles() bool {
	return m != "" && m != PaymentCredit && m.Valid()
}

// Item is a persisted bill line.
type Item struct {
	ID          int64
	Serial      int
	ItemID      int64
	Description string
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
	Amount      decimal.Decimal
}

// Totals are always derived from the item list; they are never accepted from clients.
type Totals struct {
	TaxableAmount  decimal.Decimal
	GST            decimal.Decimal
	Transportation decimal.Decimal
	RoundOff       decimal.Decimal
	GrandTotal     decimal.Decimal
}

// Bill is a purchase or sales invoice.
type Bill struct {
	ID                int64
	Kind              Kind
	Number            string
	Date              time.Time
	PartyID           int64
	BillingAddressID  *int64
	ShippingAddressID *int64
	VehicleDetails    string
	PaymentMode       PaymentMode
	DueDate           *time.Time
	BuyerOrderNo      string
	TermsOfDelivery   string
	Items             []Item
	Totals            Totals
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ListFilter narrows bill listings. Zero values mean "no constraint".
type ListFilter struct {
	Kind    Kind
	PartyID int64
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}

// Offset returns the row offset for the page.
func (f ListFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Page is a slice of bills plus the unpaginated total.
type Page struct {
	Items []Bill
	Total int
	Page  int
	Limit int
}

// Payment is money paid to a vendor (purchase) or collected from a customer
// (sales). Payments are recorded against the party, not a single bill.
type Payment struct {
	ID        int64
	Kind      Kind
	PartyID   int64
	Date      time.Time
	Amount    decimal.Decimal
	Mode      PaymentMode
	Reference string
	Remarks   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentFilter narrows payment listings. Zero values mean "no constraint";
// a zero Limit returns every match.
type PaymentFilter struct {
	Kind    Kind
	PartyID int64
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}

// Offset returns the row offset for the page.
func (f PaymentFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// PaymentPage is a slice of payments plus the unpaginated total.
type PaymentPage struct {
	Items []Payment
	Total int
	Page  int
	Limit int
}

// Period is a half-open date range [From, To) used by GST reports.
type Period struct {
	Label string
	From  time.Time
	To    time.Time
}

// MonthPeriod returns the calendar month period.
func MonthPeriod(year, month int) (Period, error) {
	if year < 2000 || year > 9999 {
		return Period{}, fmt.Errorf("billing: year %d out of range", year)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("billing: month %d out of range", month)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return Period{Label: from.Format("2006-01"), From: from, To: from.AddDate(0, 1, 0)}, nil
}

// QuarterPeriod returns the calendar quarter period (Q1 = January to March).
func QuarterPeriod(year, quarter int) (Period, error) {
	if quarter < 1 || quarter > 4 {
		return Period{}, fmt.Errorf("billing: quarter %d out of range", quarter)
	}
	p, err := MonthPeriod(year, (quarter-1)*3+1)
	if err != nil {
		return Period{}, err
	}
	return Period{Label: fmt.Sprintf("%d-Q%d", year, quarter), From: p.From, To: p.From.AddDate(0, 3, 0)}, nil
}

// LiabilityStatus says whether net GST is owed or reclaimable.
type LiabilityStatus string

const (
	LiabilityPayable    LiabilityStatus = "PAYABLE"
	LiabilityRefundable LiabilityStatus = "REFUNDABLE"
)

// GSTLiability nets output GST (sales) against input GST (purchases).
type GSTLiability struct {
	Period      string
	PurchaseGST decimal.Decimal
	SalesGST    decimal.Decimal
	NetGST      decimal.Decimal
	Status      LiabilityStatus
}

// NewGSTLiability derives net and status from the two sides.
func NewGSTLiability(period string, purchaseGST, salesGST decimal.Decimal) GSTLiability {
	net := salesGST.Sub(purchaseGST)
	status := LiabilityPayable
	if net.IsNegative() {
		status = LiabilityRefundable
	}
	return GSTLiability{Period: period, PurchaseGST: purchaseGST, SalesGST: salesGST, NetGST: net, Status: status}
}
