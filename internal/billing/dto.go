package billing

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/pricing"
)

const dateLayout = "2006-01-02"

// ItemRequest is a bill line as sent by clients. Sales lines reference a
// catalog item; purchase lines carry a free-text description.
type ItemRequest struct {
	ItemID      int64           `json:"itemId" validate:"gte=0"`
	Description string          `json:"description" validate:"max=255"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0,lte=1000000"`
	Rate        decimal.Decimal `json:"rate" validate:"gte=0,lte=100000000"`
}

func (it ItemRequest) lineItem() pricing.LineItem {
	return pricing.LineItem{Description: it.Description, ItemID: it.ItemID, Quantity: it.Quantity, Rate: it.Rate}
}

// CalculateRequest is the body of the preview endpoints.
type CalculateRequest struct {
	Items          []ItemRequest    `json:"items" validate:"max=500"`
	Transportation *decimal.Decimal `json:"transportation,omitempty"`
}

// PricingRequest converts the payload to engine input.
func (r CalculateRequest) PricingRequest() pricing.Request {
	items := make([]pricing.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, it.lineItem())
	}
	var extras pricing.Extras
	if r.Transportation != nil {
		extras.Transportation = *r.Transportation
	}
	return pricing.Request{Items: items, Extras: extras}
}

// NewCalculateRequest builds the wire payload for an engine request.
func NewCalculateRequest(req pricing.Request) CalculateRequest {
	out := CalculateRequest{Items: make([]ItemRequest, 0, len(req.Items))}
	for _, it := range req.Items {
		out.Items = append(out.Items, ItemRequest{ItemID: it.ItemID, Description: it.Description, Quantity: it.Quantity, Rate: it.Rate})
	}
	if req.Extras.Transportation.IsPositive() {
		t := req.Extras.Transportation
		out.Transportation = &t
	}
	return out
}

// CalculationResponse is the preview result. Sales responses also carry
// totalTaxableAmount for older clients.
type CalculationResponse struct {
	TaxableAmount      json.Number `json:"taxableAmount"`
	TotalTaxableAmount json.Number `json:"totalTaxableAmount,omitempty"`
	GST                json.Number `json:"gst"`
	Transportation     json.Number `json:"transportation"`
	SuggestedRoundOff  json.Number `json:"suggestedRoundOff"`
	GrandTotal         json.Number `json:"grandTotal"`
}

// NewCalculationResponse renders a pricing result for the given kind.
func NewCalculationResponse(kind Kind, res pricing.Result) CalculationResponse {
	out := CalculationResponse{
		TaxableAmount:     money(res.TaxableAmount),
		GST:               money(res.GST),
		Transportation:    money(res.Transportation),
		SuggestedRoundOff: money(res.SuggestedRoundOff),
		GrandTotal:        money(res.GrandTotal),
	}
	if kind == KindSales {
		out.TotalTaxableAmount = out.TaxableAmount
	}
	return out
}

// Result parses the response back into engine types.
func (c CalculationResponse) Result() (pricing.Result, error) {
	var (
		res pricing.Result
		err error
	)
	taxable := c.TaxableAmount
	if taxable == "" {
		taxable = c.TotalTaxableAmount
	}
	fields := []struct {
		src json.Number
		dst *decimal.Decimal
	}{
		{taxable, &res.TaxableAmount},
		{c.GST, &res.GST},
		{c.Transportation, &res.Transportation},
		{c.SuggestedRoundOff, &res.SuggestedRoundOff},
		{c.GrandTotal, &res.GrandTotal},
	}
	for _, f := range fields {
		if f.src == "" {
			*f.dst = decimal.Zero
			continue
		}
		if *f.dst, err = decimal.NewFromString(f.src.String()); err != nil {
			return pricing.Result{}, err
		}
	}
	res.Subtotal = res.TaxableAmount.Add(res.GST).Add(res.Transportation)
	return res, nil
}

// BillRequest is the create/update payload. Either partyId or salesPartyId
// identifies the counterparty.
type BillRequest struct {
	BillNumber        string           `json:"billNumber" validate:"max=64"`
	BillDate          string           `json:"billDate" validate:"required,datetime=2006-01-02"`
	PartyID           int64            `json:"partyId" validate:"gte=0"`
	SalesPartyID      int64            `json:"salesPartyId" validate:"gte=0"`
	BillingAddressID  *int64           `json:"billingAddressId,omitempty" validate:"omitempty,gt=0"`
	ShippingAddressID *int64           `json:"shippingAddressId,omitempty" validate:"omitempty,gt=0"`
	VehicleDetails    string           `json:"vehicleDetails" validate:"max=128"`
	ModeOfPayment     string           `json:"modeOfPayment" validate:"omitempty,oneof=CASH CHEQUE UPI NEFT RTGS CREDIT"`
	DueDate           string           `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	BuyerOrderNo      string           `json:"buyerOrderNo" validate:"max=64"`
	TermsOfDelivery   string           `json:"termsOfDelivery" validate:"max=255"`
	Items             []ItemRequest    `json:"items" validate:"required,min=1,max=500,dive"`
	Transportation    *decimal.Decimal `json:"transportation,omitempty"`
	RoundOff          *decimal.Decimal `json:"roundOff,omitempty"`
}

// Party returns the effective counterparty id.
func (r BillRequest) Party() int64 {
	if r.PartyID > 0 {
		return r.PartyID
	}
	return r.SalesPartyID
}

// ItemResponse is a persisted bill line.
type ItemResponse struct {
	ID           int64       `json:"id"`
	SerialNumber int         `json:"serialNumber"`
	ItemID       int64       `json:"itemId,omitempty"`
	Description  string      `json:"description,omitempty"`
	Quantity     json.Number `json:"quantity"`
	Rate         json.Number `json:"rate"`
	Amount       json.Number `json:"amount"`
}

// BillResponse is the API representation of a bill.
type BillResponse struct {
	ID                int64          `json:"id"`
	Kind              Kind           `json:"kind"`
	BillNumber        string         `json:"billNumber"`
	BillDate          string         `json:"billDate"`
	PartyID           int64          `json:"partyId"`
	BillingAddressID  *int64         `json:"billingAddressId"`
	ShippingAddressID *int64         `json:"shippingAddressId"`
	VehicleDetails    string         `json:"vehicleDetails,omitempty"`
	ModeOfPayment     PaymentMode    `json:"modeOfPayment,omitempty"`
	DueDate           string         `json:"dueDate,omitempty"`
	BuyerOrderNo      string         `json:"buyerOrderNo,omitempty"`
	TermsOfDelivery   string         `json:"termsOfDelivery,omitempty"`
	Items             []ItemResponse `json:"items"`
	TaxableAmount     json.Number    `json:"taxableAmount"`
	GST               json.Number    `json:"gst"`
	Transportation    json.Number    `json:"transportation"`
	RoundOff          json.Number    `json:"roundOff"`
	GrandTotal        json.Number    `json:"grandTotal"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// NewBillResponse renders a bill.
func NewBillResponse(b Bill) BillResponse {
	out := BillResponse{
		ID:                b.ID,
		Kind:              b.Kind,
		BillNumber:        b.Number,
		BillDate:          b.Date.Format(dateLayout),
		PartyID:           b.PartyID,
		BillingAddressID:  b.BillingAddressID,
		ShippingAddressID: b.ShippingAddressID,
		VehicleDetails:    b.VehicleDetails,
		ModeOfPayment:     b.PaymentMode,
		BuyerOrderNo:      b.BuyerOrderNo,
		TermsOfDelivery:   b.TermsOfDelivery,
		Items:             make([]ItemResponse, 0, len(b.Items)),
		TaxableAmount:     money(b.Totals.TaxableAmount),
		GST:               money(b.Totals.GST),
		Transportation:    money(b.Totals.Transportation),
		RoundOff:          money(b.Totals.RoundOff),
		GrandTotal:        money(b.Totals.GrandTotal),
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
	if b.DueDate != nil {
		out.DueDate = b.DueDate.Format(dateLayout)
	}
	for _, it := range b.Items {
		out.Items = append(out.Items, ItemResponse{
			ID:           it.ID,
			SerialNumber: it.Serial,
			ItemID:       it.ItemID,
			Description:  it.Description,
			Quantity:     json.Number(it.Quantity.String()),
			Rate:         money(it.Rate),
			Amount:       money(it.Amount),
		})
	}
	return out
}

// LiabilityResponse is the GST liability report row.
type LiabilityResponse struct {
	Period      string          `json:"period"`
	PurchaseGST json.Number     `json:"purchaseGST"`
	SalesGST    json.Number     `json:"salesGST"`
	NetGST      json.Number     `json:"netGST"`
	Status      LiabilityStatus `json:"status"`
}

// NewLiabilityResponse renders a liability report.
func NewLiabilityResponse(l GSTLiability) LiabilityResponse {
	return LiabilityResponse{
		Period:      l.Period,
		PurchaseGST: money(l.PurchaseGST),
		SalesGST:    money(l.SalesGST),
		NetGST:      money(l.NetGST),
		Status:      l.Status,
	}
}

// PaymentRequest is the create/update payload of a payment. Sales clients
// send amountPaid, purchase clients send amount.
type PaymentRequest struct {
	PartyID              int64            `json:"partyId" validate:"required,gt=0"`
	PaymentDate          string           `json:"paymentDate" validate:"required,datetime=2006-01-02"`
	Amount               *decimal.Decimal `json:"amount,omitempty"`
	AmountPaid           *decimal.Decimal `json:"amountPaid,omitempty"`
	ModeOfPayment        string           `json:"modeOfPayment" validate:"required,oneof=CASH CHEQUE UPI NEFT RTGS"`
	TransactionReference string           `json:"transactionReference" validate:"max=128"`
	Remarks              string           `json:"remarks" validate:"max=255"`
}

// Value returns the effective amount; amount wins over amountPaid.
func (r PaymentRequest) Value() (decimal.Decimal, bool) {
	switch {
	case r.Amount != nil:
		return *r.Amount, true
	case r.AmountPaid != nil:
		return *r.AmountPaid, true
	}
	return decimal.Zero, false
}

// PaymentResponse is the API representation of a payment.
type PaymentResponse struct {
	ID                   int64       `json:"id"`
	Kind                 Kind        `json:"kind"`
	PartyID              int64       `json:"partyId"`
	PaymentDate          string      `json:"paymentDate"`
	Amount               json.Number `json:"amount"`
	AmountPaid           json.Number `json:"amountPaid,omitempty"`
	ModeOfPayment        PaymentMode `json:"modeOfPayment"`
	TransactionReference *string     `json:"transactionReference"`
	Remarks              *string     `json:"remarks"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

// NewPaymentResponse renders a payment. Sales payments repeat the amount as
// amountPaid.
func NewPaymentResponse(p Payment) PaymentResponse {
	out := PaymentResponse{
		ID:            p.ID,
		Kind:          p.Kind,
		PartyID:       p.PartyID,
		PaymentDate:   p.Date.Format(dateLayout),
		Amount:        money(p.Amount),
		ModeOfPayment: p.Mode,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.Kind == KindSales {
		out.AmountPaid = out.Amount
	}
	if p.Reference != "" {
		ref := p.Reference
		out.TransactionReference = &ref
	}
	if p.Remarks != "" {
		remarks := p.Remarks
		out.Remarks = &remarks
	}
	return out
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(pricing.MoneyPlaces))
}
