package ledger

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

const dateLayout = "2006-01-02"

type EntryResponse struct {
	Date      string      `json:"date"`
	Type      string      `json:"type"`
	ID        int64       `json:"id"`
	Reference string      `json:"reference"`
	Debit     json.Number `json:"debit"`
	Credit    json.Number `json:"credit"`
	Balance   json.Number `json:"balance"`
}

type PartyLedgerResponse struct {
	Kind           billing.Kind    `json:"kind"`
	PartyID        int64           `json:"partyId"`
	Transactions   []EntryResponse `json:"transactions"`
	TotalDebit     json.Number     `json:"totalDebit"`
	TotalCredit    json.Number     `json:"totalCredit"`
	ClosingBalance json.Number     `json:"closingBalance"`
}

func NewPartyLedgerResponse(l PartyLedger) PartyLedgerResponse {
	out := PartyLedgerResponse{
		Kind:           l.Kind,
		PartyID:        l.PartyID,
		Transactions:   make([]EntryResponse, 0, len(l.Entries)),
		TotalDebit:     money(l.TotalDebit),
		TotalCredit:    money(l.TotalCredit),
		ClosingBalance: money(l.ClosingBalance),
	}
	for _, e := range l.Entries {
		out.Transactions = append(out.Transactions, EntryResponse{
			Date:      e.Date.Format(dateLayout),
			Type:      e.Type,
			ID:        e.ID,
			Reference: e.Reference,
			Debit:     money(e.Debit),
			Credit:    money(e.Credit),
			Balance:   money(e.Balance),
		})
	}
	return out
}

type SummaryResponse struct {
	PartyID     int64       `json:"partyId"`
	TotalDebit  json.Number `json:"totalDebit"`
	TotalCredit json.Number `json:"totalCredit"`
	Balance     json.Number `json:"balance"`
}

type OutstandingResponse struct {
	Kind        billing.Kind `json:"kind"`
	PartyID     int64        `json:"partyId"`
	Outstanding json.Number  `json:"outstanding"`
}

type MonthlyTotalResponse struct {
	Year        int         `json:"year"`
	Month       int         `json:"month"`
	TotalAmount json.Number `json:"totalAmount"`
	BillCount   int         `json:"billCount"`
}

type MonthPointResponse struct {
	Month     int         `json:"month"`
	MonthName string      `json:"monthName"`
	Total     json.Number `json:"total"`
	Count     int         `json:"count"`
}

type YearlyTrendResponse struct {
	Year        int                  `json:"year"`
	MonthlyData []MonthPointResponse `json:"monthlyData"`
}

type TopPartyResponse struct {
	PartyID     int64       `json:"partyId"`
	TotalAmount json.Number `json:"totalAmount"`
	BillCount   int         `json:"billCount"`
}

type PendingResponse struct {
	BillID        int64       `json:"billId"`
	BillNumber    string      `json:"billNumber"`
	BillDate      string      `json:"billDate"`
	PartyID       int64       `json:"partyId"`
	TotalAmount   json.Number `json:"totalAmount"`
	PaidAmount    json.Number `json:"paidAmount"`
	PendingAmount json.Number `json:"pendingAmount"`
}

type DashboardSummaryResponse struct {
	TotalPurchases           json.Number `json:"totalPurchases"`
	TotalSales               json.Number `json:"totalSales"`
	Profit                   json.Number `json:"profit"`
	PendingPurchasePayments  json.Number `json:"pendingPurchasePayments"`
	PendingSalesCollections  json.Number `json:"pendingSalesCollections"`
	CurrentMonthGSTLiability json.Number `json:"currentMonthGSTLiability"`
}

func summaryRows(in []Summary) []SummaryResponse {
	out := make([]SummaryResponse, 0, len(in))
	for _, s := range in {
		out = append(out, SummaryResponse{
			PartyID:     s.PartyID,
			TotalDebit:  money(s.TotalDebit),
			TotalCredit: money(s.TotalCredit),
			Balance:     money(s.Balance),
		})
	}
	return out
}

func trendResponse(t YearlyTrend) YearlyTrendResponse {
	out := YearlyTrendResponse{Year: t.Year, MonthlyData: make([]MonthPointResponse, 0, len(t.Months))}
	for _, m := range t.Months {
		out.MonthlyData = append(out.MonthlyData, MonthPointResponse{
			Month:     m.Month,
			MonthName: m.MonthName,
			Total:     money(m.Total),
			Count:     m.Count,
		})
	}
	return out
}

func topRows(in []TopParty) []TopPartyResponse {
	out := make([]TopPartyResponse, 0, len(in))
	for _, tp := range in {
		out = append(out, TopPartyResponse{PartyID: tp.PartyID, TotalAmount: money(tp.TotalAmount), BillCount: tp.BillCount})
	}
	return out
}

func pendingRows(in []PendingBill) []PendingResponse {
	out := make([]PendingResponse, 0, len(in))
	for _, p := range in {
		out = append(out, PendingResponse{
			BillID:        p.BillID,
			BillNumber:    p.BillNumber,
			BillDate:      p.BillDate.Format(dateLayout),
			PartyID:       p.PartyID,
			TotalAmount:   money(p.TotalAmount),
			PaidAmount:    money(p.PaidAmount),
			PendingAmount: money(p.PendingAmount),
		})
	}
	return out
}

func dashboardResponse(d DashboardSummary) DashboardSummaryResponse {
	return DashboardSummaryResponse{
		TotalPurchases:           money(d.TotalPurchases),
		TotalSales:               money(d.TotalSales),
		Profit:                   money(d.Profit),
		PendingPurchasePayments:  money(d.PendingPurchasePayments),
		PendingSalesCollections:  money(d.PendingSalesCollections),
		CurrentMonthGSTLiability: money(d.CurrentMonthGSTLiability),
	}
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(pricing.MoneyPlaces))
}
