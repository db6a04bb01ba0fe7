// Package ledger derives party ledgers and dashboard figures from stored
// bills and payments.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
)

// Entry types.
const (
	EntryBill    = "BILL"
	EntryPayment = "PAYMENT"
)

// Entry is one ledger line. Bills debit the party account, payments credit it.
type Entry struct {
	Date      time.Time
	Type      string
	ID        int64
	Reference string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Balance   decimal.Decimal
}

// PartyLedger is a party's account history for one kind.
type PartyLedger struct {
	Kind           billing.Kind
	PartyID        int64
	Entries        []Entry
	TotalDebit     decimal.Decimal
	TotalCredit    decimal.Decimal
	ClosingBalance decimal.Decimal
}

// Summary is a party's ledger totals without the entries.
type Summary struct {
	PartyID     int64
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Balance     decimal.Decimal
}

// Outstanding is a party's closing balance.
type Outstanding struct {
	Kind    billing.Kind
	PartyID int64
	Amount  decimal.Decimal
}

// MonthlyTotal is the billed amount of one calendar month.
type MonthlyTotal struct {
	Year        int
	Month       int
	TotalAmount decimal.Decimal
	BillCount   int
}

// MonthPoint is one month of a yearly trend.
type MonthPoint struct {
	Month     int
	MonthName string
	Total     decimal.Decimal
	Count     int
}

// YearlyTrend holds January through December of one year.
type YearlyTrend struct {
	Year   int
	Months []MonthPoint
}

// TopParty is a party ranked by billed amount.
type TopParty struct {
	PartyID     int64
	TotalAmount decimal.Decimal
	BillCount   int
}

// PendingBill is a bill with an unpaid remainder.
type PendingBill struct {
	BillID        int64
	BillNumber    string
	BillDate      time.Time
	PartyID       int64
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	PendingAmount decimal.Decimal
}

// DashboardSummary holds the headline figures. Profit is sales taxable
// value less purchase taxable value; GST is passed through and excluded.
type DashboardSummary struct {
	TotalPurchases           decimal.Decimal
	TotalSales               decimal.Decimal
	Profit                   decimal.Decimal
	PendingPurchasePayments  decimal.Decimal
	PendingSalesCollections  decimal.Decimal
	CurrentMonthGSTLiability decimal.Decimal
}

// buildLedger orders entries by date. On the same date bills precede
// payments, then lower ids come first.
func buildLedger(kind billing.Kind, partyID int64, bills []billing.Bill, payments []billing.Payment) PartyLedger {
	entries := make([]Entry, 0, len(bills)+len(payments))
	for _, b := range bills {
		entries = append(entries, Entry{
			Date:      b.Date,
			Type:      EntryBill,
			ID:        b.ID,
			Reference: b.Number,
			Debit:     b.Totals.GrandTotal,
			Credit:    decimal.Zero,
		})
	}
	for _, p := range payments {
		ref := p.Reference
		if ref == "" {
			ref = string(p.Mode)
		}
		entries = append(entries, Entry{
			Date:      p.Date,
			Type:      EntryPayment,
			ID:        p.ID,
			Reference: ref,
			Debit:     decimal.Zero,
			Credit:    p.Amount,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Type != b.Type {
			return a.Type == EntryBill
		}
		return a.ID < b.ID
	})

	out := PartyLedger{
		Kind:        kind,
		PartyID:     partyID,
		Entries:     entries,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	balance := decimal.Zero
	for i := range entries {
		balance = balance.Add(entries[i].Debit).Sub(entries[i].Credit)
		entries[i].Balance = balance
		out.TotalDebit = out.TotalDebit.Add(entries[i].Debit)
		out.TotalCredit = out.TotalCredit.Add(entries[i].Credit)
	}
	out.ClosingBalance = balance
	return out
}

// allocate applies each party's total payments to its bills oldest first and
// returns the bills left with a remainder, oldest first across parties.
func allocate(bills []billing.Bill, payments []billing.Payment) []PendingBill {
	paid := map[int64]decimal.Decimal{}
	for _, p := range payments {
		paid[p.PartyID] = paid[p.PartyID].Add(p.Amount)
	}
	ordered := append([]billing.Bill(nil), bills...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})

	out := []PendingBill{}
	for _, b := range ordered {
		total := b.Totals.GrandTotal
		credit := paid[b.PartyID]
		applied := decimal.Min(credit, total)
		if applied.IsNegative() {
			applied = decimal.Zero
		}
		paid[b.PartyID] = credit.Sub(applied)
		remainder := total.Sub(applied)
		if !remainder.IsPositive() {
			continue
		}
		out = append(out, PendingBill{
			BillID:        b.ID,
			BillNumber:    b.Number,
			BillDate:      b.Date,
			PartyID:       b.PartyID,
			TotalAmount:   total,
			PaidAmount:    applied,
			PendingAmount: remainder,
		})
	}
	return out
}

func invalidPeriod(err error) error {
	return common.BadRequest(err.Error(), err)
}
