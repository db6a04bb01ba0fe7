package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/cache"
	"github.com/noah-isme/backend-billing/internal/obs"
)

const (
	defaultTopLimit = 5
	maxTopLimit     = 50
)

// Source is the read side of the billing store. A zero Limit in either
// filter returns every match.
type Source interface {
	List(ctx context.Context, filter billing.ListFilter) ([]billing.Bill, int, error)
	ListPayments(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, int, error)
	SumGST(ctx context.Context, kind billing.Kind, from, to time.Time) (decimal.Decimal, error)
}

// Service derives party ledgers and dashboard figures from bills and
// payments. Results are cached under billing.ScopeLedger, which every bill
// and payment mutation retires.
type Service struct {
	Source Source
	Cache  *cache.Cache
	Logger zerolog.Logger
	Now    func() time.Time
}

// PartyLedger returns the party's bills and payments in date order with a
// running balance.
func (s *Service) PartyLedger(ctx context.Context, kind billing.Kind, partyID int64) (PartyLedger, error) {
	return cached(ctx, s, []string{"party", string(kind), strconv.FormatInt(partyID, 10)}, func() (PartyLedger, error) {
		bills, payments, err := s.load(ctx, kind, partyID)
		if err != nil {
			return PartyLedger{}, err
		}
		return buildLedger(kind, partyID, bills, payments), nil
	})
}

// Summaries returns one balance line per party with any bill or payment,
// ordered by party id.
func (s *Service) Summaries(ctx context.Context, kind billing.Kind) ([]Summary, error) {
	return cached(ctx, s, []string{"summary", string(kind)}, func() ([]Summary, error) {
		bills, payments, err := s.load(ctx, kind, 0)
		if err != nil {
			return nil, err
		}
		byParty := map[int64]*Summary{}
		line := func(id int64) *Summary {
			if sum, ok := byParty[id]; ok {
				return sum
			}
			sum := &Summary{PartyID: id, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
			byParty[id] = sum
			return sum
		}
		for _, b := range bills {
			sum := line(b.PartyID)
			sum.TotalDebit = sum.TotalDebit.Add(b.Totals.GrandTotal)
		}
		for _, p := range payments {
			sum := line(p.PartyID)
			sum.TotalCredit = sum.TotalCredit.Add(p.Amount)
		}
		out := make([]Summary, 0, len(byParty))
		for _, sum := range byParty {
			sum.Balance = sum.TotalDebit.Sub(sum.TotalCredit)
			out = append(out, *sum)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].PartyID < out[j].PartyID })
		return out, nil
	})
}

// Outstanding returns what is still owed on the party's account. A negative
// amount is an advance.
func (s *Service) Outstanding(ctx context.Context, kind billing.Kind, partyID int64) (Outstanding, error) {
	l, err := s.PartyLedger(ctx, kind, partyID)
	if err != nil {
		return Outstanding{}, err
	}
	return Outstanding{Kind: kind, PartyID: partyID, Amount: l.ClosingBalance}, nil
}

// MonthlyTotal sums grand totals of the kind's bills dated in the month.
func (s *Service) MonthlyTotal(ctx context.Context, kind billing.Kind, year, month int) (MonthlyTotal, error) {
	period, err := billing.MonthPeriod(year, month)
	if err != nil {
		return MonthlyTotal{}, invalidPeriod(err)
	}
	return cached(ctx, s, []string{"monthly", string(kind), period.Label}, func() (MonthlyTotal, error) {
		bills, _, err := s.Source.List(ctx, billing.ListFilter{Kind: kind, From: period.From, To: period.To})
		if err != nil {
			return MonthlyTotal{}, fmt.Errorf("ledger: list bills: %w", err)
		}
		out := MonthlyTotal{Year: year, Month: month, TotalAmount: decimal.Zero}
		for _, b := range bills {
			out.TotalAmount = out.TotalAmount.Add(b.Totals.GrandTotal)
			out.BillCount++
		}
		return out, nil
	})
}

// YearlyTrend returns twelve monthly points for the year, empty months
// included.
func (s *Service) YearlyTrend(ctx context.Context, kind billing.Kind, year int) (YearlyTrend, error) {
	if _, err := billing.MonthPeriod(year, 1); err != nil {
		return YearlyTrend{}, invalidPeriod(err)
	}
	return cached(ctx, s, []string{"trend", string(kind), strconv.Itoa(year)}, func() (YearlyTrend, error) {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		bills, _, err := s.Source.List(ctx, billing.ListFilter{Kind: kind, From: from, To: from.AddDate(1, 0, 0)})
		if err != nil {
			return YearlyTrend{}, fmt.Errorf("ledger: list bills: %w", err)
		}
		out := YearlyTrend{Year: year, Months: make([]MonthPoint, 12)}
		for i := range out.Months {
			m := time.Month(i + 1)
			out.Months[i] = MonthPoint{Month: int(m), MonthName: m.String(), Total: decimal.Zero}
		}
		for _, b := range bills {
			pt := &out.Months[b.Date.Month()-1]
			pt.Total = pt.Total.Add(b.Totals.GrandTotal)
			pt.Count++
		}
		return out, nil
	})
}

// TopParties ranks parties by billed amount, largest first. Ties go to the
// lower party id.
func (s *Service) TopParties(ctx context.Context, kind billing.Kind, limit int) ([]TopParty, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	return cached(ctx, s, []string{"top", string(kind), strconv.Itoa(limit)}, func() ([]TopParty, error) {
		bills, _, err := s.Source.List(ctx, billing.ListFilter{Kind: kind})
		if err != nil {
			return nil, fmt.Errorf("ledger: list bills: %w", err)
		}
		byParty := map[int64]*TopParty{}
		for _, b := range bills {
			tp, ok := byParty[b.PartyID]
			if !ok {
				tp = &TopParty{PartyID: b.PartyID, TotalAmount: decimal.Zero}
				byParty[b.PartyID] = tp
			}
			tp.TotalAmount = tp.TotalAmount.Add(b.Totals.GrandTotal)
			tp.BillCount++
		}
		out := make([]TopParty, 0, len(byParty))
		for _, tp := range byParty {
			out = append(out, *tp)
		}
		sort.Slice(out, func(i, j int) bool {
			if c := out[i].TotalAmount.Cmp(out[j].TotalAmount); c != 0 {
				return c > 0
			}
			return out[i].PartyID < out[j].PartyID
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

// Pending lists bills not yet covered by the party's payments. Payments
// settle a party's bills oldest first.
func (s *Service) Pending(ctx context.Context, kind billing.Kind) ([]PendingBill, error) {
	return cached(ctx, s, []string{"pending", string(kind)}, func() ([]PendingBill, error) {
		bills, payments, err := s.load(ctx, kind, 0)
		if err != nil {
			return nil, err
		}
		return allocate(bills, payments), nil
	})
}

// Summary returns the dashboard headline figures across all bills.
func (s *Service) Summary(ctx context.Context) (DashboardSummary, error) {
	now := s.now()
	month, err := billing.MonthPeriod(now.Year(), int(now.Month()))
	if err != nil {
		return DashboardSummary{}, err
	}
	return cached(ctx, s, []string{"dashboard", month.Label}, func() (DashboardSummary, error) {
		out := DashboardSummary{}
		taxable := map[billing.Kind]decimal.Decimal{}
		for _, kind := range billing.Kinds() {
			bills, payments, err := s.load(ctx, kind, 0)
			if err != nil {
				return DashboardSummary{}, err
			}
			total := decimal.Zero
			for _, b := range bills {
				total = total.Add(b.Totals.GrandTotal)
				taxable[kind] = taxable[kind].Add(b.Totals.TaxableAmount)
			}
			pending := decimal.Zero
			for _, p := range allocate(bills, payments) {
				pending = pending.Add(p.PendingAmount)
			}
			switch kind {
			case billing.KindPurchase:
				out.TotalPurchases, out.PendingPurchasePayments = total, pending
			case billing.KindSales:
				out.TotalSales, out.PendingSalesCollections = total, pending
			}
		}
		out.Profit = taxable[billing.KindSales].Sub(taxable[billing.KindPurchase])
		purchaseGST, err := s.Source.SumGST(ctx, billing.KindPurchase, month.From, month.To)
		if err != nil {
			return DashboardSummary{}, fmt.Errorf("ledger: sum purchase gst: %w", err)
		}
		salesGST, err := s.Source.SumGST(ctx, billing.KindSales, month.From, month.To)
		if err != nil {
			return DashboardSummary{}, fmt.Errorf("ledger: sum sales gst: %w", err)
		}
		out.CurrentMonthGSTLiability = salesGST.Sub(purchaseGST)
		return out, nil
	})
}

func (s *Service) load(ctx context.Context, kind billing.Kind, partyID int64) ([]billing.Bill, []billing.Payment, error) {
	bills, _, err := s.Source.List(ctx, billing.ListFilter{Kind: kind, PartyID: partyID})
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: list bills: %w", err)
	}
	payments, _, err := s.Source.ListPayments(ctx, billing.PaymentFilter{Kind: kind, PartyID: partyID})
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: list payments: %w", err)
	}
	return bills, payments, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// cached serves key from the cache or runs load and stores its result. The
// key is taken before load so a mutation during load retires the entry.
func cached[T any](ctx context.Context, s *Service, parts []string, load func() (T, error)) (T, error) {
	key, err := s.Cache.Key(ctx, billing.ScopeLedger, parts...)
	if err != nil {
		obs.CountReportCache("error")
		s.Logger.Warn().Err(err).Msg("ledger_cache_key_failed")
		key = ""
	}
	var out T
	if key != "" {
		ok, err := s.Cache.GetJSON(ctx, key, &out)
		switch {
		case err != nil:
			obs.CountReportCache("error")
			s.Logger.Warn().Err(err).Msg("ledger_cache_read_failed")
		case ok:
			obs.CountReportCache("hit")
			return out, nil
		default:
			obs.CountReportCache("miss")
		}
	}
	out, err = load()
	if err != nil {
		return out, err
	}
	if key != "" {
		if err := s.Cache.SetJSON(ctx, key, out); err != nil {
			s.Logger.Warn().Err(err).Msg("ledger_cache_write_failed")
		}
	}
	return out, nil
}
