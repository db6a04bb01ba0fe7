package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/app"
	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/obs"
)

var materials = []string{"Cement OPC 53", "River sand", "TMT bar 12mm", "Fly ash bricks", "Aggregate 20mm", "Binding wire"}

func main() {
	months := flag.Int("months", 3, "number of past months to seed, including the current one")
	perMonth := flag.Int("per-month", 5, "bills of each kind per month")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seeder: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()
	if !cfg.UsesPostgres() {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx := context.Background()
	deps, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	rng := rand.New(rand.NewPCG(*seed, *seed))
	created, err := seedBills(ctx, deps.Billing, rng, time.Now().UTC(), *months, *perMonth, logger)
	if err != nil {
		logger.Fatal().Err(err).Int("created", created).Msg("seeding failed")
	}
	logger.Info().Int("created", created).Msg("seeding completed")
}

func seedBills(ctx context.Context, svc *billing.Service, rng *rand.Rand, now time.Time, months, perMonth int, logger zerolog.Logger) (int, error) {
	created := 0
	for m := 0; m < months; m++ {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -m, 0)
		for i := 0; i < perMonth; i++ {
			date := first.AddDate(0, 0, rng.IntN(28)).Format("2006-01-02")

			purchase := billing.BillRequest{
				BillNumber:    fmt.Sprintf("INV-%s-%03d", first.Format("200601"), i+1),
				BillDate:      date,
				PartyID:       int64(1 + rng.IntN(4)),
				ModeOfPayment: string(billing.PaymentModes()[rng.IntN(len(billing.PaymentModes()))]),
				Items:         randomLines(rng, false),
			}
			if _, err := svc.Create(ctx, billing.KindPurchase, purchase); err != nil {
				return created, fmt.Errorf("purchase %s: %w", purchase.BillNumber, err)
			}
			created++

			transport := decimal.NewFromInt(int64(rng.IntN(5)) * 100)
			sales := billing.BillRequest{
				BillDate:       date,
				SalesPartyID:   int64(10 + rng.IntN(6)),
				ModeOfPayment:  "UPI",
				Items:          randomLines(rng, true),
				Transportation: &transport,
			}
			bill, err := svc.Create(ctx, billing.KindSales, sales)
			if err != nil {
				return created, fmt.Errorf("sales bill on %s: %w", date, err)
			}
			created++
			logger.Debug().Str("number", bill.Number).Str("date", date).Msg("seeded")
		}
	}
	return created, nil
}

func randomLines(rng *rand.Rand, catalog bool) []billing.ItemRequest {
	n := 1 + rng.IntN(4)
	lines := make([]billing.ItemRequest, 0, n)
	for i := 0; i < n; i++ {
		line := billing.ItemRequest{
			Quantity: decimal.NewFromInt(int64(1 + rng.IntN(50))),
			Rate:     decimal.New(int64(500+rng.IntN(50000)), -2),
		}
		if catalog {
			line.ItemID = int64(1 + rng.IntN(40))
		} else {
			line.Description = materials[rng.IntN(len(materials))]
		}
		lines = append(lines, line)
	}
	return lines
}
