// Command quote replays line-item edits from stdin through a live bill
// preview and prints every preview state change as a JSON line.
//
//	{"op":"set","index":0,"item":{"itemId":4,"quantity":"2","rate":"150"}}
//	{"op":"transportation","value":"80"}
//	{"op":"remove","index":0}
//	{"op":"wait","ms":500}
//	{"op":"flush"}
//
// With -url the preview is computed by a running API, otherwise in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/preview"
	"github.com/noah-isme/backend-billing/internal/previewclient"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

type options struct {
	Kind     billing.Kind
	URL      string
	TaxBps   int
	Debounce time.Duration
	Timeout  time.Duration
	Verbose  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "quote: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	engine, err := newEngine(opts)
	if err != nil {
		return err
	}

	logger := zerolog.Nop()
	if opts.Verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).Level(zerolog.DebugLevel)
	}
	printer := newPrinter(stdout, opts.Kind)
	session := preview.NewSession(preview.Config{
		Engine:   engine,
		Delay:    opts.Debounce,
		Timeout:  opts.Timeout,
		Logger:   logger,
		OnChange: printer.Print,
	})
	defer session.Close()

	if err := replay(ctx, stdin, session); err != nil {
		return err
	}
	session.Flush(ctx)
	return printer.Err()
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", string(billing.KindSales), "bill kind: sales or purchase")
	url := fs.String("url", "", "API base url; empty prices locally")
	tax := fs.Int("tax-bps", pricing.DefaultTaxBps, "GST rate in basis points for local pricing")
	debounce := fs.Duration("debounce", 300*time.Millisecond, "quiet period before recalculating")
	timeout := fs.Duration("timeout", 5*time.Second, "bound on a single calculation")
	verbose := fs.Bool("v", false, "log swallowed failures and stale results to stderr")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	k, err := billing.ParseKind(*kind)
	if err != nil {
		return options{}, err
	}
	return options{
		Kind:     k,
		URL:      *url,
		TaxBps:   *tax,
		Debounce: *debounce,
		Timeout:  *timeout,
		Verbose:  *verbose,
	}, nil
}

func newEngine(opts options) (preview.Engine, error) {
	if opts.URL == "" {
		return preview.LocalEngine{Engine: pricing.NewEngine(opts.TaxBps)}, nil
	}
	return previewclient.New(previewclient.Config{
		BaseURL:     opts.URL,
		Kind:        opts.Kind,
		Timeout:     opts.Timeout,
		MaxAttempts: 2,
		BaseBackoff: 100 * time.Millisecond,
		Jitter:      0.2,
	})
}
