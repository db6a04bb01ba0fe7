package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

func lastState(t *testing.T, out string) stateLine {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	var st stateLine
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &st))
	return st
}

func TestQuoteLocalFlushesAtEOF(t *testing.T) {
	script := strings.Join([]string{
		`{"op":"set","index":0,"item":{"itemId":4,"quantity":"2","rate":"150"}}`,
		`# incomplete rows are skipped`,
		`{"op":"set","index":1,"item":{"itemId":0,"quantity":"1","rate":"10"}}`,
		`{"op":"transportation","value":"80"}`,
	}, "\n")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-kind", "sales"}, strings.NewReader(script), &stdout, &stderr)
	require.NoError(t, err)

	st := lastState(t, stdout.String())
	require.False(t, st.Calculating)
	require.NotNil(t, st.Preview)
	require.Equal(t, "300.00", st.Preview.TaxableAmount.String())
	require.Equal(t, "54.00", st.Preview.GST.String())
	require.Equal(t, "434.00", st.Preview.GrandTotal.String())
}

func TestQuoteRemovingLastItemClearsPreview(t *testing.T) {
	script := strings.Join([]string{
		`{"op":"set","index":0,"item":{"description":"Sand","quantity":"1","rate":"100"}}`,
		`{"op":"flush"}`,
		`{"op":"remove","index":0}`,
	}, "\n")
	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-kind", "purchase"}, strings.NewReader(script), &stdout, &bytes.Buffer{})
	require.NoError(t, err)

	require.Contains(t, stdout.String(), `"grandTotal":118.00`)
	st := lastState(t, stdout.String())
	require.Nil(t, st.Preview)
}

func TestQuoteRemoteEngine(t *testing.T) {
	svc := &billing.Service{Store: billing.NewMemoryStore(), Engine: pricing.NewEngine(pricing.DefaultTaxBps), Validate: billing.NewValidator()}
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		(&billing.Handler{Svc: svc}).Register(r, billing.Middlewares{})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	script := `{"op":"replace","items":[{"itemId":1,"quantity":"3","rate":"100"}]}`
	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-url", srv.URL}, strings.NewReader(script), &stdout, &bytes.Buffer{})
	require.NoError(t, err)

	st := lastState(t, stdout.String())
	require.NotNil(t, st.Preview)
	require.Equal(t, "354.00", st.Preview.GrandTotal.String())
}

func TestQuoteRemoteFailureKeepsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	script := `{"op":"set","index":0,"item":{"itemId":1,"quantity":"1","rate":"1"}}`
	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-url", srv.URL, "-timeout", "200ms"}, strings.NewReader(script), &stdout, &bytes.Buffer{})
	require.NoError(t, err)

	st := lastState(t, stdout.String())
	require.False(t, st.Calculating)
	require.Nil(t, st.Preview)
}

func TestQuoteRejectsUnknownOp(t *testing.T) {
	err := run(context.Background(), nil, strings.NewReader(`{"op":"explode"}`), &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, `line 1: unknown op "explode"`)
}

func TestQuoteRejectsBadKind(t *testing.T) {
	err := run(context.Background(), []string{"-kind", "refund"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
}
