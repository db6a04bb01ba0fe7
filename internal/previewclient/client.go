package previewclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/pricing"
	"github.com/noah-isme/backend-billing/internal/resilience"
)

const maxBodyBytes = 1 << 20

// Config configures a Client.
type Config struct {
	BaseURL     string
	Kind        billing.Kind
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Breaker     *resilience.Breaker
	// Transport overrides the instrumented default transport.
	Transport http.RoundTripper
}

// Client calls the remote calculate endpoint. It satisfies preview.Engine.
type Client struct {
	endpoint string
	kind     billing.Kind
	http     resilience.HTTPClient
}

// APIError is a non-2xx answer from the calculate endpoint.
type APIError struct {
	StatusCode int
	Body       common.ErrorBody
}

func (e *APIError) Error() string {
	if e.Body.Code == "" {
		return fmt.Sprintf("previewclient: calculate returned %d", e.StatusCode)
	}
	return fmt.Sprintf("previewclient: calculate returned %d %s: %s", e.StatusCode, e.Body.Code, e.Body.Message)
}

// New constructs a client for one bill kind.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("previewclient: base url is required")
	}
	if cfg.Kind == "" {
		cfg.Kind = billing.KindSales
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(5, 0.5, 30*time.Second).WithUpstream("preview")
	}
	return &Client{
		endpoint: fmt.Sprintf("%s/api/v1/%s/bills/calculate", base, cfg.Kind),
		kind:     cfg.Kind,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     breaker,
			BaseBackoff: cfg.BaseBackoff,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      cfg.Jitter,
			Timeout:     cfg.Timeout,
		},
	}, nil
}

// Calculate posts the request and decodes the {"data": ...} envelope.
func (c *Client) Calculate(ctx context.Context, req pricing.Request) (pricing.Result, error) {
	payload, err := json.Marshal(billing.NewCalculateRequest(req))
	if err != nil {
		return pricing.Result{}, fmt.Errorf("previewclient: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return pricing.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return pricing.Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return pricing.Result{}, fmt.Errorf("previewclient: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error common.ErrorBody `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			apiErr.Body = envelope.Error
		}
		return pricing.Result{}, apiErr
	}
	var envelope struct {
		Data *billing.CalculationResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return pricing.Result{}, fmt.Errorf("previewclient: decode response: %w", err)
	}
	if envelope.Data == nil {
		return pricing.Result{}, errors.New("previewclient: response has no data")
	}
	return envelope.Data.Result()
}
