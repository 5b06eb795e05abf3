package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// InvoiceMarker is the invoice service boundary. Settling a customer payment
// marks its invoice paid; implementations must be idempotent per invoice and amount.
type InvoiceMarker interface {
	MarkInvoicePaid(ctx context.Context, invoiceID string, amount decimal.Decimal) error
}

// NoopInvoiceMarker is used when no invoice service is configured.
type NoopInvoiceMarker struct{}

func (NoopInvoiceMarker) MarkInvoicePaid(context.Context, string, decimal.Decimal) error { return nil }

// HTTPInvoiceClient calls the invoice service over HTTP behind a circuit
// breaker so a failing invoice service fails settlements fast.
type HTTPInvoiceClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPInvoiceClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPInvoiceClient {
	settings := gobreaker.Settings{
		Name:        "invoice-service",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &HTTPInvoiceClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *HTTPInvoiceClient) MarkInvoicePaid(ctx context.Context, invoiceID string, amount decimal.Decimal) error {
	_, err := c.breaker.Execute(func() (any, error) {
		body, err := json.Marshal(map[string]string{"amount": amount.StringFixed(2)})
		if err != nil {
			return nil, err
		}

		endpoint := fmt.Sprintf("%s/invoices/%s/mark-paid", c.baseURL, url.PathEscape(invoiceID))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("invoice service returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("mark invoice %s paid: %w: %v", invoiceID, ErrInvoiceUpdate, err)
	}
	return nil
}
