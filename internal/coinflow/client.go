// Package coinflow is the HTTP client for the card processor's checkout API.
package coinflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/circuitbreaker"
	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/internal/httputil"
	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
	"github.com/CedrosPay/cardcheckout/internal/wallet"
)

const (
	providerName    = "coinflow"
	maxResponseBody = 1 << 20
)

// Client calls the totals and card-charge endpoints for one merchant.
type Client struct {
	baseURL    string
	merchantID string
	httpClient *http.Client
	breaker    *circuitbreaker.Manager
	metrics    *metrics.Metrics
}

// NewClient builds a client from processor config. breaker and metrics may be nil.
func NewClient(cfg config.ProcessorConfig, breaker *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *Client {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		merchantID: cfg.MerchantID,
		httpClient: httputil.NewClient(timeout),
		breaker:    breaker,
		metrics:    metricsCollector,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type totalsRequest struct {
	Subtotal   checkout.Subtotal `json:"subtotal"`
	Blockchain string            `json:"blockchain"`
	Wallet     string            `json:"wallet"`
}

type totalsResponse struct {
	Fees *float64 `json:"fees"`
}

// Totals fetches the fee for subtotal. Non-2xx responses and bodies without
// a numeric fees field are errors.
func (c *Client) Totals(ctx context.Context, id wallet.Identity, subtotal checkout.Subtotal) (int64, error) {
	body := totalsRequest{Subtotal: subtotal, Blockchain: id.Blockchain, Wallet: id.Address}
	resp, err := c.post(ctx, "totals", id, body)
	if err != nil {
		return 0, err
	}
	if resp.status < 200 || resp.status >= 300 {
		return 0, fmt.Errorf("totals: unexpected status %d", resp.status)
	}

	var parsed totalsResponse
	if err := json.Unmarshal(resp.body, &parsed); err != nil {
		return 0, fmt.Errorf("%w: %v", checkout.ErrNoFees, err)
	}
	if parsed.Fees == nil || math.IsNaN(*parsed.Fees) || math.IsInf(*parsed.Fees, 0) {
		return 0, checkout.ErrNoFees
	}
	return int64(math.Round(*parsed.Fees)), nil
}

// ChargeCard posts a card payment. Non-2xx responses become *checkout.PaymentError.
func (c *Client) ChargeCard(ctx context.Context, id wallet.Identity, req checkout.ChargeRequest) (checkout.ChargeResult, error) {
	resp, err := c.post(ctx, "card", id, req)
	if err != nil {
		return checkout.ChargeResult{}, err
	}
	if resp.status < 200 || resp.status >= 300 {
		message, errField := errorFields(resp.body)
		return checkout.ChargeResult{}, checkout.NewPaymentError(resp.status, message, errField)
	}
	return checkout.ChargeResult{Raw: resp.body}, nil
}

type rawResponse struct {
	status int
	body   []byte
}

// post runs one request under the processor breaker. Only transport errors
// and 5xx responses count as breaker failures.
func (c *Client) post(ctx context.Context, endpoint string, id wallet.Identity, payload any) (rawResponse, error) {
	target := fmt.Sprintf("%s/api/checkout/%s/%s", c.baseURL, endpoint, url.PathEscape(c.merchantID))
	data, err := json.Marshal(payload)
	if err != nil {
		return rawResponse{}, fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	start := time.Now()
	var resp rawResponse
	_, err = c.breaker.Execute(circuitbreaker.ServiceProcessor, func() (interface{}, error) {
		r, doErr := c.do(ctx, target, id, data)
		resp = r
		if doErr != nil {
			return nil, doErr
		}
		if r.status >= 500 {
			return nil, fmt.Errorf("%s: upstream status %d", endpoint, r.status)
		}
		return nil, nil
	})
	c.metrics.ObserveProcessorCall(providerName, endpoint, time.Since(start), err)

	log := logger.FromContext(ctx)
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		log.Warn().Str("endpoint", endpoint).Msg("coinflow.circuit_open")
		return rawResponse{}, fmt.Errorf("%w: %v", checkout.ErrProcessorUnavailable, err)
	case err != nil && resp.status >= 500:
		// The response is still meaningful to the caller.
		log.Warn().Str("endpoint", endpoint).Int("status", resp.status).Msg("coinflow.upstream_error")
		return resp, nil
	case err != nil:
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("coinflow.request_failed")
		return rawResponse{}, err
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.status).
		Dur("duration", time.Since(start)).
		Msg("coinflow.request_completed")
	return resp, nil
}

func (c *Client) do(ctx context.Context, target string, id wallet.Identity, data []byte) (rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return rawResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	id.Apply(req.Header)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return rawResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return rawResponse{status: res.StatusCode}, fmt.Errorf("read response: %w", err)
	}
	return rawResponse{status: res.StatusCode, body: body}, nil
}

// errorFields extracts string "message" and "error" fields from an error body.
func errorFields(body []byte) (message, errField string) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", ""
	}
	message, _ = parsed["message"].(string)
	errField, _ = parsed["error"].(string)
	return message, errField
}
