// Package stripe settles card checkouts through Stripe PaymentIntents.
//
// The browser collects the card with Stripe Elements and submits the payment
// method ID as the card token. Totals are local: Stripe has no fee quote.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/circuitbreaker"
	"github.com/CedrosPay/cardcheckout/internal/config"
	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
	"github.com/CedrosPay/cardcheckout/internal/wallet"
)

const providerName = "stripe"

// Client implements checkout.Processor on top of stripe-go.
type Client struct {
	cfg     config.StripeConfig
	api     *client.API
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics
}

// NewClient builds a Stripe processor. breaker and metrics may be nil.
func NewClient(cfg config.StripeConfig, breaker *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *Client {
	return &Client{
		cfg:     cfg,
		api:     client.New(cfg.SecretKey, nil),
		breaker: breaker,
		metrics: metricsCollector,
	}
}

// WithBackendURL points the client at a different API host (tests, stripe-mock).
func (c *Client) WithBackendURL(url string, hc *http.Client) *Client {
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		URL:               stripeapi.String(url),
		HTTPClient:        hc,
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelNull},
	})
	c.api = client.New(c.cfg.SecretKey, &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend})
	return c
}

// Totals returns the configured flat fee.
func (c *Client) Totals(_ context.Context, _ wallet.Identity, _ checkout.Subtotal) (int64, error) {
	return c.cfg.FeeCents, nil
}

// ChargeCard creates and confirms a PaymentIntent for subtotal plus fee.
func (c *Client) ChargeCard(ctx context.Context, id wallet.Identity, req checkout.ChargeRequest) (checkout.ChargeResult, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:             stripeapi.Int64(req.Subtotal.Cents + c.cfg.FeeCents),
		Currency:           stripeapi.String(c.cfg.Currency),
		PaymentMethod:      stripeapi.String(req.Card.CardToken),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		Confirm:            stripeapi.Bool(true),
	}
	if req.Card.Email != "" {
		params.ReceiptEmail = stripeapi.String(req.Card.Email)
	}
	params.Context = ctx
	params.AddMetadata("wallet", id.Address)
	params.AddMetadata("blockchain", id.Blockchain)

	start := time.Now()
	var intent *stripeapi.PaymentIntent
	var apiErr error
	_, err := c.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		intent, apiErr = c.api.PaymentIntents.New(params)
		if apiErr != nil && !isClientError(apiErr) {
			return nil, apiErr
		}
		return nil, nil
	})
	c.metrics.ObserveProcessorCall(providerName, "payment_intent", time.Since(start), firstErr(err, apiErr))

	log := logger.FromContext(ctx)
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		log.Warn().Msg("stripe.circuit_open")
		return checkout.ChargeResult{}, fmt.Errorf("%w: %v", checkout.ErrProcessorUnavailable, err)
	}
	if apiErr != nil {
		var se *stripeapi.Error
		if errors.As(apiErr, &se) && se.HTTPStatusCode > 0 {
			log.Warn().
				Int("status", se.HTTPStatusCode).
				Str("code", string(se.Code)).
				Msg("stripe.payment_intent_failed")
			return checkout.ChargeResult{}, checkout.NewPaymentError(se.HTTPStatusCode, se.Msg, string(se.Code))
		}
		return checkout.ChargeResult{}, fmt.Errorf("create payment intent: %w", apiErr)
	}

	switch intent.Status {
	case stripeapi.PaymentIntentStatusSucceeded, stripeapi.PaymentIntentStatusProcessing:
		log.Info().
			Str("payment_intent", intent.ID).
			Str("status", string(intent.Status)).
			Msg("stripe.payment_intent_confirmed")
		var raw []byte
		if intent.LastResponse != nil {
			raw = intent.LastResponse.RawJSON
		}
		return checkout.ChargeResult{Raw: raw}, nil
	default:
		return checkout.ChargeResult{}, &checkout.PaymentError{
			Status:  http.StatusPaymentRequired,
			Message: fmt.Sprintf("Payment not completed: %s", intent.Status),
		}
	}
}

// isClientError reports a 4xx API response. Declines must not trip the breaker.
func isClientError(err error) bool {
	var se *stripeapi.Error
	return errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
