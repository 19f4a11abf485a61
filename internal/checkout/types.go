package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CedrosPay/cardcheckout/internal/wallet"
)

// Subtotal is the order amount in minor currency units.
type Subtotal struct {
	Cents int64 `json:"cents"`
}

// Totals is the order summary shown beside the form.
type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	Fees        int64 `json:"fees"`
	Total       int64 `json:"total"`
	FeeFallback bool  `json:"feeFallback"`
}

// BillingInfo is the transient billing form. It is never persisted as-is.
type BillingInfo struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country"`
}

// ThreeDS carries the browser fingerprint fields of the 3-D Secure challenge.
type ThreeDS struct {
	ConcludeChallenge bool `json:"concludeChallenge"`
	ColorDepth        int  `json:"colorDepth"`
	ScreenHeight      int  `json:"screenHeight"`
	ScreenWidth       int  `json:"screenWidth"`
	TimeZone          int  `json:"timeZone"`
}

// DefaultThreeDS is the fixed challenge block sent with every charge.
var DefaultThreeDS = ThreeDS{
	ConcludeChallenge: true,
	ColorDepth:        24,
	ScreenHeight:      1080,
	ScreenWidth:       1920,
	TimeZone:          -240,
}

// CardDetails is the card block of a charge request.
type CardDetails struct {
	ExpYear   string `json:"expYear"`
	ExpMonth  string `json:"expMonth"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address1  string `json:"address1"`
	City      string `json:"city"`
	Zip       string `json:"zip"`
	State     string `json:"state"`
	Country   string `json:"country"`
	CardToken string `json:"cardToken"`
}

// ChargeRequest is the card-charge payload.
type ChargeRequest struct {
	Subtotal          Subtotal    `json:"subtotal"`
	Authentication3DS ThreeDS     `json:"authentication3DS"`
	Card              CardDetails `json:"card"`
}

// ChargeResult is the processor's 2xx response body.
type ChargeResult struct {
	Raw json.RawMessage
}

// Processor is the remote card processor.
type Processor interface {
	// Totals returns the fee for subtotal. Any error makes the caller use the fallback fee.
	Totals(ctx context.Context, id wallet.Identity, subtotal Subtotal) (int64, error)
	// ChargeCard submits a card payment. Non-2xx responses are returned as *PaymentError.
	ChargeCard(ctx context.Context, id wallet.Identity, req ChargeRequest) (ChargeResult, error)
}

var (
	// ErrInvalidTransition is returned by Dispatch for an event the current state does not accept.
	ErrInvalidTransition = errors.New("checkout: invalid state transition")
	// ErrBusy is returned when a submission or initialization is already running.
	ErrBusy = errors.New("checkout: another operation is in progress")
	// ErrCompleted is returned when the checkout already succeeded.
	ErrCompleted = errors.New("checkout: payment already completed")
	// ErrCardNotFound is returned for an unknown saved card ID.
	ErrCardNotFound = errors.New("checkout: saved card not found")
	// ErrProcessorUnavailable marks processor failures that happened before a response (breaker open).
	ErrProcessorUnavailable = errors.New("checkout: processor unavailable")
	// ErrNoFees is returned by Processor.Totals when the response has no numeric fees.
	ErrNoFees = errors.New("checkout: totals response has no fees")
)

// ValidationError is a field-level precondition failure. No state change happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TokenizationError means the token could not be obtained.
type TokenizationError struct {
	Message string
	Err     error
}

func (e *TokenizationError) Error() string {
	return e.Message
}

func (e *TokenizationError) Unwrap() error { return e.Err }

// PaymentError is a failed charge. Status is 0 when no response was received.
type PaymentError struct {
	Status  int
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	return e.Message
}

func (e *PaymentError) Unwrap() error { return e.Err }

// NewPaymentError builds the error for a non-2xx response, preferring the
// server's message, then its error field.
func NewPaymentError(status int, message, errField string) *PaymentError {
	msg := message
	if msg == "" {
		msg = errField
	}
	if msg == "" {
		msg = fmt.Sprintf("Payment failed: %d", status)
	}
	return &PaymentError{Status: status, Message: msg}
}
