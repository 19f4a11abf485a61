package errors

// ErrorCode represents a machine-readable error identifier for the checkout front end.
type ErrorCode string

// Validation errors (form input, shown inline next to the field)
const (
	ErrCodeMissingField  ErrorCode = "missing_field"
	ErrCodeInvalidField  ErrorCode = "invalid_field"
	ErrCodeInvalidExpiry ErrorCode = "invalid_expiry"
	ErrCodeInvalidWallet ErrorCode = "invalid_wallet"
)

// Tokenization errors (hosted card widget)
const (
	ErrCodeTokenizationUnavailable ErrorCode = "tokenization_unavailable"
	ErrCodeTokenizationFailed      ErrorCode = "tokenization_failed"
)

// Payment errors (processor rejected or could not be reached)
const (
	ErrCodePaymentFailed        ErrorCode = "payment_failed"
	ErrCodeProcessorUnavailable ErrorCode = "processor_unavailable"
)

// Resource/state errors
const (
	ErrCodeSessionNotFound   ErrorCode = "session_not_found"
	ErrCodeCardNotFound      ErrorCode = "card_not_found"
	ErrCodeCheckoutBusy      ErrorCode = "checkout_busy"
	ErrCodeCheckoutCompleted ErrorCode = "checkout_completed"
)

// Internal/system errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable reports whether the user may resubmit the same attempt unchanged.
// Nothing is retried automatically; this only drives the front end's "try again" hint.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeTokenizationUnavailable,
		ErrCodeTokenizationFailed,
		ErrCodeProcessorUnavailable,
		ErrCodeCheckoutBusy:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidExpiry,
		ErrCodeInvalidWallet:
		return 400

	case ErrCodePaymentFailed:
		return 402

	case ErrCodeSessionNotFound,
		ErrCodeCardNotFound:
		return 404

	case ErrCodeCheckoutBusy,
		ErrCodeCheckoutCompleted:
		return 409

	case ErrCodeTokenizationUnavailable,
		ErrCodeTokenizationFailed:
		return 422

	case ErrCodeProcessorUnavailable:
		return 503

	default:
		return 500
	}
}
