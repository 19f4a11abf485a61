package httpserver

import (
	"errors"
	"net/http"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	apierrors "github.com/CedrosPay/cardcheckout/internal/errors"
	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/sessions"
	"github.com/CedrosPay/cardcheckout/internal/tokenization"
	"github.com/CedrosPay/cardcheckout/internal/wallet"
	"github.com/CedrosPay/cardcheckout/pkg/responders"
)

// writeCheckoutError maps a session or workflow error onto the API error body.
// Workflow failures also carry the post-failure view when one is available.
func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error, view *checkout.View) {
	details := map[string]any{}
	if view != nil {
		details["session"] = view
	}

	var (
		verr *checkout.ValidationError
		terr *checkout.TokenizationError
		perr *checkout.PaymentError
	)
	switch {
	case errors.As(err, &verr):
		details["field"] = verr.Field
		apierrors.WriteError(w, validationCode(verr.Field), verr.Message, details)
	case errors.Is(err, sessions.ErrNotFound):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeSessionNotFound, "Checkout session not found or expired")
	case errors.Is(err, checkout.ErrCardNotFound):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeCardNotFound, "Saved card not found")
	case errors.Is(err, checkout.ErrBusy):
		apierrors.WriteError(w, apierrors.ErrCodeCheckoutBusy, "A payment is already being processed", details)
	case errors.Is(err, checkout.ErrCompleted):
		apierrors.WriteError(w, apierrors.ErrCodeCheckoutCompleted, "This checkout is already paid", details)
	case errors.As(err, &terr):
		code := apierrors.ErrCodeTokenizationFailed
		if errors.Is(err, tokenization.ErrUnavailable) {
			code = apierrors.ErrCodeTokenizationUnavailable
		}
		apierrors.WriteError(w, code, terr.Message, details)
	case errors.Is(err, checkout.ErrProcessorUnavailable):
		apierrors.WriteError(w, apierrors.ErrCodeProcessorUnavailable, err.Error(), details)
	case errors.As(err, &perr):
		if perr.Status != 0 {
			details["processorStatus"] = perr.Status
		}
		apierrors.WriteError(w, apierrors.ErrCodePaymentFailed, perr.Message, details)
	case errors.Is(err, wallet.ErrMissingAddress),
		errors.Is(err, wallet.ErrUnsupportedChain),
		errors.Is(err, wallet.ErrInvalidSolanaWallet):
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidWallet, err.Error(), "field", "wallet")
	case errors.Is(err, sessions.ErrInvalidSubtotal):
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidField, "Subtotal must be greater than zero", "field", "subtotal")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("checkout.unhandled_error")
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInternalError, "Internal error", "requestId", logger.GetRequestID(r.Context()))
	}
}

func validationCode(field string) apierrors.ErrorCode {
	switch field {
	case "expiry":
		return apierrors.ErrCodeInvalidExpiry
	case "email":
		return apierrors.ErrCodeInvalidField
	default:
		return apierrors.ErrCodeMissingField
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, message)
}

func writeView(w http.ResponseWriter, status int, id string, view checkout.View) {
	responders.JSON(w, status, sessionResponse{SessionID: id, View: view})
}

func writeCreated(w http.ResponseWriter, location, id string, view checkout.View) {
	responders.Created(w, location, sessionResponse{SessionID: id, View: view})
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	checkout.View
}
