package httpserver

import (
	"net/http"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/tokenization"
)

const (
	submitModeNew   = "new"
	submitModeSaved = "saved"
)

type submitRequest struct {
	Mode    string               `json:"mode"`
	Expiry  string               `json:"expiry,omitempty"`
	Billing checkout.BillingInfo `json:"billing"`
	// Token is what the card (or CVV) iframe returned to the browser.
	// Absent means the iframe never mounted.
	Token *tokenization.Token `json:"token,omitempty"`
}

// tokenProvider mounts the browser-collected token, or nothing when absent.
func (req submitRequest) tokenProvider() *tokenization.Adapter {
	if req.Token == nil {
		return tokenization.NewAdapter(nil)
	}
	return tokenization.NewAdapter(tokenization.Submitted(*req.Token))
}

// submit charges a new card or the selected saved card. Failures answer with
// the API error body and the session view after the failure.
func (h handlers) submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	var err error
	switch req.Mode {
	case submitModeNew:
		err = s.Workflow.SubmitNewCard(r.Context(), checkout.NewCardInput{
			Expiry:  req.Expiry,
			Billing: req.Billing,
			Card:    req.tokenProvider(),
		})
	case submitModeSaved:
		err = s.Workflow.SubmitSavedCard(r.Context(), checkout.SavedCardInput{
			CVV: req.tokenProvider(),
		})
	default:
		writeBadRequest(w, `mode must be "new" or "saved"`)
		return
	}

	view := s.Workflow.Snapshot()
	if err != nil {
		writeCheckoutError(w, r, err, &view)
		return
	}
	writeView(w, http.StatusOK, s.ID, view)
}
