package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CedrosPay/cardcheckout/internal/checkout"
	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/sessions"
)

type createSessionRequest struct {
	Wallet     string            `json:"wallet"`
	Blockchain string            `json:"blockchain,omitempty"`
	Subtotal   checkout.Subtotal `json:"subtotal"`
}

type useNewCardRequest struct {
	UseNewCard bool `json:"useNewCard"`
}

// createSession connects a wallet and loads totals plus saved cards.
func (h handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	blockchain := req.Blockchain
	if blockchain == "" {
		blockchain = h.cfg.Processor.Blockchain
	}

	s, err := h.sessions.Create(r.Context(), req.Wallet, blockchain, req.Subtotal)
	if err != nil {
		writeCheckoutError(w, r, err, nil)
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().
		Str("session_id", s.ID).
		Str("wallet", logger.TruncateAddress(req.Wallet)).
		Msg("checkout.session_opened")
	writeCreated(w, strings.TrimSuffix(r.URL.Path, "/")+"/"+s.ID, s.ID, s.Workflow.Snapshot())
}

// session resolves {sessionID}, writing 404 when it is unknown or expired.
func (h handlers) session(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeCheckoutError(w, r, err, nil)
		return nil, false
	}
	return s, true
}

func (h handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeView(w, http.StatusOK, s.ID, s.Workflow.Snapshot())
}

func (h handlers) setUseNewCard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req useNewCardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	s.Workflow.UseNewCard(req.UseNewCard)
	writeView(w, http.StatusOK, s.ID, s.Workflow.Snapshot())
}

func (h handlers) selectCard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Workflow.SelectCard(chi.URLParam(r, "cardID")); err != nil {
		writeCheckoutError(w, r, err, nil)
		return
	}
	writeView(w, http.StatusOK, s.ID, s.Workflow.Snapshot())
}

func (h handlers) deleteCard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Workflow.DeleteCard(r.Context(), chi.URLParam(r, "cardID")); err != nil {
		writeCheckoutError(w, r, err, nil)
		return
	}
	writeView(w, http.StatusOK, s.ID, s.Workflow.Snapshot())
}
