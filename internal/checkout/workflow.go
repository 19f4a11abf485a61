// Package checkout implements the card checkout workflow: totals and saved
// cards on connect, form validation, token retrieval, payment submission and
// saved-card maintenance, all driven by an explicit state machine.
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/metrics"
	"github.com/CedrosPay/cardcheckout/internal/savedcards"
	"github.com/CedrosPay/cardcheckout/internal/tokenization"
	"github.com/CedrosPay/cardcheckout/internal/wallet"
)

// DefaultFallbackFee is used when the totals call fails.
const DefaultFallbackFee int64 = 50

// Submission modes, used as metric labels.
const (
	ModeNewCard   = "new_card"
	ModeSavedCard = "saved_card"
)

const (
	msgTokenizeFailed       = "Failed to tokenize card data. Please check your card number."
	msgTokenizerUnavailable = "Card tokenization is unavailable"
	msgPaymentFailed        = "Payment failed"
	msgProcessorUnavailable = "Payment processor unavailable"
)

// CardStore is the saved-card cache used by the workflow.
type CardStore interface {
	List(ctx context.Context, wallet string) []savedcards.PaymentMethod
	Add(ctx context.Context, wallet string, pm savedcards.PaymentMethod) (bool, error)
	Delete(ctx context.Context, wallet, id string) ([]savedcards.PaymentMethod, error)
}

// Deps are the collaborators of one workflow.
type Deps struct {
	Processor Processor
	Cards     CardStore
	Identity  wallet.Identity
	Subtotal  Subtotal
	Logger    zerolog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithOnSuccess registers fn to run once, right after the payment succeeds.
func WithOnSuccess(fn func()) Option {
	return func(w *Workflow) { w.onSuccess = fn }
}

// WithMetrics records checkout metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// WithFallbackFee overrides DefaultFallbackFee.
func WithFallbackFee(cents int64) Option {
	return func(w *Workflow) { w.fallbackFee = cents }
}

// NewCardInput is a submission with a freshly entered card.
type NewCardInput struct {
	Expiry  string
	Billing BillingInfo
	Card    tokenization.Provider
}

// SavedCardInput is a submission with the selected saved card.
type SavedCardInput struct {
	CVV tokenization.Provider
}

type subscription struct {
	id int
	fn Listener
}

// Workflow is one checkout for one wallet. All methods are safe for
// concurrent use; at most one submission runs at a time.
type Workflow struct {
	deps        Deps
	log         zerolog.Logger
	metrics     *metrics.Metrics
	fallbackFee int64
	onSuccess   func()
	successOnce sync.Once

	mu           sync.Mutex
	state        State
	listeners    []subscription
	nextListener int
	cards        []savedcards.PaymentMethod
	selectedID   string
	useNewCard   bool
	totals       Totals
	errMsg       string
	fieldErr     *ValidationError
}

// New creates an idle workflow. Call Initialize to load totals and saved cards.
func New(deps Deps, opts ...Option) *Workflow {
	w := &Workflow{
		deps:        deps,
		log:         logger.ForWallet(deps.Logger, deps.Identity.Address),
		fallbackFee: DefaultFallbackFee,
		state:       StateIdle,
		cards:       []savedcards.PaymentMethod{},
		useNewCard:  true,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.totals = Totals{
		Subtotal:    deps.Subtotal.Cents,
		Fees:        w.fallbackFee,
		Total:       deps.Subtotal.Cents + w.fallbackFee,
		FeeFallback: true,
	}
	return w
}

// Identity returns the paying wallet.
func (w *Workflow) Identity() wallet.Identity {
	return w.deps.Identity
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Dispatch applies ev to the state machine.
func (w *Workflow) Dispatch(ev Event) error {
	w.mu.Lock()
	notify, err := w.transitionLocked(ev)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	notify()
	return nil
}

// Subscribe registers fn for transitions. The returned func unsubscribes.
func (w *Workflow) Subscribe(fn Listener) (cancel func()) {
	w.mu.Lock()
	id := w.nextListener
	w.nextListener++
	w.listeners = append(w.listeners, subscription{id: id, fn: fn})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.listeners {
			if s.id == id {
				w.listeners = append(w.listeners[:i:i], w.listeners[i+1:]...)
				return
			}
		}
	}
}

// transitionLocked moves the machine and returns a func that notifies
// listeners. Call the func after releasing w.mu.
func (w *Workflow) transitionLocked(ev Event) (func(), error) {
	to, err := next(w.state, ev)
	if err != nil {
		return func() {}, err
	}
	from := w.state
	w.state = to

	listeners := make([]Listener, len(w.listeners))
	for i, s := range w.listeners {
		listeners[i] = s.fn
	}
	return func() {
		for _, fn := range listeners {
			fn(from, to)
		}
	}, nil
}

// readyLocked rejects submissions outside idle and error.
func (w *Workflow) readyLocked() error {
	switch w.state {
	case StateProcessing, StateLoading:
		return ErrBusy
	case StateSuccess:
		return ErrCompleted
	}
	return nil
}

// Initialize loads saved cards and totals concurrently. Failures fall back to
// an empty list and the fallback fee; they never move the workflow to error.
func (w *Workflow) Initialize(ctx context.Context) error {
	w.mu.Lock()
	if err := w.readyLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	notify, err := w.transitionLocked(EventLoadStarted)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	notify()

	var (
		wg       sync.WaitGroup
		cards    []savedcards.PaymentMethod
		fees     int64
		fallback bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if w.deps.Cards != nil {
			cards = w.deps.Cards.List(ctx, w.deps.Identity.Address)
		}
	}()
	go func() {
		defer wg.Done()
		fees, fallback = w.loadFees(ctx)
	}()
	wg.Wait()

	if cards == nil {
		cards = []savedcards.PaymentMethod{}
	}

	w.mu.Lock()
	w.cards = cards
	w.selectedID = ""
	w.useNewCard = len(cards) == 0
	w.totals = Totals{
		Subtotal:    w.deps.Subtotal.Cents,
		Fees:        fees,
		Total:       w.deps.Subtotal.Cents + fees,
		FeeFallback: fallback,
	}
	notify, err = w.transitionLocked(EventLoadFinished)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	notify()

	w.log.Debug().
		Int("saved_cards", len(cards)).
		Int64("fees", fees).
		Bool("fee_fallback", fallback).
		Msg("checkout.initialized")
	return nil
}

func (w *Workflow) loadFees(ctx context.Context) (int64, bool) {
	if w.deps.Processor == nil {
		w.metrics.ObserveTotalsFallback("no_processor")
		return w.fallbackFee, true
	}
	fees, err := w.deps.Processor.Totals(ctx, w.deps.Identity, w.deps.Subtotal)
	if err == nil && fees < 0 {
		err = ErrNoFees
	}
	if err != nil {
		reason := "request_failed"
		if errors.Is(err, ErrNoFees) {
			reason = "no_fees"
		}
		w.metrics.ObserveTotalsFallback(reason)
		w.log.Warn().Err(err).Int64("fallback_fee", w.fallbackFee).Msg("checkout.totals_fallback")
		return w.fallbackFee, true
	}
	return fees, false
}

// SubmitNewCard validates the form, tokenizes the card and charges it. A
// *ValidationError leaves the state unchanged and makes no network call.
func (w *Workflow) SubmitNewCard(ctx context.Context, in NewCardInput) error {
	w.mu.Lock()
	if err := w.readyLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	billing := in.Billing
	month, year, verr := validateNewCard(in.Card, in.Expiry, &billing)
	if verr != nil {
		w.fieldErr = verr
		w.mu.Unlock()
		w.metrics.ObserveCheckoutFailure(ModeNewCard, "validation")
		return verr
	}
	notify, err := w.startSubmitLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}
	notify()

	token, err := retrieveToken(ctx, in.Card)
	if err != nil {
		return w.fail(ModeNewCard, "tokenization", err)
	}

	first, last := SplitName(billing.Name)
	req := ChargeRequest{
		Subtotal:          w.deps.Subtotal,
		Authentication3DS: DefaultThreeDS,
		Card: CardDetails{
			ExpYear:   year,
			ExpMonth:  month,
			Email:     billing.Email,
			FirstName: first,
			LastName:  last,
			Address1:  billing.Address,
			City:      billing.City,
			Zip:       billing.Zip,
			State:     NormalizeState(billing.State),
			Country:   billing.Country,
			CardToken: token.Token,
		},
	}
	if err := w.charge(ctx, ModeNewCard, req); err != nil {
		return err
	}

	w.saveCard(ctx, billing, month, year, token.Token)
	return nil
}

// SubmitSavedCard charges the selected saved card with a fresh CVV token.
func (w *Workflow) SubmitSavedCard(ctx context.Context, in SavedCardInput) error {
	w.mu.Lock()
	if err := w.readyLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	card, ok := w.findCardLocked(w.selectedID)
	if !ok || !tokenization.IsMounted(in.CVV) {
		verr := &ValidationError{Field: "cvv", Message: msgSelectCardAndCV}
		w.fieldErr = verr
		w.mu.Unlock()
		w.metrics.ObserveCheckoutFailure(ModeSavedCard, "validation")
		return verr
	}
	notify, err := w.startSubmitLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}
	notify()

	token, err := retrieveToken(ctx, in.CVV)
	if err != nil {
		return w.fail(ModeSavedCard, "tokenization", err)
	}

	country := card.Country
	if country == "" {
		country = "US"
	}
	first, last := SplitName(card.CardholderName)
	req := ChargeRequest{
		Subtotal:          w.deps.Subtotal,
		Authentication3DS: DefaultThreeDS,
		Card: CardDetails{
			ExpYear:   card.ExpYear,
			ExpMonth:  card.ExpMonth,
			Email:     card.Email,
			FirstName: first,
			LastName:  last,
			Address1:  card.Address,
			City:      card.City,
			Zip:       card.Zip,
			State:     NormalizeState(card.State),
			Country:   country,
			CardToken: token.Token,
		},
	}
	return w.charge(ctx, ModeSavedCard, req)
}

func validateNewCard(card tokenization.Provider, expiry string, billing *BillingInfo) (month, year string, verr *ValidationError) {
	if !tokenization.IsMounted(card) {
		return "", "", &ValidationError{Field: "card", Message: msgCardNotReady}
	}
	month, year, err := ParseExpiry(expiry)
	if err != nil {
		var ve *ValidationError
		errors.As(err, &ve)
		return "", "", ve
	}
	if err := ValidateBilling(billing); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return "", "", ve
		}
		return "", "", &ValidationError{Field: "billing", Message: msgMissingBilling}
	}
	return month, year, nil
}

func (w *Workflow) startSubmitLocked() (func(), error) {
	notify, err := w.transitionLocked(EventSubmitStarted)
	if err != nil {
		return notify, err
	}
	w.errMsg = ""
	w.fieldErr = nil
	return notify, nil
}

func retrieveToken(ctx context.Context, p tokenization.Provider) (tokenization.Token, error) {
	tok, err := p.RetrieveToken(ctx)
	if err != nil {
		msg := msgTokenizeFailed
		if errors.Is(err, tokenization.ErrUnavailable) {
			msg = msgTokenizerUnavailable
		}
		return tokenization.Token{}, &TokenizationError{Message: msg, Err: err}
	}
	if tok.Token == "" {
		return tokenization.Token{}, &TokenizationError{Message: msgTokenizeFailed}
	}
	return tok, nil
}

func (w *Workflow) charge(ctx context.Context, mode string, req ChargeRequest) error {
	start := time.Now()
	_, err := w.deps.Processor.ChargeCard(ctx, w.deps.Identity, req)
	w.metrics.ObserveCheckout(mode, err == nil, time.Since(start), req.Subtotal.Cents)
	if err != nil {
		return w.fail(mode, "payment", asPaymentError(err))
	}

	w.mu.Lock()
	notify, terr := w.transitionLocked(EventPaymentSucceeded)
	w.mu.Unlock()
	if terr != nil {
		return terr
	}
	notify()

	w.log.Info().
		Str("mode", mode).
		Int64("subtotal_cents", req.Subtotal.Cents).
		Str("card", logger.MaskToken(req.Card.CardToken)).
		Str("email", logger.RedactEmail(req.Card.Email)).
		Msg("checkout.payment_succeeded")

	if w.onSuccess != nil {
		w.successOnce.Do(w.onSuccess)
	}
	return nil
}

func asPaymentError(err error) *PaymentError {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, ErrProcessorUnavailable) {
		return &PaymentError{Message: msgProcessorUnavailable, Err: err}
	}
	return &PaymentError{Message: msgPaymentFailed, Err: err}
}

// fail moves processing to error, records the message and returns err.
func (w *Workflow) fail(mode, reason string, err error) error {
	w.mu.Lock()
	w.errMsg = err.Error()
	notify, terr := w.transitionLocked(EventPaymentFailed)
	w.mu.Unlock()
	if terr == nil {
		notify()
	}

	w.metrics.ObserveCheckoutFailure(mode, reason)
	w.log.Warn().
		Err(err).
		Str("mode", mode).
		Str("reason", reason).
		Msg("checkout.submit_failed")
	return err
}

// saveCard remembers a newly charged card. Storage failures are logged only.
func (w *Workflow) saveCard(ctx context.Context, billing BillingInfo, month, year, token string) {
	if w.deps.Cards == nil {
		return
	}
	pm := savedcards.PaymentMethod{
		ID:             uuid.NewString(),
		Token:          token,
		Last4:          Last4(token),
		CardType:       GuessCardType(token),
		CardholderName: billing.Name,
		Email:          billing.Email,
		Address:        billing.Address,
		City:           billing.City,
		State:          billing.State,
		Zip:            billing.Zip,
		Country:        billing.Country,
		ExpMonth:       month,
		ExpYear:        year,
	}

	added, err := w.deps.Cards.Add(ctx, w.deps.Identity.Address, pm)
	if err != nil {
		w.log.Warn().Err(err).Msg("checkout.save_card_failed")
		return
	}
	if !added {
		return
	}

	w.mu.Lock()
	w.cards = append(w.cards, pm)
	w.mu.Unlock()
}

// SelectCard selects a saved card and leaves new-card mode.
func (w *Workflow) SelectCard(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.findCardLocked(id); !ok {
		return ErrCardNotFound
	}
	w.selectedID = id
	w.useNewCard = false
	w.fieldErr = nil
	return nil
}

// UseNewCard toggles new-card mode. Turning it off without saved cards is ignored.
func (w *Workflow) UseNewCard(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !on && len(w.cards) == 0 {
		return
	}
	w.useNewCard = on
	if on {
		w.selectedID = ""
	}
}

// DeleteCard removes a saved card. A storage failure is logged and the card
// is still dropped from this checkout.
func (w *Workflow) DeleteCard(ctx context.Context, id string) error {
	w.mu.Lock()
	if _, ok := w.findCardLocked(id); !ok {
		w.mu.Unlock()
		return ErrCardNotFound
	}
	w.mu.Unlock()

	var remaining []savedcards.PaymentMethod
	var err error
	if w.deps.Cards != nil {
		remaining, err = w.deps.Cards.Delete(ctx, w.deps.Identity.Address, id)
		if err != nil {
			w.log.Warn().Err(err).Msg("checkout.delete_card_failed")
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deps.Cards == nil || err != nil {
		remaining = make([]savedcards.PaymentMethod, 0, len(w.cards))
		for _, c := range w.cards {
			if c.ID != id {
				remaining = append(remaining, c)
			}
		}
	}
	w.cards = remaining
	if w.selectedID == id {
		w.selectedID = ""
	}
	if len(w.cards) == 0 {
		w.useNewCard = true
	}
	return nil
}

func (w *Workflow) findCardLocked(id string) (savedcards.PaymentMethod, bool) {
	if id == "" {
		return savedcards.PaymentMethod{}, false
	}
	for _, c := range w.cards {
		if c.ID == id {
			return c, true
		}
	}
	return savedcards.PaymentMethod{}, false
}

// CardView is a saved card without its token.
type CardView struct {
	ID             string              `json:"id"`
	Last4          string              `json:"last4"`
	CardType       savedcards.CardType `json:"cardType"`
	CardholderName string              `json:"cardholderName"`
	ExpMonth       string              `json:"expMonth"`
	ExpYear        string              `json:"expYear"`
}

// FieldError is an inline form error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// View is a point-in-time rendering of the workflow.
type View struct {
	State          State       `json:"state"`
	Wallet         string      `json:"wallet"`
	Blockchain     string      `json:"blockchain"`
	Totals         Totals      `json:"totals"`
	SavedCards     []CardView  `json:"savedCards"`
	SelectedCardID string      `json:"selectedCardId,omitempty"`
	UseNewCard     bool        `json:"useNewCard"`
	Error          string      `json:"error,omitempty"`
	FieldError     *FieldError `json:"fieldError,omitempty"`
}

// Snapshot returns the current view. Card tokens are never included.
func (w *Workflow) Snapshot() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	cards := make([]CardView, len(w.cards))
	for i, c := range w.cards {
		cards[i] = CardView{
			ID:             c.ID,
			Last4:          c.Last4,
			CardType:       c.CardType,
			CardholderName: c.CardholderName,
			ExpMonth:       c.ExpMonth,
			ExpYear:        c.ExpYear,
		}
	}
	v := View{
		State:          w.state,
		Wallet:         w.deps.Identity.Address,
		Blockchain:     w.deps.Identity.Blockchain,
		Totals:         w.totals,
		SavedCards:     cards,
		SelectedCardID: w.selectedID,
		UseNewCard:     w.useNewCard,
		Error:          w.errMsg,
	}
	if w.fieldErr != nil {
		v.FieldError = &FieldError{Field: w.fieldErr.Field, Message: w.fieldErr.Message}
	}
	return v
}
