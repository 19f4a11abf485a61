// Package savedcards keeps a small per-wallet list of previously used cards.
//
// The list is a convenience cache. It is not encrypted, has no migration path
// and may be dropped at any time; a slot written by an older schema is simply
// discarded on read.
package savedcards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/CedrosPay/cardcheckout/internal/logger"
	"github.com/CedrosPay/cardcheckout/internal/storage"
)

// KeyPrefix prefixes every slot key; the wallet address follows.
const KeyPrefix = "coinflow-saved-cards-"

// CardType is the card network tag.
type CardType string

const (
	CardTypeVisa       CardType = "VISA"
	CardTypeMastercard CardType = "MASTERCARD"
	CardTypeAmex       CardType = "AMEX"
	CardTypeDiscover   CardType = "DISCOVER"
	CardTypeUnknown    CardType = "UNKNOWN"
)

// PaymentMethod is one saved card with the billing details it was first used with.
type PaymentMethod struct {
	ID             string   `json:"id" bson:"id"`
	Token          string   `json:"token" bson:"token"`
	Last4          string   `json:"last4" bson:"last4"`
	CardType       CardType `json:"cardType" bson:"card_type"`
	CardholderName string   `json:"cardholderName" bson:"cardholder_name"`
	Email          string   `json:"email" bson:"email"`
	Address        string   `json:"address" bson:"address"`
	City           string   `json:"city" bson:"city"`
	State          string   `json:"state" bson:"state"`
	Zip            string   `json:"zip" bson:"zip"`
	Country        string   `json:"country" bson:"country"`
	ExpMonth       string   `json:"expMonth" bson:"exp_month"`
	ExpYear        string   `json:"expYear" bson:"exp_year"`
}

// Observer receives cache events (add, duplicate, delete, invalidate).
type Observer interface {
	ObserveSavedCard(operation string)
}

// Store reads and writes saved-card lists through a storage.KV.
type Store struct {
	kv       storage.KV
	observer Observer

	// Add and Delete are read-modify-write; serialize them per process.
	mu sync.Mutex
}

// NewStore wraps kv. observer may be nil.
func NewStore(kv storage.KV, observer Observer) *Store {
	return &Store{kv: kv, observer: observer}
}

// Key returns the slot key for wallet.
func Key(wallet string) string {
	return KeyPrefix + wallet
}

// List returns the wallet's saved cards. Missing, unparsable or stale slots
// yield an empty list and no error; stale slots are deleted.
func (s *Store) List(ctx context.Context, wallet string) []PaymentMethod {
	log := logger.FromContext(ctx)
	cards, err := s.load(ctx, wallet)
	if err != nil {
		if errors.Is(err, errStaleSchema) {
			s.observe("invalidate")
			if delErr := s.kv.Delete(ctx, Key(wallet)); delErr != nil {
				log.Warn().Err(delErr).Str("wallet", logger.TruncateAddress(wallet)).Msg("savedcards.invalidate_failed")
			}
		}
		logLoadError(log, wallet, err)
		return []PaymentMethod{}
	}
	return cards
}

// Add appends pm unless a card with the same last4 is already saved.
func (s *Store) Add(ctx context.Context, wallet string, pm PaymentMethod) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards, err := s.current(ctx, wallet)
	if err != nil {
		return false, err
	}
	for _, c := range cards {
		if c.Last4 == pm.Last4 {
			s.observe("duplicate")
			return false, nil
		}
	}

	cards = append(cards, pm)
	if err := s.save(ctx, wallet, cards); err != nil {
		return false, err
	}
	s.observe("add")
	return true, nil
}

// Delete removes the card with id and returns what remains.
func (s *Store) Delete(ctx context.Context, wallet, id string) ([]PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards, err := s.current(ctx, wallet)
	if err != nil {
		return nil, err
	}
	remaining := make([]PaymentMethod, 0, len(cards))
	for _, c := range cards {
		if c.ID != id {
			remaining = append(remaining, c)
		}
	}

	if err := s.save(ctx, wallet, remaining); err != nil {
		return cards, err
	}
	s.observe("delete")
	return remaining, nil
}

var (
	errStaleSchema = errors.New("saved cards: stale schema")
	errCorruptSlot = errors.New("saved cards: unparsable slot")
)

// current loads the list a read-modify-write starts from. Only a missing,
// unparsable or stale slot starts empty; any other read failure aborts the
// write so the stored list is left intact.
func (s *Store) current(ctx context.Context, wallet string) ([]PaymentMethod, error) {
	cards, err := s.load(ctx, wallet)
	switch {
	case err == nil:
		return cards, nil
	case errors.Is(err, errStaleSchema):
		s.observe("invalidate")
		return []PaymentMethod{}, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, errCorruptSlot):
		return []PaymentMethod{}, nil
	default:
		return nil, fmt.Errorf("load saved cards: %w", err)
	}
}

func (s *Store) load(ctx context.Context, wallet string) ([]PaymentMethod, error) {
	raw, err := s.kv.Get(ctx, Key(wallet))
	if err != nil {
		return nil, err
	}

	var cards []PaymentMethod
	if err := json.Unmarshal(raw, &cards); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptSlot, err)
	}
	if len(cards) > 0 && (cards[0].Email == "" || cards[0].Address == "") {
		return nil, errStaleSchema
	}
	if cards == nil {
		cards = []PaymentMethod{}
	}
	return cards, nil
}

func (s *Store) save(ctx context.Context, wallet string, cards []PaymentMethod) error {
	raw, err := json.Marshal(cards)
	if err != nil {
		return fmt.Errorf("encode saved cards: %w", err)
	}
	if err := s.kv.Put(ctx, Key(wallet), raw); err != nil {
		return fmt.Errorf("persist saved cards: %w", err)
	}
	return nil
}

func (s *Store) observe(op string) {
	if s.observer != nil {
		s.observer.ObserveSavedCard(op)
	}
}

func logLoadError(log zerolog.Logger, wallet string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	log.Warn().
		Err(err).
		Str("wallet", logger.TruncateAddress(wallet)).
		Msg("savedcards.load_failed")
}
