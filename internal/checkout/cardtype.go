package checkout

import (
	"github.com/CedrosPay/cardcheckout/internal/savedcards"
)

// GuessCardType maps the token's first character to a card network the way a
// PAN prefix would.
//
// This is imprecise: processor tokens are not guaranteed to preserve the PAN's
// leading digit, and the prefixes overlap (3 covers Diners and JCB as well as
// Amex). The result is for display only.
func GuessCardType(token string) savedcards.CardType {
	if token == "" {
		return savedcards.CardTypeUnknown
	}
	switch token[0] {
	case '4':
		return savedcards.CardTypeVisa
	case '5':
		return savedcards.CardTypeMastercard
	case '3':
		return savedcards.CardTypeAmex
	case '6':
		return savedcards.CardTypeDiscover
	default:
		return savedcards.CardTypeUnknown
	}
}

// Last4 returns the last four characters of token.
func Last4(token string) string {
	if len(token) <= 4 {
		return token
	}
	return token[len(token)-4:]
}
