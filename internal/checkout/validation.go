package checkout

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	expiryPattern = regexp.MustCompile(`^(\d{2})/(\d{2}|\d{4})$`)
	validate      = newValidator()
)

// Field error messages shown next to the form.
const (
	msgCardNotReady    = "Card form not ready - components not initialized"
	msgInvalidExpiry   = "Please enter a valid expiry date"
	msgMissingBilling  = "Please fill in all billing information"
	msgInvalidEmail    = "Please enter a valid email address"
	msgSelectCardAndCV = "Please select a card and enter CVV"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// ParseExpiry validates "MM/YY" or "MM/YYYY" and returns the month and a
// two-digit year.
func ParseExpiry(expiry string) (month, year string, err error) {
	m := expiryPattern.FindStringSubmatch(strings.TrimSpace(expiry))
	if m == nil {
		return "", "", &ValidationError{Field: "expiry", Message: msgInvalidExpiry}
	}
	n, _ := strconv.Atoi(m[1])
	if n < 1 || n > 12 {
		return "", "", &ValidationError{Field: "expiry", Message: msgInvalidExpiry}
	}
	year = m[2]
	if len(year) == 4 {
		year = year[2:]
	}
	return m[1], year, nil
}

// ValidateBilling trims b in place and checks required fields, then the email shape.
func ValidateBilling(b *BillingInfo) error {
	b.Name = strings.TrimSpace(b.Name)
	b.Email = strings.TrimSpace(b.Email)
	b.Address = strings.TrimSpace(b.Address)
	b.City = strings.TrimSpace(b.City)
	b.State = strings.TrimSpace(b.State)
	b.Zip = strings.TrimSpace(b.Zip)
	b.Country = strings.ToUpper(strings.TrimSpace(b.Country))
	if b.Country == "" {
		b.Country = "US"
	}

	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	// Missing fields are reported before a malformed email.
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return &ValidationError{Field: fe.Field(), Message: msgMissingBilling}
		}
	}
	fe := fieldErrs[0]
	if fe.Tag() == "email" {
		return &ValidationError{Field: fe.Field(), Message: msgInvalidEmail}
	}
	return &ValidationError{Field: fe.Field(), Message: msgMissingBilling}
}

// SplitName returns the first word and the remainder of name, each "test" when absent.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	first, last = "test", "test"
	if len(parts) > 0 {
		first = parts[0]
	}
	if len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}

// NormalizeState returns a two-letter state code. Values of two characters or
// fewer are upper-cased; full US state names are mapped; anything else is cut
// to its first two letters.
func NormalizeState(state string) string {
	state = strings.TrimSpace(state)
	if len([]rune(state)) <= 2 {
		return strings.ToUpper(state)
	}
	if code, ok := usStates[strings.ToLower(strings.Join(strings.Fields(state), " "))]; ok {
		return code
	}
	letters := make([]rune, 0, 2)
	for _, r := range state {
		if len(letters) == 2 {
			break
		}
		if r != ' ' && r != '.' {
			letters = append(letters, r)
		}
	}
	return strings.ToUpper(string(letters))
}

var usStates = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"district of columbia": "DC", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "puerto rico": "PR",
	"rhode island": "RI", "south carolina": "SC", "south dakota": "SD", "tennessee": "TN",
	"texas": "TX", "utah": "UT", "vermont": "VT", "virginia": "VA",
	"washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}
