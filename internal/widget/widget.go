// Package widget holds the static configuration handed to the hosted card
// and CVV iframes: styles, the origin allow-list, the merchant and environment.
package widget

import (
	"github.com/CedrosPay/cardcheckout/internal/config"
)

// FieldStyles is the CSS for one iframe input in its three visual states.
type FieldStyles struct {
	Base  string `json:"base"`
	Focus string `json:"focus"`
	Error string `json:"error"`
}

// Styles is the css object accepted by the iframe widget.
type Styles struct {
	FieldStyles
	CVV FieldStyles `json:"cvv"`
}

// Config is everything the browser needs to mount the iframes.
type Config struct {
	MerchantID  string   `json:"merchantId"`
	Environment string   `json:"env"`
	Blockchain  string   `json:"blockchain"`
	CSS         Styles   `json:"css"`
	InlineCVV   Styles   `json:"inlineCvvCss"`
	Origins     []string `json:"origins"`
}

const (
	fieldFocus = "border: 1px solid #3b82f6; box-shadow: 0 0 0 3px rgba(59,130,246,.1); outline: 0;"
	fieldError = "border: 1px solid #ef4444; box-shadow: 0 0 0 3px rgba(239,68,68,.15);"

	cardBase   = "font-family: ui-sans-serif, system-ui; -webkit-text-fill-color: #000; font-size: 14px; line-height: 20px; height: 48px; padding: 12px 16px; border: 1px solid #d1d5db; border-radius: 8px; background: #fff; color: #000;"
	inlineBase = "font-family: ui-sans-serif, system-ui; -webkit-text-fill-color: #000; font-size: 12px; height: 28px; padding: 4px 8px; border: 1px solid #d1d5db; border-radius: 6px; background: #fff; color: #000;"
)

// DefaultOrigins is the allow-list used for local development.
var DefaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:3002",
}

// CardInputStyles returns the styles for the full card form.
func CardInputStyles() Styles {
	f := FieldStyles{Base: cardBase, Focus: fieldFocus, Error: fieldError}
	return Styles{FieldStyles: f, CVV: f}
}

// InlineCVVStyles returns the compact styles used on saved-card rows.
func InlineCVVStyles() Styles {
	f := FieldStyles{Base: inlineBase, Focus: fieldFocus, Error: fieldError}
	return Styles{FieldStyles: f, CVV: f}
}

// FromConfig derives the widget configuration from application config.
func FromConfig(cfg *config.Config) Config {
	origins := cfg.Widget.AllowedOrigins
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	return Config{
		MerchantID:  cfg.Processor.MerchantID,
		Environment: cfg.Processor.Environment,
		Blockchain:  cfg.Processor.Blockchain,
		CSS:         applyOverride(CardInputStyles(), cfg.Widget.Styles),
		InlineCVV:   applyOverride(InlineCVVStyles(), cfg.Widget.InlineStyles),
		Origins:     append([]string(nil), origins...),
	}
}

// OriginAllowed reports whether origin is on the allow-list. Matching is exact.
func (c Config) OriginAllowed(origin string) bool {
	for _, o := range c.Origins {
		if o == origin {
			return true
		}
	}
	return false
}

func applyOverride(s Styles, o config.StyleOverride) Styles {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.Base, o.Base)
	set(&s.Focus, o.Focus)
	set(&s.Error, o.Error)
	set(&s.CVV.Base, o.CVVBase)
	set(&s.CVV.Focus, o.CVVFocus)
	set(&s.CVV.Error, o.CVVError)
	return s
}
