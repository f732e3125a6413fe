package product

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Platform identifies the backend a result came from.
type Platform string

const (
	PlatformEbay           Platform = "eBay"
	PlatformAmazon         Platform = "Amazon"
	PlatformGoogleShopping Platform = "Google Shopping"
)

// DefaultCurrency is used when a provider omits the currency code.
const DefaultCurrency = "USD"

const currencySymbols = "$€£¥"

var (
	ErrMissingTitle    = errors.New("result has no title")
	ErrMissingPlatform = errors.New("result has no platform")
)

// SearchResult is a provider-agnostic product listing.
type SearchResult struct {
	Title    string         `json:"title"`
	Price    float64        `json:"price"`
	Currency string         `json:"currency"`
	URL      string         `json:"url"`
	Image    string         `json:"image"`
	Platform Platform       `json:"platform"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Validate reports whether the result is usable after normalization.
func (r SearchResult) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingTitle
	}
	if r.Platform == "" {
		return ErrMissingPlatform
	}
	return nil
}

// SetExtra stores an optional provider-specific scalar. Nil values, empty
// strings and non-finite numbers are dropped. Integers are stored as
// float64 so a result reads back the same after a JSON round trip.
func (r *SearchResult) SetExtra(key string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		value = v
	case bool:
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
	default:
		return
	}
	if r.Extra == nil {
		r.Extra = make(map[string]any)
	}
	r.Extra[key] = value
}

// NormalizeCurrency upper-cases a currency code and falls back to USD.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// ParsePrice extracts the first decimal number from a display price such as
// "$1,299.99" or "$10 - $20". Anything it cannot read, including a negative
// amount like "-$5", yields 0.
func ParsePrice(raw string) float64 {
	start := strings.IndexFunc(raw, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return 0
	}
	if start > 0 && raw[start-1] == '.' {
		start--
	}
	if strings.HasSuffix(strings.TrimRight(raw[:start], currencySymbols+" "), "-") {
		return 0
	}

	var b strings.Builder
	seenDot := false
scan:
	for _, r := range raw[start:] {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',':
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		default:
			break scan
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return SanitizePrice(v)
}

// SanitizePrice coerces non-finite or negative numbers to 0.
func SanitizePrice(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
