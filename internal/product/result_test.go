package product

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"19.99", 19.99},
		{"$1,299.99", 1299.99},
		{"$10 - $20", 10},
		{"US $5.00", 5},
		{".99", 0.99},
		{"", 0},
		{"free", 0},
		{"N/A", 0},
		{"$", 0},
		{"-$5", 0},
		{"-5.00", 0},
		{"USD -12", 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParsePrice(tt.raw); got != tt.want {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if got := NormalizeCurrency(""); got != "USD" {
		t.Errorf("Expected USD for empty currency, got %s", got)
	}
	if got := NormalizeCurrency(" eur "); got != "EUR" {
		t.Errorf("Expected EUR, got %s", got)
	}
}

func TestSearchResult_Validate(t *testing.T) {
	ok := SearchResult{Title: "Lamp", Platform: PlatformEbay}
	if err := ok.Validate(); err != nil {
		t.Errorf("Expected valid result, got %v", err)
	}

	if err := (SearchResult{Title: "  ", Platform: PlatformEbay}).Validate(); err != ErrMissingTitle {
		t.Errorf("Expected ErrMissingTitle, got %v", err)
	}
	if err := (SearchResult{Title: "Lamp"}).Validate(); err != ErrMissingPlatform {
		t.Errorf("Expected ErrMissingPlatform, got %v", err)
	}
}

func TestSearchResult_SetExtra(t *testing.T) {
	var r SearchResult
	r.SetExtra("condition", "")
	r.SetExtra("source", nil)
	if r.Extra != nil {
		t.Fatalf("Expected no extras for empty values, got %v", r.Extra)
	}

	r.SetExtra("condition", " New ")
	r.SetExtra("reviews", 42)
	r.SetExtra("rating", 4.5)
	r.SetExtra("tags", []string{"a"})

	if r.Extra["condition"] != "New" {
		t.Errorf("Expected trimmed condition, got %v", r.Extra["condition"])
	}
	if r.Extra["reviews"] != float64(42) {
		t.Errorf("Expected reviews 42, got %v", r.Extra["reviews"])
	}
	if r.Extra["rating"] != 4.5 {
		t.Errorf("Expected rating 4.5, got %v", r.Extra["rating"])
	}
	if _, ok := r.Extra["tags"]; ok {
		t.Error("Non-scalar extras should be dropped")
	}
}

func TestSearchResult_SetExtraDropsNonFinite(t *testing.T) {
	var r SearchResult
	r.SetExtra("rating", math.NaN())
	r.SetExtra("reviews", math.Inf(1))
	r.SetExtra("score", math.Inf(-1))
	if r.Extra != nil {
		t.Fatalf("Expected non-finite numbers to be dropped, got %v", r.Extra)
	}

	r.SetExtra("count", int64(7))
	if r.Extra["count"] != float64(7) {
		t.Errorf("Expected int64 stored as float64, got %T %v", r.Extra["count"], r.Extra["count"])
	}

	if _, err := json.Marshal(r); err != nil {
		t.Errorf("Result with extras should marshal: %v", err)
	}
}
