package provider

import (
	"context"
	"encoding/json"

	"github.com/hession/dealscout/internal/product"
)

// DefaultMaxResults is used when a caller passes a non-positive limit.
const DefaultMaxResults = 10

// Provider fetches product listings from one backend and normalizes them.
//
// Fetch returns nil, nil without touching the network when the provider
// has no credentials. Transport, status and decode failures are returned as
// errors; callers treat them as an empty contribution.
type Provider interface {
	Name() string
	Configured() bool
	Fetch(ctx context.Context, keyword string, maxResults int) ([]product.SearchResult, error)
}

func clampLimit(maxResults int) int {
	if maxResults <= 0 {
		return DefaultMaxResults
	}
	return maxResults
}

// normalizeAll decodes and normalizes raw items one at a time, skipping any
// that fail to decode or validate, and stops once limit results are
// collected. It returns the number of skipped items.
func normalizeAll[T any](raw []json.RawMessage, limit int, fn func(T) product.SearchResult) ([]product.SearchResult, int) {
	results := make([]product.SearchResult, 0, min(len(raw), limit))
	skipped := 0
	for _, msg := range raw {
		if len(results) >= limit {
			break
		}
		var item T
		if err := json.Unmarshal(msg, &item); err != nil {
			skipped++
			continue
		}
		r := fn(item)
		if err := r.Validate(); err != nil {
			skipped++
			continue
		}
		results = append(results, r)
	}
	return results, skipped
}
