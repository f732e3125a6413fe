package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hession/dealscout/internal/product"
	"go.uber.org/zap"
)

const (
	amazonBaseURL = "https://real-time-product-search.p.rapidapi.com"
	amazonHost    = "real-time-product-search.p.rapidapi.com"
)

// AmazonProvider searches Amazon listings through RapidAPI's Real-Time
// Product Search.
type AmazonProvider struct {
	transport
	apiKey string
	host   string
}

func NewAmazonProvider(apiKey, host string, opts Options) *AmazonProvider {
	host = strings.TrimSpace(host)
	if host == "" {
		host = amazonHost
	}
	return &AmazonProvider{
		transport: newTransport(opts, amazonBaseURL),
		apiKey:    strings.TrimSpace(apiKey),
		host:      host,
	}
}

func (p *AmazonProvider) Name() string {
	return string(product.PlatformAmazon)
}

func (p *AmazonProvider) Configured() bool {
	return p.apiKey != ""
}

type amazonResponse struct {
	Status string            `json:"status"`
	Data   []json.RawMessage `json:"data"`
}

type amazonItem struct {
	ProductTitle      string     `json:"product_title"`
	ProductPrice      flexString `json:"product_price"`
	ProductURL        string     `json:"product_url"`
	ProductPhoto      string     `json:"product_photo"`
	ProductStarRating flexString `json:"product_star_rating"`
	ProductNumReviews flexString `json:"product_num_reviews"`
	Currency          string     `json:"currency"`
}

func (p *AmazonProvider) Fetch(ctx context.Context, keyword string, maxResults int) ([]product.SearchResult, error) {
	if !p.Configured() {
		return nil, nil
	}
	limit := clampLimit(maxResults)

	params := url.Values{}
	params.Set("q", keyword)
	params.Set("country", "us")
	params.Set("language", "en")
	params.Set("limit", strconv.Itoa(limit))

	endpoint, err := p.endpoint("/search", params)
	if err != nil {
		return nil, err
	}
	req, err := newRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", p.apiKey)
	req.Header.Set("X-RapidAPI-Host", p.host)

	var payload amazonResponse
	if err := p.getJSON(req, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "" && !strings.EqualFold(payload.Status, "OK") {
		return nil, fmt.Errorf("rapidapi returned status %q", payload.Status)
	}

	results, skipped := normalizeAll(payload.Data, limit, normalizeAmazonItem)
	if skipped > 0 {
		p.log.Debug("skipped malformed items", zap.String("provider", p.Name()), zap.Int("skipped", skipped))
	}
	return results, nil
}

func normalizeAmazonItem(item amazonItem) product.SearchResult {
	r := product.SearchResult{
		Title:    strings.TrimSpace(item.ProductTitle),
		Currency: product.NormalizeCurrency(item.Currency),
		URL:      strings.TrimSpace(item.ProductURL),
		Image:    strings.TrimSpace(item.ProductPhoto),
		Platform: product.PlatformAmazon,
	}
	r.Price, _ = item.ProductPrice.number()
	r.SetExtra("rating", item.ProductStarRating.extraValue())
	r.SetExtra("reviews", item.ProductNumReviews.extraValue())
	return r
}
