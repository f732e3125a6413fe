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

const googleShoppingBaseURL = "https://serpapi.com"

// GoogleShoppingProvider searches Google Shopping through SerpAPI.
type GoogleShoppingProvider struct {
	transport
	apiKey string
}

func NewGoogleShoppingProvider(apiKey string, opts Options) *GoogleShoppingProvider {
	return &GoogleShoppingProvider{
		transport: newTransport(opts, googleShoppingBaseURL),
		apiKey:    strings.TrimSpace(apiKey),
	}
}

func (p *GoogleShoppingProvider) Name() string {
	return string(product.PlatformGoogleShopping)
}

func (p *GoogleShoppingProvider) Configured() bool {
	return p.apiKey != ""
}

type serpAPIShoppingResponse struct {
	Error           string            `json:"error"`
	ShoppingResults []json.RawMessage `json:"shopping_results"`
}

type serpAPIShoppingItem struct {
	Title          string     `json:"title"`
	Price          flexString `json:"price"`
	ExtractedPrice flexString `json:"extracted_price"`
	ProductLink    string     `json:"product_link"`
	Link           string     `json:"link"`
	Thumbnail      string     `json:"thumbnail"`
	Source         string     `json:"source"`
	Rating         flexString `json:"rating"`
	Reviews        flexString `json:"reviews"`
}

func (p *GoogleShoppingProvider) Fetch(ctx context.Context, keyword string, maxResults int) ([]product.SearchResult, error) {
	if !p.Configured() {
		return nil, nil
	}
	limit := clampLimit(maxResults)

	params := url.Values{}
	params.Set("engine", "google_shopping")
	params.Set("q", keyword)
	params.Set("api_key", p.apiKey)
	params.Set("num", strconv.Itoa(limit))

	endpoint, err := p.endpoint("/search", params)
	if err != nil {
		return nil, err
	}
	req, err := newRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var payload serpAPIShoppingResponse
	if err := p.getJSON(req, &payload); err != nil {
		return nil, err
	}
	if payload.Error != "" && len(payload.ShoppingResults) == 0 {
		// SerpAPI reports an empty result page through the error field.
		if strings.Contains(strings.ToLower(payload.Error), "returned any results") {
			return nil, nil
		}
		return nil, fmt.Errorf("serpapi error: %s", payload.Error)
	}

	results, skipped := normalizeAll(payload.ShoppingResults, limit, normalizeShoppingItem)
	if skipped > 0 {
		p.log.Debug("skipped malformed items", zap.String("provider", p.Name()), zap.Int("skipped", skipped))
	}
	return results, nil
}

func normalizeShoppingItem(item serpAPIShoppingItem) product.SearchResult {
	link := strings.TrimSpace(item.ProductLink)
	if link == "" {
		link = strings.TrimSpace(item.Link)
	}
	r := product.SearchResult{
		Title:    strings.TrimSpace(item.Title),
		Currency: product.DefaultCurrency,
		URL:      link,
		Image:    strings.TrimSpace(item.Thumbnail),
		Platform: product.PlatformGoogleShopping,
	}
	if v, ok := item.ExtractedPrice.number(); ok && v > 0 {
		r.Price = v
	} else {
		r.Price, _ = item.Price.number()
	}
	r.SetExtra("source", item.Source)
	r.SetExtra("rating", item.Rating.extraValue())
	r.SetExtra("reviews", item.Reviews.extraValue())
	return r
}
