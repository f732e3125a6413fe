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

const ebayBaseURL = "https://svcs.ebay.com"

// EbayProvider searches the eBay Finding API.
type EbayProvider struct {
	transport
	appID string
}

func NewEbayProvider(appID string, opts Options) *EbayProvider {
	return &EbayProvider{
		transport: newTransport(opts, ebayBaseURL),
		appID:     strings.TrimSpace(appID),
	}
}

func (p *EbayProvider) Name() string {
	return string(product.PlatformEbay)
}

func (p *EbayProvider) Configured() bool {
	return p.appID != ""
}

type ebayErrorMessage struct {
	Error []struct {
		Message []string `json:"message"`
	} `json:"error"`
}

// The Finding API wraps every field in a single-element array.
type ebayResponse struct {
	FindItemsByKeywordsResponse []struct {
		Ack          []string           `json:"ack"`
		ErrorMessage []ebayErrorMessage `json:"errorMessage"`
		SearchResult []struct {
			Item []json.RawMessage `json:"item"`
		} `json:"searchResult"`
	} `json:"findItemsByKeywordsResponse"`
}

type ebayItem struct {
	Title         []string `json:"title"`
	ViewItemURL   []string `json:"viewItemURL"`
	GalleryURL    []string `json:"galleryURL"`
	SellingStatus []struct {
		CurrentPrice []struct {
			CurrencyID string     `json:"@currencyId"`
			Value      flexString `json:"__value__"`
		} `json:"currentPrice"`
	} `json:"sellingStatus"`
	Condition []struct {
		ConditionDisplayName []string `json:"conditionDisplayName"`
	} `json:"condition"`
}

func (p *EbayProvider) Fetch(ctx context.Context, keyword string, maxResults int) ([]product.SearchResult, error) {
	if !p.Configured() {
		return nil, nil
	}
	limit := clampLimit(maxResults)

	params := url.Values{}
	params.Set("OPERATION-NAME", "findItemsByKeywords")
	params.Set("SERVICE-VERSION", "1.0.0")
	params.Set("SECURITY-APPNAME", p.appID)
	params.Set("RESPONSE-DATA-FORMAT", "JSON")
	params.Set("keywords", keyword)
	params.Set("paginationInput.entriesPerPage", strconv.Itoa(limit))

	endpoint, err := p.endpoint("/services/search/FindingService/v1", params)
	if err != nil {
		return nil, err
	}
	req, err := newRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var payload ebayResponse
	if err := p.getJSON(req, &payload); err != nil {
		return nil, err
	}
	if len(payload.FindItemsByKeywordsResponse) == 0 {
		return nil, fmt.Errorf("unexpected payload: missing findItemsByKeywordsResponse")
	}

	body := payload.FindItemsByKeywordsResponse[0]
	if ack := first(body.Ack); ack != "" && !strings.EqualFold(ack, "Success") && !strings.EqualFold(ack, "Warning") {
		return nil, fmt.Errorf("ebay returned ack %q: %s", ack, firstEbayError(body.ErrorMessage))
	}

	var raw []json.RawMessage
	if len(body.SearchResult) > 0 {
		raw = body.SearchResult[0].Item
	}

	results, skipped := normalizeAll(raw, limit, normalizeEbayItem)
	if skipped > 0 {
		p.log.Debug("skipped malformed items", zap.String("provider", p.Name()), zap.Int("skipped", skipped))
	}
	return results, nil
}

func normalizeEbayItem(item ebayItem) product.SearchResult {
	r := product.SearchResult{
		Title:    first(item.Title),
		Currency: product.DefaultCurrency,
		URL:      first(item.ViewItemURL),
		Image:    first(item.GalleryURL),
		Platform: product.PlatformEbay,
	}
	if len(item.SellingStatus) > 0 && len(item.SellingStatus[0].CurrentPrice) > 0 {
		price := item.SellingStatus[0].CurrentPrice[0]
		r.Price, _ = price.Value.number()
		r.Currency = product.NormalizeCurrency(price.CurrencyID)
	}
	if len(item.Condition) > 0 {
		r.SetExtra("condition", first(item.Condition[0].ConditionDisplayName))
	}
	return r
}

func firstEbayError(msgs []ebayErrorMessage) string {
	for _, m := range msgs {
		for _, e := range m.Error {
			if msg := first(e.Message); msg != "" {
				return msg
			}
		}
	}
	return "no error message"
}
