package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hession/dealscout/internal/config"
	"github.com/hession/dealscout/internal/product"
)

// countingServer serves body and counts requests.
func countingServer(t *testing.T, status int, body string, check func(r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func ebayBody(n int) string {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, map[string]any{
			"title":       []string{fmt.Sprintf("Item %d", i)},
			"viewItemURL": []string{fmt.Sprintf("https://ebay.example/%d", i)},
			"galleryURL":  []string{"https://img.example/x.jpg"},
			"sellingStatus": []any{map[string]any{
				"currentPrice": []any{map[string]any{"@currencyId": "USD", "__value__": "19.99"}},
			}},
			"condition": []any{map[string]any{"conditionDisplayName": []string{"New"}}},
		})
	}
	payload := map[string]any{
		"findItemsByKeywordsResponse": []any{map[string]any{
			"ack":          []string{"Success"},
			"searchResult": []any{map[string]any{"item": items}},
		}},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestEbayProvider_Fetch(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK, ebayBody(2), func(r *http.Request) {
		if r.URL.Path != "/services/search/FindingService/v1" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("SECURITY-APPNAME") != "app-id" {
			t.Errorf("Expected app id param, got %q", q.Get("SECURITY-APPNAME"))
		}
		if q.Get("keywords") != "desk lamp" {
			t.Errorf("Expected keywords param, got %q", q.Get("keywords"))
		}
		if q.Get("paginationInput.entriesPerPage") != "5" {
			t.Errorf("Expected page size 5, got %q", q.Get("paginationInput.entriesPerPage"))
		}
		if r.Header.Get("User-Agent") != "DealScout/0.1" {
			t.Errorf("Expected default User-Agent, got %q", r.Header.Get("User-Agent"))
		}
	})

	p := NewEbayProvider("app-id", Options{BaseURL: server.URL})
	results, err := p.Fetch(context.Background(), "desk lamp", 5)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	r := results[0]
	if r.Title != "Item 0" || r.Price != 19.99 || r.Currency != "USD" || r.Platform != product.PlatformEbay {
		t.Errorf("Unexpected result: %+v", r)
	}
	if r.URL != "https://ebay.example/0" || r.Image != "https://img.example/x.jpg" {
		t.Errorf("Unexpected links: %+v", r)
	}
	if r.Extra["condition"] != "New" {
		t.Errorf("Expected condition extra, got %v", r.Extra)
	}
}

func TestEbayProvider_TruncatesToMaxResults(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK, ebayBody(50), nil)

	p := NewEbayProvider("app-id", Options{BaseURL: server.URL})
	results, err := p.Fetch(context.Background(), "lamp", 5)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(results))
	}
	for i, r := range results {
		if want := fmt.Sprintf("Item %d", i); r.Title != want {
			t.Errorf("Result %d: expected %q, got %q", i, want, r.Title)
		}
	}
}

func TestEbayProvider_FailureAck(t *testing.T) {
	body := `{"findItemsByKeywordsResponse":[{"ack":["Failure"],"errorMessage":[{"error":[{"message":["Invalid application ID"]}]}]}]}`
	server, _ := countingServer(t, http.StatusOK, body, nil)

	p := NewEbayProvider("bad-id", Options{BaseURL: server.URL})
	_, err := p.Fetch(context.Background(), "lamp", 5)
	if err == nil {
		t.Fatal("Expected error for failure ack")
	}
}

func TestEbayProvider_UnexpectedShape(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK, `{"something":"else"}`, nil)

	p := NewEbayProvider("app-id", Options{BaseURL: server.URL})
	if _, err := p.Fetch(context.Background(), "lamp", 5); err == nil {
		t.Fatal("Expected error for unexpected payload shape")
	}
}

func TestAmazonProvider_Fetch(t *testing.T) {
	body := `{"status":"OK","data":[
		{"product_title":"Desk Lamp","product_price":"$1,299.99","product_url":"https://amazon.example/1","product_photo":"https://img.example/1.jpg","product_star_rating":"4.6","product_num_reviews":1200},
		{"product_title":"Cheap Lamp","product_price":"see store","product_url":"https://amazon.example/2"},
		{"product_title":{"bad":"shape"},"product_price":"$5"},
		{"product_title":"","product_price":"$5"},
		{"product_title":"Numeric Price","product_price":12.5}
	]}`
	server, _ := countingServer(t, http.StatusOK, body, func(r *http.Request) {
		if r.Header.Get("X-RapidAPI-Key") != "rapid-key" {
			t.Errorf("Expected RapidAPI key header, got %q", r.Header.Get("X-RapidAPI-Key"))
		}
		if r.Header.Get("X-RapidAPI-Host") != "real-time-product-search.p.rapidapi.com" {
			t.Errorf("Unexpected host header %q", r.Header.Get("X-RapidAPI-Host"))
		}
		if r.URL.Query().Get("q") != "lamp" || r.URL.Query().Get("limit") != "10" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
	})

	p := NewAmazonProvider("rapid-key", "", Options{BaseURL: server.URL})
	results, err := p.Fetch(context.Background(), "lamp", 10)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results (malformed items skipped), got %d: %+v", len(results), results)
	}

	if results[0].Price != 1299.99 || results[0].Platform != product.PlatformAmazon {
		t.Errorf("Unexpected first result: %+v", results[0])
	}
	if results[0].Extra["rating"] != 4.6 || results[0].Extra["reviews"] != float64(1200) {
		t.Errorf("Unexpected extras: %v", results[0].Extra)
	}

	// Non-numeric price coerces to zero.
	if results[1].Price != 0 || results[1].Currency != "USD" {
		t.Errorf("Expected price 0 USD for unparsable price, got %+v", results[1])
	}
	if results[2].Title != "Numeric Price" || results[2].Price != 12.5 {
		t.Errorf("Expected numeric price to be read, got %+v", results[2])
	}
}

func TestAmazonProvider_NonFiniteExtrasDropped(t *testing.T) {
	body := `{"status":"OK","data":[
		{"product_title":"Lamp","product_price":"$20","product_star_rating":"NaN","product_num_reviews":"Infinity"},
		{"product_title":"Desk","product_price":"NaN","product_star_rating":"-Inf","product_num_reviews":"12"}
	]}`
	server, _ := countingServer(t, http.StatusOK, body, nil)

	p := NewAmazonProvider("rapid-key", "", Options{BaseURL: server.URL})
	results, err := p.Fetch(context.Background(), "lamp", 10)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	if results[0].Extra != nil {
		t.Errorf("Expected NaN and Infinity extras to be dropped, got %v", results[0].Extra)
	}
	if _, ok := results[1].Extra["rating"]; ok {
		t.Errorf("Expected -Inf rating to be dropped, got %v", results[1].Extra)
	}
	if results[1].Extra["reviews"] != float64(12) || results[1].Price != 0 {
		t.Errorf("Unexpected second result: %+v", results[1])
	}

	// Normalized results must always be cacheable and servable.
	if _, err := json.Marshal(results); err != nil {
		t.Errorf("Normalized results should marshal: %v", err)
	}
}

func TestFlexString_ExtraValue(t *testing.T) {
	tests := []struct {
		in   flexString
		want any
	}{
		{"4.5", 4.5},
		{" 12 ", float64(12)},
		{"New", "New"},
		{"NaN", nil},
		{"Inf", nil},
		{"-Infinity", nil},
		{"", ""},
	}
	for _, tt := range tests {
		if got := tt.in.extraValue(); got != tt.want {
			t.Errorf("flexString(%q).extraValue() = %v, want %v", string(tt.in), got, tt.want)
		}
	}
}

func TestAmazonProvider_StatusError(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK, `{"status":"ERROR","data":[]}`, nil)

	p := NewAmazonProvider("rapid-key", "", Options{BaseURL: server.URL})
	if _, err := p.Fetch(context.Background(), "lamp", 10); err == nil {
		t.Fatal("Expected error for non-OK status")
	}
}

func TestGoogleShoppingProvider_Fetch(t *testing.T) {
	body := `{"shopping_results":[
		{"title":"Desk","price":"$150.00","extracted_price":150,"product_link":"https://google.example/desk","thumbnail":"https://img.example/d.jpg","source":"Target","rating":4.5,"reviews":320},
		{"title":"Chair","price":"$1,049.00","link":"https://google.example/chair"},
		{"title":"Mystery","price":"call for price"}
	]}`
	server, _ := countingServer(t, http.StatusOK, body, func(r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "google_shopping" || q.Get("api_key") != "serp-key" || q.Get("num") != "3" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
	})

	p := NewGoogleShoppingProvider("serp-key", Options{BaseURL: server.URL})
	results, err := p.Fetch(context.Background(), "desk", 3)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	desk := results[0]
	if desk.Price != 150 || desk.URL != "https://google.example/desk" || desk.Platform != product.PlatformGoogleShopping {
		t.Errorf("Unexpected desk result: %+v", desk)
	}
	if desk.Extra["source"] != "Target" || desk.Extra["rating"] != 4.5 || desk.Extra["reviews"] != float64(320) {
		t.Errorf("Unexpected extras: %v", desk.Extra)
	}
	if results[1].Price != 1049 || results[1].URL != "https://google.example/chair" {
		t.Errorf("Expected price parsed from display string and link fallback, got %+v", results[1])
	}
	if results[2].Price != 0 {
		t.Errorf("Expected unparsable price to be 0, got %v", results[2].Price)
	}
}

func TestGoogleShoppingProvider_NoResultsIsEmpty(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK, `{"error":"Google hasn't returned any results for this query."}`, nil)

	p := NewGoogleShoppingProvider("serp-key", Options{BaseURL: server.URL})
	results, err := p.Fetch(context.Background(), "zzzz", 3)
	if err != nil || len(results) != 0 {
		t.Errorf("Expected empty result without error, got %v, %v", results, err)
	}
}

func TestGoogleShoppingProvider_APIError(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK, `{"error":"Invalid API key."}`, nil)

	p := NewGoogleShoppingProvider("serp-key", Options{BaseURL: server.URL})
	if _, err := p.Fetch(context.Background(), "desk", 3); err == nil {
		t.Fatal("Expected error for SerpAPI error payload")
	}
}

func TestProviders_NoCredentialsMakeNoCalls(t *testing.T) {
	server, calls := countingServer(t, http.StatusOK, `{}`, nil)
	opts := Options{BaseURL: server.URL}

	providers := []Provider{
		NewEbayProvider("", opts),
		NewAmazonProvider("  ", "", opts),
		NewGoogleShoppingProvider("", opts),
	}
	for _, p := range providers {
		if p.Configured() {
			t.Errorf("%s should not be configured", p.Name())
		}
		results, err := p.Fetch(context.Background(), "lamp", 10)
		if err != nil || results != nil {
			t.Errorf("%s: expected nil, nil; got %v, %v", p.Name(), results, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("Expected zero network calls, got %d", calls.Load())
	}
}

func TestProviders_HTTPError(t *testing.T) {
	server, _ := countingServer(t, http.StatusTooManyRequests, `{"message":"quota exceeded"}`, nil)

	p := NewGoogleShoppingProvider("serp-key", Options{BaseURL: server.URL})
	_, err := p.Fetch(context.Background(), "desk", 3)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", httpErr.StatusCode)
	}
}

func TestProviders_MalformedJSON(t *testing.T) {
	server, _ := countingServer(t, http.StatusOK, `{not json`, nil)

	p := NewAmazonProvider("rapid-key", "", Options{BaseURL: server.URL})
	if _, err := p.Fetch(context.Background(), "lamp", 10); err == nil {
		t.Fatal("Expected decode error")
	}
}

func TestProviders_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := NewEbayProvider("app-id", Options{BaseURL: server.URL})
	_, err := p.Fetch(ctx, "lamp", 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestProviders_RateLimiterHonoursContext(t *testing.T) {
	server, calls := countingServer(t, http.StatusOK, ebayBody(1), nil)

	p := NewEbayProvider("app-id", Options{BaseURL: server.URL, RequestsPerSecond: 0.001})
	if _, err := p.Fetch(context.Background(), "lamp", 5); err != nil {
		t.Fatalf("First request should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Fetch(ctx, "lamp", 5); err == nil {
		t.Error("Second request should fail waiting on the limiter")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 backend call, got %d", calls.Load())
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Amazon.APIKey = "rapid-key"

	providers := FromConfig(cfg, nil)
	if len(providers) != 3 {
		t.Fatalf("Expected 3 providers, got %d", len(providers))
	}

	wantNames := []string{"eBay", "Amazon", "Google Shopping"}
	wantConfigured := []bool{false, true, false}
	for i, p := range providers {
		if p.Name() != wantNames[i] {
			t.Errorf("Provider %d: expected %s, got %s", i, wantNames[i], p.Name())
		}
		if p.Configured() != wantConfigured[i] {
			t.Errorf("%s: expected configured=%v", p.Name(), wantConfigured[i])
		}
	}
}
