package provider

import (
	"net/http"
	"time"

	"github.com/hession/dealscout/internal/config"
	"go.uber.org/zap"
)

// FromConfig builds every known backend in merge order: eBay, Amazon,
// Google Shopping. Backends without credentials are still returned and
// report Configured() == false.
func FromConfig(cfg *config.Config, log *zap.Logger) []Provider {
	timeout := time.Duration(cfg.Search.TimeoutSeconds) * time.Second
	// The aggregator enforces the deadline; this client only shares
	// connections between requests.
	client := &http.Client{Timeout: timeout}

	opts := func(baseURL string, rps float64) Options {
		return Options{
			BaseURL:           baseURL,
			UserAgent:         cfg.UserAgent,
			Timeout:           timeout,
			RequestsPerSecond: rps,
			Client:            client,
			Logger:            log,
		}
	}

	p := cfg.Providers
	return []Provider{
		NewEbayProvider(p.Ebay.AppID, opts(p.Ebay.BaseURL, p.Ebay.RequestsPerSecond)),
		NewAmazonProvider(p.Amazon.APIKey, p.Amazon.Host, opts(p.Amazon.BaseURL, p.Amazon.RequestsPerSecond)),
		NewGoogleShoppingProvider(p.GoogleShopping.APIKey, opts(p.GoogleShopping.BaseURL, p.GoogleShopping.RequestsPerSecond)),
	}
}
