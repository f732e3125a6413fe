package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hession/dealscout/internal/product"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "DealScout/0.1"

	maxBodyBytes  = 8 << 20
	maxErrorBytes = 512
)

// HTTPError captures an unexpected status code and the start of the body.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// Options are shared by every backend client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Client            *http.Client
	Logger            *zap.Logger
}

type transport struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	log       *zap.Logger
}

func newTransport(opts Options, defaultBaseURL string) transport {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return transport{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    client,
		limiter:   limiter,
		log:       log,
	}
}

// getJSON performs req and decodes a 2xx JSON body into out.
func (t transport) getJSON(req *http.Request, out any) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return req, nil
}

func (t transport) endpoint(path string, params url.Values) (string, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// flexString accepts a JSON string, number or bool. Objects and arrays
// decode to the empty string so one odd field does not discard the item.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '{', '[', 'n':
		*f = ""
	default:
		*f = flexString(data)
	}
	return nil
}

// number parses the value as a float, ignoring display formatting.
func (f flexString) number() (float64, bool) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return product.SanitizePrice(v), true
	}
	v := product.ParsePrice(s)
	return v, v != 0
}

// extraValue keeps numbers as numbers and everything else as text.
// NaN and infinities are dropped.
func (f flexString) extraValue() any {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
	if err != nil {
		return string(f)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
