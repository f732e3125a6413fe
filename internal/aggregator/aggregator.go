// Package aggregator fans a keyword out to every product provider, waits
// for all of them, and concatenates what they return.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hession/dealscout/internal/cache"
	"github.com/hession/dealscout/internal/product"
	"github.com/hession/dealscout/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds each provider call.
const DefaultTimeout = 15 * time.Second

var (
	// ErrNoProviders means nothing could ever answer a query.
	ErrNoProviders = errors.New("no product providers configured")
	// ErrEmptyKeyword is returned for blank keywords.
	ErrEmptyKeyword = errors.New("keyword cannot be empty")
)

// Status describes how one provider took part in a search.
type Status string

const (
	StatusOK       Status = "ok"
	StatusFailed   Status = "failed"
	StatusTimeout  Status = "timeout"
	StatusDisabled Status = "disabled"
)

// ProviderStatus is the per-provider diagnostic for one search.
type ProviderStatus struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Count    int           `json:"count"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report is a search result plus the diagnostics needed to tell "nothing
// found" apart from "every provider failed".
type Report struct {
	ID          string                 `json:"id"`
	Keyword     string                 `json:"keyword"`
	MaxResults  int                    `json:"max_results"`
	Fingerprint string                 `json:"fingerprint"`
	CacheHit    bool                   `json:"cache_hit"`
	Results     []product.SearchResult `json:"results"`
	Providers   []ProviderStatus       `json:"providers,omitempty"`
	Elapsed     time.Duration          `json:"elapsed_ns"`
}

// Failed returns the providers that errored or timed out.
func (r *Report) Failed() []ProviderStatus {
	var failed []ProviderStatus
	for _, p := range r.Providers {
		if p.Status == StatusFailed || p.Status == StatusTimeout {
			failed = append(failed, p)
		}
	}
	return failed
}

// Aggregator runs searches across a fixed, ordered set of providers.
type Aggregator struct {
	providers []provider.Provider
	cache     *cache.Cache
	timeout   time.Duration
	coalesce  bool
	group     singleflight.Group
	log       *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeout sets the per-provider deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger used for provider notes.
func WithLogger(log *zap.Logger) Option {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

// WithCoalescing makes concurrent cache misses for the same fingerprint
// share one fan-out instead of each calling every provider.
func WithCoalescing(enabled bool) Option {
	return func(a *Aggregator) { a.coalesce = enabled }
}

// New creates an Aggregator. Providers are queried and merged in the order
// given. c may be nil to disable caching.
func New(providers []provider.Provider, c *cache.Cache, opts ...Option) (*Aggregator, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	a := &Aggregator{
		providers: append([]provider.Provider(nil), providers...),
		cache:     c,
		timeout:   DefaultTimeout,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Providers returns the registered providers in merge order.
func (a *Aggregator) Providers() []provider.Provider {
	return append([]provider.Provider(nil), a.providers...)
}

// Cache returns the result cache, or nil when caching is off.
func (a *Aggregator) Cache() *cache.Cache {
	return a.cache
}

// Search returns the concatenated results of every provider for keyword.
// Provider failures only shrink the result; the error is non-nil solely
// for an empty keyword.
func (a *Aggregator) Search(ctx context.Context, keyword string, maxResults int, useCache bool) ([]product.SearchResult, error) {
	report, err := a.SearchWithReport(ctx, keyword, maxResults, useCache)
	if err != nil {
		return nil, err
	}
	return report.Results, nil
}

// SearchWithReport is Search plus per-provider diagnostics.
func (a *Aggregator) SearchWithReport(ctx context.Context, keyword string, maxResults int, useCache bool) (*Report, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}
	if maxResults <= 0 {
		maxResults = provider.DefaultMaxResults
	}

	start := time.Now()
	report := &Report{
		ID:          uuid.New().String(),
		Keyword:     keyword,
		MaxResults:  maxResults,
		Fingerprint: cache.Fingerprint(keyword, maxResults),
	}
	useCache = useCache && a.cache != nil

	if useCache {
		if results, ok := a.cache.Get(ctx, report.Fingerprint); ok {
			report.CacheHit = true
			report.Results = results
			report.Elapsed = time.Since(start)
			a.log.Info("search served from cache",
				zap.String("id", report.ID),
				zap.String("keyword", keyword),
				zap.Int("results", len(results)))
			return report, nil
		}
	}

	var out fanOutResult
	if a.coalesce {
		v, _, shared := a.group.Do(report.Fingerprint, func() (any, error) {
			return a.fanOut(ctx, keyword, maxResults), nil
		})
		out = v.(fanOutResult)
		if shared {
			a.log.Debug("joined in-flight search", zap.String("keyword", keyword))
		}
	} else {
		out = a.fanOut(ctx, keyword, maxResults)
	}

	report.Results = out.results
	report.Providers = out.statuses

	if useCache && len(out.results) > 0 {
		// Write failures are logged by the cache and do not affect the caller.
		_ = a.cache.Put(ctx, report.Fingerprint, keyword, maxResults, out.results)
	}

	report.Elapsed = time.Since(start)
	a.log.Info("search completed",
		zap.String("id", report.ID),
		zap.String("keyword", keyword),
		zap.Int("results", len(report.Results)),
		zap.Int("failed_providers", len(report.Failed())),
		zap.Duration("elapsed", report.Elapsed))

	return report, nil
}

type fanOutResult struct {
	results  []product.SearchResult
	statuses []ProviderStatus
}

type fetchOutcome struct {
	results []product.SearchResult
	err     error
}

// fanOut queries every provider concurrently and waits for all of them to
// finish or hit their own deadline.
func (a *Aggregator) fanOut(ctx context.Context, keyword string, maxResults int) fanOutResult {
	perProvider := make([][]product.SearchResult, len(a.providers))
	statuses := make([]ProviderStatus, len(a.providers))

	// Tasks never return an error, so one provider cannot cancel another.
	var g errgroup.Group
	g.SetLimit(len(a.providers))

	for i, p := range a.providers {
		g.Go(func() error {
			perProvider[i], statuses[i] = a.fetchOne(ctx, p, keyword, maxResults)
			return nil
		})
	}
	_ = g.Wait()

	var total int
	for _, rs := range perProvider {
		total += len(rs)
	}
	merged := make([]product.SearchResult, 0, total)
	for _, rs := range perProvider {
		merged = append(merged, rs...)
	}

	return fanOutResult{results: merged, statuses: statuses}
}

// fetchOne runs a single provider under its own deadline. The call itself
// runs detached, so a provider that ignores its context is abandoned once
// the deadline passes rather than waited on.
func (a *Aggregator) fetchOne(ctx context.Context, p provider.Provider, keyword string, maxResults int) ([]product.SearchResult, ProviderStatus) {
	status := ProviderStatus{Name: p.Name()}
	if !p.Configured() {
		status.Status = StatusDisabled
		a.log.Debug("provider disabled, missing credentials", zap.String("provider", p.Name()))
		return nil, status
	}

	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		var o fetchOutcome
		defer func() {
			if r := recover(); r != nil {
				o = fetchOutcome{err: fmt.Errorf("provider panicked: %v", r)}
			}
			done <- o
		}()
		o.results, o.err = p.Fetch(pctx, keyword, maxResults)
	}()

	var o fetchOutcome
	select {
	case o = <-done:
	case <-pctx.Done():
		o.err = pctx.Err()
	}
	status.Duration = time.Since(start)

	if o.err != nil {
		status.Status = StatusFailed
		if errors.Is(o.err, context.DeadlineExceeded) {
			status.Status = StatusTimeout
		}
		status.Error = o.err.Error()
		a.log.Warn("provider search failed",
			zap.String("provider", p.Name()),
			zap.String("keyword", keyword),
			zap.String("status", string(status.Status)),
			zap.Duration("duration", status.Duration),
			zap.Error(o.err))
		return nil, status
	}

	results := o.results
	status.Status = StatusOK
	status.Count = len(results)
	a.log.Debug("provider search finished",
		zap.String("provider", p.Name()),
		zap.Int("results", len(results)),
		zap.Duration("duration", status.Duration))
	return results, status
}
