// Package server exposes the aggregator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hession/dealscout/internal/aggregator"
	"github.com/hession/dealscout/internal/product"
	"go.uber.org/zap"
)

// MaxLimit caps the limit query parameter.
const MaxLimit = 100

// Server serves search requests against one Aggregator.
type Server struct {
	agg          *aggregator.Aggregator
	addr         string
	defaultLimit int
	log          *zap.Logger
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	ID        string                      `json:"id"`
	Keyword   string                      `json:"keyword"`
	CacheHit  bool                        `json:"cache_hit"`
	Count     int                         `json:"count"`
	Results   []product.SearchResult      `json:"results"`
	Providers []aggregator.ProviderStatus `json:"providers"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string          `json:"status"`
	Providers map[string]bool `json:"providers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a server. agg may be nil, in which case every search
// answers 500.
func New(agg *aggregator.Aggregator, addr string, defaultLimit int, log *zap.Logger) *Server {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{agg: agg, addr: addr, defaultLimit: defaultLimit, log: log}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting API server", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()
	keyword := strings.TrimSpace(query.Get("q"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	limit := s.defaultLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and "+strconv.Itoa(MaxLimit))
			return
		}
		limit = n
	}

	useCache := true
	if raw := query.Get("cache"); raw != "" {
		v, ok := parseSwitch(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "cache must be true or false")
			return
		}
		useCache = v
	}

	if s.agg == nil {
		writeError(w, http.StatusInternalServerError, aggregator.ErrNoProviders.Error())
		return
	}

	report, err := s.agg.SearchWithReport(r.Context(), keyword, limit, useCache)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, aggregator.ErrEmptyKeyword) {
			status = http.StatusBadRequest
		}
		s.log.Error("search failed", zap.String("keyword", keyword), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	// Each provider honours the limit on its own; the merged list is
	// trimmed here for display.
	results := report.Results
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []product.SearchResult{}
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		ID:        report.ID,
		Keyword:   report.Keyword,
		CacheHit:  report.CacheHit,
		Count:     len(results),
		Results:   results,
		Providers: report.Providers,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := HealthResponse{Status: "ok", Providers: map[string]bool{}}
	if s.agg == nil {
		resp.Status = "unconfigured"
	} else {
		for _, p := range s.agg.Providers() {
			resp.Providers[p.Name()] = p.Configured()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseSwitch(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "yes":
		return true, true
	case "off", "no":
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	return v, err == nil
}

// writeJSON encodes before writing the header so an unencodable body
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Error: "failed to encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
