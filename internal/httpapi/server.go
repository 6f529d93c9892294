// Package httpapi serves the dashboard HTTP API over the marketdata
// service.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"nsewatch/internal/cache"
	"nsewatch/internal/domain"
	"nsewatch/internal/marketdata"
)

// MarketData is the service surface the server needs; the marketdata
// service implements it, tests stub it.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
	GetIndexQuote(ctx context.Context, name string) (domain.IndexQuote, error)
	GetChart(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error)
	GetSymbols(ctx context.Context) ([]domain.SymbolInfo, error)
	GetCorporateActions(ctx context.Context, symbol string) ([]domain.CorporateAction, error)
	GetIndicators(ctx context.Context, symbol string, rng domain.ChartRange) (marketdata.IndicatorReport, error)
	InvalidateSymbol(symbol string)
	CacheStats() cache.Stats
}

var _ MarketData = (*marketdata.Service)(nil)

// Server serves the dashboard HTTP API.
type Server struct {
	svc MarketData
	log *slog.Logger
}

// NewServer creates a Server over the given service.
func NewServer(svc MarketData, log *slog.Logger) *Server {
	return &Server{svc: svc, log: log.With("component", "httpapi")}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/quote/{symbol}", s.handleQuote)
	mux.HandleFunc("GET /api/index/{name}", s.handleIndex)
	mux.HandleFunc("GET /api/chart/{symbol}/{range}", s.handleChart)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/corporate/{symbol}", s.handleCorporate)
	mux.HandleFunc("GET /api/indicators/{symbol}", s.handleIndicators)
	mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("POST /api/cache/invalidate/{symbol}", s.handleInvalidate)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseRange validates a chart range path/query value. An empty value
// defaults to 1mo.
func parseRange(s string) (domain.ChartRange, error) {
	if s == "" {
		return domain.Range1M, nil
	}
	rng := domain.ChartRange(strings.ToLower(s))
	switch rng {
	case domain.Range1D, domain.Range1W, domain.Range1M, domain.Range3M,
		domain.Range6M, domain.Range1Y, domain.Range5Y, domain.RangeMax:
		return rng, nil
	}
	return "", fmt.Errorf("unknown range %q", s)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	q, err := s.svc.GetQuote(r.Context(), symbol)
	if err != nil {
		s.log.Error("quote", "symbol", symbol, "err", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("quote unavailable for %s", symbol))
		return
	}
	writeJSON(w, q)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q, err := s.svc.GetIndexQuote(r.Context(), name)
	if err != nil {
		s.log.Error("index", "name", name, "err", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("index unavailable for %s", name))
		return
	}
	writeJSON(w, q)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	rng, err := parseRange(r.PathValue("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := s.svc.GetChart(r.Context(), symbol, rng)
	if err != nil {
		s.log.Error("chart", "symbol", symbol, "range", rng, "err", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("chart unavailable for %s", symbol))
		return
	}
	if points == nil {
		points = []domain.PricePoint{}
	}
	writeJSON(w, ChartResponse{Symbol: symbol, Range: rng, Points: points})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	syms, err := s.svc.GetSymbols(r.Context())
	if err != nil {
		s.log.Error("symbols", "err", err)
		writeError(w, http.StatusBadGateway, "symbol list unavailable")
		return
	}
	if syms == nil {
		syms = []domain.SymbolInfo{}
	}
	writeJSON(w, SymbolsResponse{Symbols: syms})
}

func (s *Server) handleCorporate(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	actions, err := s.svc.GetCorporateActions(r.Context(), symbol)
	if err != nil {
		s.log.Error("corporate", "symbol", symbol, "err", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("corporate actions unavailable for %s", symbol))
		return
	}
	if actions == nil {
		actions = []domain.CorporateAction{}
	}
	writeJSON(w, CorporateResponse{Symbol: symbol, Actions: actions})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	rng, err := parseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.svc.GetIndicators(r.Context(), symbol, rng)
	if err != nil {
		s.log.Error("indicators", "symbol", symbol, "range", rng, "err", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("indicators unavailable for %s", symbol))
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.CacheStats())
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	s.svc.InvalidateSymbol(symbol)
	s.log.Info("cache invalidated", "symbol", symbol)
	w.WriteHeader(http.StatusNoContent)
}
