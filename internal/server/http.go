// Package server exposes the query API over HTTP/JSON and runs the
// infrastructure gRPC endpoint used by probes and debugging tools.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SwapLedger/internal/amount"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/query"
)

// HTTPServer serves the read API, admin injection endpoints, health
// probes and the metrics scrape endpoint.
type HTTPServer struct {
	addr    string
	query   *query.QueryService
	admin   *ingestion.AdminIngestService
	health  *observability.HealthChecker
	metrics *observability.Metrics
	server  *http.Server
}

type HTTPDeps struct {
	QueryService  *query.QueryService
	AdminService  *ingestion.AdminIngestService
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
}

func NewHTTPServer(addr string, deps *HTTPDeps) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		query:   deps.QueryService,
		admin:   deps.AdminService,
		health:  deps.HealthChecker,
		metrics: deps.Metrics,
	}
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/balances", s.instrument("balances", s.handleBalances))
		r.Get("/orders", s.instrument("orders", s.handleOrders))
		r.Get("/fulfillments", s.instrument("fulfillments", s.handleFulfillments))
		r.Get("/staking/balances", s.instrument("staking_balances", s.handleStakingBalances))
		r.Get("/portfolio/imbalance", s.instrument("portfolio_imbalance", s.handlePortfolioImbalance))
		r.Get("/prices", s.instrument("prices", s.handlePrices))
		r.Get("/prices/{currency}", s.instrument("latest_price", s.handleLatestPrice))
		r.Get("/status", s.instrument("status", s.handleStatus))

		if s.admin != nil {
			r.Post("/admin/deposits", s.instrument("admin_deposit", s.handleInjectDeposit))
			r.Post("/admin/price-ticks", s.instrument("admin_price_tick", s.handleInjectPriceTick))
		}
	})

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// instrument wraps a handler with request count and latency metrics.
func (s *HTTPServer) instrument(endpoint string, h func(http.ResponseWriter, *http.Request) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status, err := h(w, r)
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			if err != nil && status >= 500 {
				s.metrics.QueryErrors.WithLabelValues(endpoint, "internal").Inc()
			}
		}
	}
}

func (s *HTTPServer) handleBalances(w http.ResponseWriter, r *http.Request) (int, error) {
	resp, err := s.query.GetBalances(r.Context())
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleOrders(w http.ResponseWriter, r *http.Request) (int, error) {
	resp, err := s.query.GetOrders(r.Context())
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleFulfillments(w http.ResponseWriter, r *http.Request) (int, error) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", raw))
		}
		limit = n
	}
	resp, err := s.query.GetFulfillmentHistory(r.Context(), limit)
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStakingBalances(w http.ResponseWriter, r *http.Request) (int, error) {
	includeAMM := r.URL.Query().Get("include_amm") != "false"
	includePortfolio := r.URL.Query().Get("include_portfolio") != "false"
	resp, err := s.query.GetStakingBalances(r.Context(), includeAMM, includePortfolio)
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handlePortfolioImbalance(w http.ResponseWriter, r *http.Request) (int, error) {
	resp, err := s.query.GetPortfolioImbalance(r.Context())
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handlePrices(w http.ResponseWriter, r *http.Request) (int, error) {
	resp, err := s.query.GetPrices(r.Context())
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleLatestPrice(w http.ResponseWriter, r *http.Request) (int, error) {
	raw := chi.URLParam(r, "currency")
	cur, ok := amount.ParseCurrency(raw)
	if !ok {
		return writeError(w, http.StatusBadRequest, fmt.Errorf("unknown currency %q", raw))
	}
	resp, found, err := s.query.GetLatestPrice(r.Context(), cur)
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}
	if !found {
		return writeError(w, http.StatusNotFound, fmt.Errorf("no price data for %s", cur))
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) (int, error) {
	resp, err := s.query.GetStatus(r.Context())
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err)
	}
	return writeJSON(w, http.StatusOK, resp)
}

type injectDepositRequest struct {
	TxID        string  `json:"tx_id"`
	Currency    string  `json:"currency"`
	Units       int64   `json:"units"`
	FromAddress string  `json:"from_address"`
	PriceUSD    float64 `json:"price_usd"`
}

func (s *HTTPServer) handleInjectDeposit(w http.ResponseWriter, r *http.Request) (int, error) {
	var req injectDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
	}
	cur, ok := amount.ParseCurrency(req.Currency)
	if !ok {
		return writeError(w, http.StatusBadRequest, fmt.Errorf("unknown currency %q", req.Currency))
	}
	if err := s.admin.InjectExternalDeposit(r.Context(), req.TxID, cur, req.Units, req.FromAddress, req.PriceUSD); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	return writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

type injectPriceTickRequest struct {
	Currency string  `json:"currency"`
	PriceUSD float64 `json:"price_usd"`
}

func (s *HTTPServer) handleInjectPriceTick(w http.ResponseWriter, r *http.Request) (int, error) {
	var req injectPriceTickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
	}
	cur, ok := amount.ParseCurrency(req.Currency)
	if !ok {
		return writeError(w, http.StatusBadRequest, fmt.Errorf("unknown currency %q", req.Currency))
	}
	if err := s.admin.InjectPriceTick(r.Context(), cur, req.PriceUSD); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	return writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return status, json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	return status, err
}
