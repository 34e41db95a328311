// Package api provides the HTTP REST API server for tesouro-quant.
//
// It exposes endpoints for the bond catalog, risk metrics, yield curves,
// breakeven inflation, portfolio analysis, macro data, the assistant and
// WebSocket refresh events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/medicech/tesouro-quant/internal/advisor"
	"github.com/medicech/tesouro-quant/internal/catalog"
	"github.com/medicech/tesouro-quant/internal/config"
	"github.com/medicech/tesouro-quant/internal/logging"
	"github.com/medicech/tesouro-quant/internal/portfolio"
	"github.com/medicech/tesouro-quant/internal/pricing"
)

// Deps are the collaborators the server delegates to. Data is required; a
// nil Refresher, History or Advisor disables the endpoints that need it.
type Deps struct {
	Data      catalog.Provider
	Refresher *catalog.Refresher
	History   *catalog.History
	Advisor   *advisor.Advisor
	Engine    *pricing.Engine
	Logger    logrus.FieldLogger
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	router    chi.Router
	cfg       *config.Config
	log       logrus.FieldLogger
	data      catalog.Provider
	refresher *catalog.Refresher
	history   *catalog.History
	advisor   *advisor.Advisor
	engine    *pricing.Engine
	analyzer  *portfolio.Analyzer
	wsHub     *WSHub
	version   string

	refreshMu sync.Mutex
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Data == nil {
		return nil, errors.New("api: a data provider is required")
	}
	engine := deps.Engine
	if engine == nil {
		engine = pricing.NewEngine(pricing.WithSyntheticCouponRate(cfg.Pricing.SyntheticCouponRate))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	srv := &Server{
		cfg:       cfg,
		log:       logging.OrDiscard(deps.Logger),
		data:      deps.Data,
		refresher: deps.Refresher,
		history:   deps.History,
		advisor:   deps.Advisor,
		engine:    engine,
		analyzer:  portfolio.NewAnalyzer(engine, cfg.Portfolio),
		wsHub:     NewWSHub(),
		version:   version,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe starts the HTTP server with graceful shutdown on SIGINT/SIGTERM.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run()
	defer s.wsHub.Stop()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api: %w", err)
	case <-done:
	}
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket upgrades must not run under the timeout middleware.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(150 * time.Second))

			// Catalog & risk
			r.Get("/bonds", s.handleBonds)
			r.Get("/bonds/{id}", s.handleBond)
			r.Get("/bonds/{id}/risk", s.handleBondRisk)
			r.Get("/bonds/{id}/history", s.handleBondHistory)
			r.Get("/risk", s.handleRisk)

			// Curves
			r.Get("/curve", s.handleCurve)
			r.Get("/curve/diagnostics", s.handleCurveDiagnostics)
			r.Get("/breakeven", s.handleBreakeven)

			// Portfolio
			r.Post("/portfolio/summary", s.handlePortfolioSummary)
			r.Post("/portfolio/stress", s.handlePortfolioStress)
			r.Get("/portfolio/scenarios", s.handleScenarios)

			// Macro
			r.Get("/macro/selic", s.handleSelic)
			r.Get("/macro/focus", s.handleFocus)
			r.Get("/news", s.handleNews)

			// Data refresh
			r.Post("/refresh", s.handleRefresh)

			// Assistant
			r.Post("/chat", s.handleChat)

			// Configuration
			r.Get("/config", s.handleGetConfig)
			r.Get("/config/keys", s.handleGetConfigKeys)
		})
	})

	return r
}

// requestLogger logs each request through logrus.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).Round(time.Millisecond).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// ============================================================
// Response envelope
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to write JSON response")
	}
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// snapshot loads the current snapshot, writing a 503 when there is none.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*catalog.Snapshot, bool) {
	snap, err := s.data.Latest(r.Context())
	if err != nil {
		if errors.Is(err, catalog.ErrNoSnapshot) {
			writeError(w, http.StatusServiceUnavailable, "no market data yet; POST /api/v1/refresh or run `tesouroquant fetch`")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return snap, true
}

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func queryFloat(r *http.Request, key string) (float64, bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, true, nil
}
