package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medicech/tesouro-quant/internal/portfolio"
	"github.com/medicech/tesouro-quant/internal/termstructure"
	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// ============================================================
// Request / Response types
// ============================================================

// BondsResponse is the body of GET /api/v1/bonds.
type BondsResponse struct {
	Source   string        `json:"source"`
	BaseDate time.Time     `json:"base_date"`
	Count    int           `json:"count"`
	Bonds    []models.Bond `json:"bonds"`
}

// CurveResponse is the body of GET /api/v1/curve.
type CurveResponse struct {
	models.TermStructure
	Bonds int `json:"bond_count"`
}

// BreakevenResponse is the body of GET /api/v1/breakeven.
type BreakevenResponse struct {
	Mode   models.Mode             `json:"mode"`
	Mean   models.Float            `json:"mean"`
	Points []models.BreakevenPoint `json:"points"`
}

// PortfolioRequest is the body for POST /api/v1/portfolio/summary and /stress.
type PortfolioRequest struct {
	Positions []models.Position `json:"positions"`
	Mode      string            `json:"mode,omitempty"`
	// ShockBps adds a custom scenario to /stress when non-zero.
	ShockBps float64 `json:"shock_bps,omitempty"`
}

// StressResponse is the body of POST /api/v1/portfolio/stress.
type StressResponse struct {
	Summary   *models.PortfolioSummary `json:"summary"`
	Scenarios []models.StressResult    `json:"scenarios"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":        "ok",
		"version":       s.version,
		"market_status": utils.MarketStatus(utils.NowBRT()),
		"time_brt":      utils.NowBRT().Format(time.RFC3339),
		"ws_clients":    s.wsHub.ClientCount(),
	}
	if snap, err := s.data.Latest(r.Context()); err == nil {
		data["base_date"] = utils.FormatDateBR(snap.BaseDate)
		data["source"] = snap.Source
		data["bonds"] = len(snap.Bonds)
	}
	writeOK(w, data)
}

func (s *Server) handleBonds(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	keep, err := bondFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bonds := models.FilterBonds(snap.Bonds, keep)
	writeOK(w, BondsResponse{Source: snap.Source, BaseDate: snap.BaseDate, Count: len(bonds), Bonds: bonds})
}

func (s *Server) handleBond(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	bond, err := snap.Find(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOK(w, bond)
}

func (s *Server) handleBondRisk(w http.ResponseWriter, r *http.Request) {
	mode, err := models.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	bond, err := snap.Find(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOK(w, s.engine.ComputeDurationMetrics(bond, mode))
}

func (s *Server) handleBondHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}
	id := chi.URLParam(r, "id")
	bonds, err := s.history.ByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(bonds) == 0 {
		writeError(w, http.StatusNotFound, "no history for "+id)
		return
	}
	writeOK(w, bonds)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	mode, err := models.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keep, err := bondFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeOK(w, s.engine.Metrics(models.FilterBonds(snap.Bonds, keep), mode))
}

func (s *Server) handleCurve(w http.ResponseWriter, r *http.Request) {
	ts, n, ok := s.buildCurve(w, r)
	if !ok {
		return
	}
	writeOK(w, CurveResponse{TermStructure: ts, Bonds: n})
}

func (s *Server) handleCurveDiagnostics(w http.ResponseWriter, r *http.Request) {
	ts, _, ok := s.buildCurve(w, r)
	if !ok {
		return
	}
	diag, err := termstructure.Diagnose(ts, s.cfg.Curve.MinVertices)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeOK(w, map[string]interface{}{
		"index_type":  ts.IndexType,
		"mode":        ts.Mode,
		"vertices":    len(ts.Vertices),
		"diagnostics": diag,
	})
}

// buildCurve reads index (default PREFIXADO), mode and optional coupon
// parameters and builds the curve from the current snapshot.
func (s *Server) buildCurve(w http.ResponseWriter, r *http.Request) (models.TermStructure, int, bool) {
	q := r.URL.Query()
	index := models.IndexPrefixado
	if raw := q.Get("index"); raw != "" {
		var err error
		if index, err = models.ParseIndexType(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return models.TermStructure{}, 0, false
		}
	}
	mode, err := models.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return models.TermStructure{}, 0, false
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return models.TermStructure{}, 0, false
	}

	var bonds []models.Bond
	if raw := q.Get("coupon"); raw != "" {
		coupon, err := models.ParseCouponFlag(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return models.TermStructure{}, 0, false
		}
		bonds = models.FilterBonds(snap.Bonds, models.ByIndex(index, coupon))
	} else {
		bonds = termstructure.CurveBonds(snap.Bonds, index)
	}

	ts := termstructure.Build(bonds, mode, s.curveOptions()...)
	ts.IndexType = index
	ts.BaseDate = snap.BaseDate
	return ts, len(bonds), true
}

func (s *Server) handleBreakeven(w http.ResponseWriter, r *http.Request) {
	mode, err := models.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	minTenor, hasMin, err := queryFloat(r, "min_tenor")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxTenor, hasMax, err := queryFloat(r, "max_tenor")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var points []models.BreakevenPoint
	var mean float64
	if hasMin || hasMax {
		if !hasMin {
			minTenor = termstructure.DefaultBreakevenMin
		}
		if !hasMax {
			maxTenor = termstructure.DefaultBreakevenMax
		}
		nomBonds, realBonds, err := termstructure.SelectBreakevenInputs(snap.Bonds)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		opts := s.curveOptions()
		points = termstructure.Breakeven(
			termstructure.Build(nomBonds, mode, opts...).Curve,
			termstructure.Build(realBonds, mode, opts...).Curve,
			minTenor, maxTenor)
		mean = termstructure.MeanBreakeven(points)
	} else {
		points, mean, err = termstructure.BreakevenCurve(snap.Bonds, mode, s.curveOptions()...)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	writeOK(w, BreakevenResponse{Mode: mode, Mean: models.Float(mean), Points: points})
}

func (s *Server) curveOptions() []termstructure.Option {
	return []termstructure.Option{
		termstructure.WithMaxTenor(s.cfg.Curve.MaxTenor),
		termstructure.WithStep(s.cfg.Curve.Step),
	}
}

func (s *Server) handlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	summary, _, ok := s.summarize(w, r)
	if !ok {
		return
	}
	writeOK(w, summary)
}

func (s *Server) handlePortfolioStress(w http.ResponseWriter, r *http.Request) {
	summary, req, ok := s.summarize(w, r)
	if !ok {
		return
	}
	results := portfolio.StressAll(summary)
	if req.ShockBps != 0 {
		results = append(results, portfolio.Stress(summary, "", req.ShockBps))
	}
	writeOK(w, StressResponse{Summary: summary, Scenarios: results})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	writeOK(w, portfolio.Scenarios)
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) (*models.PortfolioSummary, PortfolioRequest, bool) {
	var req PortfolioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, req, false
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, req, false
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return nil, req, false
	}
	summary, err := s.analyzer.Summary(snap.Bonds, req.Positions, mode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, portfolio.ErrEmptyPortfolio) || errors.Is(err, portfolio.ErrUnknownBond) ||
			errors.Is(err, portfolio.ErrInvalidQuantity) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return nil, req, false
	}
	return summary, req, true
}

func (s *Server) handleSelic(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	data := map[string]interface{}{"series": snap.Selic}
	if p, ok := snap.SelicRate(); ok {
		data["current"] = p
	}
	writeOK(w, data)
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	rows := snap.Focus
	if latest, _ := strconv.ParseBool(r.URL.Query().Get("latest")); latest {
		rows = snap.FocusLatest()
	}
	if ind := r.URL.Query().Get("indicator"); ind != "" {
		filtered := make([]models.Expectation, 0, len(rows))
		for _, e := range rows {
			if e.Indicator == ind {
				filtered = append(filtered, e)
			}
		}
		rows = filtered
	}
	writeOK(w, rows)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	news := snap.News
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < len(news) {
			news = news[:n]
		}
	}
	writeOK(w, news)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	if !s.refreshMu.TryLock() {
		writeError(w, http.StatusConflict, "a refresh is already running")
		return
	}
	defer s.refreshMu.Unlock()

	s.wsHub.Broadcast(WSMessage{Type: "refresh_started"})
	res, err := s.refresher.Refresh(r.Context())
	if err != nil {
		s.wsHub.Broadcast(WSMessage{Type: "refresh_failed", Data: map[string]string{"error": err.Error()}})
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "refresh_complete",
		Data: map[string]interface{}{
			"source":    res.Snapshot.Source,
			"base_date": res.Snapshot.BaseDate,
			"bonds":     len(res.Snapshot.Bonds),
			"warnings":  res.Warnings,
		},
	})
	writeOK(w, map[string]interface{}{
		"source":       res.Snapshot.Source,
		"base_date":    res.Snapshot.BaseDate,
		"bonds":        len(res.Snapshot.Bonds),
		"path":         res.Path,
		"history_rows": res.HistoryRows,
		"warnings":     res.Warnings,
	})
}

// bondFilter builds a predicate from the optional index and coupon query parameters.
func bondFilter(r *http.Request) (func(models.Bond) bool, error) {
	q := r.URL.Query()
	var index models.IndexType
	var coupon models.CouponFlag
	var err error
	if raw := q.Get("index"); raw != "" {
		if index, err = models.ParseIndexType(raw); err != nil {
			return nil, err
		}
	}
	if raw := q.Get("coupon"); raw != "" {
		if coupon, err = models.ParseCouponFlag(raw); err != nil {
			return nil, err
		}
	}
	return func(b models.Bond) bool {
		return (index == "" || b.IndexType == index) && (coupon == "" || b.Coupon == coupon)
	}, nil
}
