// Package api provides the HTTP API served by the analysis engine itself:
// order evaluation against the risk gate plus read access to in-memory
// pipeline state. The gateway serves the WebSocket/Redis-backed surface;
// this API is the direct, in-process view.
package api

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"marketpulse/internal/execution"
	"marketpulse/internal/logger"
	"marketpulse/internal/model"
	"marketpulse/internal/pipeline"
	"marketpulse/internal/portfolio"
)

// PaperState bundles the paper-trading components the API reads from.
// Present only when the strategy engine is enabled.
type PaperState struct {
	Book    *portfolio.Portfolio
	PnL     *portfolio.PnLTracker
	Journal *execution.Journal
}

// Router holds dependencies for the engine HTTP API.
type Router struct {
	pipe    *pipeline.Pipeline
	writers []model.DecisionWriter
	paper   *PaperState
}

// NewRouter builds the API mux. Decisions produced by /api/v1/evaluate are
// fanned out to all given writers (Redis stream + SQLite).
func NewRouter(pipe *pipeline.Pipeline, writers ...model.DecisionWriter) (*Router, *http.ServeMux) {
	rt := &Router{pipe: pipe, writers: writers}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", rt.handleHealth)
	mux.HandleFunc("/api/v1/symbols", rt.handleSymbols)
	mux.HandleFunc("/api/v1/regime", rt.handleRegime)
	mux.HandleFunc("/api/v1/indicators", rt.handleIndicators)
	mux.HandleFunc("/api/v1/evaluate", rt.handleEvaluate)
	mux.HandleFunc("/api/v1/trades", rt.handleTrades)
	mux.HandleFunc("/api/v1/portfolio", rt.handlePortfolio)

	return rt, mux
}

// AttachPaper enables the paper-trading endpoints. Without it they
// respond 404.
func (rt *Router) AttachPaper(ps PaperState) {
	rt.paper = &ps
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	kind := model.KindOf(err)
	if kind == "" {
		kind = "INTERNAL"
	}
	writeJSON(w, code, map[string]string{
		"error":   string(kind),
		"message": err.Error(),
	})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"symbols": len(rt.pipe.Symbols()),
	})
}

func (rt *Router) handleSymbols(w http.ResponseWriter, r *http.Request) {
	type symbolStatus struct {
		Symbol string `json:"symbol"`
		State  string `json:"state"`
	}
	symbols := rt.pipe.Symbols()
	out := make([]symbolStatus, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, symbolStatus{Symbol: sym, State: rt.pipe.StateOf(sym).String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) handleRegime(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}
	regime, ok := rt.pipe.Regime(symbol)
	if !ok {
		writeError(w, http.StatusConflict,
			model.NewError(model.KindInsufficientData, "symbol has fewer than 20 price points"))
		return
	}
	writeJSON(w, http.StatusOK, &regime)
}

func (rt *Router) handleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}
	snap, ok := rt.pipe.Snapshot(symbol)
	if !ok {
		writeError(w, http.StatusConflict,
			model.NewError(model.KindInsufficientData, "symbol has fewer than 20 price points"))
		return
	}
	writeJSON(w, http.StatusOK, &snap)
}

// handleEvaluate validates an order proposal against the risk gate. A
// rejected proposal is still a 200: rejection is a decision, not an error.
// Only a not-Ready symbol (insufficient data) is a 409.
func (rt *Router) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var proposal model.OrderProposal
	if err := json.NewDecoder(r.Body).Decode(&proposal); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if proposal.Symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	// Every evaluation gets a trace ID so the decision can be correlated
	// across the audit log, Redis stream and SQLite.
	ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID(proposal.Symbol, time.Now()))

	decision, err := rt.pipe.Evaluate(proposal)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	attrs := []any{
		slog.String("symbol", decision.Symbol),
		slog.Bool("accepted", decision.Accepted),
		slog.Float64("position_size", decision.PositionSize),
	}
	if !decision.Accepted {
		attrs = append(attrs, slog.String("reason", string(decision.Reason)))
	}
	slog.Info("order evaluated", append(attrs, logger.LogWithTrace(ctx)...)...)

	rt.persist(ctx, decision)
	writeJSON(w, http.StatusOK, &decision)
}

// handleTrades serves the recent paper fills from the trade journal.
func (rt *Router) handleTrades(w http.ResponseWriter, r *http.Request) {
	if rt.paper == nil || rt.paper.Journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "paper trading disabled"})
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	trades, err := rt.paper.Journal.GetTrades(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if trades == nil {
		trades = []execution.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// handlePortfolio serves the open paper positions and the P&L summary,
// marked against each position's last observed price.
func (rt *Router) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if rt.paper == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "paper trading disabled"})
		return
	}

	positions := rt.paper.Book.GetPositions()
	prices := make(map[string]float64, len(positions))
	for _, pos := range positions {
		prices[pos.Symbol] = pos.LastPrice
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"summary":   rt.paper.PnL.GetSummary(prices),
	})
}

func (rt *Router) persist(ctx context.Context, d model.RiskDecision) {
	for _, wr := range rt.writers {
		if err := wr.WriteDecision(ctx, d); err != nil {
			log.Printf("[api] decision write error: %v", err)
		}
	}
}
