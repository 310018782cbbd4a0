// Package api provides the HTTP API for observing and steering the city.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/persistence"
	"github.com/talgya/mini-city/internal/result"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/weather"
	"github.com/talgya/mini-city/internal/world"
)

const maxBodyBytes = 64 << 10

// Server serves the city state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine  // Optional; enables /speed
	DB       *persistence.DB // Optional; enables /history
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Admin request burst per client, refilled over a minute. Zero means 60.
	AdminRate int
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	rate := s.AdminRate
	if rate <= 0 {
		rate = 60
	}
	limiter := newThrottle(rate, time.Minute)
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return limiter.guard(s.adminOnly(h))
	}

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/policies", s.handlePolicies)
	mux.HandleFunc("/api/v1/economy", s.handleEconomy)
	mux.HandleFunc("/api/v1/disasters", s.handleDisasters)

	// Admin endpoints.
	mux.HandleFunc("/api/v1/speed", admin(s.handleSpeed))
	mux.HandleFunc("/api/v1/policy", admin(s.postOnly(s.handlePolicy)))
	mux.HandleFunc("/api/v1/loan", admin(s.postOnly(s.handleLoan)))
	mux.HandleFunc("/api/v1/tax", admin(s.postOnly(s.handleTax)))
	mux.HandleFunc("/api/v1/build", admin(s.postOnly(s.handleBuild)))
	mux.HandleFunc("/api/v1/disaster", admin(s.postOnly(s.handleTrigger)))
	mux.HandleFunc("/api/v1/demolish", admin(s.postOnly(s.handleDemolish)))
	mux.HandleFunc("/api/v1/staff", admin(s.postOnly(s.handleStaff)))
	mux.HandleFunc("/api/v1/weather", admin(s.postOnly(s.handleWeather)))

	return mux
}

// Start serves the API in a goroutine. The returned server is used for
// shutdown.
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// Shutdown stops srv, waiting up to timeout for in-flight requests.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == s.AdminKey
}

// adminOnly requires bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no CITYSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	status := map[string]any{
		"name":             "mini-city",
		"tick":             snap.Tick,
		"day":              snap.Day,
		"clock":            snap.Clock,
		"weather":          snap.Weather.Condition,
		"time_of_day":      snap.Weather.TimeOfDay,
		"population":       snap.Citizens.Population,
		"happiness":        snap.Citizens.AverageHappiness,
		"funds":            snap.Economy.Funds,
		"funds_display":    "$" + humanize.Commaf(snap.Economy.Funds),
		"businesses":       snap.Economy.Businesses,
		"active_disasters": snap.Disasters.Active,
		"congestion":       snap.Traffic.Congestion,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
	}
	writeJSON(w, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	category := r.URL.Query().Get("category")

	evs := s.Sim.RecentEvents(0)
	out := evs[:0]
	for _, e := range evs {
		if category == "" || e.Category == category {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	days, err := s.DB.RecentDays(queryLimit(r, 30, 1000))
	if err != nil {
		slog.Error("history query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if days == nil {
		days = []persistence.DayStats{}
	}
	writeJSON(w, days)
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Policies())
}

func (s *Server) handleEconomy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"stats":      s.Sim.Snapshot().Economy,
		"businesses": s.Sim.Businesses(),
		"goods":      s.Sim.Goods(),
		"loans":      s.Sim.Loans(),
		"bonds":      s.Sim.Bonds(),
	})
}

func (s *Server) handleDisasters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"disasters": s.Sim.Disasters(),
		"accidents": s.Sim.Accidents(),
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string  `json:"id"`
		Action string  `json:"action"` // enact (default), repeal, support
		Delta  float64 `json:"delta,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "", "enact":
		writeResult(w, s.Sim.EnactPolicy(req.ID), nil)
	case "repeal":
		writeResult(w, s.Sim.RepealPolicy(req.ID), nil)
	case "support":
		writeResult(w, s.Sim.AdjustPolicySupport(req.ID, req.Delta), nil)
	default:
		http.Error(w, "unknown action: "+req.Action, http.StatusBadRequest)
	}
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind   string  `json:"kind"` // loan (default) or bond
		Amount float64 `json:"amount"`
		Rate   float64 `json:"rate"` // Annual, e.g. 0.05
		Months int     `json:"months"`
	}
	if !decode(w, r, &req) {
		return
	}

	switch req.Kind {
	case "", "loan":
		writeResult(w, s.Sim.TakeLoan(req.Amount, req.Rate, req.Months), nil)
	case "bond":
		writeResult(w, s.Sim.IssueBond(req.Amount, req.Rate, req.Months), nil)
	default:
		http.Error(w, "unknown kind: "+req.Kind, http.StatusBadRequest)
	}
}

func (s *Server) handleTax(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate *float64 `json:"rate"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Rate == nil {
		http.Error(w, "rate required", http.StatusBadRequest)
		return
	}
	writeResult(w, s.Sim.SetTaxRate(*req.Rate), nil)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string  `json:"category"` // building (default), power, water, waste
		Type     string  `json:"type"`
		X        float64 `json:"x"`
		Z        float64 `json:"z"`
	}
	if !decode(w, r, &req) {
		return
	}
	pos := spatial.Vec3{X: req.X, Z: req.Z}

	var id string
	var res result.Result
	switch req.Category {
	case "", "building":
		t, ok := world.ParseBuildingType(req.Type)
		if !ok {
			http.Error(w, "unknown building type: "+req.Type, http.StatusBadRequest)
			return
		}
		id, res = s.Sim.ConstructBuilding(t, pos)
	case "power":
		id, res = s.Sim.BuildPowerPlant(req.Type, pos)
	case "water":
		id, res = s.Sim.BuildWaterFacility(req.Type, pos)
	case "waste":
		id, res = s.Sim.BuildWasteFacility(req.Type, pos)
	default:
		http.Error(w, "unknown category: "+req.Category, http.StatusBadRequest)
		return
	}
	writeResult(w, res, map[string]any{"id": id})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind     string `json:"kind"`
		Road     string `json:"road"`
		Severity string `json:"severity"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, res := s.Sim.TriggerDisaster(req.Kind, req.Road, req.Severity)
	writeResult(w, res, map[string]any{"id": id})
}

func (s *Server) handleDemolish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	// Utility facilities and zoned buildings share the endpoint.
	res := s.Sim.DemolishBuilding(req.ID)
	if !res.OK {
		if fr := s.Sim.DemolishFacility(req.ID); fr.OK {
			res = fr
		}
	}
	writeResult(w, res, nil)
}

func (s *Server) handleStaff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Business string `json:"business"`
		Action   string `json:"action"` // hire (default) or fire
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Business == "" {
		http.Error(w, "business required", http.StatusBadRequest)
		return
	}
	switch req.Action {
	case "", "hire":
		writeResult(w, s.Sim.Hire(req.Business), nil)
	case "fire":
		writeResult(w, s.Sim.Fire(req.Business), nil)
	default:
		http.Error(w, "unknown action: "+req.Action, http.StatusBadRequest)
	}
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Condition string  `json:"condition"`
		Intensity float64 `json:"intensity"`
		Minutes   float64 `json:"minutes"`
	}
	if !decode(w, r, &req) {
		return
	}
	cond, ok := weather.ParseCondition(req.Condition)
	if !ok {
		http.Error(w, "unknown condition: "+req.Condition, http.StatusBadRequest)
		return
	}
	if req.Minutes <= 0 {
		req.Minutes = 60
	}
	s.Sim.SetWeather(cond, req.Intensity, req.Minutes)
	writeJSON(w, map[string]any{"success": true, "weather": s.Sim.Snapshot().Weather})
}

func queryLimit(r *http.Request, def, ceiling int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= ceiling {
			return n
		}
	}
	return def
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// writeResult reports a domain outcome. Refusals are 422 with the reason.
func writeResult(w http.ResponseWriter, res result.Result, extra map[string]any) {
	body := map[string]any{"success": res.OK, "details": res.Message}
	if !res.OK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(body)
		return
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
