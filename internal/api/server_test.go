package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/engine"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/persistence"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/world"
)

const testKey = "s3cret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Sim.Seed = 5
	cfg.Traffic.SpawnRate = 0
	for k := range cfg.Disaster.BaseRates {
		cfg.Disaster.BaseRates[k] = 0
	}
	city := world.NewMap(500, 500)
	city.AddRoad(world.Road{ID: "road_main", Start: spatial.Vec3{}, End: spatial.Vec3{X: 400}, Lanes: 2, SpeedLimit: 14})
	sim := engine.NewSimulation(cfg, city, ids.NewSequential())
	return &Server{Sim: sim, AdminKey: testKey}
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	status := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "mini-city", status["name"])
	assert.Equal(t, s.Sim.Snapshot().Economy.Funds, status["funds"])
	assert.True(t, strings.HasPrefix(status["funds_display"].(string), "$"))
	assert.NotContains(t, status, "speed")
}

func TestStatsMatchesSnapshot(t *testing.T) {
	s := newTestServer(t)
	s.Sim.Step(1)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decodeBody[engine.Snapshot](t, rec)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Equal(t, s.Sim.Snapshot().Economy.Funds, snap.Economy.Funds)
}

func TestAdminAuth(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	body := `{"id":"business_tax_relief"}`

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/policy", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/policy", "wrong", body).Code)

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, do(t, s.Handler(), http.MethodPost, "/api/v1/policy", testKey, body).Code)
}

func TestPolicyEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/policy", testKey, `{"id":"business_tax_relief"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["success"])
	assert.Equal(t, []string{"business_tax_relief"}, s.Sim.Snapshot().Policy.Active)

	// Enacting twice is a domain refusal, not a transport error.
	rec = do(t, h, http.MethodPost, "/api/v1/policy", testKey, `{"id":"business_tax_relief"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, rec)["success"])

	rec = do(t, h, http.MethodPost, "/api/v1/policy", testKey, `{"id":"business_tax_relief","action":"repeal"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.Sim.Snapshot().Policy.Active)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/policy", testKey, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/policy", testKey, `{"id":"x","action":"veto"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/policy", testKey, `not json`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/v1/policy", "", "").Code)
}

func TestLoanAndTax(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/loan", testKey, `{"amount":10000,"rate":0.05,"months":12}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodPost, "/api/v1/loan", testKey, `{"kind":"bond","amount":5000,"rate":0.04,"months":24}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 15_000, s.Sim.Snapshot().Economy.Debt, 1e-9)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/loan", testKey, `{"kind":"gift"}`).Code)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/tax", testKey, `{}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/api/v1/tax", testKey, `{"rate":2}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/tax", testKey, `{"rate":0.2}`).Code)
	assert.Equal(t, 0.2, s.Sim.Snapshot().Economy.TaxRate)

	rec = do(t, h, http.MethodGet, "/api/v1/economy", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	econ := decodeBody[map[string]json.RawMessage](t, rec)
	assert.Contains(t, econ, "loans")
	assert.Contains(t, econ, "goods")
}

func TestBuildAndDisaster(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/build", testKey, `{"type":"house","x":50,"z":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody[map[string]any](t, rec)["id"])
	assert.Len(t, s.Sim.Buildings(), 1)

	rec = do(t, h, http.MethodPost, "/api/v1/build", testKey, `{"category":"power","type":"solar"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/build", testKey, `{"type":"castle"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/api/v1/build", testKey, `{"category":"power","type":"fusion"}`).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/disaster", testKey, `{"kind":"fire","road":"road_main","severity":"minor"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodGet, "/api/v1/disasters", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[map[string][]json.RawMessage](t, rec)
	assert.Len(t, listed["disasters"], 1)
}

func TestEventsFilter(t *testing.T) {
	s := newTestServer(t)
	require.True(t, s.Sim.TakeLoan(1_000, 0.05, 6).OK)
	require.True(t, s.Sim.EnactPolicy("business_tax_relief").OK)
	h := s.Handler()

	all := decodeBody[[]events.Event](t, do(t, h, http.MethodGet, "/api/v1/events", "", ""))
	assert.GreaterOrEqual(t, len(all), 2)

	econ := decodeBody[[]events.Event](t, do(t, h, http.MethodGet, "/api/v1/events?category=economy", "", ""))
	require.NotEmpty(t, econ)
	for _, e := range econ {
		assert.Equal(t, events.CategoryEconomy, e.Category)
	}

	one := decodeBody[[]events.Event](t, do(t, h, http.MethodGet, "/api/v1/events?limit=1", "", ""))
	require.Len(t, one, 1)
	assert.Equal(t, all[len(all)-1], one[0])
}

func TestHistory(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.Handler(), http.MethodGet, "/api/v1/history", "", "").Code)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s.DB = db

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/history", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	snap := s.Sim.Step(1440)
	require.True(t, snap.DayEnded)
	require.NoError(t, db.SaveDay(snap))

	days := decodeBody[[]persistence.DayStats](t, do(t, s.Handler(), http.MethodGet, "/api/v1/history?limit=5", "", ""))
	require.Len(t, days, 1)
	assert.Equal(t, snap.Day, days[0].Day)
}

func TestSpeed(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.Handler(), http.MethodGet, "/api/v1/speed", "", "").Code)

	s.Eng = engine.NewEngine(s.Sim, 1, time.Second)
	h := s.Handler()
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/speed", testKey, `{"speed":-1}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/speed", testKey, `{"speed":0}`).Code)
	assert.Zero(t, s.Eng.Speed())

	rec := do(t, h, http.MethodGet, "/api/v1/speed", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]float64{"speed": 0}, decodeBody[map[string]float64](t, rec))
}

func TestAdminRateLimited(t *testing.T) {
	s := newTestServer(t)
	s.AdminRate = 2
	h := s.Handler()

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/tax", testKey, `{"rate":0.1}`).Code)
	}
	rec := do(t, h, http.MethodPost, "/api/v1/tax", testKey, `{"rate":0.1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Public reads are not limited.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/status", "", "").Code)
}

func TestStaffEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/build", testKey, `{"type":"house","x":10}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/build", testKey, `{"type":"shop","x":60}`).Code)
	biz := s.Sim.Businesses()[0].ID

	rec := do(t, h, http.MethodPost, "/api/v1/staff", testKey, `{"business":"`+biz+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, s.Sim.Snapshot().Citizens.Employed)

	rec = do(t, h, http.MethodPost, "/api/v1/staff", testKey, `{"business":"`+biz+`","action":"fire"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, s.Sim.Snapshot().Citizens.Employed)
	assert.Zero(t, s.Sim.Businesses()[0].Employees)

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/api/v1/staff", testKey, `{"business":"`+biz+`","action":"fire"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/staff", testKey, `{"business":"`+biz+`","action":"promote"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/staff", testKey, `{}`).Code)
}

func TestWeatherEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/weather", testKey, `{"condition":"Storm","intensity":1,"minutes":600}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "storm", s.Sim.Snapshot().Weather.Condition)
	assert.Less(t, s.Sim.Step(1).Weather.Effects.SpeedMultiplier, 1.0)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/weather", testKey, `{"condition":"hail"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/weather", "", `{"condition":"clear"}`).Code)
}

func TestDemolishEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	house := decodeBody[map[string]any](t, do(t, h, http.MethodPost, "/api/v1/build", testKey, `{"type":"house"}`))["id"].(string)
	plant := decodeBody[map[string]any](t, do(t, h, http.MethodPost, "/api/v1/build", testKey, `{"category":"power","type":"solar"}`))["id"].(string)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/demolish", testKey, `{"id":"`+house+`"}`).Code)
	assert.Empty(t, s.Sim.Buildings())
	assert.Zero(t, s.Sim.Snapshot().Citizens.Population)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/demolish", testKey, `{"id":"`+plant+`"}`).Code)
	assert.Zero(t, s.Sim.Step(1).Resources.PowerPlants)

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodPost, "/api/v1/demolish", testKey, `{"id":"`+house+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/demolish", testKey, `{}`).Code)
}
