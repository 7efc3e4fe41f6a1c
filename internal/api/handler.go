package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/export"
	"github.com/opensource-finance/cashops/internal/geo"
	"github.com/opensource-finance/cashops/internal/repository"
	"github.com/opensource-finance/cashops/internal/rules"
	"github.com/opensource-finance/cashops/internal/simulate"
	"github.com/opensource-finance/cashops/internal/snapshot"
)

// Query limits.
const (
	maxBatchSize   = 100_000
	maxHistoryDays = 366
	maxHorizon     = 90

	defaultForecastWindow  = 3
	defaultForecastHorizon = 7
)

// Deps are the services the handlers read from. Repo, Cache and Bus may be
// nil; the endpoints that need them answer 503.
type Deps struct {
	Snapshots  *snapshot.Service
	Engine     *rules.Engine
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Simulation domain.SimulationConfig
	Version    string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	svc      *snapshot.Service
	engine   *rules.Engine
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	sim      domain.SimulationConfig
	version  string
	validate *validator.Validate
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	sim := deps.Simulation
	if sim.BatchSize <= 0 {
		sim.BatchSize = domain.DefaultConfig().Simulation.BatchSize
	}
	if sim.HistoryDays <= 0 {
		sim.HistoryDays = domain.DefaultConfig().Simulation.HistoryDays
	}
	return &Handler{
		svc:      deps.Snapshots,
		engine:   deps.Engine,
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		sim:      sim,
		version:  deps.Version,
		validate: validator.New(),
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// EstimateRequest is the request body for POST /estimate.
type EstimateRequest struct {
	BusinessType  string  `json:"business_type" validate:"required"`
	Region        string  `json:"region"`
	DistanceKm    float64 `json:"distance_km" validate:"gte=0,lte=500"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	TrafficFactor float64 `json:"traffic_factor" validate:"omitempty,gte=0.5,lte=3"`
	Scenario      string  `json:"scenario,omitempty"`
	TimeWeight    float64 `json:"time_weight" validate:"gte=0"`
	Seed          uint64  `json:"seed,omitempty"`
}

// EstimateResponse is the response for POST /estimate.
type EstimateResponse struct {
	Event     *domain.BusinessEvent `json:"event"`
	CostPerKm *float64              `json:"cost_per_km,omitempty"`
	TraceID   string                `json:"trace_id"`
}

// Estimate prices a single job.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	in, err := req.toInput()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ev := h.svc.Estimate(in)
	resp := EstimateResponse{Event: ev, TraceID: GetTraceID(r.Context())}
	if perKm, ok := ev.CostPerKm(); ok {
		resp.CostPerKm = &perKm
	}
	writeJSON(w, http.StatusOK, resp)
}

func (req EstimateRequest) toInput() (snapshot.EstimateInput, error) {
	bt, err := domain.ParseBusinessType(req.BusinessType)
	if err != nil {
		return snapshot.EstimateInput{}, err
	}

	in := snapshot.EstimateInput{
		BusinessType:  bt,
		DistanceKm:    req.DistanceKm,
		Amount:        req.Amount,
		TrafficFactor: req.TrafficFactor,
		TimeWeight:    req.TimeWeight,
		Seed:          req.Seed,
	}

	switch {
	case req.Region != "":
		in.Region, err = domain.ParseRegion(req.Region)
		if err != nil {
			return in, err
		}
	case bt.RouteBased():
		return in, fmt.Errorf("region is required for %s", bt)
	default:
		in.Region = domain.DepotRegion
	}

	if req.Scenario != "" {
		in.Scenario, err = domain.ParseScenario(req.Scenario)
		if err != nil {
			return in, err
		}
	}
	if req.TimeWeight != 0 && !slices.Contains(domain.TimeWeights[:], req.TimeWeight) {
		return in, fmt.Errorf("time_weight must be one of %v", domain.TimeWeights)
	}
	return in, nil
}

// BatchResponse is the response for GET /batch.
type BatchResponse struct {
	RunID       string                 `json:"run_id"`
	Seed        uint64                 `json:"seed"`
	GeneratedAt time.Time              `json:"generated_at"`
	WindowStart time.Time              `json:"window_start"`
	EventCount  int                    `json:"event_count"`
	RiskLevel   domain.RiskLevel       `json:"risk_level"`
	Events      []domain.BusinessEvent `json:"events"`
}

// Batch returns the cached batch of the current window.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	resp := BatchResponse{
		RunID:       snap.Batch.RunID,
		Seed:        snap.Batch.Seed,
		GeneratedAt: snap.Batch.GeneratedAt,
		WindowStart: snap.WindowStart,
		EventCount:  snap.Batch.Len(),
		RiskLevel:   domain.RiskNormal,
		Events:      snap.Batch.Events,
	}
	if snap.Assessment != nil {
		resp.RiskLevel = snap.Assessment.Level
	}
	writeJSON(w, http.StatusOK, resp)
}

// Report returns the aggregate report and risk assessment of the current
// batch.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     snap.Batch.RunID,
		"report":     snap.Report,
		"assessment": snap.Assessment,
	})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (*snapshot.Snapshot, bool) {
	n, err := intParam(r, "n", h.sim.BatchSize, 1, maxBatchSize)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return nil, false
	}
	snap, err := h.svc.Batch(r.Context(), n)
	if err != nil {
		writeError(w, "failed to build batch", err)
		return nil, false
	}
	return snap, true
}

// RefreshBatch drops the cached batches so the next read regenerates.
func (h *Handler) RefreshBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		writeError(w, "failed to clear cache", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cache cleared"})
}

// History returns one row per day of the simulated history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", h.sim.HistoryDays, 1, maxHistoryDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	daily, err := h.svc.Daily(r.Context(), days)
	if err != nil {
		writeError(w, "failed to build history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":  daily,
		"count": len(daily),
	})
}

// Forecast projects daily cost and volume.
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", h.sim.HistoryDays, 1, maxHistoryDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	window, err := intParam(r, "window", defaultForecastWindow, 1, maxHistoryDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	horizon, err := intParam(r, "horizon", defaultForecastHorizon, 1, maxHorizon)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	fc, err := h.svc.Forecast(r.Context(), days, window, horizon)
	if err != nil {
		writeError(w, "failed to build forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// Geography returns the static region, tier and multiplier tables.
func (h *Handler) Geography(w http.ResponseWriter, r *http.Request) {
	scenarios := make(map[string]float64, len(domain.AllScenarios()))
	for _, s := range domain.AllScenarios() {
		scenarios[s.String()] = s.Multiplier()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"regions":           geo.Table(),
		"depot_region":      domain.DepotRegion,
		"vault_transfer_km": geo.VaultTransferDistanceKm,
		"scenarios":         scenarios,
		"shift_weights":     domain.ShiftWeights(),
	})
}

// ListRules returns the loaded risk rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.LoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule returns one loaded risk rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	for _, rule := range h.engine.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorBody("rule not found"))
}

// ListRuns returns the most recent archived runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	limit, err := intParam(r, "limit", 50, 1, 500)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	runs, err := h.repo.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one archived run summary.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	run, err := h.repo.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRunEvents returns the archived events of a run.
func (h *Handler) ListRunEvents(w http.ResponseWriter, r *http.Request) {
	events, ok := h.runEvents(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// ExportRun streams the archived events of a run as CSV.
func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	events, ok := h.runEvents(w, r)
	if !ok {
		return
	}

	runID := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.csv"`, runID))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, events); err != nil {
		slog.Error("failed to write csv export", "run_id", runID, "error", err)
	}
}

// runEvents loads the events of an existing run.
func (h *Handler) runEvents(w http.ResponseWriter, r *http.Request) ([]domain.BusinessEvent, bool) {
	if !h.requireRepo(w) {
		return nil, false
	}
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if _, err := h.repo.GetRun(ctx, runID); err != nil {
		writeError(w, "failed to get run", err)
		return nil, false
	}
	events, err := h.repo.ListEvents(ctx, runID)
	if err != nil {
		writeError(w, "failed to list run events", err)
		return nil, false
	}
	return events, true
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return false
	}
	return true
}

// intParam reads an optional integer query parameter within [lo,hi].
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, repository.ErrInvalidInput), errors.Is(err, simulate.ErrInvalidConfig):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody(msg))
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
