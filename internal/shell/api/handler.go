// Package api provides HTTP handlers for the waveplan API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/waveplan/internal/core/catalog"
	"github.com/artpar/waveplan/internal/core/deployment"
	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/rollback"
	"github.com/artpar/waveplan/internal/core/validation"
	"github.com/artpar/waveplan/internal/shell/api/openapi"
	"github.com/artpar/waveplan/internal/shell/executor"
	"github.com/artpar/waveplan/internal/shell/provider"
	"github.com/artpar/waveplan/internal/shell/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

var errPlanInUse = errors.New("plan has an active run")

// =============================================================================
// Collaborators
// =============================================================================

// RunSubmitter starts plan executions. executor.Runner implements it.
type RunSubmitter interface {
	Submit(ctx context.Context, plan *domain.PlanRecord) (*domain.Rollout, error)
}

// Pinger is an optional readiness dependency such as the Docker daemon.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// Handler
// =============================================================================

// Config holds the handler's collaborators and settings.
type Config struct {
	Provider provider.ConfigProvider
	Store    store.Store
	Runner   RunSubmitter // nil disables plan execution
	Docker   Pinger       // nil skips the docker readiness check
	Logger   *slog.Logger

	// Registry receives the API metrics. Nil creates a private registry.
	Registry *prometheus.Registry

	// Planner defaults. Strategy drives the reverse-wave rollback fallback.
	Strategy       string
	TimingModel    domain.TimingModel
	StrictServices bool

	Version string
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	provider       provider.ConfigProvider
	store          store.Store
	runner         RunSubmitter
	docker         Pinger
	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *Metrics
	openapi        *openapi.Generator
	strategy       string
	timingModel    domain.TimingModel
	strictServices bool
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = string(domain.StrategyParallelOptimized)
	}
	if cfg.TimingModel == "" {
		cfg.TimingModel = domain.TimingLegacy
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	gen := openapi.NewGenerator(openapi.WithVersion(cfg.Version))
	gen.Register(endpoints()...)

	return &Handler{
		provider:       cfg.Provider,
		store:          cfg.Store,
		runner:         cfg.Runner,
		docker:         cfg.Docker,
		logger:         cfg.Logger.With("component", "api"),
		registry:       cfg.Registry,
		metrics:        NewMetrics(cfg.Registry),
		openapi:        gen,
		strategy:       cfg.Strategy,
		timingModel:    cfg.TimingModel,
		strictServices: cfg.StrictServices,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.instrument)
	r.Use(h.requestIDHeader)

	// Operational endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.json", h.openapi.Handler())

		r.Group(func(r chi.Router) {
			r.Use(h.jsonContentType)

			r.Get("/services", h.handleListServices)
			r.Get("/strategies", h.handleListStrategies)
			r.Post("/validate", h.handleValidate)
			r.Post("/rollback-order", h.handleRollbackOrder)

			// Plan routes
			r.Route("/plans", func(r chi.Router) {
				r.Post("/", h.handleCreatePlan)
				r.Get("/", h.handleListPlans)
				r.Get("/{id}", h.handleGetPlan)
				r.Delete("/{id}", h.handleDeletePlan)
				r.Post("/{id}/runs", h.handleCreateRun)
				r.Get("/{id}/runs", h.handleListPlanRuns)
			})

			// Run routes
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h.handleListActiveRuns)
				r.Get("/{id}", h.handleGetRun)
			})
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	checks := make(map[string]string)
	ready := true

	if err := h.store.Ping(r.Context()); err != nil {
		checks["database"] = "failed"
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if _, err := h.provider.Catalog(r.Context()); err != nil {
		checks["catalog"] = "failed"
		ready = false
	} else {
		checks["catalog"] = "ok"
	}

	if h.docker != nil {
		if err := h.docker.Ping(r.Context()); err != nil {
			checks["docker"] = "failed"
			ready = false
		} else {
			checks["docker"] = "ok"
		}
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Catalog Handlers
// =============================================================================

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	cat, err := h.provider.Catalog(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	nodes := cat.Graph.Nodes()
	resp := ListServicesResponse{
		Services: make([]ServiceResponse, 0, len(nodes)),
		Total:    len(nodes),
	}
	for _, n := range nodes {
		resp.Services = append(resp.Services, serviceToResponse(cat, n))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	cat, err := h.provider.Catalog(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := ListStrategiesResponse{Strategies: make([]StrategyResponse, 0, 3)}
	for _, s := range domain.Strategies() {
		cfg := cat.Strategies.Lookup(s)
		resp.Strategies = append(resp.Strategies, StrategyResponse{
			Name:                 string(s),
			AllowParallel:        cfg.AllowParallel,
			MaxConcurrentPerWave: cfg.MaxConcurrentPerWave,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	cat, err := h.resolveCatalog(r.Context(), req.Graph)
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	var res validation.Result
	if len(req.Services) > 0 {
		res = validation.ValidateSelection(cat.Graph, req.Services)
	} else {
		res = validation.ValidateGraph(cat.Graph)
	}
	h.writeJSON(w, http.StatusOK, ValidationResponse{Valid: res.Valid, Errors: res.Errors})
}

// =============================================================================
// Plan Handlers
// =============================================================================

func (h *Handler) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if !h.decode(w, r, &req) {
		return
	}

	cat, err := h.resolveCatalog(r.Context(), req.Graph)
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	model := h.timingModel
	if req.TimingModel != "" {
		if model, err = domain.ParseTimingModel(req.TimingModel); err != nil {
			h.writePlanError(w, err)
			return
		}
	}

	plan, err := deployment.BuildPlan(deployment.PlanRequest{
		Graph:          cat.Graph,
		Services:       req.Services,
		Strategy:       req.Strategy,
		Catalog:        cat.Strategies,
		TimingModel:    model,
		StrictServices: h.strictServices,
	})
	if err != nil {
		h.writePlanError(w, err)
		return
	}

	rec := domain.NewPlanRecord("plan_"+uuid.New().String()[:8], req.Services, cat.RollbackOrder, *plan)
	if err := h.store.CreatePlan(r.Context(), rec); err != nil {
		h.logger.Error("failed to store plan", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to store plan", "internal_error")
		return
	}

	h.metrics.PlansCreated.WithLabelValues(string(plan.Strategy)).Inc()
	h.metrics.PlanWaves.Observe(float64(plan.TotalWaves))
	h.logger.Info("plan created",
		"plan_id", rec.ID,
		"strategy", plan.Strategy,
		"waves", plan.TotalWaves,
		"services", plan.TotalServices,
	)

	h.writeJSON(w, http.StatusCreated, planToResponse(rec))
}

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)

	plans, err := h.store.ListPlans(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list plans", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list plans", "internal_error")
		return
	}

	resp := ListPlansResponse{
		Plans:  make([]PlanResponse, 0, len(plans)),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range plans {
		resp.Plans = append(resp.Plans, planToResponse(&plans[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadPlan(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, planToResponse(rec))
}

func (h *Handler) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Deleting cascades to rollouts, so a plan with a run in flight stays.
	err := h.store.WithTx(r.Context(), func(tx store.Store) error {
		active, err := tx.ListActiveRollouts(r.Context())
		if err != nil {
			return err
		}
		for _, run := range active {
			if run.PlanID == id {
				return errPlanInUse
			}
		}
		return tx.DeletePlan(r.Context(), id)
	})
	if err != nil {
		if errors.Is(err, errPlanInUse) {
			h.writeError(w, http.StatusConflict, "plan has a run in progress", "plan_in_use")
			return
		}
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "plan not found", "not_found")
			return
		}
		h.logger.Error("failed to delete plan", "plan_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete plan", "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRollbackOrder(w http.ResponseWriter, r *http.Request) {
	var req RollbackOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.PlanID != "" {
		rec, err := h.store.GetPlan(r.Context(), req.PlanID)
		if err != nil {
			h.writeStoreError(w, err, "plan")
			return
		}
		h.writeJSON(w, http.StatusOK, RollbackOrderResponse{
			Order: rollback.Resolve(rec.RollbackOrder, rec.Plan.Waves, req.Deployed),
		})
		return
	}

	cat, err := h.provider.Catalog(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if len(cat.RollbackOrder) > 0 {
		h.writeJSON(w, http.StatusOK, RollbackOrderResponse{
			Order: rollback.Order(cat.RollbackOrder, req.Deployed),
		})
		return
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = h.strategy
	}
	plan, err := deployment.BuildPlan(deployment.PlanRequest{
		Graph:    cat.Graph,
		Strategy: strategy,
		Catalog:  cat.Strategies,
	})
	if err != nil {
		h.writePlanError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RollbackOrderResponse{
		Order: rollback.ReverseWaves(plan.Waves, req.Deployed),
	})
}

// =============================================================================
// Run Handlers
// =============================================================================

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		h.writeError(w, http.StatusServiceUnavailable, "plan execution is disabled", "runs_disabled")
		return
	}

	rec, ok := h.loadPlan(w, r)
	if !ok {
		return
	}

	rollout, err := h.runner.Submit(r.Context(), rec)
	if err != nil {
		if errors.Is(err, executor.ErrRunnerStopped) {
			h.writeError(w, http.StatusServiceUnavailable, "server is shutting down", "unavailable")
			return
		}
		h.logger.Error("failed to start run", "plan_id", rec.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to start run", "internal_error")
		return
	}

	h.metrics.RunsSubmitted.Inc()
	h.logger.Info("run started", "plan_id", rec.ID, "run_id", rollout.ID)
	h.writeJSON(w, http.StatusAccepted, runToResponse(rollout))
}

func (h *Handler) handleListPlanRuns(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadPlan(w, r)
	if !ok {
		return
	}

	runs, err := h.store.ListRolloutsByPlan(r.Context(), rec.ID, listOptions(r))
	if err != nil {
		h.logger.Error("failed to list runs", "plan_id", rec.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}
	h.writeRuns(w, runs)
}

func (h *Handler) handleListActiveRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListActiveRollouts(r.Context())
	if err != nil {
		h.logger.Error("failed to list active runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}
	h.writeRuns(w, runs)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rollout, err := h.store.GetRollout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err, "run")
		return
	}
	h.writeJSON(w, http.StatusOK, runToResponse(rollout))
}

func (h *Handler) writeRuns(w http.ResponseWriter, runs []domain.Rollout) {
	resp := ListRunsResponse{Runs: make([]RunResponse, 0, len(runs))}
	for i := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&runs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helpers
// =============================================================================

// resolveCatalog builds a catalog from an inline graph, or returns the
// provider's current catalog when graph is nil.
func (h *Handler) resolveCatalog(ctx context.Context, graph *GraphRequest) (*catalog.Catalog, error) {
	if graph != nil {
		return catalog.Build(graph.document())
	}
	return h.provider.Catalog(ctx)
}

// loadPlan fetches the plan named by the {id} URL parameter, writing the
// error response itself on failure.
func (h *Handler) loadPlan(w http.ResponseWriter, r *http.Request) (*domain.PlanRecord, bool) {
	rec, err := h.store.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err, "plan")
		return nil, false
	}
	return rec, true
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "validation_error")
		return false
	}
	return true
}

func listOptions(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	return opts.Normalize()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writePlanError maps catalog, validation and planning errors to responses.
func (h *Handler) writePlanError(w http.ResponseWriter, err error) {
	status, code := classifyPlanError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("planning failed", "error", err)
	}
	h.metrics.PlanErrors.WithLabelValues(code).Inc()
	h.writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Code:    code,
		Details: graphErrorMessages(err),
	})
}

// writeServiceError reports a failure to obtain the current catalog.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	h.logger.Error("catalog unavailable", "error", err)
	h.writeError(w, http.StatusServiceUnavailable, "catalog unavailable", "catalog_unavailable")
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, entity string) {
	if isNotFound(err) {
		h.writeError(w, http.StatusNotFound, entity+" not found", "not_found")
		return
	}
	h.logger.Error("store operation failed", "entity", entity, "error", err)
	h.writeError(w, http.StatusInternalServerError, "failed to load "+entity, "internal_error")
}

func classifyPlanError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnknownStrategy):
		return http.StatusBadRequest, "unknown_strategy"
	case errors.Is(err, domain.ErrUnknownService):
		return http.StatusBadRequest, "unknown_service"
	case errors.Is(err, domain.ErrConfig),
		errors.Is(err, domain.ErrInvalidService),
		errors.Is(err, domain.ErrDuplicateService):
		return http.StatusBadRequest, "config_error"
	case errors.Is(err, domain.ErrCircularDependency),
		errors.Is(err, domain.ErrMissingDependency):
		return http.StatusUnprocessableEntity, "invalid_graph"
	case errors.Is(err, domain.ErrUnresolvableDependency):
		return http.StatusUnprocessableEntity, "unresolvable_dependency"
	case errors.Is(err, provider.ErrNoCatalog):
		return http.StatusServiceUnavailable, "catalog_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// graphErrorMessages collects every validation.GraphError inside err.
func graphErrorMessages(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case validation.GraphError:
			out = append(out, x.Error())
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			if inner := x.Unwrap(); inner != nil {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
