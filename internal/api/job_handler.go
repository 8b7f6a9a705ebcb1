package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/api/shared"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/execution"
	"github.com/phrazzld/reelgen/internal/platform/logger"
	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/phrazzld/reelgen/internal/store"
)

// QueueService is the intake surface the handler consumes.
type QueueService interface {
	Enqueue(ctx context.Context, specs []execution.JobSpec) ([]*domain.Job, error)
	Stats(ctx context.Context, unitID uuid.UUID) (*domain.QueueStats, error)
	Export(ctx context.Context, unitID uuid.UUID, w io.Writer) error
}

// ExecutionService runs a unit's queue to completion.
type ExecutionService interface {
	ExecuteQueue(ctx context.Context, unitID uuid.UUID, resume bool) (*domain.ExecutionReport, error)
}

// CostService prices a queue across providers.
type CostService interface {
	CompareProviders(ctx context.Context, jobs []*domain.Job) (map[string]float64, error)
}

// JobHandler serves the operator API for job intake, inspection, and
// batch execution.
type JobHandler struct {
	queue           QueueService
	executor        ExecutionService
	costs           CostService
	jobs            store.JobStore
	metrics         store.MetricStore
	reports         store.ReportStore
	registry        *provider.Registry
	defaultProvider string
	logger          *slog.Logger

	// runningUnits guards against concurrent executions of the same unit
	// from this process. The store's atomic claims protect cross-process
	// races; this just gives a clean 409 instead of a batch of skips.
	mu           sync.Mutex
	runningUnits map[uuid.UUID]bool
}

// NewJobHandler creates the handler with its dependencies.
func NewJobHandler(
	queue QueueService,
	executor ExecutionService,
	costs CostService,
	jobs store.JobStore,
	metrics store.MetricStore,
	reports store.ReportStore,
	registry *provider.Registry,
	defaultProvider string,
	log *slog.Logger,
) *JobHandler {
	return &JobHandler{
		queue:           queue,
		executor:        executor,
		costs:           costs,
		jobs:            jobs,
		metrics:         metrics,
		reports:         reports,
		registry:        registry,
		defaultProvider: defaultProvider,
		logger:          log,
		runningUnits:    make(map[uuid.UUID]bool),
	}
}

// EnqueueJobs handles POST /units/{unitID}/jobs.
func (h *JobHandler) EnqueueJobs(w http.ResponseWriter, r *http.Request) {
	unitID, err := URLParamUUID(r, "unitID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	var req EnqueueJobsRequest
	if msg, err := DecodeAndValidate(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, msg, err)
		return
	}

	specs := make([]execution.JobSpec, 0, len(req.Jobs))
	for _, entry := range req.Jobs {
		providerName := entry.Provider
		if providerName == "" {
			providerName = h.defaultProvider
		}
		specs = append(specs, execution.JobSpec{
			UnitID:    unitID,
			SceneID:   entry.SceneID,
			ClipIndex: entry.ClipIndex,
			Provider:  providerName,
			PromptRef: entry.PromptRef,
		})
	}

	jobs, err := h.queue.Enqueue(r.Context(), specs)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, ToJobResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, resp)
}

// ListJobs handles GET /units/{unitID}/jobs with an optional status filter.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	unitID, err := URLParamUUID(r, "unitID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	status := domain.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status filter")
		return
	}

	jobs, err := h.jobs.ListByUnit(r.Context(), unitID, status)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, ToJobResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{jobID}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := URLParamUUID(r, "jobID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ToJobResponse(job))
}

// GetJobMetrics handles GET /jobs/{jobID}/metrics.
func (h *JobHandler) GetJobMetrics(w http.ResponseWriter, r *http.Request) {
	jobID, err := URLParamUUID(r, "jobID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	rows, err := h.metrics.ListByJob(r.Context(), jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	resp := make([]MetricResponse, 0, len(rows))
	for _, m := range rows {
		var detail interface{}
		if len(m.Detail) > 0 {
			_ = json.Unmarshal(m.Detail, &detail)
		}
		resp = append(resp, MetricResponse{
			Event:      m.Event,
			DurationMS: m.DurationMS,
			CostUSD:    m.CostUSD,
			Detail:     detail,
			RecordedAt: m.RecordedAt,
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// RequeueJob handles POST /jobs/{jobID}/requeue, returning a failed job
// to the queue by explicit operator action.
func (h *JobHandler) RequeueJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := URLParamUUID(r, "jobID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if err := h.jobs.Requeue(r.Context(), jobID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	operator, _ := shared.GetOperator(r.Context())
	h.logger.Info("job requeued by operator",
		"job_id", jobID,
		"operator", operator)

	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ToJobResponse(job))
}

// GetStats handles GET /units/{unitID}/stats.
func (h *JobHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	unitID, err := URLParamUUID(r, "unitID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	stats, err := h.queue.Stats(r.Context(), unitID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// GetReport handles GET /units/{unitID}/report.
func (h *JobHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	unitID, err := URLParamUUID(r, "unitID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	report, err := h.reports.GetByUnit(r.Context(), unitID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

// ExportManifest handles GET /units/{unitID}/export.
func (h *JobHandler) ExportManifest(w http.ResponseWriter, r *http.Request) {
	unitID, err := URLParamUUID(r, "unitID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := h.queue.Export(r.Context(), unitID, w); err != nil {
		// Headers may already be written; log rather than re-respond.
		h.logger.Error("manifest export failed",
			"unit_id", unitID,
			"error", err)
	}
}

// CompareCosts handles GET /units/{unitID}/costs.
func (h *JobHandler) CompareCosts(w http.ResponseWriter, r *http.Request) {
	unitID, err := URLParamUUID(r, "unitID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	jobs, err := h.jobs.ListByUnit(r.Context(), unitID, domain.JobStatusQueued)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	totals, err := h.costs.CompareProviders(r.Context(), jobs)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CostComparisonResponse{UnitID: unitID, Totals: totals})
}

// ListProviders handles GET /providers.
func (h *JobHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	resp := make([]ProviderResponse, 0, len(names))
	for _, name := range names {
		client, err := h.registry.Get(name)
		if err != nil {
			continue
		}
		limits := client.RateLimits()
		resp = append(resp, ProviderResponse{
			Name:                   name,
			MaxDurationSeconds:     client.MaxDurationSeconds(),
			SupportsAudio:          client.SupportsAudio(),
			SupportsReferenceImage: client.SupportsReferenceImages(),
			RequestsPerMinute:      limits.PerMinute,
			RequestsPerHour:        limits.PerHour,
			RequestsPerDay:         limits.PerDay,
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// ExecuteUnit handles POST /units/{unitID}/execute. The batch runs in the
// background; the response acknowledges acceptance. Progress is observable
// through the stats and report endpoints.
func (h *JobHandler) ExecuteUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := URLParamUUID(r, "unitID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	var req ExecuteRequest
	if r.ContentLength > 0 {
		if msg, derr := DecodeAndValidate(r, &req); derr != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, msg, derr)
			return
		}
	}

	if !h.tryStartUnit(unitID) {
		shared.RespondWithError(w, r, http.StatusConflict, "Unit is already executing")
		return
	}

	operator, _ := shared.GetOperator(r.Context())
	log := h.logger.With("unit_id", unitID, "operator", operator)
	log.Info("batch execution accepted", "resume", req.Resume)

	// The batch outlives the request; it runs on a fresh context that
	// carries only the logger.
	runCtx := logger.WithLogger(context.Background(), log)
	go func() {
		defer h.finishUnit(unitID)
		if _, err := h.executor.ExecuteQueue(runCtx, unitID, req.Resume); err != nil {
			log.Error("batch execution ended with error", "error", err)
		}
	}()

	shared.RespondWithJSON(w, r, http.StatusAccepted, ExecuteResponse{
		UnitID:  unitID,
		Status:  "accepted",
		Message: "execution started; poll /units/{unitID}/report for the outcome",
	})
}

func (h *JobHandler) tryStartUnit(unitID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runningUnits[unitID] {
		return false
	}
	h.runningUnits[unitID] = true
	return true
}

func (h *JobHandler) finishUnit(unitID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.runningUnits, unitID)
}
