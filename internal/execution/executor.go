package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/phrazzld/reelgen/internal/store"
)

// ExecutorConfig bundles the tunables for one executor instance.
type ExecutorConfig struct {
	MaxConcurrent int
	Retry         RetryConfig
	Poll          PollerConfig
}

// Executor drains a unit's job queue against external providers. Dispatch
// is FIFO with a bounded number of jobs in flight; one job's failure never
// aborts the batch. Every state transition is persisted before the next
// step begins, so a crashed run resumes from durable state.
type Executor struct {
	jobs       store.JobStore
	artifacts  store.ArtifactStore
	metrics    store.MetricStore
	reports    store.ReportStore
	registry   *provider.Registry
	limiter    *RateLimiter
	payloads   PayloadSource
	downloader *Downloader
	poller     *Poller
	cfg        ExecutorConfig
	logger     *slog.Logger
}

// NewExecutor wires an executor from its collaborators.
func NewExecutor(
	jobs store.JobStore,
	artifacts store.ArtifactStore,
	metrics store.MetricStore,
	reports store.ReportStore,
	registry *provider.Registry,
	limiter *RateLimiter,
	payloads PayloadSource,
	downloader *Downloader,
	cfg ExecutorConfig,
	log *slog.Logger,
) *Executor {
	return &Executor{
		jobs:       jobs,
		artifacts:  artifacts,
		metrics:    metrics,
		reports:    reports,
		registry:   registry,
		limiter:    limiter,
		payloads:   payloads,
		downloader: downloader,
		poller:     NewPoller(cfg.Poll, cfg.Retry),
		cfg:        cfg,
		logger:     log,
	}
}

// jobOutcome is the executor's internal record of how one job ended.
type jobOutcome struct {
	jobID         uuid.UUID
	status        domain.JobStatus
	timedOut      bool
	aborted       bool
	errKind       provider.ErrorKind
	costUSD       float64
	generationSec float64
}

// ExecuteQueue drains every pending job for the unit and returns a report.
// Jobs already complete or skipped are not touched. When resume is true,
// jobs left running by a dead process are reconciled against the provider
// first: a finished remote job is downloaded and finalized, anything else
// is reset to queued and re-dispatched. When resume is false such jobs are
// left alone, since another live executor may own them.
func (e *Executor) ExecuteQueue(ctx context.Context, unitID uuid.UUID, resume bool) (*domain.ExecutionReport, error) {
	startedAt := time.Now().UTC()
	log := e.logger.With("unit_id", unitID)

	all, err := e.jobs.ListByUnit(ctx, unitID, "")
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, store.ErrJobNotFound
	}

	var runnable []*domain.Job
	outcomes := make([]jobOutcome, 0, len(all))

	for _, job := range all {
		switch job.Status {
		case domain.JobStatusQueued:
			runnable = append(runnable, job)
		case domain.JobStatusRunning:
			if !resume {
				log.Warn("job already running, leaving it to its owner",
					"job_id", job.ID)
				outcomes = append(outcomes, jobOutcome{jobID: job.ID, status: domain.JobStatusRunning, aborted: true})
				continue
			}
			outcome, requeued := e.reconcileStale(ctx, log, job)
			if requeued {
				runnable = append(runnable, job)
			} else {
				outcomes = append(outcomes, outcome)
			}
		case domain.JobStatusComplete, domain.JobStatusSkipped:
			outcomes = append(outcomes, jobOutcome{
				jobID:         job.ID,
				status:        domain.JobStatusSkipped,
				costUSD:       job.CostUSD,
				generationSec: job.GenerationSec,
			})
		case domain.JobStatusFailed:
			outcomes = append(outcomes, jobOutcome{jobID: job.ID, status: domain.JobStatusFailed})
		}
	}

	log.Info("executing queue",
		"total_jobs", len(all),
		"runnable", len(runnable),
		"max_concurrent", e.cfg.MaxConcurrent)

	results := make(chan jobOutcome, len(runnable))
	sem := make(chan struct{}, e.cfg.MaxConcurrent)
	var wg sync.WaitGroup

dispatch:
	for _, job := range runnable {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(job *domain.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- e.executeJob(ctx, job)
		}(job)
	}

	wg.Wait()
	close(results)
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}

	report := buildReport(unitID, len(all), outcomes, startedAt, time.Now().UTC())

	// Report persistence must survive ctx cancellation; the run's history
	// is exactly what a resumed run needs.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.reports.Save(saveCtx, report); err != nil {
		log.Error("failed to persist execution report", "error", err)
	}

	log.Info("queue execution finished",
		"completed", report.Completed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"timed_out", report.TimedOut,
		"total_cost_usd", report.TotalCostUSD)

	return report, ctx.Err()
}

// executeJob runs one job through claim, submit, poll, download, and
// finalize. Any terminal failure marks the job failed with its classified
// kind; cancellation leaves the job running so a resumed run can
// reconcile it.
func (e *Executor) executeJob(ctx context.Context, job *domain.Job) jobOutcome {
	log := e.logger.With("job_id", job.ID, "scene_id", job.SceneID, "clip_index", job.ClipIndex)

	// A queued job that already has a verified artifact does not need
	// another generation; mark it skipped and account for what was spent.
	// Only a definitive "no artifact" answer may proceed to submission: a
	// store failure here must not trigger a paid re-generation.
	artifact, aerr := e.artifacts.GetByJobID(ctx, job.ID)
	if aerr != nil && !errors.Is(aerr, store.ErrArtifactNotFound) {
		log.Error("artifact lookup failed, leaving job queued", "error", aerr)
		return jobOutcome{jobID: job.ID, status: domain.JobStatusQueued, aborted: true}
	}
	if aerr == nil {
		log.Info("artifact already recorded, skipping job", "path", artifact.LocalPath)
		job.ArtifactPath = artifact.LocalPath
		if terr := job.TransitionTo(domain.JobStatusSkipped); terr == nil {
			if uerr := e.jobs.UpdateStatus(ctx, job, domain.JobStatusQueued); uerr != nil {
				log.Warn("failed to persist skip", "error", uerr)
			}
		}
		return jobOutcome{
			jobID:         job.ID,
			status:        domain.JobStatusSkipped,
			costUSD:       job.CostUSD,
			generationSec: job.GenerationSec,
		}
	}

	// Claim. The prior-status pin means of two racing executors exactly
	// one proceeds.
	if err := job.TransitionTo(domain.JobStatusRunning); err != nil {
		return jobOutcome{jobID: job.ID, status: job.Status, aborted: true}
	}
	if err := e.jobs.UpdateStatus(ctx, job, domain.JobStatusQueued); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			log.Info("job claimed by another executor, skipping")
			return jobOutcome{jobID: job.ID, status: domain.JobStatusSkipped, aborted: true}
		}
		log.Error("failed to claim job", "error", err)
		return jobOutcome{jobID: job.ID, status: domain.JobStatusQueued, aborted: true}
	}

	req, err := e.payloads.Load(ctx, job.PromptRef)
	if err != nil {
		return e.failJob(ctx, log, job, provider.KindRequestRejected, fmt.Sprintf("loading payload: %v", err))
	}

	client, err := e.registry.Get(job.Provider)
	if err != nil {
		return e.failJob(ctx, log, job, provider.KindRequestRejected, err.Error())
	}

	expectedDuration := req.DurationSeconds
	if max := client.MaxDurationSeconds(); expectedDuration > max {
		expectedDuration = max
	}

	// Submit. The limiter gate sits inside the retried operation so every
	// attempt, not just the first, holds a reserved slot.
	submitStart := time.Now()
	handle, err := WithRetry(ctx, e.cfg.Retry, log, e.retryObserver(ctx, job), func(ctx context.Context) (string, error) {
		if err := e.limiter.Acquire(ctx, job.Provider); err != nil {
			return "", err
		}
		h, serr := client.Submit(ctx, req)
		if rerr := e.limiter.Record(ctx, job.Provider); rerr != nil {
			log.Warn("failed to persist rate-limit spend", "error", rerr)
		}
		switch {
		case serr == nil:
			e.limiter.NoteHealthy(job.Provider)
		case provider.KindOf(serr) == provider.KindProviderUnavailable:
			e.limiter.NoteUnavailable(job.Provider)
		}
		return h, serr
	})
	e.recordMetric(ctx, log, job.ID, domain.MetricEventSubmission, time.Since(submitStart), client.EstimateCost(req), map[string]any{
		"provider": job.Provider,
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("submission aborted by cancellation, job stays recoverable")
			return jobOutcome{jobID: job.ID, status: domain.JobStatusRunning, aborted: true}
		}
		return e.failJob(ctx, log, job, provider.KindOf(err), fmt.Sprintf("submission failed: %v", err))
	}

	// Persist the handle before the first poll so a crash between here and
	// completion leaves a reconcilable record.
	job.ProviderJobID = handle
	if err := e.jobs.UpdateStatus(ctx, job, domain.JobStatusRunning); err != nil {
		log.Warn("failed to persist provider handle", "error", err)
	}
	log.Info("job submitted", "provider", job.Provider, "handle", handle)

	// Poll.
	pollStart := time.Now()
	pollOutcome, pollErr := e.poller.PollUntilComplete(ctx, log, client, handle)
	e.recordMetric(ctx, log, job.ID, domain.MetricEventPoll, time.Since(pollStart), 0, map[string]any{
		"provider": job.Provider,
		"attempts": pollOutcome.Attempts,
		"result":   string(pollOutcome.Result),
	})

	switch pollOutcome.Result {
	case PollSucceeded:
		// Fall through to download.
	case PollTimedOut:
		outcome := e.failJob(ctx, log, job, provider.KindTimeout,
			fmt.Sprintf("polling budget exceeded after %s; provider handle %s remains queryable", pollOutcome.Elapsed.Round(time.Second), handle))
		outcome.timedOut = true
		return outcome
	case PollFailed:
		return e.failJob(ctx, log, job, provider.KindOf(pollErr), pollOutcome.Reason)
	default:
		if ctx.Err() != nil {
			log.Warn("polling aborted by cancellation, job stays recoverable")
			return jobOutcome{jobID: job.ID, status: domain.JobStatusRunning, aborted: true}
		}
		return e.failJob(ctx, log, job, provider.KindUnknown, fmt.Sprintf("polling ended without a verdict: %v", pollErr))
	}

	return e.finalize(ctx, log, job, client, pollOutcome, expectedDuration)
}

// finalize downloads and verifies the finished clip, records the artifact,
// and marks the job complete.
func (e *Executor) finalize(ctx context.Context, log *slog.Logger, job *domain.Job, client provider.Client, pollOutcome PollOutcome, expectedDuration int) jobOutcome {
	key := ClipKey{UnitID: job.UnitID, SceneID: job.SceneID, ClipIndex: job.ClipIndex}

	downloadStart := time.Now()
	artifact, err := WithRetry(ctx, e.cfg.Retry, log, e.retryObserver(ctx, job), func(ctx context.Context) (*domain.Artifact, error) {
		return e.downloader.Fetch(ctx, job.ID, key, pollOutcome.ResultURL, float64(expectedDuration))
	})
	e.recordMetric(ctx, log, job.ID, domain.MetricEventDownload, time.Since(downloadStart), 0, map[string]any{
		"url": pollOutcome.ResultURL,
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("download aborted by cancellation, job stays recoverable")
			return jobOutcome{jobID: job.ID, status: domain.JobStatusRunning, aborted: true}
		}
		return e.failJob(ctx, log, job, provider.KindOf(err), fmt.Sprintf("download failed: %v", err))
	}

	if err := e.artifacts.Create(ctx, artifact); err != nil && !errors.Is(err, store.ErrDuplicate) {
		return e.failJob(ctx, log, job, provider.KindUnknown, fmt.Sprintf("recording artifact: %v", err))
	}

	req, perr := e.payloads.Load(ctx, job.PromptRef)
	cost := 0.0
	if perr == nil {
		cost = client.EstimateCost(req)
	}

	job.ArtifactPath = artifact.LocalPath
	job.CostUSD = cost
	job.GenerationSec = pollOutcome.Elapsed.Seconds()
	if err := job.TransitionTo(domain.JobStatusComplete); err != nil {
		log.Error("invalid completion transition", "error", err)
		return jobOutcome{jobID: job.ID, status: job.Status, aborted: true}
	}
	if err := e.jobs.UpdateStatus(ctx, job, domain.JobStatusRunning); err != nil {
		log.Error("failed to persist completion", "error", err)
		return jobOutcome{jobID: job.ID, status: domain.JobStatusRunning, aborted: true}
	}

	log.Info("job complete",
		"artifact", artifact.LocalPath,
		"generation_seconds", job.GenerationSec,
		"cost_usd", cost)

	return jobOutcome{
		jobID:         job.ID,
		status:        domain.JobStatusComplete,
		costUSD:       cost,
		generationSec: job.GenerationSec,
	}
}

// reconcileStale decides what to do with a job left running by a dead
// process. One status check settles it: a finished remote job is finalized
// without re-generating, anything else is reset to queued for a fresh
// submission. Returns requeued=true when the caller should dispatch the
// job again.
func (e *Executor) reconcileStale(ctx context.Context, log *slog.Logger, job *domain.Job) (jobOutcome, bool) {
	log = log.With("job_id", job.ID)

	if job.ProviderJobID != "" {
		client, err := e.registry.Get(job.Provider)
		if err == nil {
			status, perr := client.PollStatus(ctx, job.ProviderJobID)
			if rerr := e.limiter.Record(ctx, job.Provider); rerr != nil {
				log.Warn("failed to persist rate-limit spend", "error", rerr)
			}
			if perr == nil && status.State == provider.StateCompleted {
				log.Info("stale job finished remotely, finalizing without resubmission")
				url, uerr := client.ResolveResultURL(ctx, job.ProviderJobID)
				if uerr == nil {
					req, lerr := e.payloads.Load(ctx, job.PromptRef)
					expected := 0
					if lerr == nil {
						expected = req.DurationSeconds
						if max := client.MaxDurationSeconds(); expected > max {
							expected = max
						}
					}
					outcome := e.finalize(ctx, log, job, client, PollOutcome{
						Result:    PollSucceeded,
						ResultURL: url,
					}, expected)
					return outcome, false
				}
				log.Warn("could not resolve result for finished stale job, resubmitting", "error", uerr)
			}
		}
	}

	if err := e.jobs.ResetStale(ctx, job.ID); err != nil {
		log.Error("failed to reset stale job", "error", err)
		return jobOutcome{jobID: job.ID, status: domain.JobStatusRunning, aborted: true}, false
	}
	job.Status = domain.JobStatusQueued
	job.ProviderJobID = ""
	job.StartedAt = nil
	log.Info("stale job reset for resubmission")
	return jobOutcome{}, true
}

// failJob marks the job failed with its classified kind and returns the
// matching outcome.
func (e *Executor) failJob(ctx context.Context, log *slog.Logger, job *domain.Job, kind provider.ErrorKind, reason string) jobOutcome {
	log.Error("job failed", "kind", string(kind), "reason", reason)

	job.LastError = fmt.Sprintf("%s: %s", kind, reason)
	if err := job.TransitionTo(domain.JobStatusFailed); err == nil {
		// Failure must be durable even when the batch is being cancelled.
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := e.jobs.UpdateStatus(persistCtx, job, domain.JobStatusRunning); err != nil {
			log.Error("failed to persist job failure", "error", err)
		}
	}

	return jobOutcome{jobID: job.ID, status: domain.JobStatusFailed, errKind: kind}
}

// retryObserver records a retry metric and feeds throttle signals back to
// the rate limiter.
func (e *Executor) retryObserver(ctx context.Context, job *domain.Job) RetryObserver {
	return func(attempt int, kind provider.ErrorKind, err error, delay time.Duration) {
		if kind == provider.KindProviderThrottle {
			e.limiter.ForceCooldown(job.Provider)
		}
		e.recordMetric(ctx, e.logger, job.ID, domain.MetricEventRetry, delay, 0, map[string]any{
			"attempt": attempt + 1,
			"kind":    string(kind),
			"error":   err.Error(),
		})
	}
}

// recordMetric appends one metric row. Metric failures never fail the job
// they describe.
func (e *Executor) recordMetric(ctx context.Context, log *slog.Logger, jobID uuid.UUID, event domain.MetricEvent, duration time.Duration, costUSD float64, detail map[string]any) {
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = nil
	}
	metric, err := domain.NewJobMetric(jobID, event, duration, costUSD, payload)
	if err != nil {
		log.Warn("invalid metric", "event", string(event), "error", err)
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.metrics.Record(persistCtx, metric); err != nil {
		log.Warn("failed to record metric", "event", string(event), "error", err)
	}
}

// buildReport aggregates outcomes into the run's report.
func buildReport(unitID uuid.UUID, totalJobs int, outcomes []jobOutcome, startedAt, finishedAt time.Time) *domain.ExecutionReport {
	report := &domain.ExecutionReport{
		UnitID:          unitID,
		TotalJobs:       totalJobs,
		ErrorKindCounts: make(map[string]int),
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
	}

	for _, o := range outcomes {
		switch o.status {
		case domain.JobStatusComplete:
			report.Completed++
			report.TotalCostUSD += o.costUSD
			report.TotalGenerationS += o.generationSec
		case domain.JobStatusFailed:
			report.Failed++
			report.FailedJobIDs = append(report.FailedJobIDs, o.jobID)
			if o.errKind != "" {
				report.ErrorKindCounts[string(o.errKind)]++
			}
			if o.timedOut {
				report.TimedOut++
			}
		case domain.JobStatusSkipped:
			report.Skipped++
			report.TotalCostUSD += o.costUSD
			report.TotalGenerationS += o.generationSec
		}
	}

	if report.Completed > 0 {
		report.AvgCostPerClipUSD = report.TotalCostUSD / float64(report.Completed+report.Skipped)
	}

	return report
}
