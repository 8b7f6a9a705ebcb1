package execution

import (
	"context"
	"database/sql"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelgen/internal/domain"
	"github.com/phrazzld/reelgen/internal/provider"
	"github.com/phrazzld/reelgen/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// instantSleep advances nothing and never blocks, honoring cancellation.
func instantSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// fakeClock is a manual clock whose sleep advances time instead of waiting.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeJobStore is an in-memory store.JobStore.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (s *fakeJobStore) put(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
}

func (s *fakeJobStore) get(id uuid.UUID) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		clone := *job
		return &clone
	}
	return nil
}

func (s *fakeJobStore) CreateMultiple(_ context.Context, jobs []*domain.Job) error {
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return store.ErrInvalidEntity
		}
		s.put(job)
	}
	return nil
}

func (s *fakeJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	if job := s.get(id); job != nil {
		return job, nil
	}
	return nil, store.ErrJobNotFound
}

func (s *fakeJobStore) ListByUnit(_ context.Context, unitID uuid.UUID, status domain.JobStatus) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, job := range s.jobs {
		if job.UnitID != unitID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		clone := *job
		out = append(out, &clone)
	}
	return out, nil
}

func (s *fakeJobStore) UpdateStatus(_ context.Context, job *domain.Job, prior domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return store.ErrJobNotFound
	}
	if current.Status != prior {
		return store.ErrStaleStatus
	}
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *fakeJobStore) CountByStatus(_ context.Context, unitID uuid.UUID) (map[domain.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.JobStatus]int)
	for _, job := range s.jobs {
		if job.UnitID == unitID {
			counts[job.Status]++
		}
	}
	return counts, nil
}

func (s *fakeJobStore) ResetStale(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return store.ErrStaleStatus
	}
	job.Status = domain.JobStatusQueued
	job.ProviderJobID = ""
	job.StartedAt = nil
	return nil
}

func (s *fakeJobStore) Requeue(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusFailed {
		return store.ErrStaleStatus
	}
	job.Status = domain.JobStatusQueued
	job.ProviderJobID = ""
	job.LastError = ""
	job.StartedAt = nil
	job.CompletedAt = nil
	return nil
}

func (s *fakeJobStore) WithTx(_ *sql.Tx) store.JobStore { return s }

// fakeArtifactStore is an in-memory store.ArtifactStore.
type fakeArtifactStore struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]*domain.Artifact
	unitOf    map[uuid.UUID]uuid.UUID
	getErr    error
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{
		artifacts: make(map[uuid.UUID]*domain.Artifact),
		unitOf:    make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *fakeArtifactStore) Create(_ context.Context, artifact *domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[artifact.JobID]; ok {
		return store.ErrDuplicate
	}
	s.artifacts[artifact.JobID] = artifact
	return nil
}

func (s *fakeArtifactStore) GetByJobID(_ context.Context, jobID uuid.UUID) (*domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if a, ok := s.artifacts[jobID]; ok {
		return a, nil
	}
	return nil, store.ErrArtifactNotFound
}

func (s *fakeArtifactStore) ListByUnit(_ context.Context, unitID uuid.UUID) ([]*domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Artifact
	for jobID, a := range s.artifacts {
		if s.unitOf[jobID] == unitID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeArtifactStore) WithTx(_ *sql.Tx) store.ArtifactStore { return s }

// fakeMetricStore collects metric rows.
type fakeMetricStore struct {
	mu      sync.Mutex
	metrics []*domain.JobMetric
}

func newFakeMetricStore() *fakeMetricStore {
	return &fakeMetricStore{}
}

func (s *fakeMetricStore) Record(_ context.Context, metric *domain.JobMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metric)
	return nil
}

func (s *fakeMetricStore) ListByJob(_ context.Context, jobID uuid.UUID) ([]*domain.JobMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.JobMetric
	for _, m := range s.metrics {
		if m.JobID == jobID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMetricStore) events(jobID uuid.UUID) []domain.MetricEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MetricEvent
	for _, m := range s.metrics {
		if m.JobID == jobID {
			out = append(out, m.Event)
		}
	}
	return out
}

func (s *fakeMetricStore) WithTx(_ *sql.Tx) store.MetricStore { return s }

// fakeReportStore keeps the last report per unit.
type fakeReportStore struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*domain.ExecutionReport
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{reports: make(map[uuid.UUID]*domain.ExecutionReport)}
}

func (s *fakeReportStore) Save(_ context.Context, report *domain.ExecutionReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.UnitID] = report
	return nil
}

func (s *fakeReportStore) GetByUnit(_ context.Context, unitID uuid.UUID) (*domain.ExecutionReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reports[unitID]; ok {
		return r, nil
	}
	return nil, store.ErrReportNotFound
}

// fakeCounterStore is an in-memory store.RateLimitStore.
type fakeCounterStore struct {
	mu       sync.Mutex
	counters map[string]*domain.RateLimitCounter
	upserts  int
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counters: make(map[string]*domain.RateLimitCounter)}
}

func (s *fakeCounterStore) Get(_ context.Context, providerName string) (*domain.RateLimitCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[providerName]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, store.ErrCounterNotFound
}

func (s *fakeCounterStore) Upsert(_ context.Context, counter *domain.RateLimitCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *counter
	s.counters[counter.Provider] = &clone
	s.upserts++
	return nil
}

// fakeClient is a scriptable provider.Client.
type fakeClient struct {
	name       string
	limits     provider.RateLimits
	submitFn   func(ctx context.Context, req provider.Request) (string, error)
	pollFn     func(ctx context.Context, handle string) (provider.Status, error)
	resolveFn  func(ctx context.Context, handle string) (string, error)
	costPerSec float64
	maxSec     int
}

func newFakeClient(name string) *fakeClient {
	return &fakeClient{
		name:       name,
		limits:     provider.RateLimits{PerMinute: 100, PerHour: 1000, PerDay: 10000},
		costPerSec: 0.1,
		maxSec:     15,
	}
}

func (c *fakeClient) Name() string { return c.name }

func (c *fakeClient) Submit(ctx context.Context, req provider.Request) (string, error) {
	if c.submitFn != nil {
		return c.submitFn(ctx, req)
	}
	return "handle-1", nil
}

func (c *fakeClient) PollStatus(ctx context.Context, handle string) (provider.Status, error) {
	if c.pollFn != nil {
		return c.pollFn(ctx, handle)
	}
	return provider.Status{State: provider.StateCompleted}, nil
}

func (c *fakeClient) ResolveResultURL(ctx context.Context, handle string) (string, error) {
	if c.resolveFn != nil {
		return c.resolveFn(ctx, handle)
	}
	return "http://example.com/result.mp4", nil
}

func (c *fakeClient) RateLimits() provider.RateLimits { return c.limits }

func (c *fakeClient) EstimateCost(req provider.Request) float64 {
	return c.costPerSec * float64(req.DurationSeconds)
}

func (c *fakeClient) MaxDurationSeconds() int      { return c.maxSec }
func (c *fakeClient) SupportsAudio() bool          { return false }
func (c *fakeClient) SupportsReferenceImages() bool { return false }

// fakePayloads resolves prompt refs from a map.
type fakePayloads struct {
	payloads map[uuid.UUID]provider.Request
}

func newFakePayloads() *fakePayloads {
	return &fakePayloads{payloads: make(map[uuid.UUID]provider.Request)}
}

func (p *fakePayloads) Load(_ context.Context, promptRef uuid.UUID) (provider.Request, error) {
	if req, ok := p.payloads[promptRef]; ok {
		return req, nil
	}
	return provider.Request{}, ErrPayloadNotFound
}

// buildMP4 synthesizes a minimal MP4: an ftyp box followed by a moov box
// whose mvhd declares the given duration.
func buildMP4(durationSec float64) []byte {
	ftyp := makeBox("ftyp", []byte("isom\x00\x00\x02\x00isomiso2"))

	timescale := uint32(1000)
	duration := uint32(durationSec * 1000)
	mvhdPayload := make([]byte, 100)
	// version 0, flags 0; creation and modification left zero
	binary.BigEndian.PutUint32(mvhdPayload[12:16], timescale)
	binary.BigEndian.PutUint32(mvhdPayload[16:20], duration)
	mvhd := makeBox("mvhd", mvhdPayload)
	moov := makeBox("moov", mvhd)

	return append(ftyp, moov...)
}

func makeBox(boxType string, payload []byte) []byte {
	box := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(box[0:4], uint32(8+len(payload)))
	copy(box[4:8], boxType)
	copy(box[8:], payload)
	return box
}
