package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/service"

	"github.com/google/uuid"
)

const queueCapacity = 1024

// ProgressFunc receives stage transitions while a job attempt runs.
type ProgressFunc func(stage models.JobStage, progress int)

// Handler executes one attempt of a job of its kind. Returning an error
// fails the attempt; the dispatcher decides whether the job is retried.
type Handler func(ctx context.Context, job *models.Job, report ProgressFunc) error

// Config holds the dispatcher's tuning knobs.
type Config struct {
	WorkerCount  int
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	JobRetention time.Duration
}

// Dispatcher owns the background job lifecycle: priority-partitioned FIFO
// queues, a worker pool, whole-job retry with exponential backoff, and the
// in-memory job status surface for pollers. Execution is at-least-once; the
// persist stage's CAS guard is what makes re-runs safe.
type Dispatcher struct {
	mu           sync.RWMutex
	jobs         map[string]*models.Job
	activeByTrip map[string]string

	highQueue chan string
	lowQueue  chan string

	handlers map[string]Handler

	trips       *service.TripService
	broadcaster service.Broadcaster

	cfg Config
	wg  sync.WaitGroup
}

// NewDispatcher creates a dispatcher. trips is used to mark a trip
// failed-generation when its job exhausts retries; broadcaster carries
// generation_progress events to the trip's sessions. Either may be nil in
// tests.
func NewDispatcher(cfg Config, trips *service.TripService, broadcaster service.Broadcaster) *Dispatcher {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &Dispatcher{
		jobs:         make(map[string]*models.Job),
		activeByTrip: make(map[string]string),
		highQueue:    make(chan string, queueCapacity),
		lowQueue:     make(chan string, queueCapacity),
		handlers:     make(map[string]Handler),
		trips:        trips,
		broadcaster:  broadcaster,
		cfg:          cfg,
	}
}

// RegisterHandler binds a job kind to its handler. Must be called before
// Start.
func (d *Dispatcher) RegisterHandler(kind string, handler Handler) {
	d.handlers[kind] = handler
}

// Enqueue creates a generation job for a trip and places it on the lane for
// its priority. At most one non-terminal job may exist per trip; a duplicate
// enqueue is rejected with models.ErrJobAlreadyActive.
func (d *Dispatcher) Enqueue(tripID string, payload models.GenerationPayload, priority models.JobPriority) (string, error) {
	return d.enqueue(models.JobKindGeneration, tripID, payload, priority)
}

// EnqueueMaintenance places a maintenance job on the low-priority lane.
// Maintenance jobs are not tied to a trip and bypass the one-active-job
// guard.
func (d *Dispatcher) EnqueueMaintenance(kind string) (string, error) {
	return d.enqueue(kind, "", models.GenerationPayload{}, models.PriorityLow)
}

func (d *Dispatcher) enqueue(kind, tripID string, payload models.GenerationPayload, priority models.JobPriority) (string, error) {
	if _, ok := d.handlers[kind]; !ok {
		return "", fmt.Errorf("no handler registered for job kind %q", kind)
	}

	now := time.Now().UTC()
	job := &models.Job{
		JobID:     uuid.New().String(),
		TripID:    tripID,
		Kind:      kind,
		Priority:  priority,
		State:     models.JobPending,
		Stage:     models.StageInit,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	d.mu.Lock()
	if tripID != "" {
		if activeID, exists := d.activeByTrip[tripID]; exists {
			d.mu.Unlock()
			slog.Warn("Rejected duplicate job for trip", "trip_id", tripID, "active_job_id", activeID)
			return "", models.ErrJobAlreadyActive
		}
		d.activeByTrip[tripID] = job.JobID
	}
	d.jobs[job.JobID] = job
	d.mu.Unlock()

	if err := d.push(job); err != nil {
		d.mu.Lock()
		delete(d.jobs, job.JobID)
		if tripID != "" {
			delete(d.activeByTrip, tripID)
		}
		d.mu.Unlock()
		return "", err
	}

	slog.Info("Job enqueued",
		"job_id", job.JobID,
		"trip_id", tripID,
		"kind", kind,
		"priority", priority)

	return job.JobID, nil
}

// Status returns a snapshot of the job for the polling surface.
func (d *Dispatcher) Status(jobID string) (*models.Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[jobID]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

// Start launches the worker pool. Workers drain the high-priority lane
// preferentially and stop when ctx is cancelled; Wait blocks until they
// exit.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Wait blocks until all workers have stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// StartMaintenance periodically enqueues a purge job on the low lane,
// keeping the job store bounded.
func (d *Dispatcher) StartMaintenance(ctx context.Context, interval time.Duration) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.EnqueueMaintenance(models.JobKindPurge); err != nil {
					slog.Warn("Failed to enqueue purge job", "error", err)
				}
			}
		}
	}()
}

// PurgeExpired removes terminal jobs older than the retention window from
// the status store and returns how many were removed.
func (d *Dispatcher) PurgeExpired() int {
	cutoff := time.Now().UTC().Add(-d.cfg.JobRetention)

	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for id, job := range d.jobs {
		if job.State.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(d.jobs, id)
			removed++
		}
	}
	return removed
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Drain the high lane before touching the low one.
		select {
		case jobID := <-d.highQueue:
			d.execute(ctx, jobID)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case jobID := <-d.highQueue:
			d.execute(ctx, jobID)
		case jobID := <-d.lowQueue:
			d.execute(ctx, jobID)
		}
	}
}

// execute runs one attempt of a job. A handler panic counts as a failed
// attempt so a crashed worker's job is requeued rather than lost.
func (d *Dispatcher) execute(ctx context.Context, jobID string) {
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok {
		d.mu.Unlock()
		return
	}
	job.State = models.JobProcessing
	job.Stage = models.StageInit
	job.UpdatedAt = time.Now().UTC()
	handler := d.handlers[job.Kind]
	snapshot := *job
	d.mu.Unlock()

	report := func(stage models.JobStage, progress int) {
		d.reportProgress(jobID, stage, progress)
	}

	err := d.runAttempt(ctx, handler, &snapshot, report)
	if err == nil {
		d.complete(ctx, jobID, snapshot.TripID)
		return
	}
	d.handleFailure(ctx, jobID, err)
}

func (d *Dispatcher) runAttempt(ctx context.Context, handler Handler, job *models.Job, report ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job, report)
}

// reportProgress records a stage transition. Progress never decreases,
// regardless of how the handler reports.
func (d *Dispatcher) reportProgress(jobID string, stage models.JobStage, progress int) {
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok {
		d.mu.Unlock()
		return
	}
	job.Stage = stage
	if progress > job.Progress {
		job.Progress = progress
	}
	job.UpdatedAt = time.Now().UTC()
	snapshot := *job
	d.mu.Unlock()

	d.broadcastProgress(snapshot, "")
}

func (d *Dispatcher) complete(ctx context.Context, jobID, tripID string) {
	// Read the result back before flipping the state so pollers never see
	// a completed job without one.
	result := d.generationResult(ctx, jobID, tripID)

	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok {
		d.mu.Unlock()
		return
	}
	job.State = models.JobCompleted
	job.Stage = models.StageComplete
	job.Progress = 100
	job.Result = result
	job.UpdatedAt = time.Now().UTC()
	if job.TripID != "" {
		delete(d.activeByTrip, job.TripID)
	}
	snapshot := *job
	d.mu.Unlock()

	slog.Info("Job completed", "job_id", jobID, "trip_id", snapshot.TripID, "attempts", snapshot.Attempts)
	d.broadcastProgress(snapshot, "")
}

// generationResult reads back the trip a completed job wrote so the polling
// surface can report the produced version and status. Best effort: a read
// failure leaves the result empty.
func (d *Dispatcher) generationResult(ctx context.Context, jobID, tripID string) json.RawMessage {
	if d.trips == nil || tripID == "" {
		return nil
	}

	trip, err := d.trips.Read(ctx, tripID)
	if err != nil {
		slog.Warn("Failed to read trip for job result", "job_id", jobID, "trip_id", tripID, "error", err)
		return nil
	}

	result, err := json.Marshal(models.GenerationResult{
		TripID:      trip.TripID,
		TripVersion: trip.Version,
		TripStatus:  trip.Status,
	})
	if err != nil {
		slog.Warn("Failed to encode job result", "job_id", jobID, "error", err)
		return nil
	}
	return result
}

// handleFailure either schedules a retry from Init with exponential backoff
// or, once retries are exhausted, fails the job terminally, marks the trip
// failed-generation and broadcasts the failure.
func (d *Dispatcher) handleFailure(ctx context.Context, jobID string, attemptErr error) {
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok {
		d.mu.Unlock()
		return
	}
	job.LastError = attemptErr.Error()
	job.UpdatedAt = time.Now().UTC()

	if job.Attempts < d.cfg.MaxRetries {
		job.Attempts++
		job.State = models.JobPending
		job.Stage = models.StageInit
		delay := d.backoff(job.Attempts)
		snapshot := *job
		d.mu.Unlock()

		slog.Warn("Job attempt failed, scheduling retry",
			"job_id", jobID,
			"trip_id", snapshot.TripID,
			"attempt", snapshot.Attempts,
			"delay", delay,
			"error", attemptErr)

		time.AfterFunc(delay, func() {
			if err := d.push(&snapshot); err != nil {
				slog.Error("Failed to requeue job", "job_id", jobID, "error", err)
			}
		})
		return
	}

	job.State = models.JobFailed
	job.Stage = models.StageFailed
	if job.TripID != "" {
		delete(d.activeByTrip, job.TripID)
	}
	snapshot := *job
	d.mu.Unlock()

	slog.Error("Job failed terminally",
		"job_id", jobID,
		"trip_id", snapshot.TripID,
		"retries", snapshot.Attempts,
		"error", attemptErr)

	if snapshot.TripID != "" {
		d.markTripFailed(ctx, snapshot.TripID, attemptErr)
	}
	d.broadcastProgress(snapshot, snapshot.LastError)
}

// markTripFailed patches the trip status so clients never hang on
// "generating". The status patch is idempotent, so CAS conflicts are
// absorbed with a bounded re-read loop.
func (d *Dispatcher) markTripFailed(ctx context.Context, tripID string, cause error) {
	if d.trips == nil {
		return
	}

	failed := models.StatusFailedGeneration
	patch := service.TripPatch{Status: &failed}

	for attempt := 0; attempt < 3; attempt++ {
		current, err := d.trips.Read(ctx, tripID)
		if err != nil {
			slog.Error("Failed to load trip for failure marking", "trip_id", tripID, "error", err)
			return
		}
		if current.Status == models.StatusDeleted {
			return
		}

		_, err = d.trips.Update(ctx, tripID, "dispatcher", current.Version, patch)
		if err == nil {
			return
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			slog.Error("Failed to mark trip failed-generation", "trip_id", tripID, "error", err)
			return
		}
	}
	slog.Error("Gave up marking trip failed-generation after conflicts", "trip_id", tripID, "cause", cause)
}

func (d *Dispatcher) broadcastProgress(job models.Job, errDetail string) {
	if d.broadcaster == nil || job.TripID == "" {
		return
	}
	event, err := models.NewEvent(models.EventGenerationProgress, job.TripID, "", models.GenerationProgressPayload{
		JobID:    job.JobID,
		Stage:    job.Stage,
		Progress: job.Progress,
		State:    job.State,
		Error:    errDetail,
	})
	if err != nil {
		slog.Error("Failed to build progress event", "job_id", job.JobID, "error", err)
		return
	}
	d.broadcaster.Publish(job.TripID, event, "")
}

// backoff computes base * 2^(attempt-1), capped.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.BackoffCap {
			return d.cfg.BackoffCap
		}
	}
	if delay > d.cfg.BackoffCap {
		return d.cfg.BackoffCap
	}
	return delay
}

func (d *Dispatcher) push(job *models.Job) error {
	lane := d.lowQueue
	if job.Priority >= models.PriorityHigh {
		lane = d.highQueue
	}
	select {
	case lane <- job.JobID:
		return nil
	default:
		return fmt.Errorf("job queue full, dropping job %s", job.JobID)
	}
}
