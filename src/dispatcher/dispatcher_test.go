package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrsaikumar-7/travvy/src/cache"
	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/repository"
	"github.com/mrsaikumar-7/travvy/src/service"
	"github.com/mrsaikumar-7/travvy/src/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventSink is a concurrency-safe Broadcaster capture.
type eventSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *eventSink) Publish(tripID string, event models.Event, excludeUserID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *eventSink) byType(eventType models.EventType) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func fastConfig() Config {
	return Config{
		WorkerCount:  1,
		MaxRetries:   2,
		BackoffBase:  time.Millisecond,
		BackoffCap:   5 * time.Millisecond,
		JobRetention: time.Hour,
	}
}

func waitForState(t *testing.T, d *Dispatcher, jobID string, want models.JobState) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		snapshot, err := d.Status(jobID)
		if err != nil {
			return false
		}
		job = snapshot
		return job.State == want
	}, 2*time.Second, 5*time.Millisecond, "job never reached state %s", want)
	return job
}

func TestDispatcher_Enqueue_UnknownKindRejected(t *testing.T) {
	d := NewDispatcher(fastConfig(), nil, nil)

	_, err := d.Enqueue("trip1", models.GenerationPayload{}, models.PriorityHigh)
	assert.Error(t, err)
}

func TestDispatcher_Enqueue_SecondJobForTripRejected(t *testing.T) {
	d := NewDispatcher(fastConfig(), nil, nil)
	d.RegisterHandler(models.JobKindGeneration, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		return nil
	})

	_, err := d.Enqueue("trip1", models.GenerationPayload{}, models.PriorityHigh)
	require.NoError(t, err)

	_, err = d.Enqueue("trip1", models.GenerationPayload{}, models.PriorityHigh)
	assert.ErrorIs(t, err, models.ErrJobAlreadyActive)

	// A different trip is unaffected.
	_, err = d.Enqueue("trip2", models.GenerationPayload{}, models.PriorityHigh)
	assert.NoError(t, err)
}

func TestDispatcher_Status_UnknownJob(t *testing.T) {
	d := NewDispatcher(fastConfig(), nil, nil)

	_, err := d.Status("nope")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestDispatcher_Execute_CompletesAndFreesTheTrip(t *testing.T) {
	sink := &eventSink{}
	d := NewDispatcher(fastConfig(), nil, sink)
	d.RegisterHandler(models.JobKindGeneration, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		report(models.StageItineraryDraft, 10)
		report(models.StagePersist, 95)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	jobID, err := d.Enqueue("trip1", models.GenerationPayload{UserID: "alice"}, models.PriorityHigh)
	require.NoError(t, err)

	job := waitForState(t, d, jobID, models.JobCompleted)
	assert.Equal(t, models.StageComplete, job.Stage)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 0, job.Attempts)

	// The trip slot is free again once the job is terminal.
	_, err = d.Enqueue("trip1", models.GenerationPayload{}, models.PriorityHigh)
	assert.NoError(t, err)

	assert.NotEmpty(t, sink.byType(models.EventGenerationProgress))
}

func TestDispatcher_Execute_RetriesFromInitThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	var stagesSeen []models.JobStage
	var mu sync.Mutex

	d := NewDispatcher(fastConfig(), nil, nil)
	d.RegisterHandler(models.JobKindGeneration, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		mu.Lock()
		stagesSeen = append(stagesSeen, job.Stage)
		mu.Unlock()
		if calls.Add(1) == 1 {
			return errors.New("provider hiccup")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	jobID, err := d.Enqueue("trip1", models.GenerationPayload{}, models.PriorityHigh)
	require.NoError(t, err)

	job := waitForState(t, d, jobID, models.JobCompleted)
	assert.Equal(t, 1, job.Attempts, "one retry was needed")
	assert.EqualValues(t, 2, calls.Load())

	// Retries always restart from the beginning, never mid-pipeline.
	mu.Lock()
	defer mu.Unlock()
	for _, stage := range stagesSeen {
		assert.Equal(t, models.StageInit, stage)
	}
}

func TestDispatcher_Execute_ExhaustedRetriesFailTerminally(t *testing.T) {
	documents := store.NewMemoryStore()
	repo := repository.NewTripRepository(documents, cache.NewMemoryCache(), time.Minute)
	trips := service.NewTripService(repo, nil)

	trip, err := trips.Create(context.Background(), "alice", models.TripMetadata{Title: "Trip to Rome"}, models.StatusGenerating)
	require.NoError(t, err)

	sink := &eventSink{}
	var calls atomic.Int64
	d := NewDispatcher(fastConfig(), trips, sink)
	d.RegisterHandler(models.JobKindGeneration, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		calls.Add(1)
		return errors.New("provider down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	jobID, err := d.Enqueue(trip.TripID, models.GenerationPayload{}, models.PriorityHigh)
	require.NoError(t, err)

	job := waitForState(t, d, jobID, models.JobFailed)
	assert.Equal(t, models.StageFailed, job.Stage)
	assert.Equal(t, fastConfig().MaxRetries, job.Attempts)
	assert.EqualValues(t, fastConfig().MaxRetries+1, calls.Load(), "initial attempt plus MaxRetries retries")
	assert.Contains(t, job.LastError, "provider down")

	// The trip never hangs on "generating".
	require.Eventually(t, func() bool {
		current, err := trips.Read(context.Background(), trip.TripID)
		return err == nil && current.Status == models.StatusFailedGeneration
	}, 2*time.Second, 5*time.Millisecond)

	// A follow-up job for the trip is allowed again.
	_, err = d.Enqueue(trip.TripID, models.GenerationPayload{}, models.PriorityHigh)
	assert.NoError(t, err)
}

func TestDispatcher_Execute_PanickingHandlerIsRetried(t *testing.T) {
	var calls atomic.Int64
	d := NewDispatcher(fastConfig(), nil, nil)
	d.RegisterHandler(models.JobKindGeneration, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		if calls.Add(1) == 1 {
			panic("nil dereference in provider response")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	jobID, err := d.Enqueue("trip1", models.GenerationPayload{}, models.PriorityHigh)
	require.NoError(t, err)

	job := waitForState(t, d, jobID, models.JobCompleted)
	assert.Equal(t, 1, job.Attempts)
}

func TestDispatcher_Worker_PrefersHighLane(t *testing.T) {
	var mu sync.Mutex
	var order []string

	d := NewDispatcher(fastConfig(), nil, nil)
	d.RegisterHandler(models.JobKindGeneration, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		mu.Lock()
		order = append(order, job.TripID)
		mu.Unlock()
		return nil
	})

	// Queue a low-priority job first, then a high one, before any worker runs.
	lowID, err := d.Enqueue("low-trip", models.GenerationPayload{}, models.PriorityLow)
	require.NoError(t, err)
	highID, err := d.Enqueue("high-trip", models.GenerationPayload{}, models.PriorityHigh)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	waitForState(t, d, lowID, models.JobCompleted)
	waitForState(t, d, highID, models.JobCompleted)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"high-trip", "low-trip"}, order, "the high lane drains first")
}

func TestDispatcher_PurgeExpired_RemovesOnlyOldTerminalJobs(t *testing.T) {
	cfg := fastConfig()
	cfg.JobRetention = 50 * time.Millisecond
	d := NewDispatcher(cfg, nil, nil)
	d.RegisterHandler(models.JobKindGeneration, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	doneID, err := d.Enqueue("trip1", models.GenerationPayload{}, models.PriorityHigh)
	require.NoError(t, err)
	waitForState(t, d, doneID, models.JobCompleted)

	// Nothing to purge while the job is inside the retention window.
	assert.Equal(t, 0, d.PurgeExpired())

	time.Sleep(80 * time.Millisecond)

	// A fresh pending job must survive the purge.
	pendingID, err := d.Enqueue("trip2", models.GenerationPayload{}, models.PriorityHigh)
	require.NoError(t, err)

	assert.Equal(t, 1, d.PurgeExpired())

	_, err = d.Status(doneID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	_, err = d.Status(pendingID)
	assert.NoError(t, err)
}

func TestDispatcher_Backoff_DoublesAndCaps(t *testing.T) {
	d := NewDispatcher(Config{
		WorkerCount: 1,
		BackoffBase: 100 * time.Millisecond,
		BackoffCap:  time.Second,
	}, nil, nil)

	assert.Equal(t, 100*time.Millisecond, d.backoff(1))
	assert.Equal(t, 200*time.Millisecond, d.backoff(2))
	assert.Equal(t, 400*time.Millisecond, d.backoff(3))
	assert.Equal(t, 800*time.Millisecond, d.backoff(4))
	assert.Equal(t, time.Second, d.backoff(5))
	assert.Equal(t, time.Second, d.backoff(10))
}

func TestDispatcher_EnqueueMaintenance_RunsOnLowLane(t *testing.T) {
	done := make(chan struct{})
	d := NewDispatcher(fastConfig(), nil, nil)
	d.RegisterHandler(models.JobKindPurge, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		close(done)
		return nil
	})

	jobID, err := d.EnqueueMaintenance(models.JobKindPurge)
	require.NoError(t, err)

	job, err := d.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityLow, job.Priority)
	assert.Empty(t, job.TripID)

	// Maintenance jobs bypass the per-trip guard entirely.
	_, err = d.EnqueueMaintenance(models.JobKindPurge)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance job never ran")
	}
}

func TestDispatcher_Complete_RecordsGenerationResult(t *testing.T) {
	repo := repository.NewTripRepository(store.NewMemoryStore(), cache.NewMemoryCache(), time.Minute)
	trips := service.NewTripService(repo, nil)

	trip, err := trips.Create(context.Background(), "alice", models.TripMetadata{Title: "Trip to Rome"}, models.StatusGenerating)
	require.NoError(t, err)

	d := NewDispatcher(fastConfig(), trips, nil)
	d.RegisterHandler(models.JobKindGeneration, func(ctx context.Context, job *models.Job, report ProgressFunc) error {
		planning := models.StatusPlanning
		_, err := trips.Update(ctx, job.TripID, job.Payload.UserID, 1, service.TripPatch{Status: &planning})
		return err
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	jobID, err := d.Enqueue(trip.TripID, models.GenerationPayload{UserID: "alice"}, models.PriorityHigh)
	require.NoError(t, err)

	job := waitForState(t, d, jobID, models.JobCompleted)
	require.NotEmpty(t, job.Result)

	var result models.GenerationResult
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, trip.TripID, result.TripID)
	assert.Equal(t, 2, result.TripVersion)
	assert.Equal(t, models.StatusPlanning, result.TripStatus)
}
