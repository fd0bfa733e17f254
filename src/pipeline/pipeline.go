package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/service"
)

// PipelineActor identifies the pipeline as the author of its CAS writes, so
// broadcast exclusion never hides them from a connected user.
const PipelineActor = "ai-pipeline"

// Stage progress checkpoints. Progress is monotonically non-decreasing and
// reported as each stage begins.
var stageProgress = map[models.JobStage]int{
	models.StageInit:                5,
	models.StageItineraryDraft:      10,
	models.StagePlacesEnrichment:    40,
	models.StageHotelRecommendation: 70,
	models.StageOptimize:            90,
	models.StagePersist:             95,
}

// ProgressFunc receives stage transitions as the pipeline advances.
type ProgressFunc func(stage models.JobStage, progress int)

// Pipeline runs the trip generation stages for one job. Every stage before
// Persist is a pure computation over its inputs and safe to re-run; Persist
// is the only external side effect and is guarded by the trip service's
// compare-and-swap, so at-least-once job execution cannot double-apply.
type Pipeline struct {
	trips     *service.TripService
	itinerary ItineraryProvider
	places    PlacesProvider
	hotels    HotelProvider
	optimizer Optimizer

	stageTimeout      time.Duration
	persistMaxRetries int
}

// NewPipeline creates a generation pipeline over the given providers.
func NewPipeline(
	trips *service.TripService,
	itinerary ItineraryProvider,
	places PlacesProvider,
	hotels HotelProvider,
	optimizer Optimizer,
	stageTimeout time.Duration,
	persistMaxRetries int,
) *Pipeline {
	return &Pipeline{
		trips:             trips,
		itinerary:         itinerary,
		places:            places,
		hotels:            hotels,
		optimizer:         optimizer,
		stageTimeout:      stageTimeout,
		persistMaxRetries: persistMaxRetries,
	}
}

// Run executes the stage machine for one job attempt:
// Init -> ItineraryDraft -> PlacesEnrichment -> HotelRecommendation ->
// Optimize -> Persist. Any error fails the whole attempt; the dispatcher
// owns whole-job retries, always from Init.
func (p *Pipeline) Run(ctx context.Context, job *models.Job, report ProgressFunc) error {
	start := time.Now()

	report(models.StageInit, stageProgress[models.StageInit])
	trip, err := p.trips.Read(ctx, job.TripID)
	if err != nil {
		return fmt.Errorf("init stage failed: %w", err)
	}

	report(models.StageItineraryDraft, stageProgress[models.StageItineraryDraft])
	draft, err := p.runDraft(ctx, job.Payload, trip.Metadata)
	if err != nil {
		return fmt.Errorf("itinerary draft stage failed: %w", err)
	}

	report(models.StagePlacesEnrichment, stageProgress[models.StagePlacesEnrichment])
	enriched, err := p.runEnrichment(ctx, draft, trip.Metadata.Destination)
	if err != nil {
		return fmt.Errorf("places enrichment stage failed: %w", err)
	}

	report(models.StageHotelRecommendation, stageProgress[models.StageHotelRecommendation])
	hotels, err := p.runHotels(ctx, trip.Metadata.Destination, trip.Metadata.Budget)
	if err != nil {
		return fmt.Errorf("hotel recommendation stage failed: %w", err)
	}

	report(models.StageOptimize, stageProgress[models.StageOptimize])
	plan, err := p.runOptimize(ctx, enriched, hotels)
	if err != nil {
		return fmt.Errorf("optimize stage failed: %w", err)
	}

	report(models.StagePersist, stageProgress[models.StagePersist])
	generation := models.AIGeneration{
		Model:          draft.Model,
		Confidence:     draft.Confidence,
		GenerationTime: time.Since(start).Round(time.Millisecond).String(),
	}
	if err := p.persist(ctx, job.TripID, plan, generation); err != nil {
		return fmt.Errorf("persist stage failed: %w", err)
	}

	return nil
}

func (p *Pipeline) runDraft(ctx context.Context, payload models.GenerationPayload, meta models.TripMetadata) (*ItineraryDraft, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	draft, err := p.itinerary.GenerateItinerary(stageCtx, payload, meta)
	if err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return draft, nil
}

func (p *Pipeline) runEnrichment(ctx context.Context, draft *ItineraryDraft, destination models.Destination) (*EnrichedItinerary, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	enriched, err := p.places.EnrichPlaces(stageCtx, draft, destination)
	if err != nil {
		return nil, err
	}
	if err := enriched.Validate(); err != nil {
		return nil, err
	}
	return enriched, nil
}

func (p *Pipeline) runHotels(ctx context.Context, destination models.Destination, budget models.Budget) (*HotelRecommendations, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	hotels, err := p.hotels.RecommendHotels(stageCtx, destination, budget)
	if err != nil {
		return nil, err
	}
	if err := hotels.Validate(); err != nil {
		return nil, err
	}
	return hotels, nil
}

func (p *Pipeline) runOptimize(ctx context.Context, enriched *EnrichedItinerary, hotels *HotelRecommendations) (*OptimizedPlan, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	plan, err := p.optimizer.Optimize(stageCtx, enriched, hotels)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// persist commits the generated plan through the trip service's CAS. The
// trip is re-read immediately before each attempt so the write targets the
// current stored version, not the version captured at job start. A conflict
// here means another writer won the slot; re-read and reapply up to
// persistMaxRetries before failing the job. If the trip was deleted while
// the job ran, the result is discarded so a deleted trip is never
// resurrected.
func (p *Pipeline) persist(ctx context.Context, tripID string, plan *OptimizedPlan, generation models.AIGeneration) error {
	now := time.Now().UTC()
	generation.GeneratedAt = &now
	planning := models.StatusPlanning

	patch := service.TripPatch{
		Itinerary:    &plan.Days,
		Hotels:       &plan.Hotels,
		AIGeneration: &generation,
		Status:       &planning,
	}

	var err error
	for attempt := 0; attempt <= p.persistMaxRetries; attempt++ {
		var current *models.Trip
		current, err = p.trips.Read(ctx, tripID)
		if err != nil {
			return err
		}

		if current.Status == models.StatusDeleted {
			slog.Info("Trip deleted during generation, discarding result", "trip_id", tripID)
			return nil
		}

		_, err = p.trips.Update(ctx, tripID, PipelineActor, current.Version, patch)
		if err == nil {
			slog.Info("Generated plan persisted", "trip_id", tripID, "attempts", attempt+1)
			return nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return err
		}

		slog.Warn("Persist lost the CAS slot, re-reading",
			"trip_id", tripID,
			"attempt", attempt+1)
	}
	return fmt.Errorf("exhausted persist retries: %w", err)
}
