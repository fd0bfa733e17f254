package pipeline

import (
	"context"
	"errors"
	"math"

	"github.com/mrsaikumar-7/travvy/src/models"
)

// Stage outputs are typed and validated at the stage boundary. Providers
// return opaque AI/third-party content shaped into these structs; anything
// that fails validation fails the stage.

// ItineraryDraft is the output of the itinerary generation stage.
type ItineraryDraft struct {
	Days       []models.ItineraryDay `json:"days"`
	Model      string                `json:"model"`
	Confidence float64               `json:"confidence"`
}

// Validate checks the draft at the stage boundary.
func (d *ItineraryDraft) Validate() error {
	if len(d.Days) == 0 {
		return errors.New("itinerary draft has no days")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return errors.New("itinerary draft confidence out of range")
	}
	return nil
}

// EnrichedItinerary is the draft after place-detail enrichment.
type EnrichedItinerary struct {
	Days []models.ItineraryDay `json:"days"`
}

// Validate checks the enrichment preserved the day structure.
func (e *EnrichedItinerary) Validate() error {
	if len(e.Days) == 0 {
		return errors.New("enriched itinerary has no days")
	}
	return nil
}

// HotelRecommendations is the output of the hotel stage.
type HotelRecommendations struct {
	Hotels []models.Hotel `json:"hotels"`
}

// Validate checks the recommendations at the stage boundary.
func (h *HotelRecommendations) Validate() error {
	for _, hotel := range h.Hotels {
		if hotel.Name == "" {
			return errors.New("hotel recommendation missing name")
		}
		if hotel.PricePerNight < 0 {
			return errors.New("hotel recommendation has negative price")
		}
	}
	return nil
}

// OptimizedPlan is the final plan the persist stage writes to the trip.
type OptimizedPlan struct {
	Days   []models.ItineraryDay `json:"days"`
	Hotels []models.Hotel        `json:"hotels"`
}

// Validate checks the optimized plan at the stage boundary.
func (p *OptimizedPlan) Validate() error {
	if len(p.Days) == 0 {
		return errors.New("optimized plan has no days")
	}
	return nil
}

// ItineraryProvider generates the base itinerary from the trip context.
type ItineraryProvider interface {
	GenerateItinerary(ctx context.Context, payload models.GenerationPayload, meta models.TripMetadata) (*ItineraryDraft, error)
}

// PlacesProvider enriches a draft with place details.
type PlacesProvider interface {
	EnrichPlaces(ctx context.Context, draft *ItineraryDraft, destination models.Destination) (*EnrichedItinerary, error)
}

// HotelProvider recommends hotels for the destination and budget.
type HotelProvider interface {
	RecommendHotels(ctx context.Context, destination models.Destination, budget models.Budget) (*HotelRecommendations, error)
}

// Optimizer orders the enriched plan. Implementations are pure computations
// and safe to re-run.
type Optimizer interface {
	Optimize(ctx context.Context, itinerary *EnrichedItinerary, hotels *HotelRecommendations) (*OptimizedPlan, error)
}

// NearestNeighborOptimizer reorders each day's activities by geographic
// proximity, greedily walking from the first activity to its nearest
// unvisited neighbor. Activities without coordinates keep their position at
// the end of the day.
type NearestNeighborOptimizer struct{}

// Optimize implements Optimizer.
func (NearestNeighborOptimizer) Optimize(ctx context.Context, itinerary *EnrichedItinerary, hotels *HotelRecommendations) (*OptimizedPlan, error) {
	days := make([]models.ItineraryDay, len(itinerary.Days))
	for i, day := range itinerary.Days {
		days[i] = day
		days[i].Activities = orderByProximity(day.Activities)
	}
	return &OptimizedPlan{Days: days, Hotels: hotels.Hotels}, nil
}

func orderByProximity(activities []models.ItineraryActivity) []models.ItineraryActivity {
	var located []models.ItineraryActivity
	var unlocated []models.ItineraryActivity
	for _, a := range activities {
		if a.Location != nil {
			located = append(located, a)
		} else {
			unlocated = append(unlocated, a)
		}
	}
	if len(located) < 2 {
		return activities
	}

	ordered := []models.ItineraryActivity{located[0]}
	used := make([]bool, len(located))
	used[0] = true
	for len(ordered) < len(located) {
		last := ordered[len(ordered)-1]
		minDist := math.MaxFloat64
		minIndex := -1
		for j, a := range located {
			if used[j] {
				continue
			}
			dx := last.Location.Latitude - a.Location.Latitude
			dy := last.Location.Longitude - a.Location.Longitude
			dist := dx*dx + dy*dy
			if dist < minDist {
				minDist = dist
				minIndex = j
			}
		}
		if minIndex < 0 {
			break
		}
		used[minIndex] = true
		ordered = append(ordered, located[minIndex])
	}
	return append(ordered, unlocated...)
}
