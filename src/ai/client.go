package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/pipeline"
)

// Client calls the generation provider service over HTTP. The provider's
// content is opaque to this service; responses are only shaped into the
// pipeline's typed stage results and validated there.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a provider client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

type itineraryRequest struct {
	Payload  models.GenerationPayload `json:"payload"`
	Metadata models.TripMetadata      `json:"metadata"`
}

// GenerateItinerary implements pipeline.ItineraryProvider.
func (c *Client) GenerateItinerary(ctx context.Context, payload models.GenerationPayload, meta models.TripMetadata) (*pipeline.ItineraryDraft, error) {
	var draft pipeline.ItineraryDraft
	if err := c.postJSON(ctx, "/v1/itinerary/generate", itineraryRequest{Payload: payload, Metadata: meta}, &draft); err != nil {
		return nil, fmt.Errorf("failed to generate itinerary: %w", err)
	}
	return &draft, nil
}

type enrichRequest struct {
	Draft       *pipeline.ItineraryDraft `json:"draft"`
	Destination models.Destination       `json:"destination"`
}

// EnrichPlaces implements pipeline.PlacesProvider.
func (c *Client) EnrichPlaces(ctx context.Context, draft *pipeline.ItineraryDraft, destination models.Destination) (*pipeline.EnrichedItinerary, error) {
	var enriched pipeline.EnrichedItinerary
	if err := c.postJSON(ctx, "/v1/places/enrich", enrichRequest{Draft: draft, Destination: destination}, &enriched); err != nil {
		return nil, fmt.Errorf("failed to enrich places: %w", err)
	}
	return &enriched, nil
}

type hotelsRequest struct {
	Destination models.Destination `json:"destination"`
	Budget      models.Budget      `json:"budget"`
}

// RecommendHotels implements pipeline.HotelProvider.
func (c *Client) RecommendHotels(ctx context.Context, destination models.Destination, budget models.Budget) (*pipeline.HotelRecommendations, error) {
	var hotels pipeline.HotelRecommendations
	if err := c.postJSON(ctx, "/v1/hotels/recommend", hotelsRequest{Destination: destination, Budget: budget}, &hotels); err != nil {
		return nil, fmt.Errorf("failed to recommend hotels: %w", err)
	}
	return &hotels, nil
}

// postJSON performs a POST with a JSON body and decodes the JSON response.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	postBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(postBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request to ai-service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ai-service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
