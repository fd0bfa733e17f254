package models

import (
	"encoding/json"
	"time"
)

// JobStage represents one step of the generation pipeline's state machine
type JobStage string

const (
	StageInit                JobStage = "INIT"
	StageItineraryDraft      JobStage = "ITINERARY_DRAFT"
	StagePlacesEnrichment    JobStage = "PLACES_ENRICHMENT"
	StageHotelRecommendation JobStage = "HOTEL_RECOMMENDATION"
	StageOptimize            JobStage = "OPTIMIZE"
	StagePersist             JobStage = "PERSIST"
	StageComplete            JobStage = "COMPLETE"
	StageFailed              JobStage = "FAILED"
)

// JobState is the coarse state exposed on the polling surface
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobPriority selects the dispatcher lane a job runs in
type JobPriority int

const (
	PriorityLow  JobPriority = 0
	PriorityHigh JobPriority = 10
)

// GenerationPayload is the input a generation job carries: the preferences
// and conversation context gathered when the trip was created. The content
// is opaque to the dispatcher; only the pipeline interprets it.
type GenerationPayload struct {
	UserID      string          `json:"user_id"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// Job is a background unit of work executed by the dispatcher. It carries
// its stage, attempt count and progress explicitly so retry and backoff are
// scheduler decisions rather than side effects.
type Job struct {
	JobID     string            `json:"job_id"`
	TripID    string            `json:"trip_id"`
	Kind      string            `json:"kind"`
	Priority  JobPriority       `json:"priority"`
	State     JobState          `json:"state"`
	Stage     JobStage          `json:"stage"`
	Progress  int               `json:"progress"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
	Payload   GenerationPayload `json:"payload"`
	Result    json.RawMessage   `json:"result,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// GenerationResult summarizes a completed generation job: the trip it
// wrote and the version and status that write produced. Stored on the job
// as its Result for the polling surface.
type GenerationResult struct {
	TripID      string     `json:"trip_id"`
	TripVersion int        `json:"trip_version"`
	TripStatus  TripStatus `json:"trip_status"`
}

// Job kinds routed by the dispatcher
const (
	JobKindGeneration = "trip_generation"
	JobKindPurge      = "purge_expired_jobs"
)
