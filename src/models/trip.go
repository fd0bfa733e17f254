package models

import "time"

// TripStatus represents the lifecycle status of a trip document
type TripStatus string

const (
	StatusPlanning         TripStatus = "planning"
	StatusGenerating       TripStatus = "generating"
	StatusFailedGeneration TripStatus = "failed-generation"
	StatusConfirmed        TripStatus = "confirmed"
	StatusInProgress       TripStatus = "in_progress"
	StatusCompleted        TripStatus = "completed"
	StatusCancelled        TripStatus = "cancelled"
	StatusDeleted          TripStatus = "deleted"
)

// CollaboratorRole represents the role of a collaborator on a trip
type CollaboratorRole string

const (
	RoleOwner  CollaboratorRole = "owner"
	RoleEditor CollaboratorRole = "editor"
	RoleViewer CollaboratorRole = "viewer"
)

// Permissions granted to collaborators
const (
	PermissionRead        = "read"
	PermissionWrite       = "write"
	PermissionDelete      = "delete"
	PermissionCollaborate = "collaborate"
)

// Collaborator represents a user's membership on a trip
type Collaborator struct {
	Role        CollaboratorRole `json:"role"`
	Permissions []string         `json:"permissions"`
	JoinedAt    time.Time        `json:"joined_at"`
}

// Destination describes where a trip goes
type Destination struct {
	Name        string  `json:"name"`
	PlaceID     string  `json:"place_id"`
	Country     string  `json:"country"`
	City        string  `json:"city"`
	Coordinates *LatLng `json:"coordinates,omitempty"`
}

// LatLng is a geographic coordinate pair
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TripDates holds the date range of a trip
type TripDates struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Duration  int    `json:"duration"`
	Flexible  bool   `json:"flexible"`
}

// Budget holds the trip budget and its breakdown
type Budget struct {
	Currency  string             `json:"currency"`
	Total     float64            `json:"total"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// TripMetadata groups the descriptive fields of a trip
type TripMetadata struct {
	Title       string         `json:"title"`
	Destination Destination    `json:"destination"`
	Dates       TripDates      `json:"dates"`
	Travelers   map[string]int `json:"travelers"`
	Budget      Budget         `json:"budget"`
}

// ItineraryActivity is a single planned activity within a day
type ItineraryActivity struct {
	Name      string  `json:"name"`
	PlaceID   string  `json:"place_id,omitempty"`
	StartTime string  `json:"start_time,omitempty"`
	EndTime   string  `json:"end_time,omitempty"`
	Cost      float64 `json:"cost,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	Location  *LatLng `json:"location,omitempty"`
}

// ItineraryDay is one day of a trip's itinerary
type ItineraryDay struct {
	Day        int                 `json:"day"`
	Date       string              `json:"date,omitempty"`
	Activities []ItineraryActivity `json:"activities"`
}

// Hotel is a hotel recommendation attached to a trip
type Hotel struct {
	Name          string  `json:"name"`
	PlaceID       string  `json:"place_id,omitempty"`
	PricePerNight float64 `json:"price_per_night"`
	Rating        float64 `json:"rating,omitempty"`
	Address       string  `json:"address,omitempty"`
}

// AIGeneration records metadata about the AI content of a trip
type AIGeneration struct {
	Model          string     `json:"model,omitempty"`
	Confidence     float64    `json:"confidence"`
	GenerationTime string     `json:"generation_time,omitempty"`
	GeneratedAt    *time.Time `json:"generated_at,omitempty"`
}

// Trip is the shared trip document. It is mutated only through the trip
// service's compare-and-swap path and is never deleted physically; deletion
// transitions Status to StatusDeleted.
type Trip struct {
	TripID        string                  `json:"trip_id"`
	Version       int                     `json:"version"`
	Status        TripStatus              `json:"status"`
	CreatedBy     string                  `json:"created_by"`
	Collaborators map[string]Collaborator `json:"collaborators"`
	Metadata      TripMetadata            `json:"metadata"`
	Itinerary     []ItineraryDay          `json:"itinerary"`
	Hotels        []Hotel                 `json:"hotels"`
	AIGeneration  AIGeneration            `json:"ai_generation"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	DeletedAt     *time.Time              `json:"deleted_at,omitempty"`
	DeletedBy     string                  `json:"deleted_by,omitempty"`
}

// OwnerCollaborator builds the collaborator entry given to a trip's creator.
func OwnerCollaborator(now time.Time) Collaborator {
	return Collaborator{
		Role:        RoleOwner,
		Permissions: []string{PermissionRead, PermissionWrite, PermissionDelete, PermissionCollaborate},
		JoinedAt:    now,
	}
}
