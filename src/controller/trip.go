package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mrsaikumar-7/travvy/src/dispatcher"
	"github.com/mrsaikumar-7/travvy/src/middleware"
	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/schemas"
	"github.com/mrsaikumar-7/travvy/src/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type TripController struct {
	Trips      *service.TripService
	Collab     *service.CollaborationService
	Dispatcher *dispatcher.Dispatcher
	Logger     *logrus.Logger
}

func NewTripController(trips *service.TripService, collab *service.CollaborationService, d *dispatcher.Dispatcher, logger *logrus.Logger) *TripController {
	return &TripController{
		Trips:      trips,
		Collab:     collab,
		Dispatcher: d,
		Logger:     logger,
	}
}

func (c *TripController) sendError(ctx *gin.Context, resp *schemas.ErrorResponse) {
	ctx.JSON(resp.Status, resp)
	c.Logger.Error(resp.Title + ": " + resp.Detail)
}

// CreateTripRequest represents the body of a trip creation request
type CreateTripRequest struct {
	Destination string          `json:"destination" binding:"required"`
	StartDate   string          `json:"start_date" binding:"required"`
	EndDate     string          `json:"end_date" binding:"required"`
	Budget      float64         `json:"budget"`
	Currency    string          `json:"currency"`
	Travelers   map[string]int  `json:"travelers"`
	Preferences json.RawMessage `json:"preferences"`
	Context     json.RawMessage `json:"context"`
}

// CreateTripResponse returns the new trip and its generation job
type CreateTripResponse struct {
	TripID string            `json:"trip_id"`
	JobID  string            `json:"job_id"`
	Status models.TripStatus `json:"status"`
}

// @Summary Create a trip
// @Description Creates a trip document and enqueues its generation job
// @Tags trips
// @Accept json
// @Produce json
// @Param CreateTripRequest body CreateTripRequest true "Create Trip Request"
// @Success 201 {object} CreateTripResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /trips [post]
func (c *TripController) CreateTrip(ctx *gin.Context) {
	userID := middleware.UserID(ctx)

	var req CreateTripRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.sendError(ctx, schemas.NewBadRequestError("Invalid JSON format: "+err.Error(), "/trips"))
		return
	}

	meta := models.TripMetadata{
		Title:       "Trip to " + req.Destination,
		Destination: models.Destination{Name: req.Destination},
		Dates:       models.TripDates{StartDate: req.StartDate, EndDate: req.EndDate},
		Travelers:   req.Travelers,
		Budget:      models.Budget{Currency: req.Currency, Total: req.Budget},
	}

	trip, err := c.Trips.Create(ctx.Request.Context(), userID, meta, models.StatusGenerating)
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to create trip", "/trips"))
		return
	}

	jobID, err := c.Dispatcher.Enqueue(trip.TripID, models.GenerationPayload{
		UserID:      userID,
		Preferences: req.Preferences,
		Context:     req.Context,
	}, models.PriorityHigh)
	if errors.Is(err, models.ErrJobAlreadyActive) {
		c.sendError(ctx, schemas.JobAlreadyActiveError(
			"a generation job is already running for this trip", "/trips"))
		return
	}
	if err != nil {
		// No job will ever move this trip out of generating; fail it so
		// pollers see a terminal status.
		failed := models.StatusFailedGeneration
		if _, patchErr := c.Trips.Update(ctx.Request.Context(), trip.TripID, userID, trip.Version,
			service.TripPatch{Status: &failed}); patchErr != nil {
			c.Logger.Error("Failed to mark trip failed-generation after enqueue error: " + patchErr.Error())
		}
		c.sendError(ctx, schemas.NewInternalError("Failed to enqueue generation job", "/trips"))
		return
	}

	ctx.JSON(http.StatusCreated, CreateTripResponse{
		TripID: trip.TripID,
		JobID:  jobID,
		Status: trip.Status,
	})
}

// ListTripsResponse is the listing surface for a user's trips
type ListTripsResponse struct {
	Trips []*models.Trip `json:"trips"`
	Count int            `json:"count"`
}

// @Summary List the caller's trips
// @Description Returns the trips the user created or collaborates on
// @Tags trips
// @Produce json
// @Success 200 {object} ListTripsResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /trips [get]
func (c *TripController) ListTrips(ctx *gin.Context) {
	userID := middleware.UserID(ctx)

	trips, err := c.Trips.ListForUser(ctx.Request.Context(), userID)
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to list trips", "/trips"))
		return
	}
	if trips == nil {
		trips = []*models.Trip{}
	}

	ctx.JSON(http.StatusOK, ListTripsResponse{Trips: trips, Count: len(trips)})
}

// @Summary Get a trip
// @Tags trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} models.Trip
// @Failure 403 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Router /trips/{id} [get]
func (c *TripController) GetTrip(ctx *gin.Context) {
	tripID := ctx.Param("id")
	userID := middleware.UserID(ctx)
	instance := "/trips/" + tripID

	if !c.requireAccess(ctx, tripID, userID, instance) {
		return
	}

	trip, err := c.Trips.Read(ctx.Request.Context(), tripID)
	if errors.Is(err, models.ErrTripNotFound) {
		c.sendError(ctx, schemas.NewNotFoundError("trip not found", instance))
		return
	}
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to load trip", instance))
		return
	}

	ctx.JSON(http.StatusOK, trip)
}

// UpdateTripRequest carries a versioned patch. Version is the version the
// client last read; a stale version is rejected with 409.
type UpdateTripRequest struct {
	Version   int                    `json:"version" binding:"required"`
	Metadata  *models.TripMetadata   `json:"metadata"`
	Itinerary *[]models.ItineraryDay `json:"itinerary"`
	Hotels    *[]models.Hotel        `json:"hotels"`
	Status    *models.TripStatus     `json:"status"`
}

// @Summary Update a trip
// @Description Applies a patch with optimistic concurrency control
// @Tags trips
// @Accept json
// @Produce json
// @Param id path string true "Trip ID"
// @Param UpdateTripRequest body UpdateTripRequest true "Update Trip Request"
// @Success 200 {object} models.Trip
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 403 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 409 {object} schemas.ErrorResponse
// @Router /trips/{id} [put]
func (c *TripController) UpdateTrip(ctx *gin.Context) {
	tripID := ctx.Param("id")
	userID := middleware.UserID(ctx)
	instance := "/trips/" + tripID

	var req UpdateTripRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.sendError(ctx, schemas.NewBadRequestError("Invalid JSON format: "+err.Error(), instance))
		return
	}

	canEdit, err := c.Trips.HasEditAccess(ctx.Request.Context(), tripID, userID)
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to check access", instance))
		return
	}
	if !canEdit {
		c.sendError(ctx, schemas.NewForbiddenError("user cannot edit this trip", instance))
		return
	}

	trip, err := c.Trips.Update(ctx.Request.Context(), tripID, userID, req.Version, service.TripPatch{
		Metadata:  req.Metadata,
		Itinerary: req.Itinerary,
		Hotels:    req.Hotels,
		Status:    req.Status,
	})
	if errors.Is(err, models.ErrVersionConflict) {
		c.sendError(ctx, schemas.VersionConflictError(
			"trip was modified by another user; re-fetch and retry with the current version", instance))
		return
	}
	if errors.Is(err, models.ErrTripNotFound) {
		c.sendError(ctx, schemas.NewNotFoundError("trip not found", instance))
		return
	}
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to update trip", instance))
		return
	}

	ctx.JSON(http.StatusOK, trip)
}

// @Summary Delete a trip
// @Description Soft-deletes a trip; an in-flight generation job's result is
// discarded at persist time.
// @Tags trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Router /trips/{id} [delete]
func (c *TripController) DeleteTrip(ctx *gin.Context) {
	tripID := ctx.Param("id")
	userID := middleware.UserID(ctx)
	instance := "/trips/" + tripID

	canEdit, err := c.Trips.HasEditAccess(ctx.Request.Context(), tripID, userID)
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to check access", instance))
		return
	}
	if !canEdit {
		c.sendError(ctx, schemas.NewForbiddenError("user cannot delete this trip", instance))
		return
	}

	if err := c.Trips.SoftDelete(ctx.Request.Context(), tripID, userID); err != nil {
		if errors.Is(err, models.ErrTripNotFound) {
			c.sendError(ctx, schemas.NewNotFoundError("trip not found", instance))
			return
		}
		c.sendError(ctx, schemas.NewInternalError("Failed to delete trip", instance))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "deleted", "trip_id": tripID})
}

// @Summary Duplicate a trip
// @Tags trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 201 {object} models.Trip
// @Failure 403 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Router /trips/{id}/duplicate [post]
func (c *TripController) DuplicateTrip(ctx *gin.Context) {
	tripID := ctx.Param("id")
	userID := middleware.UserID(ctx)
	instance := "/trips/" + tripID + "/duplicate"

	if !c.requireAccess(ctx, tripID, userID, instance) {
		return
	}

	duplicate, err := c.Trips.Duplicate(ctx.Request.Context(), tripID, userID)
	if errors.Is(err, models.ErrTripNotFound) {
		c.sendError(ctx, schemas.NewNotFoundError("trip not found", instance))
		return
	}
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to duplicate trip", instance))
		return
	}

	ctx.JSON(http.StatusCreated, duplicate)
}

// @Summary Get trip processing status
// @Tags trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} service.TripStatusInfo
// @Failure 404 {object} schemas.ErrorResponse
// @Router /trips/{id}/status [get]
func (c *TripController) GetTripStatus(ctx *gin.Context) {
	tripID := ctx.Param("id")
	userID := middleware.UserID(ctx)
	instance := "/trips/" + tripID + "/status"

	if !c.requireAccess(ctx, tripID, userID, instance) {
		return
	}

	info, err := c.Trips.Status(ctx.Request.Context(), tripID)
	if errors.Is(err, models.ErrTripNotFound) {
		c.sendError(ctx, schemas.NewNotFoundError("trip not found", instance))
		return
	}
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to load trip status", instance))
		return
	}

	ctx.JSON(http.StatusOK, info)
}

// @Summary List active collaborators
// @Tags trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} map[string][]string
// @Failure 403 {object} schemas.ErrorResponse
// @Router /trips/{id}/presence [get]
func (c *TripController) GetPresence(ctx *gin.Context) {
	tripID := ctx.Param("id")
	userID := middleware.UserID(ctx)
	instance := "/trips/" + tripID + "/presence"

	if !c.requireAccess(ctx, tripID, userID, instance) {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"active_users": c.Collab.ActiveUsers(tripID),
		"sessions":     c.Collab.ActiveSessions(tripID),
	})
}

func (c *TripController) requireAccess(ctx *gin.Context, tripID, userID, instance string) bool {
	hasAccess, err := c.Trips.HasAccess(ctx.Request.Context(), tripID, userID)
	if err != nil {
		c.sendError(ctx, schemas.NewInternalError("Failed to check access", instance))
		return false
	}
	if !hasAccess {
		c.sendError(ctx, schemas.NewForbiddenError("user does not have access to this trip", instance))
		return false
	}
	return true
}
