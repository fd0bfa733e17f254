package controller

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mrsaikumar-7/travvy/src/dispatcher"
	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/schemas"

	"github.com/gin-gonic/gin"
)

type JobController struct {
	Dispatcher *dispatcher.Dispatcher
}

func NewJobController(d *dispatcher.Dispatcher) *JobController {
	return &JobController{Dispatcher: d}
}

// JobStatusResponse is the polling surface for background jobs
type JobStatusResponse struct {
	JobID    string          `json:"job_id"`
	State    models.JobState `json:"state"`
	Stage    models.JobStage `json:"stage"`
	Progress int             `json:"progress"`
	Error    string          `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// @Summary Get job status
// @Description Returns the state, stage and progress of a background job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} JobStatusResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Router /jobs/{id} [get]
func (jc *JobController) GetJobStatus(ctx *gin.Context) {
	jobID := ctx.Param("id")
	instance := "/jobs/" + jobID

	job, err := jc.Dispatcher.Status(jobID)
	if errors.Is(err, models.ErrJobNotFound) {
		ctx.JSON(http.StatusNotFound, schemas.NewNotFoundError("job not found", instance))
		return
	}
	if err != nil {
		slog.Error("Failed to load job status", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, schemas.NewInternalError("Failed to load job status", instance))
		return
	}

	ctx.JSON(http.StatusOK, JobStatusResponse{
		JobID:    job.JobID,
		State:    job.State,
		Stage:    job.Stage,
		Progress: job.Progress,
		Error:    job.LastError,
		Result:   job.Result,
	})
}
