package router

import (
	"github.com/mrsaikumar-7/travvy/src/controller"
	"github.com/mrsaikumar-7/travvy/src/middleware"

	"github.com/gin-gonic/gin"
	swaggoFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter wires the HTTP surface. Route registration stays thin: all
// behavior lives in the services behind the controllers.
func NewRouter(trips *controller.TripController, jobs *controller.JobController) *gin.Engine {
	r := gin.Default()

	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggoFiles.Handler))

	authed := r.Group("/", middleware.RequireUser())
	{
		authed.POST("/trips", trips.CreateTrip)
		authed.GET("/trips", trips.ListTrips)
		authed.GET("/trips/:id", trips.GetTrip)
		authed.PUT("/trips/:id", trips.UpdateTrip)
		authed.DELETE("/trips/:id", trips.DeleteTrip)
		authed.POST("/trips/:id/duplicate", trips.DuplicateTrip)
		authed.GET("/trips/:id/status", trips.GetTripStatus)
		authed.GET("/trips/:id/presence", trips.GetPresence)
		authed.GET("/jobs/:id", jobs.GetJobStatus)
	}

	return r
}
