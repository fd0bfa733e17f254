package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrsaikumar-7/travvy/logger"
	"github.com/mrsaikumar-7/travvy/src/ai"
	"github.com/mrsaikumar-7/travvy/src/cache"
	"github.com/mrsaikumar-7/travvy/src/config"
	"github.com/mrsaikumar-7/travvy/src/controller"
	"github.com/mrsaikumar-7/travvy/src/db"
	"github.com/mrsaikumar-7/travvy/src/dispatcher"
	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/pipeline"
	"github.com/mrsaikumar-7/travvy/src/rabbitmq"
	"github.com/mrsaikumar-7/travvy/src/repository"
	"github.com/mrsaikumar-7/travvy/src/router"
	"github.com/mrsaikumar-7/travvy/src/service"
	"github.com/mrsaikumar-7/travvy/src/store"
	"github.com/mrsaikumar-7/travvy/src/ws"
)

// Server represents the HTTP server and the background machinery behind it:
// the collaboration session registry, the generation dispatcher and the
// optional AMQP event mirror.
type Server struct {
	config     *config.GlobalConfig
	database   *db.DB
	publisher  *rabbitmq.AMQPPublisher
	registry   *ws.Registry
	collab     *service.CollaborationService
	dispatcher *dispatcher.Dispatcher

	http             *http.Server
	cancelBackground context.CancelFunc
	shutdownHandler  ShutdownHandlerInterface
}

// NewServer creates a new server instance and wires every component.
func NewServer(cfg *config.GlobalConfig) (*Server, error) {
	// Initialize database connection
	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	server := &Server{
		config:   cfg,
		database: database,
	}

	// Event mirroring is optional; local fan-out works without a broker.
	var mirror rabbitmq.Publisher
	if cfg.EventsAMQPURL != "" {
		publisher, err := rabbitmq.NewAMQPPublisher(cfg.EventsAMQPURL)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to connect to event broker: %w", err)
		}
		server.publisher = publisher
		mirror = publisher
	}

	documents := store.NewPostgresStore(database)
	tripCache := cache.NewMemoryCache()
	tripRepo := repository.NewTripRepository(documents, tripCache, cfg.CacheTTL)

	server.registry = ws.NewRegistry(cfg.InactivityWindow, cfg.SweepInterval)
	broadcaster := ws.NewRouter(server.registry, mirror, cfg.EventsExchangeName)

	trips := service.NewTripService(tripRepo, broadcaster)
	server.collab = service.NewCollaborationService(server.registry, broadcaster)

	aiClient := ai.NewClient(cfg.AIServiceURL)
	pipe := pipeline.NewPipeline(
		trips,
		aiClient,
		aiClient,
		aiClient,
		pipeline.NearestNeighborOptimizer{},
		cfg.StageTimeout,
		cfg.PersistMaxRetries,
	)

	server.dispatcher = dispatcher.NewDispatcher(dispatcher.Config{
		WorkerCount:  cfg.WorkerCount,
		MaxRetries:   cfg.JobMaxRetries,
		BackoffBase:  cfg.JobBackoffBase,
		BackoffCap:   cfg.JobBackoffCap,
		JobRetention: cfg.JobRetention,
	}, trips, broadcaster)

	server.dispatcher.RegisterHandler(models.JobKindGeneration,
		func(ctx context.Context, job *models.Job, report dispatcher.ProgressFunc) error {
			return pipe.Run(ctx, job, pipeline.ProgressFunc(report))
		})
	server.dispatcher.RegisterHandler(models.JobKindPurge,
		func(ctx context.Context, job *models.Job, report dispatcher.ProgressFunc) error {
			removed := server.dispatcher.PurgeExpired()
			slog.Info("Purged expired jobs", "removed", removed)
			return nil
		})

	tripController := controller.NewTripController(trips, server.collab, server.dispatcher, logger.Logger)
	jobController := controller.NewJobController(server.dispatcher)

	server.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler: router.NewRouter(tripController, jobController),
	}

	// Create and assign shutdown handler
	server.shutdownHandler = NewShutdownHandler(server)

	return server, nil
}

// Run starts the background workers and the HTTP server with graceful
// shutdown using ShutdownHandler.
func (s *Server) Run() error {
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	background, cancel := context.WithCancel(context.Background())
	s.cancelBackground = cancel

	s.registry.StartSweep(background, s.collab.HandleEviction)
	s.dispatcher.Start(background)
	s.dispatcher.StartMaintenance(background, s.config.JobRetention)

	serverDone := s.startServerGoroutine()

	return s.shutdownHandler.HandleShutdown(serverDone, osSignals)
}

// startServerGoroutine starts the HTTP server in a goroutine and returns a channel for errors
func (s *Server) startServerGoroutine() chan error {
	serverDone := make(chan error, 1)

	go func() {
		slog.Info("Starting trip service",
			"host", s.config.Host,
			"port", s.config.Port,
			"workers", s.config.WorkerCount)

		serverDone <- s.startServer()
	}()

	return serverDone
}

// startServer starts the HTTP server and handles errors
func (s *Server) startServer() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
