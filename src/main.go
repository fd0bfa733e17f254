package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/mrsaikumar-7/travvy/logger"
	"github.com/mrsaikumar-7/travvy/src/config"
	"github.com/mrsaikumar-7/travvy/src/server"
)

// @title Travvy Trip Service API
// @version 1.0
// @description Collaborative trip planning service with versioned trip documents and AI-assisted itinerary generation

// @contact.name   Travvy Team
// @contact.url    https://github.com/mrsaikumar-7/travvy
// @contact.email  support@travvy.app

func main() {
	cfg := loadConfig()
	setupLogging(cfg.LogLevel)
	logger.Init(cfg.LogLevel)

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Run(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() *config.GlobalConfig {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func setupLogging(level string) {
	slogLevel := slog.LevelInfo
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel,
	})
	slog.SetDefault(slog.New(handler))
}
