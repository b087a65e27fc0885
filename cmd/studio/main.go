package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/studio-booking/docs"
	"github.com/kirinyoku/studio-booking/internal/app"
	"github.com/kirinyoku/studio-booking/internal/config"
)

// @title Studio booking API
// @version 1.0
// @description Programme editions, yoga events and registrations.
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger()

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
