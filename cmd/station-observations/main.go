package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	httpapi "github.com/i474232898/station-observations/internal/api/http"
	"github.com/i474232898/station-observations/internal/config"
	"github.com/i474232898/station-observations/internal/logger"
	"github.com/i474232898/station-observations/internal/observation"
	"github.com/i474232898/station-observations/internal/providers"
	"github.com/i474232898/station-observations/internal/scheduler"
	"github.com/i474232898/station-observations/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer lg.Sync()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	synoptic := providers.NewSynopticProvider(httpClient, cfg.SynopticToken,
		providers.WithBaseURL(cfg.SynopticBaseURL), providers.WithLogger(lg))
	utahaq := providers.NewUtahAQProvider(httpClient, cfg.UtahAQToken,
		providers.WithBaseURL(cfg.UtahAQBaseURL), providers.WithLogger(lg))

	// In-memory record of collected series with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxRows, cfg.StoreMaxAge)

	service := observation.NewService(memStore, synoptic, utahaq, lg)

	// Scheduler that periodically collects recent observations.
	sched := scheduler.New(scheduler.Jobs{
		SynopticStations: cfg.SynopticStations,
		SynopticVars:     cfg.SynopticVars,
		UtahAQStations:   cfg.UtahAQStations,
		UtahAQDatatype:   cfg.UtahAQDatatype,
	}, cfg.CollectInterval, service, lg)
	if err := sched.Start(); err != nil {
		lg.Fatal("failed to start scheduler", logger.Error(err))
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "station-observations",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * cfg.HTTPTimeout,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "station-observations",
		})
	})

	httpapi.RegisterRoutes(app, service, httpapi.Limits{ArchiveMaxMonths: cfg.ArchiveMaxMonths})

	go func() {
		lg.Info("http server listening", logger.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			lg.Error("fiber server stopped", logger.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("error during shutdown", logger.Error(err))
	}
}
