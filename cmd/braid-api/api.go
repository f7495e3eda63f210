// Package main provides the Braid API server implementation.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/braidflow/braid/pkg/compiler"
	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/monitor"
	"github.com/braidflow/braid/pkg/registry"
	"github.com/braidflow/braid/pkg/services"
	"github.com/braidflow/braid/pkg/storage"
	"github.com/braidflow/braid/pkg/stream"
	"github.com/braidflow/braid/pkg/web"
	"github.com/braidflow/braid/pkg/workflow"
)

const shutdownTimeout = 30 * time.Second

type API struct {
	logger    *slog.Logger
	storage   storage.ExecutionStorage
	registry  *registry.Registry
	eventBus  eventbus.EventBus
	workflows *workflow.Store
}

func NewAPI(
	logger *slog.Logger,
	store storage.ExecutionStorage,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	workflows *workflow.Store,
) *API {
	return &API{
		logger:    logger,
		storage:   store,
		registry:  reg,
		eventBus:  eventBus,
		workflows: workflows,
	}
}

func (a *API) App() *fiber.App {
	comp := compiler.NewCompiler(a.registry, a.logger)
	mon := monitor.NewMonitor(a.logger)

	managerOpts := []execution.Option{execution.WithMonitor(mon)}
	if a.eventBus != nil {
		managerOpts = append(managerOpts, execution.WithEventBus(a.eventBus))
	}

	manager := execution.NewManager(
		comp,
		stream.NewEngine(stream.WithLogger(a.logger)),
		a.storage,
		a.logger,
		managerOpts...,
	)

	executionService := services.NewExecution(manager, comp, a.workflows, mon)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Braid API")
	})

	web.RegisterRoutes(app, web.NewAPIHandlers(executionService, a.registry))

	return app
}

// Start serves the API until a SIGINT or SIGTERM arrives, then drains
// in-flight requests.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		a.logger.InfoContext(ctx, "Received signal, shutting down gracefully", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			a.logger.ErrorContext(ctx, "Failed to shut down server", "error", err)
		}
	}()

	a.logger.InfoContext(ctx, "Starting Braid API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
