// Package server exposes matching over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const DefaultShutdownTimeout = 10 * time.Second

type Deps struct {
	Matcher  Matcher
	Projects ProjectStore
	Matches  MatchReader
	// DB is optional; without it /health only reports the process is up.
	DB       Pinger
	// Cache is optional and never fails /health.
	Cache    Pinger
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

func New(deps Deps) *fiber.App {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{AppName: "collab-matcher"})
	app.Use(accessLog(log))
	app.Use(errorMiddleware(log))

	app.Get("/health", healthHandler{db: deps.DB, cache: deps.Cache}.Check)
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1")
	NewMatchHandler(deps.Matcher, deps.Projects, deps.Matches).RegisterRoutes(api)

	return app
}

// Run serves until ctx is cancelled, then shuts down within timeout.
func Run(ctx context.Context, app *fiber.App, addr string, timeout time.Duration, log *zap.Logger) error {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	log.Info("http server listening", zap.String("address", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		log.Info("http server shutting down")
		return app.ShutdownWithContext(shutdownCtx)
	}
}
