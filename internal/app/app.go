// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/album-list/internal/api"
	"github.com/JakeFAU/album-list/internal/clock/system"
	"github.com/JakeFAU/album-list/internal/config"
	collyfetcher "github.com/JakeFAU/album-list/internal/fetcher/colly"
	"github.com/JakeFAU/album-list/internal/id/uuid"
	"github.com/JakeFAU/album-list/internal/jsonp"
	"github.com/JakeFAU/album-list/internal/logging"
	"github.com/JakeFAU/album-list/internal/page"
	"github.com/JakeFAU/album-list/internal/telemetry"
)

// App holds the shared services built once at startup: the logger, the
// callback client and the page controller.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	controller *page.Controller
	tracer     *sdktrace.TracerProvider
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetController returns the page controller.
func (a *App) GetController() *page.Controller {
	return a.controller
}

// NewServer builds the HTTP front over the controller.
func (a *App) NewServer() *api.Server {
	return api.NewServer(a.controller, a.cfg.Page, a.logger.Named("api"))
}

// Close flushes spans and the logger.
func (a *App) Close() {
	if err := a.tracer.Shutdown(context.Background()); err != nil {
		a.logger.Warn("trace provider shutdown", zap.Error(err))
	}
	_ = a.logger.Sync() // stderr sync fails on some platforms
}

// NewApp builds the services described by cfg. A nil logger means one is
// built from cfg.Logging.
func NewApp(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	tp, err := telemetry.InitTracerProvider(context.Background(), telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		RespectRobots: cfg.Fetch.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	client := jsonp.NewClient(fetcher, uuid.New(), system.New(), logger.Named("jsonp"))
	controller := page.NewController(page.Config{
		BaseURL:      cfg.Endpoint.BaseURL,
		CallbackName: cfg.Endpoint.CallbackName,
		Timeout:      cfg.FetchTimeout(),
	}, client, logger.Named("page"))

	logger.Info("application services initialized",
		zap.String("endpoint", cfg.Endpoint.BaseURL),
		zap.Duration("timeout", cfg.FetchTimeout()),
	)
	return &App{cfg: cfg, logger: logger, controller: controller, tracer: tp}, nil
}
