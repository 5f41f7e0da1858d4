package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/orcamento-import/internal/domain/document"
	importhandler "github.com/FACorreiaa/orcamento-import/internal/domain/import/handler"
	importservice "github.com/FACorreiaa/orcamento-import/internal/domain/import/service"
	"github.com/FACorreiaa/orcamento-import/pkg/config"
	"github.com/FACorreiaa/orcamento-import/pkg/interceptors"
	"github.com/FACorreiaa/orcamento-import/pkg/observability"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Sources   *config.SourceStore
	Extractor document.Extractor

	// Services
	ImportService *importservice.ImportService

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initSources(); err != nil {
		return nil, fmt.Errorf("failed to init sources: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initSources loads the per-source parsing options
func (d *Dependencies) initSources() error {
	sources, err := config.LoadSources(d.Config.Sources.Path)
	if err != nil {
		return err
	}
	d.Sources = sources

	d.Logger.Info("sources loaded",
		slog.String("path", d.Config.Sources.Path),
		slog.Any("ids", sources.IDs()),
	)
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	if d.Config.Observability.MetricsEnabled {
		d.Metrics = observability.NewMetrics()
	}

	d.Extractor = document.NewPDFExtractor(d.Logger)

	d.ImportService = importservice.NewImportService(d.Sources, d.Extractor, d.Logger).
		WithMetrics(d.Metrics)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Config.Server.MaxUploadBytes(), d.Logger)

	d.Logger.Info("handlers initialized")
}

// Router mounts every route and wraps the mux with the middleware chain.
func (d *Dependencies) Router() http.Handler {
	mux := http.NewServeMux()
	d.ImportHandler.Register(mux)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	srv := d.Config.Server
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: srv.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", interceptors.RequestIDHeader},
		ExposedHeaders: []string{interceptors.RequestIDHeader},
	})

	return interceptors.Chain(mux,
		interceptors.Recovery(d.Logger),
		corsHandler.Handler,
		interceptors.RequestID,
		interceptors.Logging(d.Logger, d.Metrics),
		interceptors.RateLimit(rate.NewLimiter(rate.Limit(srv.RateLimitPerSecond), srv.RateLimitBurst)),
	)
}

// Cleanup releases resources held by the dependencies
func (d *Dependencies) Cleanup() {
	d.Logger.Info("cleanup completed")
}
