// Package app assembles the dashboard server: configuration, logging,
// telemetry, services, the chi router and the websocket hub, plus the
// process lifecycle around them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"epipulse/internal/config"
	"epipulse/internal/dataprocessing"
	apierrors "epipulse/internal/errors"
	"epipulse/internal/infrastructure"
	custommw "epipulse/internal/middleware"
	"epipulse/internal/services"
	"epipulse/internal/simulation"
	handlers "epipulse/internal/transport/http"
	ws "epipulse/internal/websocket"
)

// Application is the dashboard server container
type Application struct {
	Config         *config.Config
	Logger         *slog.Logger
	Telemetry      *infrastructure.Telemetry
	Router         *chi.Mux
	Server         *http.Server
	Hub            *ws.Hub
	DatasetService *services.DatasetService
	HealthService  *services.HealthService
}

// NewApplication builds a fully wired application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := infrastructure.InitializeLogger(cfg.Logging)

	telemetry, err := infrastructure.InitializeTelemetry(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	hub := ws.NewHub(logger)

	datasetService := services.NewDatasetService(
		simulation.NewGenerator(logger),
		dataprocessing.NewCleaner(logger),
		dataprocessing.NewAggregator(logger),
		dataprocessing.NewDecoder(logger, cfg.Upload.MaxRecords),
		hub,
		logger,
	)

	a := &Application{
		Config:         cfg,
		Logger:         logger,
		Telemetry:      telemetry,
		Hub:            hub,
		DatasetService: datasetService,
		HealthService:  services.NewHealthService(),
	}
	a.setupRouter()

	a.Server = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.HTTPMetrics(a.Telemetry, a.Logger))

	if a.Config.Security.EnableCORS {
		r.Use(custommw.CORS(custommw.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
		}))
	}
	if a.Config.Security.RateLimit.Enabled {
		r.Use(custommw.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	r.Use(custommw.Session)

	errorHandler := apierrors.NewErrorHandler(a.Logger)
	datasetHandler := handlers.NewDatasetHandler(a.DatasetService, a.Logger, errorHandler, a.Config.Upload.MaxBytes)
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", healthHandler.HealthCheck)
		r.Get("/healthz/ready", healthHandler.ReadinessCheck)
		r.Get("/healthz/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		r.Mount("/", datasetHandler.Routes())
	})

	if a.Telemetry != nil && a.Telemetry.PrometheusHTTP != nil {
		r.Handle("/metrics", a.Telemetry.PrometheusHTTP)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin:     a.checkWSOrigin,
	}
	r.Get("/ws", a.Hub.ServeWS(upgrader, func(req *http.Request) string {
		return custommw.GetSessionID(req.Context())
	}))

	a.Router = r
}

// checkWSOrigin allows websocket upgrades from the configured origins
func (a *Application) checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.Config.Security.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Run starts the server and the websocket hub, blocking until a
// shutdown signal arrives or a component fails.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.Hub.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		a.Logger.Info("server listening",
			slog.String("addr", a.Server.Addr),
			slog.String("version", services.Version))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if a.Telemetry != nil {
			if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
				a.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	return g.Wait()
}
