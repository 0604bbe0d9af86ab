package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/hlspublish/internal/api/handler"
	"github.com/hszk-dev/hlspublish/internal/api/middleware"
	"github.com/hszk-dev/hlspublish/internal/config"
	"github.com/hszk-dev/hlspublish/internal/usecase"
)

// drainTimeout bounds the wait for cancelled uploads to clean up. It covers
// the transcoder's kill grace period.
const drainTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.SlogLevel(),
	}))
	slog.SetDefault(logger)

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           setupRouter(cfg, logger, app),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		// Request contexts derive from ctx so a forced shutdown reaches
		// every running pipeline and its ffmpeg process.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.Int("port", cfg.Server.Port),
			slog.String("storage_driver", cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	if err := shutdown(srv, cancel, app.uploads, cfg.Server.ShutdownTimeout, logger); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// shutdown stops accepting requests and waits up to timeout for in-flight
// uploads, each of which runs its pipeline on the request goroutine. Uploads
// still running after that have their contexts cancelled, which kills ffmpeg,
// and shutdown waits for their cleanup before returning.
func shutdown(srv *http.Server, cancelRequests context.CancelFunc, uploads usecase.UploadService, timeout time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err == nil {
		return nil
	}

	logger.Warn("shutdown timeout exceeded, cancelling in-flight uploads", slog.String("error", err.Error()))
	cancelRequests()
	_ = srv.Close()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if drainErr := uploads.Drain(drainCtx); drainErr != nil {
		logger.Error("in-flight uploads did not finish cleanup", slog.String("error", drainErr.Error()))
		return errors.Join(fmt.Errorf("server shutdown error: %w", err), drainErr)
	}
	logger.Info("in-flight uploads cancelled and cleaned up")
	return fmt.Errorf("server shutdown error: %w", err)
}

func setupRouter(cfg *config.Config, logger *slog.Logger, app *app) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger, "/health", "/metrics"))
	r.Use(middleware.Recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	uploadHandler := handler.NewUploadHandler(app.uploads, cfg.Pipeline.MaxUploadBytes)
	jobHandler := handler.NewJobHandler(app.jobs)
	healthHandler := handler.NewHealthHandler(app.checks)

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/upload", uploadHandler.Upload)
	r.Handle("/hls/*", http.StripPrefix("/hls", handler.HLSFiles(cfg.Pipeline.HLSDir)))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/uploads", uploadHandler.Upload)
		r.Get("/jobs/{id}", jobHandler.Get)
	})

	return r
}
