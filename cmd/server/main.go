package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fileforge/fileforge/internal/app"
	"github.com/fileforge/fileforge/internal/config"
	"github.com/fileforge/fileforge/internal/http/handler"
	"github.com/fileforge/fileforge/pkg/observability"
)

const serviceName = "fileforge"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lp, logger, err := observability.InitLogger(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown logger provider", "error", err)
		}
	}()
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown tracer provider", "error", err)
		}
	}()

	mp, err := observability.InitMeterProvider(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init meter provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown meter provider", "error", err)
		}
	}()

	slog.InfoContext(ctx, "starting fileforge service", "env", cfg.Env)

	application, closeApp, err := app.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := closeApp(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shut down application", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handler.New(application).Routes(mux)
	instrumented := otelhttp.NewHandler(mux, serviceName)

	port := os.Getenv("FILEFORGE_HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           instrumented,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errResult := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errResult <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.WarnContext(shutdownCtx, "HTTP server shutdown timed out, forcing close", "error", err)
			_ = srv.Close()
		}
		return nil
	case err := <-errResult:
		return err
	}
}
