// Package server wires the HTTP surface and runs it to completion.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citypulse/viewport-alert-cache/internal/config"
	imw "github.com/citypulse/viewport-alert-cache/internal/middleware"
	"github.com/citypulse/viewport-alert-cache/internal/router"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h *router.Handlers) error {
	r := chi.NewRouter()
	r.Use(imw.Recover())
	r.Use(imw.Logging(logger))
	r.Use(imw.CORS())

	r.Get("/healthz", router.Liveness())
	r.Get("/alerts/viewport", h.Viewport)
	r.Get("/alerts/recent", h.Recent)
	r.Delete("/alerts/cache", h.ClearCache)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
