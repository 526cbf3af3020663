// Package server exposes probes, metrics, loop status and stored tiles over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/osm-tile-cache/internal/core/middleware"
	"github.com/mohammed-shakir/osm-tile-cache/internal/logger"
)

// StatusReporter is anything with a JSON-encodable status snapshot.
type StatusReporter interface {
	StatusJSON() any
}

// StatusFunc adapts a plain function to StatusReporter.
type StatusFunc func() any

func (f StatusFunc) StatusJSON() any { return f() }

type Options struct {
	Addr   string
	Logger *slog.Logger
	// Tiles, Ready and Status are optional; their routes are only mounted when set.
	Tiles   cache.Reader
	Ready   health.ReadinessReporter
	Status  StatusReporter
	Metrics http.Handler
}

func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Logging(opts.Logger))
	r.Use(middleware.Recover(opts.Logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Observe())

	r.Get("/healthz", health.Liveness())
	if opts.Ready != nil {
		r.Get("/readyz", health.Readiness(opts.Ready))
	}
	mh := opts.Metrics
	if mh == nil {
		mh = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", mh)
	if opts.Status != nil {
		r.Get("/status", handleStatus(opts.Status))
	}
	if opts.Tiles != nil {
		r.Get("/tiles/*", handleTile(opts.Logger, opts.Tiles))
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", opts.Addr)
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

func handleStatus(s StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.StatusJSON())
	}
}

func handleTile(l *slog.Logger, tiles cache.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tile, err := keys.ParseTileKey(chi.URLParam(r, "*"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx := logger.WithTile(r.Context(), tile.String())
		obj, err := tiles.Get(ctx, tile)
		switch {
		case errors.Is(err, cache.ErrNotFound):
			http.Error(w, "tile not cached", http.StatusNotFound)
			return
		case err != nil:
			l.ErrorContext(ctx, "tile read failed", "err", err)
			http.Error(w, "tile store unavailable", http.StatusServiceUnavailable)
			return
		}

		etag := `"` + obj.ETag + `"`
		h := w.Header()
		h.Set("ETag", etag)
		h.Set("Cache-Control", "public, max-age=60")
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		ct := obj.ContentType
		if ct == "" {
			ct = cache.DefaultContentType
		}
		h.Set("Content-Type", ct)
		h.Set("Content-Length", strconv.Itoa(len(obj.Payload)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.Payload)
	}
}
