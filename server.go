package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
	pl "lautenbacher.net/gogate/platform"
)

const (
	shutdownTimeout    = 2 * time.Second
	// upper bound for GET /api/status?wait=1
	statusWaitTimeout  = 30 * time.Second
	statusPollInterval = 200 * time.Millisecond
)

func (a *App) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/api/config", c.ConfigHandler(a.config.Configfile))
	r.Get("/api/status", a.statusHandler)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return r
}

func (a *App) startServer() {
	a.server = &http.Server{
		Addr:              a.config.Web.Listen,
		Handler:           a.newRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		slog.Info("Web server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web server failed", "error", err)
		}
	}()
}

func (a *App) stopServer() {
	if a.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		slog.Warn("Web server shutdown", "error", err)
	}
}

// statusHandler serves the status of every gate keyed by gate name.
// With ?wait=1 it answers once the local gate status differs from the one
// seen on arrival. The status wakeup is a single slot, so it only speeds up
// one waiter; every waiter also polls.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") != "" {
		if o, ok := a.gates[pl.LocalGate]; ok {
			if !waitForChange(r.Context(), o) && r.Context().Err() != nil {
				return
			}
		}
	}

	status := make(map[string]gate.Status, len(a.gates))
	for name, o := range a.gates {
		status[name] = o.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("Failed to encode status", "error", err)
	}
}

// waitForChange blocks until the status of o moves away from its current
// value. It reports false on timeout or when ctx ends.
func waitForChange(ctx context.Context, o *gate.Orchestrator) bool {
	seen := o.Status()
	timeout := time.NewTimer(statusWaitTimeout)
	defer timeout.Stop()
	poll := time.NewTicker(statusPollInterval)
	defer poll.Stop()
	for {
		select {
		case <-o.StatusEvents():
		case <-poll.C:
		case <-timeout.C:
			return false
		case <-ctx.Done():
			return false
		}
		if o.Status() != seen {
			return true
		}
	}
}
