// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the session engine's components into a runnable
// process: config load, component construction, HTTP server start, and
// graceful shutdown — the teacher's internal/app.App shape (New / Start /
// Run / Shutdown / Stop), generalized to this server's components.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/classroomlive/sessionengine/internal/api"
	"github.com/classroomlive/sessionengine/internal/api/middleware"
	"github.com/classroomlive/sessionengine/internal/config"
	"github.com/classroomlive/sessionengine/internal/engine"
	"github.com/classroomlive/sessionengine/internal/evaluator"
	"github.com/classroomlive/sessionengine/internal/executor"
	"github.com/classroomlive/sessionengine/internal/registry"
	"github.com/classroomlive/sessionengine/internal/scheduler"
	"github.com/classroomlive/sessionengine/internal/session"
)

// Options holds the command-line overrides main accepts.
type Options struct {
	Host    string
	Port    int
	Version string
}

// App is the main application container: the process-wide instances of
// every component in spec §2's table (C1-C6) plus the HTTP server (C7)
// that fronts them.
type App struct {
	mu sync.Mutex

	cfg *config.Config

	store     *session.Store
	rooms     *registry.Registry
	exec      *executor.Executor
	eval      *evaluator.Client
	limiter   *evaluator.RateLimiter
	scheduler *scheduler.Manager
	engine    *engine.Engine
	apiServer *api.Server

	reaperDone chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

// New loads configuration and constructs every component, wiring C1-C6 into
// the Engine exactly as spec §2's data-flow paragraph describes.
func New(opts Options) (*App, error) {
	cfg := config.NewLoader().Load()
	if opts.Port > 0 {
		cfg.Port = opts.Port
	}
	if cfg.CORSOrigin != "" {
		middleware.AllowedOrigin = cfg.CORSOrigin
	}

	store := session.NewStore(session.NoopKV{})
	rooms := registry.New()

	exec, err := executor.New(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}

	eval := evaluator.New(cfg.LMAPIKey, cfg.LMModelName, "")
	limiter := evaluator.NewRateLimiter()

	sched := scheduler.New(store, rooms, eval, limiter, cfg.SummaryInterval)

	eng := engine.New(store, rooms, exec, eval, limiter, sched, cfg.IdleTimeout, cfg.DisconnectGrace)

	apiServer := api.NewServer(api.ServerConfig{Host: opts.Host, Port: cfg.Port}, api.Dependencies{
		Store:     store,
		Engine:    eng,
		Scheduler: sched,
	})

	return &App{
		cfg:        cfg,
		store:      store,
		rooms:      rooms,
		exec:       exec,
		eval:       eval,
		limiter:    limiter,
		scheduler:  sched,
		engine:     eng,
		apiServer:  apiServer,
		reaperDone: make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start launches the rate-limiter reaper and the HTTP server's accept loop
// in the background. It returns once the server is listening or failed to
// start.
func (a *App) Start(ctx context.Context) error {
	a.limiter.StartReaper(a.reaperDone)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.apiServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Run starts the app and blocks until a shutdown signal, context
// cancellation, or an explicit Stop() call, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-ctx.Done():
		log.Printf("Context cancelled, shutting down...")
	case <-a.done:
		log.Printf("Shutdown requested...")
	}

	return a.Shutdown(context.Background())
}

// Shutdown tears the components down in dependency order: it shuts down
// the HTTP server, stops all summary schedulers, cancels all grace timers,
// stops the rate-limiter reaper, and flushes the sandbox temp directory.
// Open websocket endpoints are not closed here: http.Server.Shutdown does
// not close hijacked connections, and the engine keeps no list of them.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}

	a.scheduler.StopAll()
	a.engine.Shutdown()
	close(a.reaperDone)

	if err := a.exec.Close(); err != nil {
		log.Printf("Error flushing sandbox scratch dir: %v", err)
	}

	return nil
}

// Stop requests an asynchronous shutdown; Run's select picks it up. Safe to
// call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
}
