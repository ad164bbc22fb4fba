// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api wires the HTTP Surface (spec C7) and the realtime websocket
// endpoint onto a single gorilla/mux router.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/classroomlive/sessionengine/internal/api/handlers"
	"github.com/classroomlive/sessionengine/internal/api/middleware"
	"github.com/classroomlive/sessionengine/internal/engine"
	"github.com/classroomlive/sessionengine/internal/session"
)

// ServerConfig holds the address the API server binds to.
type ServerConfig struct {
	Host string
	Port int
}

// Dependencies holds every dependency the router's handlers need.
type Dependencies struct {
	Store     *session.Store
	Engine    *engine.Engine
	Scheduler handlers.SchedulerStopper
}

// NewRouter builds the full route table: the realtime websocket endpoint
// plus the HTTP CRUD verbs over session documents (spec §4.7/§6).
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	// Realtime endpoint: one websocket connection per endpoint (teacher or
	// student), driven entirely by the Session Engine's state machine.
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		engine.ServeWS(deps.Engine, w, req)
	}).Methods(http.MethodGet)

	sessionHandler := handlers.NewSessionHandler(deps.Store, deps.Scheduler)
	r.HandleFunc("/create", sessionHandler.Create).Methods(http.MethodPost)
	r.HandleFunc("/{code}", sessionHandler.Get).Methods(http.MethodGet)
	r.HandleFunc("/{code}", sessionHandler.Update).Methods(http.MethodPut)
	r.HandleFunc("/{code}", sessionHandler.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/{code}/join", sessionHandler.Join).Methods(http.MethodPost)
	r.HandleFunc("/{code}/end", sessionHandler.End).Methods(http.MethodPut)
	r.HandleFunc("/{code}/slide/{idx}", sessionHandler.UpdateSlide).Methods(http.MethodPut)
	r.HandleFunc("/{code}/summaries", sessionHandler.Summaries).Methods(http.MethodGet)
	r.HandleFunc("/{code}/students/{name}/summaries", sessionHandler.StudentSummary).Methods(http.MethodGet)

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"success":true}`))
}

// Server wraps an http.Server bound to the router above.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a Server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	return &Server{
		router: NewRouter(deps),
		cfg:    cfg,
	}
}

// Router returns the underlying router (for tests).
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	log.Printf("API server listening on http://%s", addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Println("Shutting down API server...")
	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}
