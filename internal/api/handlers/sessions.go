// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/classroomlive/sessionengine/internal/apperr"
	"github.com/classroomlive/sessionengine/internal/session"
)

// SchedulerStopper is the one Summary Scheduler operation the HTTP surface
// needs: silencing a session's periodic evaluation pass when it ends via
// the HTTP verb rather than the realtime protocol. Kept as a narrow
// interface so this package does not import internal/scheduler.
type SchedulerStopper interface {
	Stop(code string)
}

// SessionHandler implements the HTTP Surface (spec C7): a thin verb layer
// over the Session Store, projecting the same mutations the realtime
// handlers use. Its interior is glue — every handler below is a direct
// translation of a session.Store method plus the error-kind-to-status
// mapping in internal/apperr.
type SessionHandler struct {
	store     *session.Store
	scheduler SchedulerStopper
}

// NewSessionHandler creates a SessionHandler over store. scheduler may be
// nil in tests that don't exercise End's scheduler-stopping side effect.
func NewSessionHandler(store *session.Store, scheduler SchedulerStopper) *SessionHandler {
	return &SessionHandler{store: store, scheduler: scheduler}
}

// createSessionRequest is the POST /create request body.
type createSessionRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Language    string         `json:"language"`
	InitialCode string         `json:"initialCode"`
	Slides      []session.Slide `json:"slides"`
}

// Create handles POST /create: 201 {success, sessionCode} on success (spec §6).
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	doc, err := h.store.CreateSession(session.NewSessionRequest{
		Title:       req.Title,
		Description: req.Description,
		Language:    req.Language,
		InitialCode: req.InitialCode,
		Slides:      req.Slides,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	WriteSuccess(w, http.StatusCreated, map[string]interface{}{"sessionCode": doc.Code})
}

// Get handles GET /:code.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	doc, err := h.store.Get(code)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]interface{}{"session": doc})
}

// updateSessionRequest is the PUT /:code request body; every field is
// optional, matching session.MetaUpdate's pointer-per-field shape.
type updateSessionRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Language    *string `json:"language"`
	InitialCode *string `json:"initialCode"`
}

// Update handles PUT /:code.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.store.UpdateMeta(code, session.MetaUpdate{
		Title:       req.Title,
		Description: req.Description,
		Language:    req.Language,
		InitialCode: req.InitialCode,
	}); err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, nil)
}

// Delete handles DELETE /:code.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := h.store.Delete(code); err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, nil)
}

// joinRequest is the POST /:code/join request body.
type joinRequest struct {
	Name string `json:"name"`
}

// Join handles POST /:code/join: the HTTP projection of join-session, for
// callers that want to register a student record without holding a
// websocket open yet (e.g. a pre-flight check from the student's landing
// page). It returns the session document (under "session") and a fresh
// reconnect token, as the realtime join-session event also hands out.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		WriteError(w, http.StatusBadRequest, "join requires a non-empty name")
		return
	}

	doc, token, err := h.store.JoinStudent(code, req.Name, "")
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"session":        doc,
		"reconnectToken": token,
	})
}

// End handles PUT /:code/end: marks the session inactive.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := h.store.End(code); err != nil {
		writeErr(w, err)
		return
	}
	if h.scheduler != nil {
		h.scheduler.Stop(code)
	}
	WriteSuccess(w, http.StatusOK, nil)
}

// UpdateSlide handles PUT /:code/slide/:idx.
func (h *SessionHandler) UpdateSlide(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code := vars["code"]
	idx, err := strconv.Atoi(vars["idx"])
	if err != nil {
		WriteError(w, http.StatusBadRequest, "slide index must be an integer")
		return
	}

	index, hasCodeEditor, prompt, err := h.store.SetSlide(code, idx)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"index":         index,
		"hasCodeEditor": hasCodeEditor,
		"prompt":        prompt,
	})
}

// Summaries handles GET /:code/summaries.
func (h *SessionHandler) Summaries(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	summaries, err := h.store.AllSummaries(code)
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]interface{}{"summaries": summaries})
}

// StudentSummary handles GET /:code/students/:name/summaries.
func (h *SessionHandler) StudentSummary(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	summary, err := h.store.StudentSummary(vars["code"], vars["name"])
	if err != nil {
		writeErr(w, err)
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]interface{}{"summary": summary})
}

// writeErr maps a classified apperr.Error (or any other error) to the
// status codes spec §7 calls for: 400/404/403/409 for the classified
// kinds, 500 for anything unexpected.
func writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	WriteError(w, status, err.Error())
}
