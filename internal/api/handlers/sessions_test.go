// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomlive/sessionengine/internal/session"
)

type fakeScheduler struct {
	stopped map[string]bool
}

func newFakeScheduler() *fakeScheduler { return &fakeScheduler{stopped: make(map[string]bool)} }

func (f *fakeScheduler) Stop(code string) { f.stopped[code] = true }

func newTestRouter(store *session.Store) *mux.Router {
	return newTestRouterWithScheduler(store, newFakeScheduler())
}

func newTestRouterWithScheduler(store *session.Store, sched SchedulerStopper) *mux.Router {
	h := NewSessionHandler(store, sched)
	r := mux.NewRouter()
	r.HandleFunc("/create", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/{code}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/{code}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/{code}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/{code}/join", h.Join).Methods(http.MethodPost)
	r.HandleFunc("/{code}/end", h.End).Methods(http.MethodPut)
	r.HandleFunc("/{code}/slide/{idx}", h.UpdateSlide).Methods(http.MethodPut)
	r.HandleFunc("/{code}/summaries", h.Summaries).Methods(http.MethodGet)
	r.HandleFunc("/{code}/students/{name}/summaries", h.StudentSummary).Methods(http.MethodGet)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreate_Returns201WithSessionCode(t *testing.T) {
	router := newTestRouter(session.NewStore(nil))

	reqBody, _ := json.Marshal(map[string]string{"title": "Intro to Loops"})
	req := httptest.NewRequest(http.MethodPost, "/create", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["sessionCode"], 6)
}

func TestGet_NotFoundReturns404(t *testing.T) {
	router := newTestRouter(session.NewStore(nil))

	req := httptest.NewRequest(http.MethodGet, "/zzzzzz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
}

func TestJoin_ThenGetReflectsStudent(t *testing.T) {
	store := session.NewStore(nil)
	router := newTestRouter(store)

	createBody, _ := json.Marshal(map[string]string{"title": "Intro"})
	createReq := httptest.NewRequest(http.MethodPost, "/create", bytes.NewReader(createBody))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	code := decodeBody(t, createRec)["sessionCode"].(string)

	joinBody, _ := json.Marshal(map[string]string{"name": "alice"})
	joinReq := httptest.NewRequest(http.MethodPost, "/"+code+"/join", bytes.NewReader(joinBody))
	joinRec := httptest.NewRecorder()
	router.ServeHTTP(joinRec, joinReq)
	require.Equal(t, http.StatusOK, joinRec.Code)
	joinResp := decodeBody(t, joinRec)
	assert.NotEmpty(t, joinResp["reconnectToken"])

	getReq := httptest.NewRequest(http.MethodGet, "/"+code, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	getResp := decodeBody(t, getRec)
	sess := getResp["session"].(map[string]interface{})
	students := sess["students"].(map[string]interface{})
	assert.Contains(t, students, "alice")
}

func TestEnd_MarksSessionInactive(t *testing.T) {
	store := session.NewStore(nil)
	router := newTestRouter(store)

	doc, err := store.CreateSession(session.NewSessionRequest{Title: "Intro"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/"+doc.Code+"/end", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	fresh, err := store.Get(doc.Code)
	require.NoError(t, err)
	assert.False(t, fresh.Active)
}

func TestEnd_StopsSummaryScheduler(t *testing.T) {
	store := session.NewStore(nil)
	sched := newFakeScheduler()
	router := newTestRouterWithScheduler(store, sched)

	doc, err := store.CreateSession(session.NewSessionRequest{Title: "Intro"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/"+doc.Code+"/end", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, sched.stopped[doc.Code])
}

func TestUpdateSlide_OutOfRangeReturns400(t *testing.T) {
	store := session.NewStore(nil)
	router := newTestRouter(store)
	doc, err := store.CreateSession(session.NewSessionRequest{Title: "Intro"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/"+doc.Code+"/slide/9", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaries_EmptyWhenNoneEvaluated(t *testing.T) {
	store := session.NewStore(nil)
	router := newTestRouter(store)
	doc, err := store.CreateSession(session.NewSessionRequest{Title: "Intro"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/"+doc.Code+"/summaries", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Empty(t, resp["summaries"])
}

func TestDelete_ThenGetReturns404(t *testing.T) {
	store := session.NewStore(nil)
	router := newTestRouter(store)
	doc, err := store.CreateSession(session.NewSessionRequest{Title: "Intro"})
	require.NoError(t, err)

	delReq := httptest.NewRequest(http.MethodDelete, "/"+doc.Code, nil)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusOK, delRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/"+doc.Code, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}
