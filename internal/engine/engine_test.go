// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomlive/sessionengine/internal/evaluator"
	"github.com/classroomlive/sessionengine/internal/executor"
	"github.com/classroomlive/sessionengine/internal/registry"
	"github.com/classroomlive/sessionengine/internal/session"
)

type fakeScheduler struct {
	running map[string]bool
}

func newFakeScheduler() *fakeScheduler { return &fakeScheduler{running: make(map[string]bool)} }
func (f *fakeScheduler) EnsureRunning(code string) { f.running[code] = true }
func (f *fakeScheduler) Stop(code string)          { f.running[code] = false }

func newTestEngine(t *testing.T) (*Engine, *session.Store, *registry.Registry) {
	t.Helper()
	store := session.NewStore(nil)
	rooms := registry.New()
	exec, err := executor.New(t.TempDir())
	require.NoError(t, err)
	eval := evaluator.New("test-key", "test-model", "http://127.0.0.1:1")
	limiter := evaluator.NewRateLimiter()
	e := New(store, rooms, exec, eval, limiter, newFakeScheduler(), 30*time.Minute, 5*time.Minute)
	return e, store, rooms
}

func newTestConn() *Conn {
	return &Conn{
		id:   "endpoint-1",
		send: make(registry.Outbound, registry.SendBufferSize),
		done: make(chan struct{}),
	}
}

func drain(t *testing.T, c *Conn) any {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatal("expected a reply but channel was empty")
		return nil
	}
}

func createActiveSession(t *testing.T, store *session.Store, code string) {
	t.Helper()
	require.NoError(t, store.Create(&session.Session{
		Code:     code,
		Title:    "Intro to Loops",
		Active:   true,
		Slides:   []session.Slide{{Prompt: "Write a loop", HasCodingTask: true}},
		Students: make(map[string]*session.Student),
	}))
}

func TestHandleJoinSession(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	createActiveSession(t, store, "abcdef")

	c := newTestConn()
	raw, err := json.Marshal(map[string]string{"type": TypeJoinSession, "code": "abcdef", "name": "alice"})
	require.NoError(t, err)

	e.Handle(c, raw)

	sessEv, ok := drain(t, c).(sessionDataEvent)
	require.True(t, ok)
	assert.Equal(t, "abcdef", sessEv.Code)
	assert.NotEmpty(t, sessEv.ReconnectToken)

	slideEv, ok := drain(t, c).(slideChangeEvent)
	require.True(t, ok)
	assert.True(t, slideEv.HasCodeEditor)
	assert.Equal(t, "Write a loop", slideEv.Prompt)

	assert.True(t, rooms.HasRole("abcdef", registry.RoleStudent))

	doc, err := store.Get("abcdef")
	require.NoError(t, err)
	assert.Contains(t, doc.Students, "alice")
}

func TestHandleJoinSession_UnknownCode(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := newTestConn()
	raw, _ := json.Marshal(map[string]string{"type": TypeJoinSession, "code": "zzzzzz", "name": "alice"})

	e.Handle(c, raw)

	errEv, ok := drain(t, c).(errorEvent)
	require.True(t, ok)
	assert.NotEmpty(t, errEv.Message)
}

func TestHandleTeacherJoin_StartsScheduler(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	createActiveSession(t, store, "abcdef")

	c := newTestConn()
	raw, _ := json.Marshal(map[string]string{"type": TypeTeacherJoin, "code": "abcdef", "name": "Ms. T"})
	e.Handle(c, raw)

	_, ok := drain(t, c).(sessionDataEvent)
	require.True(t, ok)
	assert.True(t, rooms.HasRole("abcdef", registry.RoleTeacher))

	sched := e.scheduler.(*fakeScheduler)
	assert.True(t, sched.running["abcdef"])
}

func TestHandleCodeUpdate_StudentBroadcastsToTeacherOnly(t *testing.T) {
	e, store, _ := newTestEngine(t)
	createActiveSession(t, store, "abcdef")

	student := newTestConn()
	student.id = "student-endpoint"
	joinRaw, _ := json.Marshal(map[string]string{"type": TypeJoinSession, "code": "abcdef", "name": "alice"})
	e.Handle(student, joinRaw)
	drain(t, student)
	drain(t, student)

	teacher := newTestConn()
	teacher.id = "teacher-endpoint"
	teacherJoinRaw, _ := json.Marshal(map[string]string{"type": TypeTeacherJoin, "code": "abcdef", "name": "Ms. T"})
	e.Handle(teacher, teacherJoinRaw)
	drain(t, teacher)

	codeUpdateRaw, _ := json.Marshal(map[string]string{"type": TypeCodeUpdate, "code": "print(1)"})
	e.Handle(student, codeUpdateRaw)

	ev := drain(t, teacher)
	codeEv, ok := ev.(studentCodeUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "alice", codeEv.StudentName)
	assert.Equal(t, "print(1)", codeEv.Code)

	doc, err := store.Get("abcdef")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", doc.Students["alice"].Code)
}

func TestHandleUpdateSlide_RequiresTeacher(t *testing.T) {
	e, store, _ := newTestEngine(t)
	createActiveSession(t, store, "abcdef")

	student := newTestConn()
	joinRaw, _ := json.Marshal(map[string]string{"type": TypeJoinSession, "code": "abcdef", "name": "alice"})
	e.Handle(student, joinRaw)
	drain(t, student)
	drain(t, student)

	idx := 0
	payload := map[string]any{"type": TypeUpdateSlide, "slideIndex": &idx}
	raw, _ := json.Marshal(payload)
	e.Handle(student, raw)

	errEv, ok := drain(t, student).(errorEvent)
	require.True(t, ok)
	assert.Contains(t, errEv.Message, "teacher")
}

func TestHandleExecuteCode_RepliesToCaller(t *testing.T) {
	e, store, _ := newTestEngine(t)
	createActiveSession(t, store, "abcdef")

	student := newTestConn()
	joinRaw, _ := json.Marshal(map[string]string{"type": TypeJoinSession, "code": "abcdef", "name": "alice"})
	e.Handle(student, joinRaw)
	drain(t, student)
	drain(t, student)

	raw, _ := json.Marshal(map[string]string{"type": TypeExecuteCode, "code": "print(1)", "language": "unsupported-language"})
	e.Handle(student, raw)

	resEv, ok := drain(t, student).(executionResultEvent)
	require.True(t, ok)
	assert.Contains(t, resEv.Error, "unsupported language")
}

func TestHandleDisconnect_MarksStudentDisconnected(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	createActiveSession(t, store, "abcdef")

	student := newTestConn()
	joinRaw, _ := json.Marshal(map[string]string{"type": TypeJoinSession, "code": "abcdef", "name": "alice"})
	e.Handle(student, joinRaw)
	drain(t, student)
	drain(t, student)

	e.disconnectEndpoint(student)

	doc, err := store.Get("abcdef")
	require.NoError(t, err)
	assert.NotNil(t, doc.Students["alice"].DisconnectedAt)
	assert.False(t, rooms.HasRole("abcdef", registry.RoleStudent))
}

func TestHandleReconnect_RestoresDraft(t *testing.T) {
	e, store, _ := newTestEngine(t)
	createActiveSession(t, store, "abcdef")

	first := newTestConn()
	first.id = "first-endpoint"
	joinRaw, _ := json.Marshal(map[string]string{"type": TypeJoinSession, "code": "abcdef", "name": "alice"})
	e.Handle(first, joinRaw)
	sessEv := drain(t, first).(sessionDataEvent)
	drain(t, first)

	require.NoError(t, store.UpdateStudentCode("abcdef", "alice", "x = 1"))
	e.disconnectEndpoint(first)

	second := newTestConn()
	second.id = "second-endpoint"
	reconnectRaw, _ := json.Marshal(map[string]string{
		"type": TypeReconnectSession, "code": "abcdef", "name": "alice", "token": sessEv.ReconnectToken,
	})
	e.Handle(second, reconnectRaw)

	drain(t, second)
	drain(t, second)
	restoreEv, ok := drain(t, second).(codeRestoreEvent)
	require.True(t, ok)
	assert.Equal(t, "x = 1", restoreEv.Code)

	doc, err := store.Get("abcdef")
	require.NoError(t, err)
	assert.Nil(t, doc.Students["alice"].DisconnectedAt)
}
