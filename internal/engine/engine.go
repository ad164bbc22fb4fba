// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/classroomlive/sessionengine/internal/evaluator"
	"github.com/classroomlive/sessionengine/internal/executor"
	"github.com/classroomlive/sessionengine/internal/registry"
	"github.com/classroomlive/sessionengine/internal/session"
)

// SchedulerManager is the Summary Scheduler's lifecycle as seen by the
// engine: start one the first time a session gets a teacher, stop it once
// the last teacher leaves (spec §4.5/§4.6). Kept as an interface so this
// package does not import internal/scheduler.
type SchedulerManager interface {
	EnsureRunning(code string)
	Stop(code string)
}

// Engine is the Session Engine (spec C5): it owns no state of its own
// beyond endpoint bookkeeping and disconnect-grace timers, deferring to
// the Session Store (C1), Room Registry (C4), Code Executor (C2), and
// Evaluator Client (C3) for everything else.
type Engine struct {
	store     *session.Store
	rooms     *registry.Registry
	exec      *executor.Executor
	eval      *evaluator.Client
	limiter   *evaluator.RateLimiter
	scheduler SchedulerManager

	idleTimeout     time.Duration
	disconnectGrace time.Duration

	graceMu     sync.Mutex
	graceTimers map[string]*time.Timer
}

// New wires an Engine. scheduler may be nil in tests that don't exercise
// the teacher-join/disconnect scheduler lifecycle.
func New(
	store *session.Store,
	rooms *registry.Registry,
	exec *executor.Executor,
	eval *evaluator.Client,
	limiter *evaluator.RateLimiter,
	scheduler SchedulerManager,
	idleTimeout, disconnectGrace time.Duration,
) *Engine {
	return &Engine{
		store:           store,
		rooms:           rooms,
		exec:            exec,
		eval:            eval,
		limiter:         limiter,
		scheduler:       scheduler,
		idleTimeout:     idleTimeout,
		disconnectGrace: disconnectGrace,
		graceTimers:     make(map[string]*time.Timer),
	}
}

// Handle decodes and dispatches one inbound frame from c. A panic inside a
// handler is caught, logged, and surfaced as an error event rather than
// tearing down the endpoint's connection (spec §7).
func (e *Engine) Handle(c *Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: recovered panic handling event: %v\n%s", r, debug.Stack())
			c.Reply(newErrorEvent("internal error"))
		}
	}()

	env, err := decodeInbound(raw)
	if err != nil {
		c.Reply(newErrorEvent("malformed payload"))
		return
	}

	c.resetIdle(e.idleTimeout)

	switch env.Type {
	case TypeJoinSession:
		e.handleJoinSession(c, env)
	case TypeTeacherJoin:
		e.handleTeacherJoin(c, env)
	case TypeReconnectSession:
		e.handleReconnect(c, env)
	case TypeCodeUpdate:
		e.handleCodeUpdate(c, env)
	case TypeUpdateSlide:
		e.handleUpdateSlide(c, env)
	case TypeUpdateSlideData:
		e.handleUpdateSlideData(c, env)
	case TypeExecuteCode:
		e.handleExecuteCode(c, env)
	case TypeDisconnect:
		e.handleDisconnectMessage(c)
	default:
		c.Reply(newErrorEvent("unknown event type: " + env.Type))
	}
}

func (e *Engine) handleJoinSession(c *Conn, env *inboundEnvelope) {
	if _, _, _, joined := c.state(); joined {
		c.Reply(newErrorEvent("endpoint has already joined a session"))
		return
	}
	if env.Code == "" || env.Name == "" {
		c.Reply(newErrorEvent("join-session requires code and name"))
		return
	}

	doc, token, err := e.store.JoinStudent(env.Code, env.Name, c.id)
	if err != nil {
		c.Reply(newErrorEvent(err.Error()))
		return
	}

	e.rooms.Attach(env.Code, c.id, registry.RoleStudent, env.Name, c.send)
	c.setJoined(registry.RoleStudent, env.Code, env.Name)

	c.Reply(newSessionDataEvent(doc, token))
	hasCodeEditor, prompt := doc.CurrentSlideData()
	c.Reply(newSlideChangeEvent(doc.CurrentSlide, hasCodeEditor, prompt))
	e.rooms.Broadcast(env.Code, newUserJoinedEvent(env.Name), c.id)
}

func (e *Engine) handleTeacherJoin(c *Conn, env *inboundEnvelope) {
	if _, _, _, joined := c.state(); joined {
		c.Reply(newErrorEvent("endpoint has already joined a session"))
		return
	}
	if env.Code == "" || env.Name == "" {
		c.Reply(newErrorEvent("teacher-join requires code and name"))
		return
	}

	doc, err := e.store.TeacherJoin(env.Code, c.id)
	if err != nil {
		c.Reply(newErrorEvent(err.Error()))
		return
	}

	e.rooms.Attach(env.Code, c.id, registry.RoleTeacher, env.Name, c.send)
	c.setJoined(registry.RoleTeacher, env.Code, env.Name)

	if e.scheduler != nil {
		e.scheduler.EnsureRunning(env.Code)
	}

	c.Reply(newSessionDataEvent(doc, ""))
}

func (e *Engine) handleReconnect(c *Conn, env *inboundEnvelope) {
	if _, _, _, joined := c.state(); joined {
		c.Reply(newErrorEvent("endpoint has already joined a session"))
		return
	}
	if env.Code == "" || env.Name == "" || env.Token == "" {
		c.Reply(newErrorEvent("reconnect-session requires code, name, and token"))
		return
	}

	doc, draft, err := e.store.ReconnectStudent(env.Code, env.Name, env.Token, c.id)
	if err != nil {
		c.Reply(newErrorEvent(err.Error()))
		return
	}

	e.rooms.Attach(env.Code, c.id, registry.RoleStudent, env.Name, c.send)
	c.setJoined(registry.RoleStudent, env.Code, env.Name)
	e.cancelGraceRemoval(env.Code, env.Name)

	c.Reply(newSessionDataEvent(doc, ""))
	hasCodeEditor, prompt := doc.CurrentSlideData()
	c.Reply(newSlideChangeEvent(doc.CurrentSlide, hasCodeEditor, prompt))
	if draft != "" {
		c.Reply(newCodeRestoreEvent(draft))
	}
}

func (e *Engine) handleCodeUpdate(c *Conn, env *inboundEnvelope) {
	role, code, name, joined := c.state()
	if !joined {
		c.Reply(newErrorEvent("code-update requires an active join"))
		return
	}

	if role == registry.RoleTeacher {
		if err := e.store.UpdateTeacherCode(code, env.Code); err != nil {
			c.Reply(newErrorEvent(err.Error()))
		}
		return
	}

	if err := e.store.UpdateStudentCode(code, name, env.Code); err != nil {
		c.Reply(newErrorEvent(err.Error()))
		return
	}
	e.rooms.SendToRole(code, registry.RoleTeacher, newStudentCodeUpdateEvent(name, env.Code))

	if len(env.Code) > 10 {
		e.evaluateAsync(code, name)
	}
}

// evaluateAsync fires an evaluator call off the hot path of the inbound
// event loop, gated by the per-student RateLimiter. A "null" from the
// limiter (spec's refused-call case) is simply a skip, not an error.
func (e *Engine) evaluateAsync(code, name string) {
	if e.eval == nil || e.limiter == nil {
		return
	}
	if !e.limiter.Allow(code, name) {
		return
	}

	doc, err := e.store.Get(code)
	if err != nil {
		return
	}
	st, ok := doc.Students[name]
	if !ok {
		return
	}
	_, prompt := doc.CurrentSlideData()
	draft := st.Code

	go func() {
		result := e.eval.Evaluate(context.Background(), prompt, draft)
		summary := session.Summary{Progress: session.Progress(result.Progress), Feedback: result.Feedback}
		if err := e.store.RecordStudentSummary(code, name, summary); err != nil {
			// Student vanished since the call was issued: discard per
			// spec's "evaluation that completes after the student has
			// disconnected is discarded" edge case.
			return
		}
		e.rooms.SendToRole(code, registry.RoleTeacher, newStudentSummaryUpdateEvent(name, summary))
	}()
}

func (e *Engine) handleUpdateSlide(c *Conn, env *inboundEnvelope) {
	role, code, _, joined := c.state()
	if !joined {
		c.Reply(newErrorEvent("update-slide requires an active join"))
		return
	}
	if role != registry.RoleTeacher {
		c.Reply(newErrorEvent("only the teacher may update the slide"))
		return
	}
	if env.SlideIndex == nil {
		c.Reply(newErrorEvent("update-slide requires slideIndex"))
		return
	}

	index, hasCodeEditor, prompt, err := e.store.SetSlide(code, *env.SlideIndex)
	if err != nil {
		c.Reply(newErrorEvent(err.Error()))
		return
	}
	e.rooms.Broadcast(code, newSlideChangeEvent(index, hasCodeEditor, prompt), "")
}

func (e *Engine) handleUpdateSlideData(c *Conn, env *inboundEnvelope) {
	role, code, _, joined := c.state()
	if !joined {
		c.Reply(newErrorEvent("update-slide-data requires an active join"))
		return
	}
	if role != registry.RoleTeacher {
		c.Reply(newErrorEvent("only the teacher may update slide data"))
		return
	}
	if err := e.store.SetSlideData(code, env.Slides, env.SlidesWithCode); err != nil {
		c.Reply(newErrorEvent(err.Error()))
	}
}

func (e *Engine) handleExecuteCode(c *Conn, env *inboundEnvelope) {
	role, code, name, joined := c.state()
	if !joined {
		c.Reply(newErrorEvent("execute-code requires an active join"))
		return
	}

	result := e.exec.Execute(context.Background(), env.Language, env.Code)

	// A failed run carries its error message in the result text too, after
	// whatever the program printed before failing.
	output := result.Stdout
	if result.Error != "" {
		if output != "" {
			output += "\n"
		}
		output += result.Error
	}

	if role == registry.RoleStudent {
		record := session.Execution{Result: output, Error: result.Error, Timestamp: time.Now()}
		if err := e.store.RecordExecution(code, name, record); err != nil {
			log.Printf("engine: record execution: %v", err)
		}
		e.rooms.SendToRole(code, registry.RoleTeacher, newStudentExecutionResultEvent(name, output, result.Error))
	}

	c.Reply(newExecutionResultEvent(output, result.Error))
}

func (e *Engine) handleDisconnectMessage(c *Conn) {
	e.disconnectEndpoint(c)
	c.ws.Close()
}

// forceIdleDisconnect is invoked by a Conn's idle timer after 30 minutes of
// silence (spec §4.5: "every inbound event resets a 30-minute idle timer on
// that endpoint; expiry forces a disconnect").
func (e *Engine) forceIdleDisconnect(c *Conn) {
	e.disconnectEndpoint(c)
	c.ws.Close()
}

// disconnectEndpoint implements §4.5.1. It is idempotent: both the
// explicit "disconnect" event and the connection's own close path call it,
// and only the first call has any effect.
func (e *Engine) disconnectEndpoint(c *Conn) {
	c.disconnectOnce.Do(func() {
		role, code, name, joined := c.state()
		if !joined {
			return
		}

		_, teachersRemain := e.rooms.Detach(code, c.id)
		e.rooms.Broadcast(code, newUserLeftEvent(name), "")

		if role == registry.RoleTeacher {
			if !teachersRemain && e.scheduler != nil {
				e.scheduler.Stop(code)
			}
			return
		}

		if err := e.store.MarkStudentDisconnected(code, name); err != nil {
			log.Printf("engine: mark disconnected: %v", err)
			return
		}
		e.scheduleGraceRemoval(code, name)
	})
}

func graceKey(code, name string) string { return code + "\x00" + name }

func (e *Engine) scheduleGraceRemoval(code, name string) {
	key := graceKey(code, name)
	timer := time.AfterFunc(e.disconnectGrace, func() {
		removed, err := e.store.RemoveStudentIfStillDisconnected(code, name)
		if err != nil {
			log.Printf("engine: grace removal for %s/%s: %v", code, name, err)
		}
		if removed {
			e.rooms.Broadcast(code, newUserLeftEvent(name), "")
		}
		e.graceMu.Lock()
		delete(e.graceTimers, key)
		e.graceMu.Unlock()
	})

	e.graceMu.Lock()
	if old, ok := e.graceTimers[key]; ok {
		old.Stop()
	}
	e.graceTimers[key] = timer
	e.graceMu.Unlock()
}

// cancelGraceRemoval stops a pending removal task after a successful
// reconnect within the grace window.
func (e *Engine) cancelGraceRemoval(code, name string) {
	key := graceKey(code, name)
	e.graceMu.Lock()
	timer, ok := e.graceTimers[key]
	if ok {
		delete(e.graceTimers, key)
	}
	e.graceMu.Unlock()
	if ok {
		timer.Stop()
	}
}

// Shutdown cancels every pending disconnect-grace timer (spec §5
// "Graceful shutdown: ... cancel all grace timers").
func (e *Engine) Shutdown() {
	e.graceMu.Lock()
	defer e.graceMu.Unlock()
	for key, timer := range e.graceTimers {
		timer.Stop()
		delete(e.graceTimers, key)
	}
}
