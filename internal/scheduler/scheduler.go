// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scheduler implements the Summary Scheduler (spec C6): a
// per-session cooperative task that periodically batches evaluator calls
// over students with in-progress drafts and fans the results out to
// teachers only.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/classroomlive/sessionengine/internal/evaluator"
	"github.com/classroomlive/sessionengine/internal/registry"
	"github.com/classroomlive/sessionengine/internal/session"
)

const (
	batchSize  = 5
	batchYield = 5 * time.Second
)

// Manager owns one background goroutine per session code that currently
// has a teacher attached. It satisfies engine.SchedulerManager.
type Manager struct {
	store   *session.Store
	rooms   *registry.Registry
	eval    *evaluator.Client
	limiter *evaluator.RateLimiter
	tick    time.Duration

	mu    sync.Mutex
	tasks map[string]context.CancelFunc
}

// New creates a Manager. tick is the per-session wakeup interval (spec's
// literal 30s, exposed here as SUMMARY_INTERVAL_SEC).
func New(store *session.Store, rooms *registry.Registry, eval *evaluator.Client, limiter *evaluator.RateLimiter, tick time.Duration) *Manager {
	return &Manager{
		store:   store,
		rooms:   rooms,
		eval:    eval,
		limiter: limiter,
		tick:    tick,
		tasks:   make(map[string]context.CancelFunc),
	}
}

// EnsureRunning starts code's periodic pass if one is not already running.
// Safe to call repeatedly (e.g. every teacher-join) — a second call on an
// already-running session is a no-op.
func (m *Manager) EnsureRunning(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.tasks[code]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.tasks[code] = cancel
	go m.run(ctx, code)
}

// Stop cancels code's periodic pass, if any (spec §4.5.1: stop the
// scheduler once no teacher remains attached).
func (m *Manager) Stop(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.tasks[code]; ok {
		cancel()
		delete(m.tasks, code)
	}
}

// StopAll cancels every running pass (spec §5 graceful shutdown: "stop all
// schedulers").
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, cancel := range m.tasks {
		cancel()
		delete(m.tasks, code)
	}
}

func (m *Manager) run(ctx context.Context, code string) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pass(ctx, code)
		}
	}
}

// pass runs one evaluation sweep: snapshot students with in-progress
// drafts, evaluate in batches of 5 with a 5s yield between batches, persist
// and broadcast each result. Failures on one student never abort the pass
// (spec §4.6).
func (m *Manager) pass(ctx context.Context, code string) {
	active, err := m.sessionActive(code)
	if err != nil {
		log.Printf("scheduler: load %s: %v", code, err)
		return
	}
	if !active {
		// Ended via the HTTP surface (or otherwise) between ticks: no
		// further student-summary-update events for this session, even if
		// this pass's own teacher-left Stop() hasn't landed yet.
		return
	}

	students, err := m.store.SnapshotStudentsWithCode(code)
	if err != nil {
		log.Printf("scheduler: snapshot %s: %v", code, err)
		return
	}
	if len(students) == 0 {
		return
	}

	prompt := m.currentPrompt(code)

	count := 0
	for name, st := range students {
		if ctx.Err() != nil {
			return
		}
		if !m.limiter.Allow(code, name) {
			continue
		}

		result := m.eval.Evaluate(ctx, prompt, st.Code)
		summary := session.Summary{Progress: session.Progress(result.Progress), Feedback: result.Feedback}
		if err := m.store.RecordStudentSummary(code, name, summary); err != nil {
			log.Printf("scheduler: record summary for %s/%s: %v", code, name, err)
			continue
		}
		m.rooms.SendToRole(code, registry.RoleTeacher, summaryUpdate{name: name, summary: summary})

		count++
		if count%batchSize == 0 {
			select {
			case <-time.After(batchYield):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Manager) currentPrompt(code string) string {
	var prompt string
	_ = m.store.View(code, func(doc *session.Session) {
		_, prompt = doc.CurrentSlideData()
	})
	return prompt
}

// sessionActive reports whether code's session document is still active.
func (m *Manager) sessionActive(code string) (bool, error) {
	var active bool
	err := m.store.View(code, func(doc *session.Session) {
		active = doc.Active
	})
	if err != nil {
		return false, err
	}
	return active, nil
}

// summaryUpdate is the outbound student-summary-update payload. It is
// defined here because internal/engine's event types are unexported; the
// scheduler emits the same wire shape independently of any particular
// connection's event-in/event-out types.
type summaryUpdate struct {
	name    string
	summary session.Summary
}

// MarshalJSON renders summaryUpdate in the student-summary-update shape
// from spec §6: {type, studentName, summary:{progress,feedback}, timestamp}.
func (s summaryUpdate) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type        string          `json:"type"`
		StudentName string          `json:"studentName"`
		Summary     session.Summary `json:"summary"`
		Timestamp   time.Time       `json:"timestamp"`
	}
	return json.Marshal(wire{
		Type:        "student-summary-update",
		StudentName: s.name,
		Summary:     s.summary,
		Timestamp:   time.Now(),
	})
}
