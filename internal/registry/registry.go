// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the Room Registry (spec C4): for each session
// code, the set of attached endpoints tagged with role and identity, with
// targeted emission to a role or the whole room.
package registry

import "sync"

// Role is an attached endpoint's role within a room.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Outbound is the channel type an attached endpoint drains. It carries
// already-framed protocol payloads (see engine/events_out.go) ready to
// marshal and write to the wire.
type Outbound chan any

// member is one endpoint's registration within a room.
type member struct {
	endpointID string
	role       Role
	name       string
	send       Outbound
}

// room holds every member currently attached to one session code.
type room struct {
	mu      sync.RWMutex
	members map[string]*member // keyed by endpointID
}

// Registry maps session code -> room. Each room has its own lock, matching
// spec §5: "C4's room registry uses per-room locks."
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// SendBufferSize bounds the per-endpoint outbound channel; a slow/wedged
// reader drops events rather than blocking the publisher (mirrors the
// teacher's async event-bus subscribers, which drop on a full buffer).
// Connection handlers should size the channel they pass to Attach with
// this constant.
const SendBufferSize = 64

// Attach registers endpointID in the room for code with the given role and
// identity. send is the endpoint's own outbound channel (owned and drained
// by its connection handler from before the endpoint ever joined a room —
// Attach does not allocate a new one, so replies sent to a not-yet-joined
// endpoint and replies sent post-join arrive on the same channel).
func (r *Registry) Attach(code, endpointID string, role Role, name string, send Outbound) {
	rm := r.roomFor(code)
	rm.mu.Lock()
	rm.members[endpointID] = &member{endpointID: endpointID, role: role, name: name, send: send}
	rm.mu.Unlock()
}

// Detach removes endpointID from code's room. It reports whether the
// detached member was a teacher and whether any teacher remains attached,
// so the caller can decide whether to stop that session's Summary
// Scheduler (spec §4.5.1).
//
// Detach never closes the member's send channel: the channel is owned by
// the endpoint's own connection pump, which keeps writing to it
// (non-blockingly) until it is garbage collected. Closing it here would
// race an in-flight Broadcast/SendToRole/Send from an independent
// goroutine (the evaluator callback, the summary scheduler) against this
// detach, and a send on a closed channel panics regardless of the
// select/default guard in enqueue.
func (r *Registry) Detach(code, endpointID string) (wasTeacher, teachersRemain bool) {
	rm := r.roomFor(code)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	m, ok := rm.members[endpointID]
	if ok {
		delete(rm.members, endpointID)
	}
	wasTeacher = ok && m.role == RoleTeacher
	for _, other := range rm.members {
		if other.role == RoleTeacher {
			teachersRemain = true
			break
		}
	}
	return wasTeacher, teachersRemain
}

// ListRole returns the endpointIDs currently attached under the given role.
func (r *Registry) ListRole(code string, role Role) []string {
	rm := r.roomFor(code)
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	var ids []string
	for id, m := range rm.members {
		if m.role == role {
			ids = append(ids, id)
		}
	}
	return ids
}

// HasRole reports whether at least one endpoint with role is attached.
func (r *Registry) HasRole(code string, role Role) bool {
	rm := r.roomFor(code)
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, m := range rm.members {
		if m.role == role {
			return true
		}
	}
	return false
}

// Broadcast enqueues event on every member of code's room except excludeID
// (pass "" to exclude nobody).
func (r *Registry) Broadcast(code string, event any, excludeID string) {
	rm := r.roomFor(code)
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for id, m := range rm.members {
		if id == excludeID {
			continue
		}
		enqueue(m.send, event)
	}
}

// Send enqueues event for a single attached endpoint. It is a no-op if the
// endpoint is not attached to code's room.
func (r *Registry) Send(code, endpointID string, event any) {
	rm := r.roomFor(code)
	rm.mu.RLock()
	m, ok := rm.members[endpointID]
	rm.mu.RUnlock()
	if ok {
		enqueue(m.send, event)
	}
}

// SendToRole enqueues event on every member of code's room with the given role.
func (r *Registry) SendToRole(code string, role Role, event any) {
	rm := r.roomFor(code)
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, m := range rm.members {
		if m.role == role {
			enqueue(m.send, event)
		}
	}
}

func enqueue(ch Outbound, event any) {
	select {
	case ch <- event:
	default:
		// Slow consumer; drop rather than block the publisher or the
		// per-session mutex holder that triggered this fan-out.
	}
}

func (r *Registry) roomFor(code string) *room {
	r.mu.RLock()
	rm, ok := r.rooms[code]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[code]; ok {
		return rm
	}
	rm = &room{members: make(map[string]*member)}
	r.rooms[code] = rm
	return rm
}
