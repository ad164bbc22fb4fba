// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/classroomlive/sessionengine/internal/apperr"
)

// NewSessionRequest is the teacher-supplied payload for creating a session
// (spec §4.7 "POST /create").
type NewSessionRequest struct {
	Title       string
	Description string
	Language    string
	InitialCode string
	Slides      []Slide
}

// CreateSession draws a fresh session code, builds the initial document,
// and inserts it — the HTTP surface's projection of the same Create(doc)
// operation spec C1 describes.
func (s *Store) CreateSession(req NewSessionRequest) (*Session, error) {
	code, err := s.NewSessionCode()
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "generate session code", err)
	}

	now := time.Now()
	doc := &Session{
		Code:         code,
		Title:        req.Title,
		Description:  req.Description,
		Language:     req.Language,
		InitialCode:  req.InitialCode,
		CurrentCode:  req.InitialCode,
		Slides:       req.Slides,
		CurrentSlide: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
		Active:       true,
		Students:     make(map[string]*Student),
	}
	if err := s.Create(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// MetaUpdate carries an HTTP PUT /:code's editable top-level fields (spec
// §4.7's "direct projection of the mutations above" — the same fields a
// teacher's realtime session carries, minus the ones only mutated via the
// realtime protocol: slides, currentSlide, students).
type MetaUpdate struct {
	Title       *string
	Description *string
	Language    *string
	InitialCode *string
}

// UpdateMeta applies non-nil fields from upd to the session.
func (s *Store) UpdateMeta(code string, upd MetaUpdate) error {
	return s.Update(code, func(doc *Session) error {
		if upd.Title != nil {
			doc.Title = *upd.Title
		}
		if upd.Description != nil {
			doc.Description = *upd.Description
		}
		if upd.Language != nil {
			doc.Language = *upd.Language
		}
		if upd.InitialCode != nil {
			doc.InitialCode = *upd.InitialCode
		}
		doc.UpdatedAt = time.Now()
		return nil
	})
}

// End marks the session inactive (spec §4.7 "PUT /:code/end"): no new joins
// succeed afterward, but existing endpoints may still receive terminal
// notifications (spec §3 invariant).
func (s *Store) End(code string) error {
	return s.Update(code, func(doc *Session) error {
		doc.Active = false
		doc.UpdatedAt = time.Now()
		return nil
	})
}

// StudentSummary returns the named student's current summary, or NotFound
// if the student does not exist. A nil Summary means the student has not
// yet been evaluated.
func (s *Store) StudentSummary(code, name string) (*Summary, error) {
	var summary *Summary
	var found bool
	err := s.View(code, func(doc *Session) {
		if st, ok := doc.Students[name]; ok {
			found = true
			summary = st.Summary
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.New(apperr.NotFound, "student not found: "+name)
	}
	if summary == nil {
		return nil, nil
	}
	return summary, nil
}

// AllSummaries returns every student's summary keyed by name (spec §4.7
// "GET /:code/summaries"). Students with no summary yet are omitted.
func (s *Store) AllSummaries(code string) (map[string]Summary, error) {
	out := make(map[string]Summary)
	err := s.View(code, func(doc *Session) {
		for name, st := range doc.Students {
			if st.Summary != nil {
				out[name] = *st.Summary
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// JoinStudent creates or overwrites the named Student's record (spec §4.5
// join-session): a fresh reconnectToken, socketEndpointId = endpointID, and
// a refreshed lastActive. It returns the generated token — the one piece of
// the document the caller (the Session Engine) must hand back to the
// endpoint but which is never serialized in a Clone (Student.ReconnectToken
// is json:"-").
func (s *Store) JoinStudent(code, name, endpointID string) (*Session, string, error) {
	token, err := NewReconnectToken()
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Transient, "generate reconnect token", err)
	}

	now := time.Now()
	err = s.Update(code, func(doc *Session) error {
		if !doc.Active {
			return apperr.New(apperr.Validation, "session is not active")
		}
		doc.Students[name] = &Student{
			JoinedAt:         now,
			SocketEndpointID: endpointID,
			LastActive:       now,
			ReconnectToken:   token,
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	doc, err := s.Get(code)
	if err != nil {
		return nil, "", err
	}
	return doc, token, nil
}

// TeacherJoin records the teacher's endpoint on the session document (spec
// §4.5 teacher-join).
func (s *Store) TeacherJoin(code, endpointID string) (*Session, error) {
	err := s.Update(code, func(doc *Session) error {
		if !doc.Active {
			return apperr.New(apperr.Validation, "session is not active")
		}
		doc.TeacherEndpointID = endpointID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(code)
}

// ReconnectStudent validates the supplied token against the named student's
// record and, on success, re-attaches the endpoint, clears disconnectedAt,
// and stamps reconnectedAt (spec §4.5 reconnect-session).
func (s *Store) ReconnectStudent(code, name, token, endpointID string) (*Session, string, error) {
	var draftCode string
	err := s.Update(code, func(doc *Session) error {
		st, ok := doc.Students[name]
		if !ok {
			return apperr.New(apperr.NotFound, "student not found: "+name)
		}
		if st.ReconnectToken != token {
			return apperr.New(apperr.Forbidden, "reconnect token mismatch")
		}
		now := time.Now()
		st.SocketEndpointID = endpointID
		st.ReconnectedAt = &now
		st.DisconnectedAt = nil
		st.LastActive = now
		draftCode = st.Code
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	doc, err := s.Get(code)
	if err != nil {
		return nil, "", err
	}
	return doc, draftCode, nil
}

// UpdateStudentCode applies a last-writer-wins update to a student's draft
// (spec §4.5 code-update from Joined(student)).
func (s *Store) UpdateStudentCode(code, name, newCodeText string) error {
	return s.Update(code, func(doc *Session) error {
		st, ok := doc.Students[name]
		if !ok {
			return apperr.New(apperr.NotFound, "student not found: "+name)
		}
		st.Code = newCodeText
		st.LastActive = time.Now()
		return nil
	})
}

// UpdateTeacherCode writes the teacher's live scratchpad (spec §4.5
// code-update from Joined(teacher)): no broadcast follows this one.
func (s *Store) UpdateTeacherCode(code, newCodeText string) error {
	return s.Update(code, func(doc *Session) error {
		doc.CurrentCode = newCodeText
		return nil
	})
}

// RecordStudentSummary persists an evaluator result against a student,
// discarding it if the student has since been removed or disconnected
// (spec's "an evaluation that completes after the student has disconnected
// is discarded" edge case). A vanished student means Update itself returns
// NotFound; a still-present-but-disconnected one (mid grace window) is
// reported the same way so both callers treat it identically as
// "drop silently."
func (s *Store) RecordStudentSummary(code, name string, summary Summary) error {
	return s.Update(code, func(doc *Session) error {
		st, ok := doc.Students[name]
		if !ok {
			return apperr.New(apperr.NotFound, "student not found: "+name)
		}
		if st.DisconnectedAt != nil {
			return apperr.New(apperr.NotFound, "student disconnected: "+name)
		}
		st.Summary = &summary
		return nil
	})
}

// SetSlide validates and writes the current slide index, returning the
// effective index actually stored and the new slide's hasCodeEditor/prompt
// pair for the broadcast the caller emits (spec §4.5 update-slide). An
// empty deck has exactly one legal index, 0; any other index is rejected
// as Validation rather than silently clamped.
func (s *Store) SetSlide(code string, index int) (effectiveIndex int, hasCodeEditor bool, prompt string, err error) {
	err = s.Update(code, func(doc *Session) error {
		if len(doc.Slides) == 0 {
			if index != 0 {
				return apperr.New(apperr.Validation, "slide index out of range")
			}
		} else if index < 0 || index >= len(doc.Slides) {
			return apperr.New(apperr.Validation, "slide index out of range")
		}
		doc.CurrentSlide = index
		doc.UpdatedAt = time.Now()
		effectiveIndex = index
		hasCodeEditor, prompt = doc.CurrentSlideData()
		return nil
	})
	return effectiveIndex, hasCodeEditor, prompt, err
}

// SetSlideData replaces the deck wholesale (spec §4.5 update-slide-data).
func (s *Store) SetSlideData(code string, slides []Slide, slidesWithCode []int) error {
	return s.Update(code, func(doc *Session) error {
		doc.Slides = slides
		doc.SlidesWithCode = slidesWithCode
		doc.UpdatedAt = time.Now()
		return nil
	})
}

// RecordExecution persists lastExecution against a student caller; teacher
// callers are not persisted, matching §4.5 execute-code.
func (s *Store) RecordExecution(code, name string, exec Execution) error {
	return s.Update(code, func(doc *Session) error {
		st, ok := doc.Students[name]
		if !ok {
			return apperr.New(apperr.NotFound, "student not found: "+name)
		}
		st.LastExecution = &exec
		return nil
	})
}

// MarkStudentDisconnected stamps disconnectedAt (spec §4.5.1).
func (s *Store) MarkStudentDisconnected(code, name string) error {
	return s.Update(code, func(doc *Session) error {
		st, ok := doc.Students[name]
		if !ok {
			return apperr.New(apperr.NotFound, "student not found: "+name)
		}
		now := time.Now()
		st.DisconnectedAt = &now
		return nil
	})
}

// RemoveStudentIfStillDisconnected deletes the named student iff
// disconnectedAt is still set and reconnectedAt is unset — the grace-window
// expiry check from §4.5.1. It reports whether the record was removed.
func (s *Store) RemoveStudentIfStillDisconnected(code, name string) (removed bool, err error) {
	err = s.Update(code, func(doc *Session) error {
		st, ok := doc.Students[name]
		if !ok {
			return nil
		}
		if st.DisconnectedAt != nil && st.ReconnectedAt == nil {
			delete(doc.Students, name)
			removed = true
		}
		return nil
	})
	return removed, err
}

// SnapshotStudentsWithCode returns a point-in-time copy of every student
// with a non-empty draft and no disconnectedAt set, for the Summary
// Scheduler's per-pass filter (spec §4.6).
func (s *Store) SnapshotStudentsWithCode(code string) (map[string]Student, error) {
	out := make(map[string]Student)
	err := s.View(code, func(doc *Session) {
		for name, st := range doc.Students {
			if st.Code != "" && st.DisconnectedAt == nil {
				out[name] = *st
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
