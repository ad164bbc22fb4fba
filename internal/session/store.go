// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/classroomlive/sessionengine/internal/apperr"
)

// entry pairs a Session document with the per-session mutex that serializes
// every read-modify-write against it (spec §5: "mutations to the Session
// document are serialized by a per-session mutex; reads outside a mutation
// take a shared read").
type entry struct {
	mu  sync.RWMutex
	doc *Session
}

// Store is the process-wide map from session code to Session document.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	kv      KVAdapter
}

// NewStore creates a Store backed by the given KV adapter (use NoopKV{} when
// no external backend is configured).
func NewStore(kv KVAdapter) *Store {
	if kv == nil {
		kv = NoopKV{}
	}
	return &Store{
		entries: make(map[string]*entry),
		kv:      kv,
	}
}

// Mutator mutates a Session document in place. Returning an error aborts the
// write (the document is left as mutated so far — mutators should fail
// before touching the document when validating, per spec's "validate types"
// ordering in §4.5).
type Mutator func(doc *Session) error

// NewSessionCode draws a fresh six-letter code with rejection-on-collision
// against the live entries (spec C1: "generates fresh six-letter lowercase
// codes by uniform random sampling and rejection on collision").
func (s *Store) NewSessionCode() (string, error) {
	for {
		code, err := newCode()
		if err != nil {
			return "", err
		}
		s.mu.RLock()
		_, exists := s.entries[code]
		s.mu.RUnlock()
		if !exists {
			return code, nil
		}
	}
}

// Create inserts a new Session document, failing with Conflict if the code
// is already taken.
func (s *Store) Create(doc *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[doc.Code]; exists {
		return apperr.New(apperr.Conflict, "session code already exists: "+doc.Code)
	}
	s.entries[doc.Code] = &entry{doc: doc}
	s.writeThrough(doc.Code, doc)
	return nil
}

// Get returns a point-in-time clone of the session document, or NotFound.
func (s *Store) Get(code string) (*Session, error) {
	e := s.lookup(code)
	if e == nil {
		return nil, apperr.New(apperr.NotFound, "session not found: "+code)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc.Clone(), nil
}

// Update applies fn under the per-session write lock and write-throughs the
// result. The mutator is expected to set UpdatedAt itself where the spec
// calls for it (not every mutation touches it — e.g. code-update from a
// student only touches the student's record).
func (s *Store) Update(code string, fn Mutator) error {
	e := s.lookup(code)
	if e == nil {
		return apperr.New(apperr.NotFound, "session not found: "+code)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.doc); err != nil {
		return err
	}
	s.writeThrough(code, e.doc)
	return nil
}

// View runs fn under a shared read lock, for read-only inspection.
func (s *Store) View(code string, fn func(doc *Session)) error {
	e := s.lookup(code)
	if e == nil {
		return apperr.New(apperr.NotFound, "session not found: "+code)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.doc)
	return nil
}

// Delete removes the session document.
func (s *Store) Delete(code string) error {
	s.mu.Lock()
	_, exists := s.entries[code]
	if exists {
		delete(s.entries, code)
	}
	s.mu.Unlock()
	if !exists {
		return apperr.New(apperr.NotFound, "session not found: "+code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.kv.Delete(ctx, code); err != nil {
		log.Printf("session store: kv delete %s: %v (transient, in-memory state already removed)", code, err)
	}
	return nil
}

func (s *Store) lookup(code string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[code]
}

// writeThrough serializes the post-mutation document to the external KV.
// Failure is logged only: the in-memory copy is authoritative (spec C1).
func (s *Store) writeThrough(code string, doc *Session) {
	snapshot := doc.Clone()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.kv.Put(ctx, code, snapshot); err != nil {
		log.Printf("session store: kv write-through %s: %v (transient, in-memory state authoritative)", code, err)
	}
}
