// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the Session Engine (spec C5): the per-endpoint
// state machine, its inbound/outbound event vocabulary, and the realtime
// connection pump that drives it.
package engine

import (
	"github.com/goccy/go-json"

	"github.com/classroomlive/sessionengine/internal/session"
)

// Inbound event type names, matching §4.5 exactly.
const (
	TypeJoinSession      = "join-session"
	TypeTeacherJoin      = "teacher-join"
	TypeReconnectSession = "reconnect-session"
	TypeCodeUpdate       = "code-update"
	TypeUpdateSlide      = "update-slide"
	TypeUpdateSlideData  = "update-slide-data"
	TypeExecuteCode      = "execute-code"
	TypeDisconnect       = "disconnect"
)

// inboundEnvelope is the wire shape of every inbound message. Fields are a
// superset across message types — "code" in particular means different
// things depending on Type: the session code on join-session,
// teacher-join, and reconnect-session, and the student's submitted source
// on code-update and execute-code, per the wire vocabulary in §4.5/§6.
type inboundEnvelope struct {
	Type string `json:"type"`

	Code  string `json:"code"`
	Name  string `json:"name"`
	Token string `json:"token"`

	SlideIndex *int `json:"slideIndex"`

	Slides         []session.Slide `json:"slides"`
	SlidesWithCode []int           `json:"slidesWithCode"`

	Language string `json:"language"`
}

func decodeInbound(raw []byte) (*inboundEnvelope, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
