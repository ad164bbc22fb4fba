// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/classroomlive/sessionengine/internal/session"
)

// Outbound event type names and payload shapes, matching §6's table
// exactly.

type sessionDataEvent struct {
	Type           string                      `json:"type"`
	Code           string                      `json:"code"`
	Title          string                      `json:"title"`
	Description    string                      `json:"description"`
	Language       string                      `json:"language"`
	InitialCode    string                      `json:"initialCode"`
	CurrentCode    string                      `json:"currentCode"`
	Slides         []session.Slide             `json:"slides"`
	SlidesWithCode []int                       `json:"slidesWithCode,omitempty"`
	CurrentSlide   int                         `json:"currentSlide"`
	Active         bool                        `json:"active"`
	Students       map[string]*session.Student `json:"students"`
	ReconnectToken string                      `json:"reconnectToken,omitempty"`
}

func newSessionDataEvent(doc *session.Session, reconnectToken string) sessionDataEvent {
	return sessionDataEvent{
		Type:           "session-data",
		Code:           doc.Code,
		Title:          doc.Title,
		Description:    doc.Description,
		Language:       doc.Language,
		InitialCode:    doc.InitialCode,
		CurrentCode:    doc.CurrentCode,
		Slides:         doc.Slides,
		SlidesWithCode: doc.SlidesWithCode,
		CurrentSlide:   doc.CurrentSlide,
		Active:         doc.Active,
		Students:       doc.Students,
		ReconnectToken: reconnectToken,
	}
}

type slideChangeEvent struct {
	Type          string    `json:"type"`
	Index         int       `json:"index"`
	HasCodeEditor bool      `json:"hasCodeEditor"`
	Prompt        string    `json:"prompt"`
	Timestamp     time.Time `json:"timestamp"`
}

func newSlideChangeEvent(index int, hasCodeEditor bool, prompt string) slideChangeEvent {
	return slideChangeEvent{
		Type: "slide-change", Index: index, HasCodeEditor: hasCodeEditor, Prompt: prompt,
		Timestamp: time.Now(),
	}
}

type userJoinedEvent struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

func newUserJoinedEvent(name string) userJoinedEvent {
	return userJoinedEvent{Type: "user-joined", Name: name, Timestamp: time.Now()}
}

type userLeftEvent struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

func newUserLeftEvent(name string) userLeftEvent {
	return userLeftEvent{Type: "user-left", Name: name, Timestamp: time.Now()}
}

type studentCodeUpdateEvent struct {
	Type        string    `json:"type"`
	StudentName string    `json:"studentName"`
	Code        string    `json:"code"`
	Timestamp   time.Time `json:"timestamp"`
}

func newStudentCodeUpdateEvent(name, code string) studentCodeUpdateEvent {
	return studentCodeUpdateEvent{Type: "student-code-update", StudentName: name, Code: code, Timestamp: time.Now()}
}

type studentSummaryUpdateEvent struct {
	Type        string          `json:"type"`
	StudentName string          `json:"studentName"`
	Summary     session.Summary `json:"summary"`
	Timestamp   time.Time       `json:"timestamp"`
}

func newStudentSummaryUpdateEvent(name string, summary session.Summary) studentSummaryUpdateEvent {
	return studentSummaryUpdateEvent{Type: "student-summary-update", StudentName: name, Summary: summary, Timestamp: time.Now()}
}

type executionResultEvent struct {
	Type      string    `json:"type"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newExecutionResultEvent(result, errMsg string) executionResultEvent {
	return executionResultEvent{Type: "execution-result", Result: result, Error: errMsg, Timestamp: time.Now()}
}

type studentExecutionResultEvent struct {
	Type        string    `json:"type"`
	StudentName string    `json:"studentName"`
	Result      string    `json:"result"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func newStudentExecutionResultEvent(name, result, errMsg string) studentExecutionResultEvent {
	return studentExecutionResultEvent{Type: "student-execution-result", StudentName: name, Result: result, Error: errMsg, Timestamp: time.Now()}
}

type codeRestoreEvent struct {
	Type      string    `json:"type"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

func newCodeRestoreEvent(code string) codeRestoreEvent {
	return codeRestoreEvent{Type: "code-restore", Code: code, Timestamp: time.Now()}
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorEvent(message string) errorEvent {
	return errorEvent{Type: "error", Message: message}
}
