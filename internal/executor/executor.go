// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package executor implements the Code Executor (spec C2): running a
// student submission in an isolated sandbox with CPU/memory/time limits and
// returning stdout/err. Both language backends run as an external
// subprocess — the design notes call for the JavaScript path to get the
// same subprocess discipline the Python path already has, rather than an
// in-process interpreter sandbox.
package executor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/classroomlive/sessionengine/internal/apperr"
)

// Language is a supported execution target.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
)

// Result is the outcome of one Execute call.
type Result struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Error  string `json:"error,omitempty"`
}

// Executor runs student submissions against a dedicated scratch directory.
type Executor struct {
	tempDir string
}

// New creates an Executor whose scratch directory is baseDir (created with
// 0o700 permissions if missing). Pass "" to use the OS default temp dir.
func New(baseDir string) (*Executor, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "classroom-sandbox")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create sandbox scratch dir: %w", err)
	}
	return &Executor{tempDir: baseDir}, nil
}

// Execute runs source under the named language and returns its result.
// SandboxViolation-class failures (unsupported language, refused input,
// tripped limits) are recovered into Result.Error (and Result.Stderr) rather
// than returned as an error; the Session Engine appends that message to the
// result text it sends back, so the caller sees {result:"… Error: …", error}.
// Execute has no error return: every failure, including an unusable scratch
// dir, is reported through the returned Result.
func (e *Executor) Execute(ctx context.Context, language, source string) *Result {
	switch Language(language) {
	case Python:
		return e.runPython(ctx, source)
	case JavaScript:
		return e.runJavaScript(ctx, source)
	default:
		msg := fmt.Sprintf("unsupported language: %q", language)
		return &Result{Error: msg, Stderr: msg}
	}
}

// Close flushes the shared scratch directory (spec §5 "Cancellation":
// graceful shutdown "flush the temp directory").
func (e *Executor) Close() error {
	entries, err := os.ReadDir(e.tempDir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		p := filepath.Join(e.tempDir, ent.Name())
		if err := os.RemoveAll(p); err != nil {
			log.Printf("executor: flush scratch dir: remove %s: %v", p, err)
		}
	}
	return nil
}

// removeWithRetry deletes path, and if that fails, retries once after 5s in
// the background — spec's "on failure, re-attempt deletion after 5s."
func removeWithRetry(path string) {
	if err := os.Remove(path); err == nil {
		return
	}
	time.AfterFunc(5*time.Second, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("executor: failed to remove sandbox file %s after retry: %v", path, err)
		}
	})
}

// sandboxError formats a SandboxViolation the same way for both language
// backends: flows into the caller's Result rather than propagating as a
// protocol error (spec §7).
func sandboxError(err error) *Result {
	violation := apperr.Wrap(apperr.SandboxViolation, "sandbox rejected execution", err)
	msg := "Error: " + violation.Error()
	return &Result{Error: msg, Stderr: msg}
}

// runFailureMessage formats the Error field for a subprocess that started
// but exited non-zero or was killed on timeout. On a timeout, runErr itself
// ("execution timed out: ...") is the useful signal — any stderr captured
// before the kill is incidental and would bury it, so timedOut always wins.
// Otherwise the sandboxed program's own error text (e.g. a Python
// traceback), captured on stderr, is what the caller actually needs to see;
// os/exec's runErr ("exit status 1") carries no information beyond the exit
// code, so it is only used when nothing was captured on stderr at all.
func runFailureMessage(runErr error, capturedStderr string, timedOut bool) string {
	if timedOut {
		return "Error: " + runErr.Error()
	}
	if capturedStderr != "" {
		return "Error: " + capturedStderr
	}
	return "Error: " + runErr.Error()
}
