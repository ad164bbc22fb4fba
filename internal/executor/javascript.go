// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// jsHarness is a trusted Node wrapper, written once per Executor and reused
// across submissions. It never runs student code directly in the host
// process — it evaluates it inside a vm.Context exposing only a capturing
// console, with no process/require/module/exports/timers/Buffer/fetch
// reachable from inside that context, and relies on vm's own timeout option
// as the first line of defense (the outer Go context timeout is the
// backstop, grounded on the same belt-and-suspenders shape as the Python
// path's prelude-limits-plus-outer-timeout).
const jsHarness = `
const vm = require('vm');
const fs = require('fs');

const target = process.argv[2];
const source = fs.readFileSync(target, 'utf8');

const logs = [];
function record(...args) {
  logs.push(args.map(a => (typeof a === 'string' ? a : JSON.stringify(a))).join(' '));
}

const sandbox = {
  console: { log: record, info: record, warn: record, error: record },
};
vm.createContext(sandbox, { codeGeneration: { strings: false, wasm: false } });

try {
  const result = vm.runInContext(source, sandbox, {
    timeout: 2000,
    displayErrors: true,
    microtaskMode: 'afterEvaluate',
  });
  if (result !== undefined) {
    logs.push('=> ' + (typeof result === 'string' ? result : JSON.stringify(result)));
  }
  process.stdout.write(logs.join('\n'));
} catch (err) {
  process.stdout.write(logs.join('\n'));
  process.stderr.write(err && err.message ? err.message : String(err));
  process.exitCode = 1;
}
`

var jsFilenamePattern = regexp.MustCompile(`^[a-f0-9-]+\.js$`)

const (
	jsOuterTimeout  = 3 * time.Second
	jsKillGrace     = 500 * time.Millisecond
	jsMaxOutputSize = 1 << 20
)

// harnessPath returns the shared harness script path, writing it on first
// use.
func (e *Executor) harnessPath() (string, error) {
	path := filepath.Join(e.tempDir, "harness.js")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(jsHarness), 0o600); err != nil {
		return "", fmt.Errorf("write js harness: %w", err)
	}
	return path, nil
}

// runJavaScript materializes source and runs it through the Node harness
// under vm.Context isolation, itself wrapped in an outer process timeout and
// (on Linux) post-start rlimits.
func (e *Executor) runJavaScript(ctx context.Context, source string) *Result {
	harness, err := e.harnessPath()
	if err != nil {
		return sandboxError(err)
	}

	filename := uuid.NewString() + ".js"
	if !jsFilenamePattern.MatchString(filename) {
		return sandboxError(errors.New("generated filename failed validation"))
	}
	path := filepath.Join(e.tempDir, filename)
	if !isWithinDir(e.tempDir, path) {
		return sandboxError(errors.New("refused path outside sandbox directory"))
	}
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		return sandboxError(fmt.Errorf("write sandbox file: %w", err))
	}
	defer removeWithRetry(path)

	if _, err := exec.LookPath("node"); err != nil {
		return sandboxError(fmt.Errorf("node interpreter unavailable: %w", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, jsOuterTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "node", harness, path)
	cmd.Dir = e.tempDir
	cmd.Env = []string{"PATH=/usr/bin:/bin", "HOME=" + e.tempDir, "NODE_OPTIONS="}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &capWriter{buf: &stdout, limit: jsMaxOutputSize}
	cmd.Stderr = &capWriter{buf: &stderr, limit: jsMaxOutputSize}

	if err := cmd.Start(); err != nil {
		return sandboxError(fmt.Errorf("start node: %w", err))
	}

	if err := applyPostStartLimits(cmd); err != nil {
		killProcessGroup(cmd, syscall.SIGKILL)
		cmd.Wait()
		return sandboxError(err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var runErr error
	var timedOut bool
	select {
	case runErr = <-done:
	case <-runCtx.Done():
		timedOut = true
		killProcessGroup(cmd, syscall.SIGTERM)
		select {
		case runErr = <-done:
		case <-time.After(jsKillGrace):
			killProcessGroup(cmd, syscall.SIGKILL)
			runErr = <-done
		}
		runErr = fmt.Errorf("execution timed out: %w", runCtx.Err())
	}

	if runErr != nil {
		return &Result{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Error:  runFailureMessage(runErr, stderr.String(), timedOut),
		}
	}

	return &Result{Stdout: stdout.String(), Stderr: stderr.String()}
}
