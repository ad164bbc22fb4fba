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
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// pythonPrelude is prepended to every submission. It self-imposes the
// CPU/data/file-size limits and the import/OS/open deny-lists described in
// spec §4.2, entirely in pure Python (resource.setrlimit + shadowed
// builtins) — no process-level wiring is needed for these limits.
const pythonPrelude = `
import builtins as __cl_builtins
import resource as __cl_resource

__cl_resource.setrlimit(__cl_resource.RLIMIT_CPU, (2, 2))
__cl_resource.setrlimit(__cl_resource.RLIMIT_DATA, (50 * 1024 * 1024, 50 * 1024 * 1024))
__cl_resource.setrlimit(__cl_resource.RLIMIT_FSIZE, (1024 * 1024, 1024 * 1024))

__cl_denied_modules = {
    "subprocess", "socket", "requests", "http", "urllib",
    "ftplib", "telnetlib", "smtplib", "_pickle", "pickle",
}

__cl_real_import = __cl_builtins.__import__


def __cl_import(name, *args, **kwargs):
    root = name.split(".")[0]
    if root in __cl_denied_modules:
        raise ImportError("import of %r is not permitted in this sandbox" % name)
    return __cl_real_import(name, *args, **kwargs)


__cl_builtins.__import__ = __cl_import

for __cl_name in (
    "system", "popen", "popen2", "popen3", "popen4",
    "spawnl", "spawnle", "spawnlp", "spawnlpe", "spawnv", "spawnve", "spawnvp", "spawnvpe",
    "fork", "forkpty", "execl", "execle", "execlp", "execlpe", "execv", "execve", "execvp", "execvpe",
    "unlink", "remove",
):
    if hasattr(__cl_os_for_patch := __import__("os"), __cl_name):
        setattr(__cl_os_for_patch, __cl_name, None)

__cl_real_open = __cl_builtins.open


def __cl_open(file, mode="r", *args, **kwargs):
    if any(c in mode for c in ("w", "a", "x", "+")):
        raise PermissionError("write access is not permitted in this sandbox")
    return __cl_real_open(file, mode, *args, **kwargs)


__cl_builtins.open = __cl_open

# --- submitted code below ---
`

// pythonFilenamePattern constrains generated filenames to exactly the shape
// spec §4.2 requires: "[a-f0-9-]+\.py".
var pythonFilenamePattern = regexp.MustCompile(`^[a-f0-9-]+\.py$`)

// pythonCommandPattern is the whitelist the executor validates the
// to-be-invoked command against before running it: "python[3]?
// <quoted-or-bare .py path>".
var pythonCommandPattern = regexp.MustCompile(`^python3? (?:"[^"]+\.py"|'[^']+\.py'|[^\s]+\.py)$`)

const (
	pythonOuterTimeout  = 5 * time.Second
	pythonKillGrace     = 500 * time.Millisecond
	pythonMaxOutputSize = 1 << 20 // 1 MB
)

// runPython materializes source to a uniquely-named file in the dedicated
// scratch directory and invokes a Python interpreter against it under a
// hard outer timeout.
func (e *Executor) runPython(ctx context.Context, source string) *Result {
	filename := uuid.NewString() + ".py"
	if !pythonFilenamePattern.MatchString(filename) {
		return sandboxError(errors.New("generated filename failed validation"))
	}

	path := filepath.Join(e.tempDir, filename)
	if !isWithinDir(e.tempDir, path) {
		return sandboxError(errors.New("refused path outside sandbox directory"))
	}

	contents := pythonPrelude + source
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		return sandboxError(fmt.Errorf("write sandbox file: %w", err))
	}
	defer removeWithRetry(path)

	interpreter := pythonInterpreter()
	commandString := fmt.Sprintf("%s %s", interpreter, path)
	if !pythonCommandPattern.MatchString(commandString) {
		return sandboxError(fmt.Errorf("refused command %q: does not match whitelist", commandString))
	}

	runCtx, cancel := context.WithTimeout(ctx, pythonOuterTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interpreter, path)
	cmd.Dir = e.tempDir
	cmd.Env = []string{"PATH=/usr/bin:/bin", "HOME=" + e.tempDir}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &capWriter{buf: &stdout, limit: pythonMaxOutputSize}
	cmd.Stderr = &capWriter{buf: &stderr, limit: pythonMaxOutputSize}

	if err := cmd.Start(); err != nil {
		return sandboxError(fmt.Errorf("start interpreter: %w", err))
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
		case <-time.After(pythonKillGrace):
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

// pythonInterpreter picks "python3" when available, falling back to
// "python" (the whitelist regex accepts either).
func pythonInterpreter() string {
	if _, err := exec.LookPath("python3"); err == nil {
		return "python3"
	}
	return "python"
}

func isWithinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// killProcessGroup signals the whole process group so children spawned by
// the sandboxed script die too.
func killProcessGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil || runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		return
	}
	syscall.Kill(-cmd.Process.Pid, sig)
}

// capWriter truncates writes once limit bytes have been written, matching
// the 1MB output cap.
type capWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *capWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
	} else {
		w.buf.Write(p)
	}
	return len(p), nil
}
