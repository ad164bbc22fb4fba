// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package executor

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// jsRlimits are the resource ceilings applied to the Node subprocess after
// it starts, since Node has no equivalent of Python's stdlib resource
// module to self-impose them. Grounded on the teacher pack's sandbox
// package, which applies the same limits to an already-started pid via
// unix.Prlimit rather than via fork-time rlimit inheritance.
var jsRlimits = []struct {
	resource int
	cur, max uint64
}{
	{unix.RLIMIT_CPU, 2, 2},
	{unix.RLIMIT_AS, 200 * 1024 * 1024, 200 * 1024 * 1024},
	{unix.RLIMIT_NOFILE, 64, 64},
}

// applyPostStartLimits applies jsRlimits to cmd's already-started process.
// It must be called after cmd.Start() returns and before the process does
// meaningful work; a failure here is a sandbox violation, not a transient
// condition, since an unconstrained child is unsafe to let run.
func applyPostStartLimits(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("applyPostStartLimits: process not started")
	}
	pid := cmd.Process.Pid
	for _, rl := range jsRlimits {
		lim := unix.Rlimit{Cur: rl.cur, Max: rl.max}
		if err := unix.Prlimit(pid, rl.resource, &lim, nil); err != nil {
			return fmt.Errorf("prlimit(pid=%d, resource=%d): %w", pid, rl.resource, err)
		}
	}
	return nil
}
