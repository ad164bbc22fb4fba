// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package executor

import "os/exec"

// applyPostStartLimits is a no-op outside Linux: unix.Prlimit has no
// portable equivalent, and the outer context timeout plus process-group
// kill remain the enforcement backstop on these platforms.
func applyPostStartLimits(cmd *exec.Cmd) error {
	return nil
}
