// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup manages the lifecycle of pipeline process groups.
package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/camrelay/internal/metrics"
)

// Terminate stops a process group: SIGTERM, wait up to grace for waitCh,
// then SIGKILL and drain waitCh. It returns the result of the process Wait.
// waitCh must deliver exactly one value, the result of cmd.Wait.
// It is safe to call on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signal(cmd, syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-timer.C:
		signal(cmd, syscall.SIGKILL)
		// SIGKILL cannot be ignored, so the wait always completes.
		err := <-waitCh
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	if err := Kill(cmd, sig); err != nil {
		metrics.IncProcTerminate(name, "error")
		return
	}
	metrics.IncProcTerminate(name, "sent")
}
