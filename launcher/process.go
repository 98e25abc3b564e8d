/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package launcher is C4, the process launcher: argv assembly,
// fork/exec with per-module stdio redirection, and the small set of
// process-table primitives (liveness probe, signal delivery, non-
// blocking reap) the lifecycle scheduler drives each tick. Restart-rate
// policy itself lives in the scheduler, which owns the per-module
// RestartCounter/RestartWindowTick fields; this package only performs
// the single mechanical act of starting or signalling one process.
package launcher

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/zidekmat/nemea-supervisor/config"
)

// logFileMode matches the module stdout/stderr redirection mode named
// in spec.md §4.3.
const logFileMode = 0664

// Handle is the launcher's live reference to a spawned child: the
// exec.Cmd plus a completion channel fed by a single goroutine blocked
// in Wait, so the scheduler can reap non-blockingly by selecting on it
// instead of calling a blocking wait syscall from its own tick.
type Handle struct {
	Cmd      *exec.Cmd
	exited   chan struct{}
	waitErr  error
	stdout   *os.File
	stderr   *os.File
}

// Start builds the argv, opens the per-module stdout/stderr log files
// under logsDir/modules_logs, and forks+execs the module's binary in
// its own session (SysProcAttr.Setsid, which also gives it its own
// process group, so a signal to the supervisor's own process group
// doesn't also hit the child).
func Start(m *config.Module, logsDir string) (*Handle, error) {
	argv, err := BuildArgv(m)
	if err != nil {
		return nil, err
	}

	modDir := filepath.Join(logsDir, `modules_logs`)
	if err := os.MkdirAll(modDir, 0775); err != nil {
		return nil, err
	}
	stdout, err := openAppend(filepath.Join(modDir, m.Name+`_stdout`))
	if err != nil {
		return nil, err
	}
	stderr, err := openAppend(filepath.Join(modDir, m.Name+`_stderr`))
	if err != nil {
		stdout.Close()
		return nil, err
	}

	cmd := &exec.Cmd{
		Path:   m.Path,
		Args:   argv,
		Stdout: stdout,
		Stderr: stderr,
		SysProcAttr: &syscall.SysProcAttr{
			Setsid: true,
		},
	}
	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, err
	}

	h := &Handle{Cmd: cmd, exited: make(chan struct{}), stdout: stdout, stderr: stderr}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.exited)
	}()

	m.PID = cmd.Process.Pid
	m.IsMyChild = true
	m.Up = true
	return h, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode)
}

// Reaped reports whether the child has exited, without blocking. Once
// true, the caller should not call Reaped again expecting it to flip
// back — the Handle is spent.
func (h *Handle) Reaped() (exited bool, err error) {
	select {
	case <-h.exited:
		h.stdout.Close()
		h.stderr.Close()
		return true, h.waitErr
	default:
		return false, nil
	}
}

// Probe reports whether pid is alive via a null signal, the liveness
// check spec.md §4.6 step 1 requires. A PID belonging to a process we
// don't own (EPERM) still counts as alive; only ESRCH means it's gone.
func Probe(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// Signal sends sig to pid's process group leader (the session Start
// created), matching the graceful-stop/force-stop cascade of spec §4.6.
func Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	return syscall.Kill(pid, sig)
}
