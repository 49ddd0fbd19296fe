// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package fencing implements the side effect a lockspace invokes when a
// lock's membership is irrecoverably lost: send a signal to a configured
// pid, or fork/exec a configured killpath, so the upper-layer application
// can contain damage.
package fencing

import (
	"fmt"
	"os/exec"
	"syscall"
)

// Action is invoked exactly once per irrecoverable lock loss. Tests
// substitute a fake that records invocations (spec end-to-end scenario 6)
// instead of actually signaling or exec'ing anything.
type Action interface {
	Fence() error
}

// Signal fences by sending Sig to Pid.
type Signal struct {
	Pid int
	Sig syscall.Signal
}

func (s Signal) Fence() error {
	if s.Pid <= 0 {
		return fmt.Errorf("fencing: invalid pid %d", s.Pid)
	}
	return syscall.Kill(s.Pid, s.Sig)
}

// Exec fences by running Path with Args, waiting for it to exit.
type Exec struct {
	Path string
	Args []string
}

func (e Exec) Fence() error {
	if e.Path == "" {
		return fmt.Errorf("fencing: empty killpath")
	}
	return exec.Command(e.Path, e.Args...).Run()
}

// None is the no-op action a lockspace uses when fencing has not been
// configured (set_signal / set_killpath never called).
type None struct{}

func (None) Fence() error { return nil }
