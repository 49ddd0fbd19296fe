// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package async provides a per-drive worker pool that executes IDM
// pass-through commands off the caller's goroutine and a registry that
// keeps one pool alive per drive path.
package async

import (
	"sync/atomic"

	"github.com/dswarbrick/ilm/drive"
	"github.com/dswarbrick/ilm/idm"
)

// JobID is an opaque token identifying a submitted job. It is a plain
// uint64, never a pointer, so it can cross the dispatcher boundary and be
// logged or compared safely (Design Note: avoid exposing internal pointers
// across a process/wire boundary).
type JobID uint64

var nextJobID uint64

func newJobID() JobID {
	return JobID(atomic.AddUint64(&nextJobID, 1))
}

// Job is a single IDM command queued against one drive.
type Job struct {
	ID     JobID
	Device drive.Device
	Cmd    idm.Command
}

// Outcome is the stored result of a completed job: the command's Result,
// or the transport error that prevented one.
type Outcome struct {
	Result idm.Result
	Err    error
}
