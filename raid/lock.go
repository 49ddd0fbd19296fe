// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package raid implements the quorum lock engine: it turns the per-drive
// IDM primitive exposed by the drive package into one logical lock
// spanning a set of drives, tolerating the loss of a minority of them.
package raid

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/drive"
	"github.com/dswarbrick/ilm/internal/fmtutil"
)

// SlotState is a per-drive slot's membership state within one Lock.
type SlotState int

const (
	NoAccess SlotState = iota
	Accessed
	Failed
)

func (s SlotState) String() string {
	switch s {
	case NoAccess:
		return "no_access"
	case Accessed:
		return "accessed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DriveSlot is one drive's membership state within a Lock. Slots are
// stored inline in the Lock (an arena of drives per lock) rather than
// holding a back-pointer to the lock, avoiding the cyclic
// slot<->lock<->lockspace reference structure of the original design.
type DriveSlot struct {
	Device drive.Device
	State  SlotState
}

// Lock is the logical lock spanning Drives, guarded by its own mutex so
// renew and convert on the same lock serialize without blocking unrelated
// locks in the same lockspace.
type Lock struct {
	mu sync.Mutex

	ID      ilm.LockID
	HostID  ilm.HostID
	Mode    ilm.Mode
	Timeout int64 // milliseconds; -1 means infinite
	LVB     ilm.LVB

	Drives []DriveSlot

	// convertFailed is sticky once a promotion fails to reach quorum and
	// its revert also fails to reach quorum, or once a demotion is
	// accepted without reaching quorum: every further convert on this
	// lock fails fast until the lock is released and re-acquired.
	convertFailed bool
}

// NewLock returns a Lock with one NoAccess slot per device, in the order
// given — acquire/rollback issue per-drive operations in this order. The
// caller (lockspace.openDevices, for every path a lockspace Acquire
// resolves) is responsible for the drive list already being sorted by
// UUID ascending and free of duplicate paths; NewLock trusts that order
// rather than re-deriving it, so tests can hand it an arbitrary device
// list to pin down per-slot behavior.
func NewLock(id ilm.LockID, hostID ilm.HostID, timeoutMs int64, devices []drive.Device) *Lock {
	slots := make([]DriveSlot, len(devices))
	for i, d := range devices {
		slots[i] = DriveSlot{Device: d, State: NoAccess}
	}

	return &Lock{
		ID:      id,
		HostID:  hostID,
		Timeout: timeoutMs,
		Drives:  slots,
	}
}

// N is the number of drives spanned by the lock.
func (l *Lock) N() int {
	return len(l.Drives)
}

// Quorum is ⌊N/2⌋+1, the minimum number of drives that must agree for an
// operation to succeed.
func (l *Lock) Quorum() int {
	return l.N()/2 + 1
}

// Dump renders a diagnostic one-line summary of the lock's current state.
func (l *Lock) Dump() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	states := make([]string, len(l.Drives))
	for i, s := range l.Drives {
		states[i] = fmt.Sprintf("%s:%s", s.Device.Path(), s.State)
	}

	return fmt.Sprintf("lock=%s host=%s mode=%s timeout=%s lvb=%s drives=[%s]",
		l.ID, l.HostID, l.Mode, fmtutil.Duration(l.Timeout), fmtutil.Hex(l.LVB[:]),
		strings.Join(states, " "))
}
