// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package lockspace implements one client's lock set: host identity set
// once, the locks currently held, and a periodic renewal scheduler that
// fences the client when a lock's membership becomes irrecoverable.
package lockspace

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/async"
	"github.com/dswarbrick/ilm/drive"
	"github.com/dswarbrick/ilm/fencing"
	"github.com/dswarbrick/ilm/raid"
)

// entry is one active lock plus the scheduler bookkeeping the Lockspace
// needs to decide when to renew it and whether it has been fenced already.
type entry struct {
	lock         *raid.Lock
	renewEnabled bool
	lastRenew    time.Time
	ioFailures   int
	dead         bool
}

// maxRenewIOFailures is the number of consecutive Io renewals the
// scheduler tolerates before treating the loss as permanent and fencing,
// distinct from a single Expired result which is always immediately
// fatal to the lock.
const maxRenewIOFailures = 3

// Lockspace is one connected client's lock set. Host-id is set once;
// attempts to change it after the first successful acquire fail.
type Lockspace struct {
	mu         sync.Mutex
	hostID     ilm.HostID
	hostLocked bool

	registry *async.Registry
	engine   *raid.Engine
	locks    map[ilm.LockID]*entry

	// OpenDevice resolves a drive path to an unopened drive.Device.
	// Defaults to drive.Open; tests substitute a constructor that
	// returns a raidtest fake instead of touching a real device node.
	OpenDevice func(path string) drive.Device

	fence        fencing.Action
	tickInterval time.Duration
	stopCh       chan struct{}
	started      bool
	stopped      bool
	wg           sync.WaitGroup
}

// New returns a Lockspace backed by its own drive registry, fencing
// through fence on irrecoverable renewal loss. A nil fence is replaced
// with fencing.None{}, matching the "fencing not yet configured" default
// (set_signal / set_killpath never called).
func New(fence fencing.Action) *Lockspace {
	if fence == nil {
		fence = fencing.None{}
	}

	registry := async.NewRegistry()

	return &Lockspace{
		registry:     registry,
		engine:       raid.NewEngine(registry),
		locks:        make(map[ilm.LockID]*entry),
		OpenDevice:   drive.Open,
		fence:        fence,
		tickInterval: time.Second,
		stopCh:       make(chan struct{}),
	}
}

// SetFence replaces the fencing action, for set_signal / set_killpath.
func (ls *Lockspace) SetFence(fence fencing.Action) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.fence = fence
}

// SetHostID sets the lockspace's host identity. It fails once any lock
// has ever been successfully acquired through this lockspace.
func (ls *Lockspace) SetHostID(id ilm.HostID) ilm.Kind {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.hostLocked {
		return ilm.KindPermissionDenied
	}

	ls.hostID = id
	return ilm.KindOK
}

// HostID returns the current host identity.
func (ls *Lockspace) HostID() ilm.HostID {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.hostID
}

// Start launches the renewal scheduler goroutine. Calling Start more than
// once is a no-op after the first call.
func (ls *Lockspace) Start() {
	ls.mu.Lock()
	if ls.stopped || ls.started {
		ls.mu.Unlock()
		return
	}
	ls.started = true
	ls.mu.Unlock()

	ls.wg.Add(1)
	go ls.renewLoop()
}

// Close stops the renewal scheduler and releases every lock, best-effort,
// tearing down every drive pool this lockspace opened.
func (ls *Lockspace) Close() {
	ls.mu.Lock()
	if ls.stopped {
		ls.mu.Unlock()
		return
	}
	ls.stopped = true
	close(ls.stopCh)
	entries := make([]*entry, 0, len(ls.locks))
	for _, e := range ls.locks {
		entries = append(entries, e)
	}
	ls.locks = make(map[ilm.LockID]*entry)
	ls.mu.Unlock()

	ls.wg.Wait()

	for _, e := range entries {
		ls.engine.Release(e.lock)
	}

	ls.registry.DestroyAll()
}

// driveUUID derives a drive's ordering identity from its device path via
// UUID v5. The real manager reads this from the block device's on-disk
// UUID via blkid; this host-side model only needs every host to derive the
// same total order from the same path list, not the specific UUID value a
// blkid probe would return.
func driveUUID(path string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(path))
}

// sortedUniquePaths sorts paths by driveUUID ascending and drops duplicate
// paths, the drive-list invariant a Lock's slot order depends on: two
// hosts racing to acquire the same drive set must walk it in the same
// order, or each could grab a different minority and neither reaches
// quorum.
func sortedUniquePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := driveUUID(out[i]), driveUUID(out[j])
		return bytes.Compare(a[:], b[:]) < 0
	})

	return out
}

// openDevices resolves each path to an unopened drive.Device via
// ls.OpenDevice (drive.Open by default, autodetecting SCSI vs. NVMe
// transport by path prefix), after sorting and deduplicating the path list.
func (ls *Lockspace) openDevices(paths []string) []drive.Device {
	paths = sortedUniquePaths(paths)

	devices := make([]drive.Device, len(paths))
	for i, p := range paths {
		devices[i] = ls.OpenDevice(p)
	}
	return devices
}

// Acquire creates a new lock spanning paths and attempts to reach quorum
// under mode within the engine's deadline. A lock_id already active in
// this lockspace is rejected rather than silently reused.
func (ls *Lockspace) Acquire(id ilm.LockID, mode ilm.Mode, timeoutMs int64, paths []string) ilm.Kind {
	ls.mu.Lock()
	if _, exists := ls.locks[id]; exists {
		ls.mu.Unlock()
		return ilm.KindBusy
	}
	hostID := ls.hostID
	ls.mu.Unlock()

	l := raid.NewLock(id, hostID, timeoutMs, ls.openDevices(paths))
	kind := ls.engine.Acquire(l, mode)
	if kind != ilm.KindOK {
		return kind
	}

	ls.mu.Lock()
	ls.hostLocked = true
	ls.locks[id] = &entry{lock: l, renewEnabled: true, lastRenew: time.Now()}
	ls.mu.Unlock()

	return ilm.KindOK
}

// lookup returns the entry for id, if this lockspace currently holds it.
func (ls *Lockspace) lookup(id ilm.LockID) (*entry, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	e, ok := ls.locks[id]
	return e, ok
}

// Release drops id from the lockspace, best-effort, whether or not it
// was actually held. A lock_id unknown to this lockspace is reported as
// NotFound rather than silently succeeding.
func (ls *Lockspace) Release(id ilm.LockID) ilm.Kind {
	e, ok := ls.lookup(id)
	if !ok {
		return ilm.KindNotFound
	}

	kind := ls.engine.Release(e.lock)

	ls.mu.Lock()
	delete(ls.locks, id)
	ls.mu.Unlock()

	return kind
}

// Destroy frees id's firmware-side state on every drive and drops it
// from the lockspace.
func (ls *Lockspace) Destroy(id ilm.LockID) ilm.Kind {
	e, ok := ls.lookup(id)
	if !ok {
		return ilm.KindNotFound
	}

	kind := ls.engine.Destroy(e.lock)

	ls.mu.Lock()
	delete(ls.locks, id)
	ls.mu.Unlock()

	return kind
}

// Convert changes id's mode in place.
func (ls *Lockspace) Convert(id ilm.LockID, newMode ilm.Mode) ilm.Kind {
	e, ok := ls.lookup(id)
	if !ok {
		return ilm.KindNotFound
	}
	return ls.engine.Convert(e.lock, newMode)
}

// WriteLVB writes lvb to id.
func (ls *Lockspace) WriteLVB(id ilm.LockID, lvb ilm.LVB) ilm.Kind {
	e, ok := ls.lookup(id)
	if !ok {
		return ilm.KindNotFound
	}
	return ls.engine.WriteLVB(e.lock, lvb)
}

// ReadLVB reads id's current LVB.
func (ls *Lockspace) ReadLVB(id ilm.LockID) (ilm.LVB, ilm.Kind) {
	e, ok := ls.lookup(id)
	if !ok {
		return ilm.LVB{}, ilm.KindNotFound
	}
	return ls.engine.ReadLVB(e.lock)
}

// Count reports id's (others, self) host tally.
func (ls *Lockspace) Count(id ilm.LockID) (others, self int, kind ilm.Kind) {
	e, ok := ls.lookup(id)
	if !ok {
		return 0, 0, ilm.KindNotFound
	}
	return ls.engine.Count(e.lock)
}

// Mode reports id's current mode.
func (ls *Lockspace) Mode(id ilm.LockID) (ilm.Mode, ilm.Kind) {
	e, ok := ls.lookup(id)
	if !ok {
		return ilm.ModeUnlocked, ilm.KindNotFound
	}
	return ls.engine.Mode(e.lock)
}

// StopRenew disables the scheduler for id without releasing it (spec
// end-to-end scenario 5: membership lapses naturally once renewal stops).
func (ls *Lockspace) StopRenew(id ilm.LockID) ilm.Kind {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	e, ok := ls.locks[id]
	if !ok {
		return ilm.KindNotFound
	}
	e.renewEnabled = false
	return ilm.KindOK
}

// StartRenew re-enables the scheduler for id.
func (ls *Lockspace) StartRenew(id ilm.LockID) ilm.Kind {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	e, ok := ls.locks[id]
	if !ok {
		return ilm.KindNotFound
	}
	e.renewEnabled = true
	e.lastRenew = time.Now()
	return ilm.KindOK
}
