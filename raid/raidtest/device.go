// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package raidtest provides an in-memory fake drive.Device for exercising
// the raid engine without real hardware. The per-lock state is guarded by
// one mutex per device, the same condvar-free mutex-guarded-state idiom
// the pack's intention-lock library (dijkstracula/go-ilock) uses for its
// packed lock-state word, simplified here to a plain map since a test
// fake has no need for the real library's lock-free fast path.
package raidtest

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/idm"
)

// errIO simulates a pass-through ioctl failure, distinct from any
// firmware-reported status.
var errIO = errors.New("raidtest: simulated transport failure")

// entry is one lock's firmware-side state on this fake drive. hosts tracks
// every host currently holding membership: at most one for Exclusive, any
// number for SharedProtectedRead.
type entry struct {
	class     idm.Class
	countdown int64
	lvb       ilm.LVB
	hosts     map[ilm.HostID]bool
	expired   map[ilm.HostID]bool
}

func newEntry(class idm.Class, countdown int64, host ilm.HostID) *entry {
	return &entry{
		class:     class,
		countdown: countdown,
		hosts:     map[ilm.HostID]bool{host: true},
		expired:   make(map[ilm.HostID]bool),
	}
}

// Device is a fake drive.Device backed by an in-memory map, keyed by lock
// ID, instead of a real pass-through transport.
type Device struct {
	path string

	mu      sync.Mutex
	locks   map[ilm.LockID]*entry
	opened  bool
	failPct int
}

// New returns an unopened fake device.
func New(path string) *Device {
	return &Device{path: path, locks: make(map[ilm.LockID]*entry)}
}

func (d *Device) Path() string { return d.path }

func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

// SetFailPercent makes every Exec call fail with a transport error p
// percent of the time, for simulating drive I/O loss in tests.
func (d *Device) SetFailPercent(p int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPct = p
}

func (d *Device) Exec(cmd idm.Command) (idm.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failPct > 0 && rand.Intn(100) < d.failPct {
		return idm.Result{Kind: ilm.KindIO, Status: idm.StatusDeviceIoError}, errIO
	}

	host := cmd.Record.HostID
	e, ok := d.locks[cmd.Record.ResourceID]

	switch cmd.Op {
	case idm.OpTrylock:
		if !ok || len(e.hosts) == 0 {
			d.locks[cmd.Record.ResourceID] = newEntry(cmd.Record.Class, cmd.Record.Countdown, host)
			return okResult(), nil
		}

		if e.hosts[host] {
			return idm.Result{Kind: ilm.KindTryAgain, Status: idm.StatusMutexHeldAlready}, nil
		}

		if e.class == idm.ClassSharedProtectedRead && cmd.Record.Class == idm.ClassSharedProtectedRead {
			e.hosts[host] = true
			return okResult(), nil
		}

		return idm.Result{Kind: ilm.KindBusy, Status: idm.StatusMutexHeldByAnother}, nil

	case idm.OpBreak:
		// Break only succeeds against a lock nobody legitimately holds
		// any more (absent, released, or every current holder
		// firmware-expired); a live holder vetoes it, same as real IDM
		// firmware only honors Break against an unresponsive peer rather
		// than as a second Trylock.
		if ok && len(e.hosts) > 0 && !allExpired(e) {
			return idm.Result{Kind: ilm.KindBusy, Status: idm.StatusMutexHeldByAnother}, nil
		}
		d.locks[cmd.Record.ResourceID] = newEntry(cmd.Record.Class, cmd.Record.Countdown, host)
		return okResult(), nil

	case idm.OpUnlock:
		if !ok || !e.hosts[host] {
			return idm.Result{Kind: ilm.KindNotFound, Status: idm.StatusMutexConflict}, nil
		}
		delete(e.hosts, host)
		delete(e.expired, host)
		return okResult(), nil

	case idm.OpRefresh:
		if !ok || !e.hosts[host] {
			return idm.Result{Kind: ilm.KindExpired, Status: idm.StatusMutexConflict}, nil
		}
		if e.expired[host] {
			return idm.Result{Kind: ilm.KindExpired, Status: idm.StatusMutexConflict}, nil
		}
		if cmd.Record.Class == idm.ClassExclusive && len(e.hosts) > 1 {
			return idm.Result{Kind: ilm.KindBusy, Status: idm.StatusMutexHeldByAnother}, nil
		}
		e.class = cmd.Record.Class
		e.countdown = cmd.Record.Countdown
		if cmd.Record.ResVerType == idm.ResVerUpdateValid {
			e.lvb = cmd.Record.LVB
		}
		return okResult(), nil

	case idm.OpDestroy:
		delete(d.locks, cmd.Record.ResourceID)
		return okResult(), nil

	case idm.OpNormal:
		if cmd.Group == idm.GroupInquiry {
			return d.execGroupInquiry(), nil
		}

		if !ok || len(e.hosts) == 0 {
			return idm.Result{Kind: ilm.KindNotFound, Status: idm.StatusLbaOutOfRange}, nil
		}

		state := idm.StateLocked
		if len(e.hosts) > 1 {
			state = idm.StateMultipleLocked
		}

		rec := idm.Record{
			State:      state,
			Countdown:  e.countdown,
			Class:      e.class,
			LVB:        e.lvb,
			ResourceID: cmd.Record.ResourceID,
			HostID:     host,
		}
		return idm.Result{Kind: ilm.KindOK, Status: idm.StatusOK, Records: []idm.Record{rec}}, nil

	default:
		return idm.Result{Kind: ilm.KindInvalid, Status: idm.StatusInvalidOpcode}, nil
	}
}

// execGroupInquiry returns one record per (lock, host) membership pair
// currently live on the drive, the fake's equivalent of the firmware's
// whole-drive mutex group read. Callers filter by ResourceID/HostID
// themselves, the same as a real group-read consumer does. d.mu must
// already be held.
func (d *Device) execGroupInquiry() idm.Result {
	var records []idm.Record
	for id, e := range d.locks {
		state := idm.StateLocked
		if len(e.hosts) > 1 {
			state = idm.StateMultipleLocked
		}
		for h := range e.hosts {
			records = append(records, idm.Record{
				State:      state,
				Countdown:  e.countdown,
				Class:      e.class,
				LVB:        e.lvb,
				ResourceID: id,
				HostID:     h,
			})
		}
	}
	return idm.Result{Kind: ilm.KindOK, Status: idm.StatusOK, Records: records}
}

func allExpired(e *entry) bool {
	for h := range e.hosts {
		if !e.expired[h] {
			return false
		}
	}
	return true
}

func okResult() idm.Result {
	return idm.Result{Kind: ilm.KindOK, Status: idm.StatusOK}
}

func (d *Device) Identify() (idm.IdentifyRecord, error) {
	var rec idm.IdentifyRecord
	rec[1023] = idm.MinVersion
	return rec, nil
}
