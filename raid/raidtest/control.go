// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package raidtest

import (
	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/drive"
)

// NewDevices returns n fresh fake devices, at paths /dev/fakea,
// /dev/fakeb, ... (the letter wraps after the 26th device).
func NewDevices(n int) []*Device {
	devices := make([]*Device, n)
	for i := range devices {
		devices[i] = New(pathFor(i))
	}
	return devices
}

func pathFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "/dev/fake" + string(letters[i%len(letters)])
}

// AsDriveDevices widens a []*Device to the []drive.Device raid.NewLock
// expects.
func AsDriveDevices(devices []*Device) []drive.Device {
	out := make([]drive.Device, len(devices))
	for i, d := range devices {
		out[i] = d
	}
	return out
}

// Expire marks id's countdown as having lapsed on d for every host
// currently holding it: the next Refresh reports KindExpired, simulating a
// host that went silent long enough for the drive's own countdown timer to
// fire.
func (d *Device) Expire(id ilm.LockID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.locks[id]
	if !ok {
		return
	}
	for h := range e.hosts {
		e.expired[h] = true
	}
}

// Lose makes every subsequent Exec against d fail as if the drive had
// dropped off the bus, simulating the minority drive-loss scenarios.
func (d *Device) Lose() {
	d.SetFailPercent(100)
}

// Restore undoes Lose.
func (d *Device) Restore() {
	d.SetFailPercent(0)
}

// HeldBy reports whether id is currently held on d by host.
func (d *Device) HeldBy(id ilm.LockID, host ilm.HostID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.locks[id]
	if !ok {
		return false
	}
	return e.hosts[host]
}

// AnyHeld reports whether id has any current holder on d.
func (d *Device) AnyHeld(id ilm.LockID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.locks[id]
	return ok && len(e.hosts) > 0
}
