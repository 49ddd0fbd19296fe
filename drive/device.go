// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package drive unifies the SCSI and NVMe IDM transports behind one
// synchronous Device interface, the way the teacher library's
// cmd/smartctl dispatched between its scsi and nvme packages by device
// path prefix.
package drive

import (
	"strings"

	"github.com/dswarbrick/ilm/idm"
	"github.com/dswarbrick/ilm/nvme"
	"github.com/dswarbrick/ilm/scsi"
)

// Device is a single drive's IDM transport: issue a pass-through command
// synchronously, or read back its identify page.
type Device interface {
	Path() string
	Open() error
	Close() error
	Exec(cmd idm.Command) (idm.Result, error)
	Identify() (idm.IdentifyRecord, error)
}

// Open autodetects the transport for the device at path (NVMe char device
// vs. SCSI generic device) and returns an unopened Device, mirroring the
// teacher's cmd/smartctl dispatch:
//
//	if strings.HasPrefix(*device, "/dev/nvme") { d = nvme.NewNVMeDevice(*device) } else { ... }
func Open(path string) Device {
	if strings.HasPrefix(path, "/dev/nvme") {
		return nvme.New(path)
	}
	return scsi.New(path)
}

// ReadVersion preserves the lossy version-probe contract exactly: it
// returns 0x100 iff the device's vendor byte is >= idm.MinVersion, else 0.
// Higher-level code depends on this sentinel; do not "correct" it to
// return the actual version.
func ReadVersion(d Device) (int, error) {
	rec, err := d.Identify()
	if err != nil {
		return 0, err
	}

	if rec.VersionByte() >= idm.MinVersion {
		return 0x100, nil
	}

	return 0, nil
}
