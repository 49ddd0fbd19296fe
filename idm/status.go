// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package idm

import "github.com/dswarbrick/ilm"

// DeviceStatus is the raw, transport-specific status code a drive returns
// for an IDM command: a SCSI sense-derived code or an NVMe completion
// status. Transport packages (scsi, nvme) translate their own
// wire status into this common enumeration before calling MapStatus, so
// the mapping table lives in one place.
type DeviceStatus uint32

const (
	StatusOK DeviceStatus = iota
	// MutexConflict: SCSI Reservation Conflict / NVMe 0xC9.
	StatusMutexConflict
	// MutexHeldAlready: SCSI Terminated / NVMe 0xCA.
	StatusMutexHeldAlready
	// MutexHeldByAnother: SCSI Busy / NVMe 0xCB.
	StatusMutexHeldByAnother
	StatusLbaOutOfRange
	StatusMutexListFull
	StatusHostListFull
	StatusMutexHostListFull
	StatusInvalidOpcode
	// StatusDeviceIoError represents a transport-layer failure (e.g. the
	// pass-through ioctl itself failed), not a status the drive reported.
	StatusDeviceIoError
)

// MapStatus maps a device status to an ilm.Kind, according to the opcode
// that produced it. Unknown statuses map to KindInvalid.
func MapStatus(status DeviceStatus, op Opcode) ilm.Kind {
	switch status {
	case StatusOK:
		return ilm.KindOK

	case StatusMutexConflict:
		switch op {
		case OpRefresh:
			return ilm.KindExpired
		case OpUnlock:
			return ilm.KindNotFound
		default:
			return ilm.KindBusy
		}

	case StatusMutexHeldAlready:
		switch op {
		case OpRefresh:
			return ilm.KindPermissionDenied
		case OpUnlock:
			return ilm.KindInvalid
		default:
			return ilm.KindTryAgain
		}

	case StatusMutexHeldByAnother:
		return ilm.KindBusy

	case StatusLbaOutOfRange:
		return ilm.KindNotFound

	case StatusMutexListFull, StatusHostListFull, StatusMutexHostListFull:
		return ilm.KindOutOfMemory

	case StatusInvalidOpcode:
		return ilm.KindInvalid

	case StatusDeviceIoError:
		return ilm.KindIO

	default:
		return ilm.KindInvalid
	}
}
