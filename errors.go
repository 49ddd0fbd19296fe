// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package ilm

import "fmt"

// Kind is the error taxonomy shared by every layer of the manager: the wire
// codec maps device status into a Kind (idm package), the RAID engine
// summarizes per-drive Kinds into one Kind per operation, and the dispatcher
// maps a Kind to a -errno-style result code on the wire.
//
// Per-drive errors never propagate directly to clients; they feed into the
// quorum tally and only the RAID engine's summarizing Kind crosses the
// dispatcher boundary.
type Kind int

const (
	// KindOK is the zero value: no error.
	KindOK Kind = iota
	KindInvalid
	KindNotFound
	KindBusy
	KindTryAgain
	KindExpired
	KindPermissionDenied
	KindOutOfMemory
	KindIO
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	case KindTryAgain:
		return "try_again"
	case KindExpired:
		return "expired"
	case KindPermissionDenied:
		return "permission_denied"
	case KindOutOfMemory:
		return "out_of_memory"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error implements the error interface so a bare Kind can be returned and
// compared with errors.Is / == without an extra wrapper in the common case.
func (k Kind) Error() string {
	return k.String()
}

// Errno maps a Kind to the negative errno-style integer the dispatcher
// writes into MsgHeader.Result (spec section 6: "result set (0 = ok,
// negative = -errno mapped from the error taxonomy)").
func (k Kind) Errno() int32 {
	switch k {
	case KindOK:
		return 0
	case KindInvalid:
		return -22 // EINVAL
	case KindNotFound:
		return -2 // ENOENT
	case KindBusy:
		return -16 // EBUSY
	case KindTryAgain:
		return -11 // EAGAIN
	case KindExpired:
		return -110 // ETIMEDOUT (membership lapsed, caller must re-acquire)
	case KindPermissionDenied:
		return -1 // EPERM
	case KindOutOfMemory:
		return -12 // ENOMEM
	case KindIO:
		return -5 // EIO
	case KindTimeout:
		return -62 // ETIME
	default:
		return -22
	}
}

// KindFromErrno reverses Errno, for a client decoding MsgHeader.Result back
// into the error taxonomy. Unrecognized codes map to KindInvalid.
func KindFromErrno(errno int32) Kind {
	switch errno {
	case 0:
		return KindOK
	case -2:
		return KindNotFound
	case -16:
		return KindBusy
	case -11:
		return KindTryAgain
	case -110:
		return KindExpired
	case -1:
		return KindPermissionDenied
	case -12:
		return KindOutOfMemory
	case -5:
		return KindIO
	case -62:
		return KindTimeout
	default:
		return KindInvalid
	}
}

// DriveError wraps a summarizing Kind together with the raw device status
// that produced it, so diagnostics can recover the original status word
// without overloading a single int for both purposes (design note: split
// the duck-typed "device status / errno / ret code" word used by the
// original implementation into a discriminated result type).
type DriveError struct {
	Kind         Kind
	DeviceStatus uint32
	Drive        string
}

func (e *DriveError) Error() string {
	return fmt.Sprintf("drive %s: %s (device status %#x)", e.Drive, e.Kind, e.DeviceStatus)
}

func (e *DriveError) Unwrap() error {
	return e.Kind
}
