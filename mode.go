// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package ilm implements a host-side In-Drive Mutex (IDM) lock manager:
// it turns a per-drive mutex primitive exposed by SCSI / NVMe firmware
// into a single logical lock spanning a set of drives, using majority
// quorum so a lock survives the loss of a minority of drives.
package ilm

import "fmt"

// Mode is the logical lock mode a caller may request. It is distinct from
// the wire-level "class" (idm.Record.Class): this core only ever issues
// Exclusive <-> Shareable conversions and rejects a ProtectedWrite
// observation on read-back.
type Mode int

const (
	ModeUnlocked Mode = iota
	ModeExclusive
	ModeShareable
)

func (m Mode) String() string {
	switch m {
	case ModeUnlocked:
		return "unlocked"
	case ModeExclusive:
		return "exclusive"
	case ModeShareable:
		return "shareable"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// LockID is the 64-byte opaque lock identifier. Implementers typically carry
// two 32-byte UUIDs concatenated; this package treats it as a bag of bytes.
type LockID [64]byte

func (id LockID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// HostID is the 32-byte opaque host identifier, set once per lockspace.
type HostID [32]byte

func (id HostID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// LVB is the 8-byte Lock Value Block associated with each lock.
type LVB [8]byte
