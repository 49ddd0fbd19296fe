// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package idm implements the on-wire IDM (In-Drive Mutex) record format:
// packing and unpacking the 512-byte per-lock payload exchanged with a
// drive's pass-through command, and mapping device status codes to the
// ilm.Kind error taxonomy. Every multi-byte field is big-endian on the
// wire, per the firmware's byte order, regardless of host endianness.
package idm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dswarbrick/ilm"
)

// RecordSize is the fixed length of the per-lock payload exchanged with a
// drive, in bytes.
const RecordSize = 512

// State is the read-only mutex state reported by the drive.
type State uint64

const (
	StateUninit         State = 0
	StateLocked         State = 0x101
	StateUnlocked        State = 0x102
	StateMultipleLocked  State = 0x103
	StateTimeout         State = 0x104
	StateDead            State = 0xdead
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	case StateMultipleLocked:
		return "multiple_locked"
	case StateTimeout:
		return "timeout"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("state(%#x)", uint64(s))
	}
}

// Class is the wire-level mutex class. This core only ever issues
// Exclusive <-> Shareable conversions (mapped from ilm.Mode) and treats a
// ProtectedWrite observation on read-back as a hard error.
type Class uint64

const (
	ClassExclusive            Class = 1
	ClassProtectedWrite       Class = 2
	ClassSharedProtectedRead  Class = 3
)

// ModeToClass maps the logical lock mode this core understands onto the
// wire class. ModeUnlocked has no class of its own; callers issue Unlock
// rather than a class-bearing command.
func ModeToClass(m ilm.Mode) (Class, error) {
	switch m {
	case ilm.ModeExclusive:
		return ClassExclusive, nil
	case ilm.ModeShareable:
		return ClassSharedProtectedRead, nil
	default:
		return 0, ilm.KindInvalid
	}
}

// ClassToMode is the inverse of ModeToClass. A ProtectedWrite class read
// back from a drive is rejected: this core never issues it, so observing
// it indicates a peer running an incompatible protocol version.
func ClassToMode(c Class) (ilm.Mode, error) {
	switch c {
	case ClassExclusive:
		return ilm.ModeExclusive, nil
	case ClassSharedProtectedRead:
		return ilm.ModeShareable, nil
	case ClassProtectedWrite:
		return 0, ilm.KindInvalid
	default:
		return 0, ilm.KindInvalid
	}
}

// ResVerType tags the interpretation of the resource_ver (LVB) field.
type ResVerType uint8

const (
	ResVerNoUpdateNoValid ResVerType = 0
	ResVerUpdateNoValid   ResVerType = 1
	ResVerUpdateValid     ResVerType = 2
	ResVerInvalid         ResVerType = 3
)

// InfiniteCountdown is the sentinel countdown value meaning "never expires".
// Only meaningful for Break (spec section 8: "break requires all peers to
// be infinite and currently unresponsive").
const InfiniteCountdown int64 = -1

// Record is the manager's in-memory view of the 512-byte per-lock payload.
// Fixed-length id/metadata fields are stored here in normal (big-endian,
// most-significant-byte-first) order; Encode/Decode perform the
// byte-reversal the wire format requires.
type Record struct {
	State      State // read-only; ignored by Encode
	TimeNow    uint64
	Modified   uint64 // read-only; ignored by Encode
	Countdown  int64
	Class      Class
	ResVerType ResVerType
	LVB        ilm.LVB
	ResourceID ilm.LockID
	Metadata   [64]byte
	HostID     ilm.HostID
}

// Wire offsets mirror struct idm_data's union layout: time_now and
// modified share one 8-byte slot (time_now on write, modified on read),
// followed by countdown, class, the 8-byte resource_ver, a 24-byte
// reserved gap, then resource_id/metadata/host_id.
const (
	offState      = 0
	offTimeNow    = 8
	offModified   = 8
	offCountdown  = 16
	offClass      = 24
	offResVer     = 32
	offReserved   = 40
	offResourceID = 64
	offMetadata   = 128
	offHostID     = 192
)

// offResVerType places the 2-bit resource_ver tag in the reserved gap
// rather than stealing a bit range from resource_ver itself: the firmware
// only ever echoes resource_ver back as an opaque 8-byte LVB, so packing
// the tag into one of its bytes would corrupt whatever the caller stored
// there on every round trip.
const offResVerType = offReserved

// Encode serializes a write record: a 512-byte payload built from the
// requested mode, countdown, LVB, res_ver_type and host UTC timestamp.
// State and Modified are drive-set and not transmitted by a write.
func (r *Record) Encode() ([RecordSize]byte, error) {
	var buf [RecordSize]byte

	binary.BigEndian.PutUint64(buf[offTimeNow:], r.TimeNow)
	binary.BigEndian.PutUint64(buf[offCountdown:], uint64(r.Countdown))
	binary.BigEndian.PutUint64(buf[offClass:], uint64(r.Class))

	copy(buf[offResVer:offResVer+8], r.LVB[:])
	buf[offResVerType] = byte(r.ResVerType)

	id := reverse(r.ResourceID[:])
	copy(buf[offResourceID:offResourceID+64], id)

	md := reverse(r.Metadata[:])
	copy(buf[offMetadata:offMetadata+64], md)

	hid := reverse(r.HostID[:])
	copy(buf[offHostID:offHostID+32], hid)

	return buf, nil
}

// Decode parses a single 512-byte record read back from a drive.
func Decode(buf []byte) (Record, error) {
	if len(buf) < RecordSize {
		return Record{}, ilm.KindInvalid
	}

	var r Record
	r.State = State(binary.BigEndian.Uint64(buf[offState:]))
	r.TimeNow = binary.BigEndian.Uint64(buf[offTimeNow:])
	r.Modified = binary.BigEndian.Uint64(buf[offModified:])
	r.Countdown = int64(binary.BigEndian.Uint64(buf[offCountdown:]))
	r.Class = Class(binary.BigEndian.Uint64(buf[offClass:]))
	r.ResVerType = ResVerType(buf[offResVerType])

	copy(r.LVB[:], buf[offResVer:offResVer+8])

	copy(r.ResourceID[:], reverse(buf[offResourceID:offResourceID+64]))
	copy(r.Metadata[:], reverse(buf[offMetadata:offMetadata+64]))
	copy(r.HostID[:], reverse(buf[offHostID:offHostID+32]))

	return r, nil
}

// DecodeMany parses exactly num consecutive 512-byte records from buf, as
// returned by a group read of a drive's mutex list; a buf shorter than
// num records is rejected.
func DecodeMany(buf []byte, num int) ([]Record, error) {
	if len(buf) < RecordSize*num {
		return nil, ilm.KindInvalid
	}

	records := make([]Record, num)
	r := bytes.NewReader(buf)

	for i := 0; i < num; i++ {
		chunk := make([]byte, RecordSize)
		if _, err := r.Read(chunk); err != nil {
			return nil, ilm.KindIO
		}

		rec, err := Decode(chunk)
		if err != nil {
			return nil, err
		}

		records[i] = rec
	}

	return records, nil
}
