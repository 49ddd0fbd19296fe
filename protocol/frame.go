// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package protocol implements the client-dispatcher wire frames: a fixed
// MsgHeader carrying an opcode and payload length, and a LockPayload for
// the lock-shaped opcodes. Every multi-byte field is little-endian on the
// wire, distinct from idm.Record's big-endian device-facing layout.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/dswarbrick/ilm"
)

// MsgMagic identifies a valid MsgHeader.
const MsgMagic uint32 = 0x494C4D00

// LockMagic identifies a valid LockPayload.
const LockMagic uint32 = 0x4C4F434B

// PathMax bounds each drive path string following a LockPayload.
const PathMax = 4096

// Opcode identifies the requested dispatcher operation.
type Opcode uint32

const (
	OpVersion Opcode = iota
	OpAddLockspace
	OpDelLockspace
	OpAcquire
	OpRelease
	OpConvert
	OpDestroy
	OpWriteLVB
	OpReadLVB
	OpLockHostCount
	OpLockMode
	OpSetSignal
	OpSetKillpath
	OpSetHostID
	OpStopRenew
	OpStartRenew
	OpInjectFault
)

func (o Opcode) String() string {
	switch o {
	case OpVersion:
		return "version"
	case OpAddLockspace:
		return "add_lockspace"
	case OpDelLockspace:
		return "del_lockspace"
	case OpAcquire:
		return "acquire"
	case OpRelease:
		return "release"
	case OpConvert:
		return "convert"
	case OpDestroy:
		return "destroy"
	case OpWriteLVB:
		return "write_lvb"
	case OpReadLVB:
		return "read_lvb"
	case OpLockHostCount:
		return "lock_host_count"
	case OpLockMode:
		return "lock_mode"
	case OpSetSignal:
		return "set_signal"
	case OpSetKillpath:
		return "set_killpath"
	case OpSetHostID:
		return "set_host_id"
	case OpStopRenew:
		return "stop_renew"
	case OpStartRenew:
		return "start_renew"
	case OpInjectFault:
		return "inject_fault"
	default:
		return fmt.Sprintf("opcode(%d)", uint32(o))
	}
}

// HeaderSize is the wire size of MsgHeader.
const HeaderSize = 16

// MsgHeader frames every request and reply. Result is 0 on a request (the
// field is unused) and an -errno-style value on a reply.
type MsgHeader struct {
	Magic  uint32
	Cmd    Opcode
	Length uint32
	Result int32
}

// Encode serializes h.
func (h MsgHeader) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Cmd))
	binary.LittleEndian.PutUint32(buf[8:12], h.Length)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Result))
	return buf
}

// DecodeHeader parses a MsgHeader from buf, validating the magic.
func DecodeHeader(buf []byte) (MsgHeader, error) {
	if len(buf) < HeaderSize {
		return MsgHeader{}, fmt.Errorf("protocol: short header (%d bytes)", len(buf))
	}

	h := MsgHeader{
		Magic:  binary.LittleEndian.Uint32(buf[0:4]),
		Cmd:    Opcode(binary.LittleEndian.Uint32(buf[4:8])),
		Length: binary.LittleEndian.Uint32(buf[8:12]),
		Result: int32(binary.LittleEndian.Uint32(buf[12:16])),
	}

	if h.Magic != MsgMagic {
		return h, fmt.Errorf("protocol: bad header magic %#x", h.Magic)
	}

	return h, nil
}

// lockPayloadSize is the fixed portion of LockPayload, excluding the
// trailing drive_num path strings.
const lockPayloadSize = 4 + 4 + 4 + 64 + 4 + 4

// LockPayload is the body of the acquire and convert opcodes: identity,
// mode, timeout, and the drive set the lock spans. The other lock opcodes
// carry a bare lock ID instead.
type LockPayload struct {
	Mode      ilm.Mode
	DriveNum  uint32
	LockID    ilm.LockID
	TimeoutMs int32
	Quiescent int32
	Paths     []string // len(Paths) == DriveNum
}

// Encode serializes p, including its trailing PathMax-byte path strings.
func (p LockPayload) Encode() ([]byte, error) {
	if int(p.DriveNum) != len(p.Paths) {
		return nil, fmt.Errorf("protocol: drive_num %d does not match %d paths", p.DriveNum, len(p.Paths))
	}

	buf := make([]byte, lockPayloadSize+int(p.DriveNum)*PathMax)

	binary.LittleEndian.PutUint32(buf[0:4], LockMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.Mode))
	binary.LittleEndian.PutUint32(buf[8:12], p.DriveNum)
	copy(buf[12:76], p.LockID[:])
	binary.LittleEndian.PutUint32(buf[76:80], uint32(p.TimeoutMs))
	binary.LittleEndian.PutUint32(buf[80:84], uint32(p.Quiescent))

	for i, path := range p.Paths {
		if len(path) >= PathMax {
			return nil, fmt.Errorf("protocol: path %q exceeds PATH_MAX", path)
		}
		off := lockPayloadSize + i*PathMax
		copy(buf[off:off+PathMax], path)
	}

	return buf, nil
}

// DecodeLockPayload parses a LockPayload from buf.
func DecodeLockPayload(buf []byte) (LockPayload, error) {
	if len(buf) < lockPayloadSize {
		return LockPayload{}, fmt.Errorf("protocol: short lock payload (%d bytes)", len(buf))
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != LockMagic {
		return LockPayload{}, fmt.Errorf("protocol: bad lock payload magic %#x", magic)
	}

	p := LockPayload{
		Mode:      ilm.Mode(binary.LittleEndian.Uint32(buf[4:8])),
		DriveNum:  binary.LittleEndian.Uint32(buf[8:12]),
		TimeoutMs: int32(binary.LittleEndian.Uint32(buf[76:80])),
		Quiescent: int32(binary.LittleEndian.Uint32(buf[80:84])),
	}
	copy(p.LockID[:], buf[12:76])

	want := lockPayloadSize + int(p.DriveNum)*PathMax
	if len(buf) < want {
		return LockPayload{}, fmt.Errorf("protocol: lock payload missing %d path bytes", want-len(buf))
	}

	p.Paths = make([]string, p.DriveNum)
	for i := range p.Paths {
		off := lockPayloadSize + i*PathMax
		p.Paths[i] = cString(buf[off : off+PathMax])
	}

	return p, nil
}

// cString trims a fixed-width NUL-padded field to its Go string content.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
