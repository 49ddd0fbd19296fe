// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package fmtutil holds small formatting helpers; raid.Lock's diagnostics
// dump uses Duration and Hex. Adapted from the teacher library's bitops.go /
// utils/utils.go, which used the same human-readable-quantity formatting
// for SMART attribute dumps.
package fmtutil

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"time"
	"unsafe"
)

// NativeEndian is the host's native byte order. No package in this module
// uses it at present; the IDM wire record is always big-endian regardless
// of host endianness.
var NativeEndian binary.ByteOrder

func init() {
	i := uint32(1)
	b := (*[4]byte)(unsafe.Pointer(&i))
	if b[0] == 1 {
		NativeEndian = binary.LittleEndian
	} else {
		NativeEndian = binary.BigEndian
	}
}

// Log2b finds the most significant bit set in a uint.
func Log2b(x uint) int {
	if x == 0 {
		return 0
	}
	return bits.Len(x) - 1
}

// Duration renders a millisecond countdown/timeout for diagnostics, with
// -1 rendered as "infinite" per the IDM countdown convention.
func Duration(ms int64) string {
	if ms < 0 {
		return "infinite"
	}
	return time.Duration(ms * int64(time.Millisecond)).String()
}

// Hex renders a fixed-length byte array as a compact hex string, truncated
// with an ellipsis past 16 bytes so a lock dump stays on one line.
func Hex(b []byte) string {
	if len(b) > 16 {
		return fmt.Sprintf("%x...", b[:16])
	}
	return fmt.Sprintf("%x", b)
}
