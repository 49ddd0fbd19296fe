// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package idm

// MinVersion is the minimum vendor-byte value Identify must observe for a
// drive to be treated as IDM-capable. The exact numeric value is a firmware
// contract, not something this core should second-guess.
const MinVersion = 0x01

// IdentifyRecord is the raw vendor identify page read from a drive. Byte
// 1023 is treated as the IDM-spec version byte (design note: callers
// report only a single lossy bit of capability, not the literal version,
// to stay compatible with the SCSI side's single-bit encoding).
type IdentifyRecord [1024]byte

// VersionByte returns the vendor byte inspected for IDM support.
func (r IdentifyRecord) VersionByte() byte {
	return r[1023]
}
