// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package idm

import "github.com/dswarbrick/ilm"

// Command is a single IDM pass-through command: an opcode within a group,
// carrying the record to write (for write-shaped opcodes) or ignored (for
// a plain group read).
type Command struct {
	Op     Opcode
	Group  Group
	Record Record

	// NumRecords is the number of consecutive RecordSize blocks a read
	// command transfers back. Zero means one, the size every write-shaped
	// opcode and single-lock read uses; a GroupInquiry read sets this to
	// scan the drive's whole mutex list in one pass.
	NumRecords int
}

// Result is the outcome of executing a Command against one drive: the
// mapped error Kind, the raw device status for diagnostics, and any
// records returned by a read.
type Result struct {
	Kind    ilm.Kind
	Status  DeviceStatus
	Records []Record
}
