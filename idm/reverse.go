// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package idm

// reverse returns a new slice with b's bytes in reverse order. Fixed-length
// id and metadata fields are byte-reversed (little-end-first) between the
// manager's in-memory view and the wire; this adapts the teacher library's
// paired-byte swapBytes (which swapped every second byte of a 16-bit field
// run) to a whole-field reversal of arbitrary length.
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
