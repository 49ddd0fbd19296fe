// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package fault implements a process-wide fault injection gate: a
// percentage probability that any externally triggered entry point
// short-circuits with an I/O error, for exercising quorum-loss and
// fencing paths without real drive failures.
package fault

import (
	"math/rand"
	"sync/atomic"

	"github.com/dswarbrick/ilm"
)

var percent int32

// SetPercent sets the hit probability (0..=100). Out of range is rejected.
func SetPercent(p int) error {
	if p < 0 || p > 100 {
		return ilm.KindInvalid
	}
	atomic.StoreInt32(&percent, int32(p))
	return nil
}

// Percent returns the currently configured percentage.
func Percent() int {
	return int(atomic.LoadInt32(&percent))
}

// IsHit returns true on a pseudo-random Percent() of calls. Every
// externally triggered operation calls this first and, on true, returns
// ilm.KindIO without touching any drive.
func IsHit() bool {
	p := atomic.LoadInt32(&percent)
	if p <= 0 {
		return false
	}
	if p >= 100 {
		return true
	}
	return rand.Intn(100) < int(p)
}
