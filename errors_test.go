// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package ilm

import "testing"

func TestErrnoRoundTripsThroughKindFromErrno(t *testing.T) {
	kinds := []Kind{
		KindOK, KindInvalid, KindNotFound, KindBusy, KindTryAgain,
		KindExpired, KindPermissionDenied, KindOutOfMemory, KindIO, KindTimeout,
	}

	for _, k := range kinds {
		got := KindFromErrno(k.Errno())
		if got != k {
			t.Errorf("KindFromErrno(%d.Errno()) = %v, want %v", k, got, k)
		}
	}
}

func TestKindFromErrnoRejectsUnknownCode(t *testing.T) {
	if got := KindFromErrno(-999); got != KindInvalid {
		t.Errorf("KindFromErrno(-999) = %v, want KindInvalid", got)
	}
}
