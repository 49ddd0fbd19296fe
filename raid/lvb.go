// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package raid

import (
	"time"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/idm"
)

// WriteLVB writes newLVB to every drive (a Refresh carrying an LVB
// update), acquiring first on any NoAccess slot. If fewer than Quorum()
// drives succeed within the 5s deadline, it rolls back by writing the
// previously cached LVB to every drive and returns failure. The rollback
// itself has no quorum check (documented known limitation: if the
// rollback also fails to reach quorum, the cached LVB can diverge from
// what a majority of drives hold).
func (e *Engine) WriteLVB(l *Lock, newLVB ilm.LVB) ilm.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := time.Now().Add(AcquireDeadline)
	oldLVB := l.LVB
	quorum := l.Quorum()

	if e.perDriveWriteLVB(l, newLVB, deadline) >= quorum {
		l.LVB = newLVB
		return ilm.KindOK
	}

	e.perDriveWriteLVB(l, oldLVB, deadline)
	return ilm.KindIO
}

func (e *Engine) perDriveWriteLVB(l *Lock, lvb ilm.LVB, deadline time.Time) int {
	score := 0

	for i := range l.Drives {
		if time.Now().After(deadline) {
			break
		}

		slot := &l.Drives[i]

		if slot.State == NoAccess {
			if e.perDriveAcquire(slot, l, l.Mode) == ilm.KindOK {
				slot.State = Accessed
			}
		}
		if slot.State != Accessed {
			continue
		}

		rec, err := buildRecord(l, l.Mode, &lvb)
		if err != nil {
			continue
		}

		result, err := e.exec(slot.Device, idm.Command{Op: idm.OpRefresh, Group: idm.GroupDefault, Record: rec})
		if err != nil || result.Kind == ilm.KindIO {
			slot.State = Failed
			continue
		}

		switch result.Kind {
		case ilm.KindOK:
			score++
		case ilm.KindExpired:
			_, _ = e.exec(slot.Device, unlockCommand(bareRecord(l)))
			slot.State = NoAccess
		}
	}

	return score
}

// ReadLVB returns the LVB value reported by a majority of drives,
// acquiring first on any NoAccess slot, or failure if no value reaches
// quorum.
func (e *Engine) ReadLVB(l *Lock) (ilm.LVB, ilm.Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[ilm.LVB]int)

	for i := range l.Drives {
		slot := &l.Drives[i]

		if slot.State == NoAccess {
			if e.perDriveAcquire(slot, l, l.Mode) == ilm.KindOK {
				slot.State = Accessed
			}
		}
		if slot.State != Accessed {
			continue
		}

		rec := bareRecord(l)
		result, err := e.exec(slot.Device, idm.Command{Op: idm.OpNormal, Group: idm.GroupDefault, Record: rec})
		if err != nil || result.Kind != ilm.KindOK || len(result.Records) == 0 {
			continue
		}

		counts[result.Records[0].LVB]++
	}

	quorum := l.Quorum()
	for lvb, n := range counts {
		if n >= quorum {
			return lvb, ilm.KindOK
		}
	}

	return ilm.LVB{}, ilm.KindIO
}
