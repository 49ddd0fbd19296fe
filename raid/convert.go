// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package raid

import (
	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/idm"
)

// isPromotion reports whether converting from `from` to `to` is a
// Shareable -> Exclusive promotion, the direction that requires a revert
// attempt on partial failure.
func isPromotion(from, to ilm.Mode) bool {
	return from == ilm.ModeShareable && to == ilm.ModeExclusive
}

// Convert refreshes every drive to newMode. A promotion that fails to
// reach quorum attempts to revert the drives it did convert back to the
// old mode; a demotion that fails to reach quorum is treated as
// successful but latches convertFailed, since a partially-applied
// demotion is never logically unsafe to leave in place.
func (e *Engine) Convert(l *Lock, newMode ilm.Mode) ilm.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.convertFailed {
		return ilm.KindTryAgain
	}

	oldMode := l.Mode
	score, allExpired := e.perDriveConvert(l, newMode)

	quorum := l.Quorum()
	if score >= quorum {
		l.Mode = newMode
		return ilm.KindOK
	}

	if allExpired {
		return ilm.KindExpired
	}

	if isPromotion(oldMode, newMode) {
		revertScore, _ := e.perDriveConvert(l, oldMode)
		if revertScore < quorum {
			l.convertFailed = true
		}
		return ilm.KindBusy
	}

	// Demotion: accept the partial result and forbid further converts.
	l.Mode = newMode
	l.convertFailed = true
	return ilm.KindOK
}

// perDriveConvert runs Refresh(newMode) on every drive, acquiring first
// if the slot is currently NoAccess, and returns the number of drives
// that ended up Accessed plus whether every drive reported Expired.
func (e *Engine) perDriveConvert(l *Lock, mode ilm.Mode) (score int, allExpired bool) {
	allExpired = true

	for i := range l.Drives {
		slot := &l.Drives[i]

		if slot.State == NoAccess {
			if e.perDriveAcquire(slot, l, mode) == ilm.KindOK {
				slot.State = Accessed
			}
		}

		if slot.State != Accessed {
			allExpired = false
			continue
		}

		rec, err := buildRecord(l, mode, nil)
		if err != nil {
			continue
		}

		result, err := e.exec(slot.Device, idm.Command{Op: idm.OpRefresh, Group: idm.GroupDefault, Record: rec})
		if err != nil || result.Kind == ilm.KindIO {
			slot.State = Failed
			allExpired = false
			continue
		}

		allExpired = allExpired && result.Kind == ilm.KindExpired

		switch result.Kind {
		case ilm.KindOK:
			score++
		case ilm.KindExpired:
			_, _ = e.exec(slot.Device, unlockCommand(bareRecord(l)))
			slot.State = NoAccess
		}
	}

	return score, allExpired
}

// Renew is Convert with the lock's current mode, plus recovery for a
// firmware-reported mode mismatch: Unlock then Trylock with the cached
// mode to re-establish a clean context. The even/odd Q rule matches
// source logic: even N requires only N/2 alive, odd N requires the usual
// N/2+1.
func (e *Engine) Renew(l *Lock) ilm.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()

	required := l.N() / 2
	if l.N()%2 != 0 {
		required++
	}

	alive := 0

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

		rec, err := buildRecord(l, l.Mode, nil)
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
			alive++

		case ilm.KindExpired:
			_, _ = e.exec(slot.Device, unlockCommand(bareRecord(l)))
			slot.State = NoAccess

		case ilm.KindInvalid:
			// Firmware-reported mode mismatch (EFAULT-equivalent):
			// drop and re-establish a clean context.
			_, _ = e.exec(slot.Device, unlockCommand(bareRecord(l)))
			slot.State = NoAccess
			if e.perDriveAcquire(slot, l, l.Mode) == ilm.KindOK {
				slot.State = Accessed
				alive++
			}
		}
	}

	if alive >= required {
		return ilm.KindOK
	}

	return ilm.KindExpired
}
