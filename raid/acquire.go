// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package raid

import (
	"time"

	"github.com/dswarbrick/ilm"
)

// Acquire transitions l from all-NoAccess to at least Quorum() slots
// Accessed, within a 5s overall deadline. On failure every slot is rolled
// back to NoAccess before returning.
func (e *Engine) Acquire(l *Lock, mode ilm.Mode) ilm.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := time.Now().Add(AcquireDeadline)
	quorum := l.Quorum()

	for time.Now().Before(deadline) {
		score := 0

		for i := range l.Drives {
			switch e.perDriveAcquire(&l.Drives[i], l, mode) {
			case ilm.KindOK:
				l.Drives[i].State = Accessed
				score++
			case ilm.KindIO:
				l.Drives[i].State = Failed
			}
		}

		if score >= quorum {
			l.Mode = mode
			l.convertFailed = false
			return ilm.KindOK
		}

		e.rollback(l)
		randomBackoff()
	}

	return ilm.KindTimeout
}

// rollback unlocks every Accessed slot and resets every slot (Failed ones
// included) to NoAccess, so the contending host can make progress on the
// next round.
func (e *Engine) rollback(l *Lock) {
	for i := range l.Drives {
		if l.Drives[i].State == Accessed {
			_, _ = e.exec(l.Drives[i].Device, unlockCommand(bareRecord(l)))
		}
		l.Drives[i].State = NoAccess
	}
}

// Release issues a best-effort Unlock on every drive and always resets
// every slot to NoAccess, even on a repeated call against an
// already-released lock.
func (e *Engine) Release(l *Lock) ilm.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := bareRecord(l)
	last := ilm.KindOK

	for i := range l.Drives {
		result, err := e.exec(l.Drives[i].Device, unlockCommand(rec))
		l.Drives[i].State = NoAccess

		if err != nil {
			last = ilm.KindIO
			continue
		}
		if result.Kind != ilm.KindOK && result.Kind != ilm.KindNotFound {
			last = result.Kind
		}
	}

	l.Mode = ilm.ModeUnlocked
	l.convertFailed = false

	return last
}
