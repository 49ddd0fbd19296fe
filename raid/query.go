// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package raid

import (
	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/drive"
	"github.com/dswarbrick/ilm/idm"
)

// hostTally is a per-drive (others, self) observation.
type hostTally struct {
	others int
	self   int
}

// driveLockCount scans one drive's mutex group for records belonging to
// l.ID, tallying how many distinct hosts other than l.HostID hold it and
// whether l.HostID itself appears. This mirrors the firmware's own
// group-read parse: a group read returns every mutex entry live on the
// drive, and the host matches entries by resource_id before counting them
// by host_id, rather than trusting a single record's State field (a
// drive can be asked about a lock it is not itself a member of, in which
// case there is no single "this lock's" record to read State from).
func driveLockCount(e *Engine, dev drive.Device, l *Lock) (hostTally, ilm.Kind) {
	cmd := idm.Command{Op: idm.OpNormal, Group: idm.GroupInquiry, NumRecords: idm.MaxGroupRecords}
	result, err := e.exec(dev, cmd)
	if err != nil || result.Kind != ilm.KindOK {
		return hostTally{}, ilm.KindIO
	}

	var t hostTally
	sawSelf := false
	for _, rec := range result.Records {
		if rec.ResourceID != l.ID {
			continue
		}
		if rec.State != idm.StateLocked && rec.State != idm.StateMultipleLocked {
			continue
		}

		if rec.HostID == l.HostID {
			if sawSelf {
				return hostTally{}, ilm.KindInvalid
			}
			sawSelf = true
			t.self = 1
		} else {
			t.others++
		}
	}

	return t, ilm.KindOK
}

// Count reports the number of other hosts and whether this host holds
// the lock, if a majority of drives agree on the same observation.
func (e *Engine) Count(l *Lock) (others, self int, kind ilm.Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tallies := make(map[hostTally]int)

	for i := range l.Drives {
		slot := &l.Drives[i]
		if slot.State != Accessed {
			continue
		}

		t, tkind := driveLockCount(e, slot.Device, l)
		if tkind != ilm.KindOK {
			continue
		}

		tallies[t]++
	}

	quorum := l.Quorum()
	for t, n := range tallies {
		if n >= quorum {
			return t.others, t.self, ilm.KindOK
		}
	}

	return 0, 0, ilm.KindIO
}

// Mode reports the lock mode a majority of drives agree the lock is
// currently in. A ProtectedWrite observation is a hard error: this
// manager never issues that class, so observing it means an incompatible
// peer wrote the record.
func (e *Engine) Mode(l *Lock) (ilm.Mode, ilm.Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tallies := make(map[ilm.Mode]int)

	for i := range l.Drives {
		slot := &l.Drives[i]
		if slot.State != Accessed {
			continue
		}

		result, err := e.exec(slot.Device, idm.Command{Op: idm.OpNormal, Group: idm.GroupDefault, Record: bareRecord(l)})
		if err != nil || result.Kind != ilm.KindOK || len(result.Records) == 0 {
			continue
		}

		rec := result.Records[0]
		if rec.Class == idm.ClassProtectedWrite {
			return 0, ilm.KindInvalid
		}

		mode, err := idm.ClassToMode(rec.Class)
		if err != nil {
			mode = ilm.ModeUnlocked
		}
		tallies[mode]++
	}

	quorum := l.Quorum()
	best := ilm.ModeUnlocked
	bestCount := -1
	for mode, n := range tallies {
		if n > bestCount {
			best, bestCount = mode, n
		}
	}

	if bestCount >= quorum {
		return best, ilm.KindOK
	}

	return 0, ilm.KindIO
}
