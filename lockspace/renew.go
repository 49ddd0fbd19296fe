// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package lockspace

import (
	"time"

	"github.com/dswarbrick/ilm"
)

// dueEntry is a snapshot of one lock due for a renewal attempt this tick,
// taken under ls.mu so the actual drive I/O in engine.Renew runs without
// holding the lockspace lock.
type dueEntry struct {
	id ilm.LockID
	e  *entry
}

// renewLoop ticks every ls.tickInterval, renewing every enabled,
// not-yet-dead lock whose own per-lock interval (⌊timeout/2⌋) has
// elapsed. Convert and Renew are mutually exclusive on the same lock for
// free: both take raid.Lock's own mutex inside the engine call.
func (ls *Lockspace) renewLoop() {
	defer ls.wg.Done()

	ticker := time.NewTicker(ls.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ls.stopCh:
			return
		case <-ticker.C:
			ls.renewTick()
		}
	}
}

// renewTick runs one scheduling pass.
func (ls *Lockspace) renewTick() {
	now := time.Now()

	ls.mu.Lock()
	due := make([]dueEntry, 0, len(ls.locks))
	for id, e := range ls.locks {
		if !e.renewEnabled || e.dead {
			continue
		}
		if !renewalDue(e, now) {
			continue
		}
		due = append(due, dueEntry{id: id, e: e})
	}
	ls.mu.Unlock()

	for _, d := range due {
		ls.renewOne(d.id, d.e, now)
	}
}

// renewalDue reports whether e's per-lock interval (⌊timeout/2⌋) has
// elapsed since its last renewal. A lock with an infinite timeout is due
// on every tick.
func renewalDue(e *entry, now time.Time) bool {
	if e.lock.Timeout < 0 {
		return true
	}
	interval := time.Duration(e.lock.Timeout/2) * time.Millisecond
	return now.Sub(e.lastRenew) >= interval
}

// renewOne renews a single lock and reacts to the outcome: a clean
// Expired is immediately fatal, while Io failures are tolerated up to
// maxRenewIOFailures before being treated as a permanent quorum loss.
// Either fatal outcome fences exactly once and marks the lock dead.
func (ls *Lockspace) renewOne(id ilm.LockID, e *entry, now time.Time) {
	kind := ls.engine.Renew(e.lock)

	ls.mu.Lock()

	// The entry may have been released/destroyed concurrently; only act
	// on it if it is still the lockspace's current entry for id.
	if ls.locks[id] != e || e.dead {
		ls.mu.Unlock()
		return
	}

	e.lastRenew = now
	fatal := false

	switch kind {
	case ilm.KindOK:
		e.ioFailures = 0
	case ilm.KindExpired:
		e.dead = true
		fatal = true
	case ilm.KindIO:
		e.ioFailures++
		if e.ioFailures >= maxRenewIOFailures {
			e.dead = true
			fatal = true
		}
	}

	fence := ls.fence
	ls.mu.Unlock()

	if fatal {
		fence.Fence()
	}
}
