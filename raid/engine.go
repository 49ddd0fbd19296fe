// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package raid

import (
	"math/rand"
	"time"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/async"
	"github.com/dswarbrick/ilm/drive"
	"github.com/dswarbrick/ilm/idm"
)

// AcquireDeadline bounds the wall-clock budget of Acquire and WriteLVB.
// The other RAID operations make one pass over the drives with no outer
// deadline; each per-drive command is bounded only by jobPollBudget.
const AcquireDeadline = 5 * time.Second

// backoffMin/backoffMax bound the random symmetry-breaking sleep between
// failed acquire rounds.
const (
	backoffMin = 1 * time.Microsecond
	backoffMax = 10 * time.Microsecond
)

// jobPollInterval/jobPollBudget bound how long a single per-drive command
// is allowed to wait for its async outcome before giving up on that
// drive, distinct from the outer 5 s quorum deadline.
const (
	jobPollInterval = 5 * time.Millisecond
	jobPollBudget   = 2 * time.Second
)

// Engine executes the nine RAID lock operations (Acquire, Release,
// Convert, Renew, Destroy, WriteLVB, ReadLVB, Count, Mode) against a Lock's drives,
// routing each per-drive command through the async substrate (submit,
// then poll for the outcome) rather than calling Device.Exec directly, so
// the per-pool worker owns the open/exec/close cycle for every command,
// synchronous or not.
type Engine struct {
	registry *async.Registry
}

// NewEngine returns an Engine backed by registry.
func NewEngine(registry *async.Registry) *Engine {
	return &Engine{registry: registry}
}

// exec submits cmd against dev and blocks for its outcome.
func (e *Engine) exec(dev drive.Device, cmd idm.Command) (idm.Result, error) {
	pool := e.registry.GetOrCreate(dev.Path())
	id := pool.Submit(async.Job{Device: dev, Cmd: cmd})

	retryMax := int(jobPollBudget / jobPollInterval)
	outcome, err := pool.FindResult(id, retryMax, jobPollInterval)
	if err != nil {
		return idm.Result{Kind: ilm.KindTimeout}, err
	}

	return outcome.Result, outcome.Err
}

// buildRecord assembles the write record for a given mode, countdown, and
// LVB, leaving ResVerType at its zero value (no LVB update) unless lvb is
// non-nil.
func buildRecord(l *Lock, mode ilm.Mode, lvb *ilm.LVB) (idm.Record, error) {
	class, err := idm.ModeToClass(mode)
	if err != nil {
		return idm.Record{}, err
	}

	rec := idm.Record{
		ResourceID: l.ID,
		HostID:     l.HostID,
		Class:      class,
		Countdown:  l.Timeout,
	}

	if lvb != nil {
		rec.LVB = *lvb
		rec.ResVerType = idm.ResVerUpdateValid
	}

	return rec, nil
}

// bareRecord builds the identity-only record an Unlock/Break-shaped
// command needs: class is meaningless once a drive is being told to drop
// membership, so it is left at its zero value rather than requiring a
// valid mode.
func bareRecord(l *Lock) idm.Record {
	return idm.Record{
		ResourceID: l.ID,
		HostID:     l.HostID,
		Countdown:  l.Timeout,
	}
}

// unlockCommand builds the Unlock command for rec, the shape every
// rollback / release / recovery path issues.
func unlockCommand(rec idm.Record) idm.Command {
	return idm.Command{Op: idm.OpUnlock, Group: idm.GroupDefault, Record: rec}
}

// randomBackoff sleeps a uniform random 1-10us, the symmetry-breaking
// delay required between failed acquire rounds so two racing hosts do not
// livelock by each grabbing exactly half the drives every round.
func randomBackoff() {
	span := backoffMax - backoffMin
	d := backoffMin + time.Duration(rand.Int63n(int64(span)+1))
	time.Sleep(d)
}

// perDriveAcquire runs the acquire algorithm for one drive slot: Trylock,
// with Busy handled by Break and TryAgain handled by Unlock-then-retry.
func (e *Engine) perDriveAcquire(slot *DriveSlot, l *Lock, mode ilm.Mode) ilm.Kind {
	rec, err := buildRecord(l, mode, nil)
	if err != nil {
		return ilm.KindInvalid
	}

	result, err := e.exec(slot.Device, idm.Command{Op: idm.OpTrylock, Group: idm.GroupDefault, Record: rec})
	if err != nil {
		return ilm.KindIO
	}

	switch result.Kind {
	case ilm.KindOK:
		return ilm.KindOK

	case ilm.KindBusy:
		breakResult, err := e.exec(slot.Device, idm.Command{Op: idm.OpBreak, Group: idm.GroupDefault, Record: rec})
		if err != nil {
			return ilm.KindIO
		}
		return breakResult.Kind

	case ilm.KindTryAgain:
		_, _ = e.exec(slot.Device, unlockCommand(bareRecord(l)))
		// Expired on the unlock is expected and tolerated; retry trylock
		// either way.
		retryResult, err := e.exec(slot.Device, idm.Command{Op: idm.OpTrylock, Group: idm.GroupDefault, Record: rec})
		if err != nil {
			return ilm.KindIO
		}
		return retryResult.Kind

	default:
		return result.Kind
	}
}
