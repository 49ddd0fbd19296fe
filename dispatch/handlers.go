// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package dispatch

import (
	"strings"
	"syscall"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/fault"
	"github.com/dswarbrick/ilm/fencing"
	"github.com/dswarbrick/ilm/idm"
	"github.com/dswarbrick/ilm/lockspace"
	"github.com/dswarbrick/ilm/protocol"
)

// decodeLockPayloadBody parses the LockPayload carried by acquire and
// convert requests.
func decodeLockPayloadBody(body []byte) (protocol.LockPayload, error) {
	return protocol.DecodeLockPayload(body)
}

// lockIDFromBody reads the 64-byte lock_id that prefixes every
// id-addressed request (write/read-lvb, lock-host-count, lock-mode,
// stop/start-renew, destroy, release).
func lockIDFromBody(body []byte) ilm.LockID {
	var id ilm.LockID
	if len(body) >= len(id) {
		copy(id[:], body)
	}
	return id
}

func handleVersion(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	return ilm.KindOK, put32(uint32(idm.MinVersion))
}

func handleAddLockspace(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	var id ilm.HostID
	if len(body) >= len(id) {
		copy(id[:], body)
	}
	kind := ls.SetHostID(id)
	if kind == ilm.KindOK {
		ls.Start()
	}
	return kind, nil
}

func handleDelLockspace(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	ls.Close()
	return ilm.KindOK, nil
}

func handleAcquire(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	payload, err := decodeLockPayloadBody(body)
	if err != nil {
		return ilm.KindInvalid, nil
	}
	kind := ls.Acquire(payload.LockID, payload.Mode, int64(payload.TimeoutMs), payload.Paths)
	return kind, nil
}

func handleRelease(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	return ls.Release(lockIDFromBody(body)), nil
}

func handleConvert(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	payload, err := decodeLockPayloadBody(body)
	if err != nil {
		return ilm.KindInvalid, nil
	}
	return ls.Convert(payload.LockID, payload.Mode), nil
}

func handleDestroy(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	return ls.Destroy(lockIDFromBody(body)), nil
}

func handleWriteLVB(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	id := lockIDFromBody(body)

	var lvb ilm.LVB
	if len(body) >= len(id)+len(lvb) {
		copy(lvb[:], body[len(id):])
	}

	return ls.WriteLVB(id, lvb), nil
}

func handleReadLVB(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	lvb, kind := ls.ReadLVB(lockIDFromBody(body))
	if kind != ilm.KindOK {
		return kind, nil
	}
	return kind, append([]byte(nil), lvb[:]...)
}

func handleLockHostCount(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	others, self, kind := ls.Count(lockIDFromBody(body))
	if kind != ilm.KindOK {
		return kind, nil
	}
	payload := append(put32(uint32(others)), put32(uint32(self))...)
	return kind, payload
}

func handleLockMode(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	mode, kind := ls.Mode(lockIDFromBody(body))
	if kind != ilm.KindOK {
		return kind, nil
	}
	return kind, put32(uint32(mode))
}

func handleSetSignal(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	if len(body) < 8 {
		return ilm.KindInvalid, nil
	}
	pid := int(le32(body[0:4]))
	sig := syscall.Signal(le32(body[4:8]))
	ls.SetFence(fencing.Signal{Pid: pid, Sig: sig})
	return ilm.KindOK, nil
}

// handleSetKillpath parses a NUL-separated "path\0arg1\0arg2\0\0" body:
// the executable path followed by its arguments, terminated by an empty
// field (two consecutive NULs, or simply running out of body).
func handleSetKillpath(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	fields := strings.Split(strings.TrimRight(string(body), "\x00"), "\x00")
	for i, f := range fields {
		if f == "" {
			fields = fields[:i]
			break
		}
	}
	if len(fields) == 0 {
		return ilm.KindInvalid, nil
	}

	path := fields[0]
	var args []string
	if len(fields) > 1 {
		args = fields[1:]
	}

	ls.SetFence(fencing.Exec{Path: path, Args: args})
	return ilm.KindOK, nil
}

func handleSetHostID(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	var id ilm.HostID
	if len(body) >= len(id) {
		copy(id[:], body)
	}
	return ls.SetHostID(id), nil
}

func handleStopRenew(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	return ls.StopRenew(lockIDFromBody(body)), nil
}

func handleStartRenew(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	return ls.StartRenew(lockIDFromBody(body)), nil
}

func handleInjectFault(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte) {
	if len(body) < 4 {
		return ilm.KindInvalid, nil
	}
	pct := int(le32(body[0:4]))
	if err := fault.SetPercent(pct); err != nil {
		return ilm.KindInvalid, nil
	}
	return ilm.KindOK, nil
}
