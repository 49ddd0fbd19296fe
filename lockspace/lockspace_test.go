// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package lockspace

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/drive"
	"github.com/dswarbrick/ilm/raid/raidtest"
)

// fakeOpener backs Lockspace.OpenDevice with a fixed pool of raidtest
// devices keyed by path, so a test can reach back into the same device
// instances a Lockspace call opened.
type fakeOpener struct {
	mu      sync.Mutex
	devices map[string]*raidtest.Device
}

func newFakeOpener(devices []*raidtest.Device) *fakeOpener {
	m := make(map[string]*raidtest.Device, len(devices))
	for _, d := range devices {
		m[d.Path()] = d
	}
	return &fakeOpener{devices: m}
}

func (f *fakeOpener) open(path string) drive.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[path]
}

func paths(devices []*raidtest.Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.Path()
	}
	return out
}

func hostID(b byte) ilm.HostID {
	var id ilm.HostID
	id[0] = b
	return id
}

func lockID(b byte) ilm.LockID {
	var id ilm.LockID
	id[0] = b
	return id
}

func newLockspace(devices []*raidtest.Device) *Lockspace {
	ls := New(nil)
	ls.OpenDevice = newFakeOpener(devices).open
	ls.SetHostID(hostID(1))
	return ls
}

func TestSetHostIDLocksAfterFirstAcquire(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)
	defer ls.Close()

	require.Equal(t, ilm.KindOK, ls.Acquire(lockID(1), ilm.ModeExclusive, 3000, paths(devices)))
	assert.Equal(t, ilm.KindPermissionDenied, ls.SetHostID(hostID(2)))
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)
	defer ls.Close()

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 3000, paths(devices)))

	mode, kind := ls.Mode(id)
	require.Equal(t, ilm.KindOK, kind)
	assert.Equal(t, ilm.ModeExclusive, mode)

	assert.Equal(t, ilm.KindOK, ls.Release(id))
	assert.False(t, devices[0].AnyHeld(id))
	assert.False(t, devices[1].AnyHeld(id))
}

func TestAcquireSameIDTwiceIsRejected(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)
	defer ls.Close()

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 3000, paths(devices)))
	assert.Equal(t, ilm.KindBusy, ls.Acquire(id, ilm.ModeExclusive, 3000, paths(devices)))
}

func TestOperationsOnUnknownLockReturnNotFound(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)
	defer ls.Close()

	id := lockID(9)
	assert.Equal(t, ilm.KindNotFound, ls.Release(id))
	assert.Equal(t, ilm.KindNotFound, ls.Destroy(id))
	assert.Equal(t, ilm.KindNotFound, ls.Convert(id, ilm.ModeShareable))
	assert.Equal(t, ilm.KindNotFound, ls.StopRenew(id))
	assert.Equal(t, ilm.KindNotFound, ls.StartRenew(id))
	_, _, kind := ls.Count(id)
	assert.Equal(t, ilm.KindNotFound, kind)
}

func TestRenewalKeepsLockAlive(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)
	ls.tickInterval = 20 * time.Millisecond
	defer ls.Close()

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 100, paths(devices)))
	ls.Start()

	time.Sleep(150 * time.Millisecond)

	_, self, kind := ls.Count(id)
	require.Equal(t, ilm.KindOK, kind)
	assert.Equal(t, 1, self)
}

func TestStopRenewLetsMembershipLapse(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)
	ls.tickInterval = 10 * time.Millisecond
	defer ls.Close()

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 40, paths(devices)))
	ls.Start()

	require.Equal(t, ilm.KindOK, ls.StopRenew(id))

	for _, d := range devices {
		d.Expire(id)
	}

	time.Sleep(100 * time.Millisecond)

	kind := ls.Convert(id, ilm.ModeShareable)
	assert.NotEqual(t, ilm.KindOK, kind)
}

// countingFence records how many times Fence was invoked, so a test can
// assert fencing fires exactly once per irrecoverable loss (spec
// end-to-end scenario 6).
type countingFence struct {
	calls int32
}

func (f *countingFence) Fence() error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func TestPermanentQuorumLossFencesExactlyOnce(t *testing.T) {
	devices := raidtest.NewDevices(3)
	ls := New(nil)
	ls.OpenDevice = newFakeOpener(devices).open
	ls.tickInterval = 10 * time.Millisecond
	fence := &countingFence{}
	ls.SetFence(fence)
	require.Equal(t, ilm.KindOK, ls.SetHostID(hostID(1)))
	defer ls.Close()

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 50, paths(devices)))
	ls.Start()

	for _, d := range devices {
		d.Lose()
	}

	time.Sleep(400 * time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&fence.calls), int32(1))

	for _, d := range devices {
		d.Restore()
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fence.calls))
}

func TestConvertPromoteDemote(t *testing.T) {
	devices := raidtest.NewDevices(3)
	ls := newLockspace(devices)
	defer ls.Close()

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeShareable, 3000, paths(devices)))
	require.Equal(t, ilm.KindOK, ls.Convert(id, ilm.ModeExclusive))

	mode, kind := ls.Mode(id)
	require.Equal(t, ilm.KindOK, kind)
	assert.Equal(t, ilm.ModeExclusive, mode)

	require.Equal(t, ilm.KindOK, ls.Convert(id, ilm.ModeShareable))
}

func TestWriteReadLVBThroughLockspace(t *testing.T) {
	devices := raidtest.NewDevices(3)
	ls := newLockspace(devices)
	defer ls.Close()

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 3000, paths(devices)))

	var lvb ilm.LVB
	copy(lvb[:], "ABCDEFGH")
	require.Equal(t, ilm.KindOK, ls.WriteLVB(id, lvb))

	got, kind := ls.ReadLVB(id)
	require.Equal(t, ilm.KindOK, kind)
	assert.Equal(t, lvb, got)
}

func TestDestroyFreesFirmwareStateOnEveryDrive(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)
	defer ls.Close()

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 3000, paths(devices)))
	require.Equal(t, ilm.KindOK, ls.Destroy(id))

	for _, d := range devices {
		assert.False(t, d.AnyHeld(id))
	}
	assert.Equal(t, ilm.KindNotFound, ls.Release(id))
}

func TestOpenDevicesDedupesAndSortsByUUID(t *testing.T) {
	devices := raidtest.NewDevices(3)
	ls := newLockspace(devices)
	defer ls.Close()

	in := []string{devices[2].Path(), devices[0].Path(), devices[1].Path(), devices[0].Path()}
	opened := ls.openDevices(in)

	require.Len(t, opened, 3, "duplicate path must collapse to one slot")

	for i := 1; i < len(opened); i++ {
		prev, cur := driveUUID(opened[i-1].Path()), driveUUID(opened[i].Path())
		assert.True(t, bytes.Compare(prev[:], cur[:]) < 0, "drive list must be sorted by UUID ascending")
	}
}

func TestAcquireTreatsDuplicatePathsAsOneDrive(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)
	defer ls.Close()

	id := lockID(1)
	dup := append(paths(devices), devices[0].Path())
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 3000, dup))

	for _, d := range devices {
		assert.True(t, d.AnyHeld(id))
	}
}

func TestCloseReleasesEveryOutstandingLock(t *testing.T) {
	devices := raidtest.NewDevices(2)
	ls := newLockspace(devices)

	id := lockID(1)
	require.Equal(t, ilm.KindOK, ls.Acquire(id, ilm.ModeExclusive, 3000, paths(devices)))

	ls.Close()

	for _, d := range devices {
		assert.False(t, d.AnyHeld(id))
	}
}

