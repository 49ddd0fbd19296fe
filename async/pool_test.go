// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package async

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dswarbrick/ilm/idm"
)

// fakeDevice is a minimal drive.Device stand-in that returns a canned
// result, or an error if configured to fail.
type fakeDevice struct {
	result idm.Result
	err    error
}

func (d *fakeDevice) Path() string                                { return "fake" }
func (d *fakeDevice) Open() error                                 { return nil }
func (d *fakeDevice) Close() error                                { return nil }
func (d *fakeDevice) Identify() (idm.IdentifyRecord, error)       { return idm.IdentifyRecord{}, nil }
func (d *fakeDevice) Exec(cmd idm.Command) (idm.Result, error) {
	return d.result, d.err
}

func TestPoolSubmitAndFindResult(t *testing.T) {
	assert := assert.New(t)

	p := NewPoolSize(2)
	defer p.Destroy()

	dev := &fakeDevice{result: idm.Result{Kind: 0, Status: idm.StatusOK}}
	id := p.Submit(Job{Device: dev, Cmd: idm.Command{Op: idm.OpTrylock}})

	outcome, err := p.FindResult(id, 100, time.Millisecond)
	assert.NoError(err)
	assert.NoError(outcome.Err)
	assert.Equal(idm.StatusOK, outcome.Result.Status)
}

func TestPoolFindResultTimesOut(t *testing.T) {
	p := NewPoolSize(1)
	defer p.Destroy()

	_, err := p.FindResult(JobID(999999), 3, time.Millisecond)
	assert.Error(t, err)
}

func TestPoolPropagatesDeviceError(t *testing.T) {
	assert := assert.New(t)

	p := NewPoolSize(1)
	defer p.Destroy()

	wantErr := errors.New("transport failure")
	dev := &fakeDevice{err: wantErr}
	id := p.Submit(Job{Device: dev, Cmd: idm.Command{Op: idm.OpLock}})

	outcome, err := p.FindResult(id, 100, time.Millisecond)
	assert.NoError(err)
	assert.Equal(wantErr, outcome.Err)
}

func TestRegistryGetOrCreateReusesPool(t *testing.T) {
	assert := assert.New(t)

	r := NewRegistry()
	defer r.DestroyAll()

	p1 := r.GetOrCreate("/dev/sg0")
	p2 := r.GetOrCreate("/dev/sg0")
	assert.Same(p1, p2)

	_, ok := r.Lookup("/dev/sg0")
	assert.True(ok)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	defer r.DestroyAll()

	r.GetOrCreate("/dev/sg1")
	r.Remove("/dev/sg1")

	_, ok := r.Lookup("/dev/sg1")
	assert.False(t, ok)
}
