// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package idm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dswarbrick/ilm"
)

func TestRecordRoundTrip(t *testing.T) {
	assert := assert.New(t)

	var in Record
	in.TimeNow = 123456789
	in.Countdown = 3000
	in.Class = ClassExclusive
	in.ResVerType = ResVerUpdateValid
	in.LVB = ilm.LVB{'A', 'B', 'C', 'D', 'E', 'F', 'G', 0}
	copy(in.ResourceID[:], []byte{0x01, 0x02, 0x03, 0x04})
	copy(in.HostID[:], []byte{0x0a, 0x0b, 0x0c})

	buf, err := in.Encode()
	assert.NoError(err)
	assert.Equal(RecordSize, len(buf))

	out, err := Decode(buf[:])
	assert.NoError(err)

	assert.Equal(in.TimeNow, out.TimeNow)
	assert.Equal(in.Countdown, out.Countdown)
	assert.Equal(in.Class, out.Class)
	assert.Equal(in.ResVerType, out.ResVerType)
	assert.Equal(in.LVB, out.LVB)
	assert.Equal(in.ResourceID, out.ResourceID)
	assert.Equal(in.HostID, out.HostID)
}

func TestRecordInfiniteCountdown(t *testing.T) {
	assert := assert.New(t)

	var in Record
	in.Countdown = InfiniteCountdown

	buf, err := in.Encode()
	assert.NoError(err)

	out, err := Decode(buf[:])
	assert.NoError(err)
	assert.Equal(int64(-1), out.Countdown)
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	assert.Equal(t, ilm.KindInvalid, err)
}

func TestDecodeManyRoundTrip(t *testing.T) {
	assert := assert.New(t)

	var buf []byte
	for i := 0; i < 3; i++ {
		var r Record
		r.TimeNow = uint64(i)
		enc, err := r.Encode()
		assert.NoError(err)
		buf = append(buf, enc[:]...)
	}

	records, err := DecodeMany(buf, 3)
	assert.NoError(err)
	assert.Len(records, 3)

	for i, r := range records {
		assert.Equal(uint64(i), r.TimeNow)
	}
}

func TestOpcodeGroupWord(t *testing.T) {
	assert := assert.New(t)

	w := OpcodeGroupWord(OpTrylock, GroupDefault)
	op, group := SplitOpcodeGroupWord(w)
	assert.Equal(OpTrylock, op)
	assert.Equal(GroupDefault, group)

	w = OpcodeGroupWord(OpBreak, GroupInquiry)
	op, group = SplitOpcodeGroupWord(w)
	assert.Equal(OpBreak, op)
	assert.Equal(GroupInquiry, group)
}

func TestMapStatus(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(ilm.KindExpired, MapStatus(StatusMutexConflict, OpRefresh))
	assert.Equal(ilm.KindNotFound, MapStatus(StatusMutexConflict, OpUnlock))
	assert.Equal(ilm.KindBusy, MapStatus(StatusMutexConflict, OpTrylock))
	assert.Equal(ilm.KindPermissionDenied, MapStatus(StatusMutexHeldAlready, OpRefresh))
	assert.Equal(ilm.KindTryAgain, MapStatus(StatusMutexHeldAlready, OpTrylock))
	assert.Equal(ilm.KindBusy, MapStatus(StatusMutexHeldByAnother, OpTrylock))
	assert.Equal(ilm.KindOutOfMemory, MapStatus(StatusMutexListFull, OpLock))
	assert.Equal(ilm.KindIO, MapStatus(StatusDeviceIoError, OpLock))
	assert.Equal(ilm.KindInvalid, MapStatus(DeviceStatus(999), OpLock))
}
