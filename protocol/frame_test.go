// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/ilm"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := MsgHeader{Magic: MsgMagic, Cmd: OpAcquire, Length: 128, Result: -16}
	buf := h.Encode()

	got, err := DecodeHeader(buf[:])
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	h := MsgHeader{Magic: 0xdeadbeef, Cmd: OpAcquire}
	buf := h.Encode()

	_, err := DecodeHeader(buf[:])
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestLockPayloadRoundTrip(t *testing.T) {
	var id ilm.LockID
	copy(id[:], "some-lock-id")

	p := LockPayload{
		Mode:      ilm.ModeExclusive,
		DriveNum:  2,
		LockID:    id,
		TimeoutMs: 5000,
		Quiescent: 0,
		Paths:     []string{"/dev/sda", "/dev/sdb"},
	}

	buf, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodeLockPayload(buf)
	require.NoError(t, err)

	assert.Equal(t, p.Mode, got.Mode)
	assert.Equal(t, p.DriveNum, got.DriveNum)
	assert.Equal(t, p.LockID, got.LockID)
	assert.Equal(t, p.TimeoutMs, got.TimeoutMs)
	assert.Equal(t, p.Paths, got.Paths)
}

func TestLockPayloadEncodeRejectsMismatchedDriveNum(t *testing.T) {
	p := LockPayload{DriveNum: 3, Paths: []string{"/dev/sda"}}
	_, err := p.Encode()
	assert.Error(t, err)
}

func TestLockPayloadEncodeRejectsOversizedPath(t *testing.T) {
	p := LockPayload{
		DriveNum: 1,
		Paths:    []string{string(make([]byte, PathMax))},
	}
	_, err := p.Encode()
	assert.Error(t, err)
}

func TestDecodeLockPayloadRejectsBadMagic(t *testing.T) {
	buf := make([]byte, lockPayloadSize)
	_, err := DecodeLockPayload(buf)
	assert.Error(t, err)
}

func TestDecodeLockPayloadRejectsTruncatedPaths(t *testing.T) {
	p := LockPayload{DriveNum: 1, Paths: []string{"/dev/sda"}}
	buf, err := p.Encode()
	require.NoError(t, err)

	_, err = DecodeLockPayload(buf[:lockPayloadSize+10])
	assert.Error(t, err)
}

func TestOpcodeStringIsStableForKnownValues(t *testing.T) {
	assert.Equal(t, "acquire", OpAcquire.String())
	assert.Equal(t, "inject_fault", OpInjectFault.String())
	assert.Contains(t, Opcode(999).String(), "opcode(999)")
}
