// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package dispatch

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/drive"
	"github.com/dswarbrick/ilm/fault"
	"github.com/dswarbrick/ilm/lockspace"
	"github.com/dswarbrick/ilm/protocol"
	"github.com/dswarbrick/ilm/raid/raidtest"
)

// startServer wires a Server whose every connection's Lockspace opens the
// given fake devices instead of real drive nodes, listens on a temp-dir
// socket, and returns a dialer plus the socket path. The server is closed
// through t.Cleanup.
func startServer(t *testing.T, devices []*raidtest.Device) (dial func() net.Conn, socketPath string) {
	t.Helper()

	byPath := make(map[string]*raidtest.Device, len(devices))
	for _, d := range devices {
		byPath[d.Path()] = d
	}
	opener := func(path string) drive.Device { return byPath[path] }

	s := New()
	s.NewLockspace = func() *lockspace.Lockspace {
		ls := lockspace.New(nil)
		ls.OpenDevice = opener
		return ls
	}

	socketPath = filepath.Join(t.TempDir(), "run", "main.sock")
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(socketPath) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		s.Close()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("server did not shut down")
		}
	})

	return func() net.Conn {
		conn, err := net.Dial("unix", socketPath)
		require.NoError(t, err)
		return conn
	}, socketPath
}

// send frames a request, writes it, reads the reply header and payload.
func send(t *testing.T, conn net.Conn, op protocol.Opcode, body []byte) (ilm.Kind, []byte) {
	t.Helper()

	h := protocol.MsgHeader{Magic: protocol.MsgMagic, Cmd: op, Length: uint32(len(body))}
	buf := h.Encode()
	_, err := conn.Write(buf[:])
	require.NoError(t, err)
	if len(body) > 0 {
		_, err = conn.Write(body)
		require.NoError(t, err)
	}

	var rbuf [protocol.HeaderSize]byte
	_, err = readFull(conn, rbuf[:])
	require.NoError(t, err)
	reply, err := protocol.DecodeHeader(rbuf[:])
	require.NoError(t, err)

	payload := make([]byte, reply.Length)
	if reply.Length > 0 {
		_, err = readFull(conn, payload)
		require.NoError(t, err)
	}

	return ilm.KindFromErrno(reply.Result), payload
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func acquirePayload(id ilm.LockID, mode ilm.Mode, timeoutMs int32, paths []string) []byte {
	p := protocol.LockPayload{
		Mode:      mode,
		DriveNum:  uint32(len(paths)),
		LockID:    id,
		TimeoutMs: timeoutMs,
		Paths:     paths,
	}
	buf, err := p.Encode()
	if err != nil {
		panic(err)
	}
	return buf
}

func TestVersionRoundTrip(t *testing.T) {
	dial, _ := startServer(t, nil)
	conn := dial()
	defer conn.Close()

	kind, payload := send(t, conn, protocol.OpVersion, nil)
	require.Equal(t, ilm.KindOK, kind)
	require.Len(t, payload, 4)
}

func TestUnknownOpcodeIsRejected(t *testing.T) {
	dial, _ := startServer(t, nil)
	conn := dial()
	defer conn.Close()

	kind, _ := send(t, conn, protocol.Opcode(9999), nil)
	assert.Equal(t, ilm.KindInvalid, kind)
}

func TestAddLockspaceAcquireReleaseSequence(t *testing.T) {
	devices := raidtest.NewDevices(2)
	dial, _ := startServer(t, devices)
	conn := dial()
	defer conn.Close()

	var hostID ilm.HostID
	hostID[0] = 7
	kind, _ := send(t, conn, protocol.OpAddLockspace, hostID[:])
	require.Equal(t, ilm.KindOK, kind)

	paths := make([]string, len(devices))
	for i, d := range devices {
		paths[i] = d.Path()
	}

	var id ilm.LockID
	id[0] = 1
	kind, _ = send(t, conn, protocol.OpAcquire, acquirePayload(id, ilm.ModeExclusive, 3000, paths))
	require.Equal(t, ilm.KindOK, kind)

	kind, payload := send(t, conn, protocol.OpLockMode, id[:])
	require.Equal(t, ilm.KindOK, kind)
	require.Len(t, payload, 4)

	kind, _ = send(t, conn, protocol.OpRelease, id[:])
	require.Equal(t, ilm.KindOK, kind)

	for _, d := range devices {
		assert.False(t, d.AnyHeld(id))
	}
}

func TestFaultInjectionHitShortCircuits(t *testing.T) {
	dial, _ := startServer(t, nil)
	conn := dial()
	defer conn.Close()

	require.NoError(t, fault.SetPercent(100))
	t.Cleanup(func() { fault.SetPercent(0) })

	kind, _ := send(t, conn, protocol.OpVersion, nil)
	assert.Equal(t, ilm.KindIO, kind)
}
