// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package dispatch implements the daemon's client-facing surface: a unix
// socket listener, one goroutine per connection, and an opcode->handler
// dispatch table generalized from the pack's NLM procedure-table idiom
// (map[uint32]*Procedure) to this daemon's seventeen opcodes.
package dispatch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/fault"
	"github.com/dswarbrick/ilm/lockspace"
	"github.com/dswarbrick/ilm/logging"
	"github.com/dswarbrick/ilm/protocol"
)

// maxBodySize bounds a single request's payload, generously above the
// largest realistic LockPayload (a handful of drive paths), to keep a
// misbehaving client from forcing an unbounded allocation.
const maxBodySize = 16 << 20

// Procedure describes one opcode's handler, the dispatch-table idiom
// generalized from the pack's NLM procedure metadata (name for logging,
// function, auth flag) down to name and function — this protocol has no
// authentication layer (spec.md Non-goals).
type Procedure struct {
	Name    string
	Handler func(ls *lockspace.Lockspace, body []byte) (ilm.Kind, []byte)
}

// Table maps every opcode spec.md §6 defines to its Procedure.
var Table map[protocol.Opcode]*Procedure

func init() {
	Table = map[protocol.Opcode]*Procedure{
		protocol.OpVersion:        {Name: "version", Handler: handleVersion},
		protocol.OpAddLockspace:   {Name: "add_lockspace", Handler: handleAddLockspace},
		protocol.OpDelLockspace:   {Name: "del_lockspace", Handler: handleDelLockspace},
		protocol.OpAcquire:        {Name: "acquire", Handler: handleAcquire},
		protocol.OpRelease:        {Name: "release", Handler: handleRelease},
		protocol.OpConvert:        {Name: "convert", Handler: handleConvert},
		protocol.OpDestroy:        {Name: "destroy", Handler: handleDestroy},
		protocol.OpWriteLVB:       {Name: "write_lvb", Handler: handleWriteLVB},
		protocol.OpReadLVB:        {Name: "read_lvb", Handler: handleReadLVB},
		protocol.OpLockHostCount:  {Name: "lock_host_count", Handler: handleLockHostCount},
		protocol.OpLockMode:       {Name: "lock_mode", Handler: handleLockMode},
		protocol.OpSetSignal:      {Name: "set_signal", Handler: handleSetSignal},
		protocol.OpSetKillpath:    {Name: "set_killpath", Handler: handleSetKillpath},
		protocol.OpSetHostID:      {Name: "set_host_id", Handler: handleSetHostID},
		protocol.OpStopRenew:      {Name: "stop_renew", Handler: handleStopRenew},
		protocol.OpStartRenew:     {Name: "start_renew", Handler: handleStartRenew},
		protocol.OpInjectFault:    {Name: "inject_fault", Handler: handleInjectFault},
	}
}

// Server owns the unix socket listener and accepts one goroutine per
// connection, each with its own Lockspace (spec.md §4.G: "one lockspace
// per connected client").
type Server struct {
	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup

	// NewLockspace constructs the Lockspace for a new connection.
	// Defaults to lockspace.New(nil); tests override it to wire a
	// fake drive.Device opener in place of the real one.
	NewLockspace func() *lockspace.Lockspace
}

// New returns an unstarted Server.
func New() *Server {
	return &Server{NewLockspace: func() *lockspace.Lockspace { return lockspace.New(nil) }}
}

// ListenAndServe creates (replacing any stale socket file) the unix
// socket at socketPath and accepts connections until Close is called.
func (s *Server) ListenAndServe(socketPath string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("dispatch: creating run dir: %w", err)
	}
	os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("dispatch: listen %s: %w", socketPath, err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("dispatch: accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections and waits for every open
// connection to end and tear down its lockspace. It does not close open
// connections itself: it returns once each client has disconnected.
func (s *Server) Close() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()

	if l == nil {
		return nil
	}

	err := l.Close()
	s.wg.Wait()
	return err
}

// handleConn owns one client's Lockspace for the lifetime of the
// connection: best-effort release of every outstanding lock happens on
// disconnect, matching spec.md's "destroyed ... when the lockspace
// closes" lifecycle clause.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	ls := s.NewLockspace()
	defer ls.Close()

	for {
		req, body, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Debug("dispatch: connection read error", "error", err)
			}
			return
		}

		if fault.IsHit() {
			logging.Warn("dispatch: injected fault", "op", uint32(req.Cmd), "result", ilm.KindIO.String())
			writeFrame(conn, req.Cmd, ilm.KindIO, nil)
			continue
		}

		proc, ok := Table[req.Cmd]
		if !ok {
			logging.Warn("dispatch: unknown opcode", "op", uint32(req.Cmd), "result", ilm.KindInvalid.String())
			writeFrame(conn, req.Cmd, ilm.KindInvalid, nil)
			continue
		}

		kind, payload := proc.Handler(ls, body)
		if kind == ilm.KindOK {
			logging.Debug("dispatch: request done", "op", proc.Name, "result", kind.String())
		} else {
			logging.Warn("dispatch: request failed", "op", proc.Name, "result", kind.String())
		}
		if err := writeFrame(conn, req.Cmd, kind, payload); err != nil {
			logging.Debug("dispatch: connection write error", "error", err, "op", proc.Name)
			return
		}
	}
}

// readFrame reads one MsgHeader plus its body from conn.
func readFrame(conn net.Conn) (protocol.MsgHeader, []byte, error) {
	var hbuf [protocol.HeaderSize]byte
	if _, err := io.ReadFull(conn, hbuf[:]); err != nil {
		return protocol.MsgHeader{}, nil, err
	}

	h, err := protocol.DecodeHeader(hbuf[:])
	if err != nil {
		return h, nil, err
	}

	if h.Length > maxBodySize {
		return h, nil, fmt.Errorf("dispatch: body length %d exceeds maximum", h.Length)
	}

	body := make([]byte, h.Length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return h, nil, err
	}

	return h, body, nil
}

// writeFrame writes a reply header plus payload for cmd.
func writeFrame(conn net.Conn, cmd protocol.Opcode, kind ilm.Kind, payload []byte) error {
	h := protocol.MsgHeader{
		Magic:  protocol.MsgMagic,
		Cmd:    cmd,
		Length: uint32(len(payload)),
		Result: kind.Errno(),
	}

	hbuf := h.Encode()
	if _, err := conn.Write(hbuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := conn.Write(payload)
	return err
}

// le32 and put32 are the small fixed-width helpers the non-LockPayload
// opcodes use for their short request/response bodies (ids, counts,
// single mode/percent values) rather than routing everything through
// protocol.LockPayload.
func le32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func put32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
