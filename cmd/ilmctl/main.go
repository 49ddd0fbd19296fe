// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Command ilmctl is a reference client for ilmd: it dials the daemon's
// unix socket, frames one request per invocation, and prints the result.
package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/protocol"
)

const usage = `ilmctl - reference client for ilmd

Usage:
  ilmctl [--socket path] <command> [args...]

Commands:
  version
  add-lockspace <host_id_hex>
  del-lockspace
  acquire <lock_id_hex> <exclusive|shareable> <timeout_ms> <path>...
  release <lock_id_hex>
  convert <lock_id_hex> <exclusive|shareable>
  destroy <lock_id_hex>
  write-lvb <lock_id_hex> <lvb_string>
  read-lvb <lock_id_hex>
  lock-host-count <lock_id_hex>
  lock-mode <lock_id_hex>
  set-signal <pid> <signal_number>
  set-killpath <path> [args...]
  set-host-id <host_id_hex>
  stop-renew <lock_id_hex>
  start-renew <lock_id_hex>
  inject-fault <percent>
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ilmctl", flag.ContinueOnError)
	socket := fs.String("socket", "/run/ilm/main.sock", "path to the ilmd unix socket")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	op, body, err := buildRequest(rest[0], rest[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ilmctl: %v\n", err)
		return 2
	}

	conn, err := net.Dial("unix", *socket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ilmctl: dial %s: %v\n", *socket, err)
		return 1
	}
	defer conn.Close()

	kind, payload, err := roundTrip(conn, op, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ilmctl: %v\n", err)
		return 1
	}

	printReply(rest[0], kind, payload)
	if kind != ilm.KindOK {
		return 1
	}
	return 0
}

func roundTrip(conn net.Conn, op protocol.Opcode, body []byte) (ilm.Kind, []byte, error) {
	h := protocol.MsgHeader{Magic: protocol.MsgMagic, Cmd: op, Length: uint32(len(body))}
	hbuf := h.Encode()
	if _, err := conn.Write(hbuf[:]); err != nil {
		return 0, nil, fmt.Errorf("writing header: %w", err)
	}
	if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			return 0, nil, fmt.Errorf("writing body: %w", err)
		}
	}

	var rbuf [protocol.HeaderSize]byte
	if err := readFull(conn, rbuf[:]); err != nil {
		return 0, nil, fmt.Errorf("reading reply header: %w", err)
	}
	reply, err := protocol.DecodeHeader(rbuf[:])
	if err != nil {
		return 0, nil, err
	}

	payload := make([]byte, reply.Length)
	if reply.Length > 0 {
		if err := readFull(conn, payload); err != nil {
			return 0, nil, fmt.Errorf("reading reply body: %w", err)
		}
	}

	return ilm.KindFromErrno(reply.Result), payload, nil
}

func readFull(conn net.Conn, buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return err
		}
	}
	return nil
}

func buildRequest(cmd string, args []string) (protocol.Opcode, []byte, error) {
	switch cmd {
	case "version":
		return protocol.OpVersion, nil, nil

	case "add-lockspace":
		id, err := hostIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpAddLockspace, id[:], nil

	case "del-lockspace":
		return protocol.OpDelLockspace, nil, nil

	case "acquire", "convert":
		return buildLockRequest(cmd, args)

	case "release":
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpRelease, id[:], nil

	case "destroy":
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpDestroy, id[:], nil

	case "write-lvb":
		if len(args) < 2 {
			return 0, nil, fmt.Errorf("write-lvb needs <lock_id_hex> <lvb_string>")
		}
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		var lvb ilm.LVB
		copy(lvb[:], args[1])
		return protocol.OpWriteLVB, append(id[:], lvb[:]...), nil

	case "read-lvb":
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpReadLVB, id[:], nil

	case "lock-host-count":
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpLockHostCount, id[:], nil

	case "lock-mode":
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpLockMode, id[:], nil

	case "set-signal":
		if len(args) < 2 {
			return 0, nil, fmt.Errorf("set-signal needs <pid> <signal_number>")
		}
		pid, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, nil, fmt.Errorf("bad pid %q: %w", args[0], err)
		}
		sig, err := strconv.Atoi(args[1])
		if err != nil {
			return 0, nil, fmt.Errorf("bad signal %q: %w", args[1], err)
		}
		body := make([]byte, 8)
		binary.LittleEndian.PutUint32(body[0:4], uint32(pid))
		binary.LittleEndian.PutUint32(body[4:8], uint32(sig))
		return protocol.OpSetSignal, body, nil

	case "set-killpath":
		if len(args) == 0 {
			return 0, nil, fmt.Errorf("set-killpath needs <path> [args...]")
		}
		var body []byte
		for _, f := range args {
			body = append(body, []byte(f)...)
			body = append(body, 0)
		}
		body = append(body, 0)
		return protocol.OpSetKillpath, body, nil

	case "set-host-id":
		id, err := hostIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpSetHostID, id[:], nil

	case "stop-renew":
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpStopRenew, id[:], nil

	case "start-renew":
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpStartRenew, id[:], nil

	case "inject-fault":
		if len(args) < 1 {
			return 0, nil, fmt.Errorf("inject-fault needs <percent>")
		}
		pct, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, nil, fmt.Errorf("bad percent %q: %w", args[0], err)
		}
		body := make([]byte, 4)
		binary.LittleEndian.PutUint32(body, uint32(pct))
		return protocol.OpInjectFault, body, nil

	default:
		return 0, nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func buildLockRequest(cmd string, args []string) (protocol.Opcode, []byte, error) {
	if cmd == "convert" {
		if len(args) < 2 {
			return 0, nil, fmt.Errorf("convert needs <lock_id_hex> <exclusive|shareable>")
		}
		id, err := lockIDArg(args, 0)
		if err != nil {
			return 0, nil, err
		}
		mode, err := modeArg(args[1])
		if err != nil {
			return 0, nil, err
		}
		payload, err := protocol.LockPayload{Mode: mode, LockID: id}.Encode()
		if err != nil {
			return 0, nil, err
		}
		return protocol.OpConvert, payload, nil
	}

	if len(args) < 4 {
		return 0, nil, fmt.Errorf("acquire needs <lock_id_hex> <exclusive|shareable> <timeout_ms> <path>...")
	}
	id, err := lockIDArg(args, 0)
	if err != nil {
		return 0, nil, err
	}
	mode, err := modeArg(args[1])
	if err != nil {
		return 0, nil, err
	}
	timeout, err := strconv.Atoi(args[2])
	if err != nil {
		return 0, nil, fmt.Errorf("bad timeout_ms %q: %w", args[2], err)
	}
	paths := args[3:]

	payload, err := protocol.LockPayload{
		Mode:      mode,
		DriveNum:  uint32(len(paths)),
		LockID:    id,
		TimeoutMs: int32(timeout),
		Paths:     paths,
	}.Encode()
	if err != nil {
		return 0, nil, err
	}
	return protocol.OpAcquire, payload, nil
}

func modeArg(s string) (ilm.Mode, error) {
	switch s {
	case "exclusive":
		return ilm.ModeExclusive, nil
	case "shareable":
		return ilm.ModeShareable, nil
	default:
		return 0, fmt.Errorf("mode must be \"exclusive\" or \"shareable\", got %q", s)
	}
}

func lockIDArg(args []string, i int) (ilm.LockID, error) {
	var id ilm.LockID
	if i >= len(args) {
		return id, fmt.Errorf("missing lock_id argument")
	}
	b, err := hex.DecodeString(args[i])
	if err != nil {
		return id, fmt.Errorf("bad lock_id hex: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

func hostIDArg(args []string, i int) (ilm.HostID, error) {
	var id ilm.HostID
	if i >= len(args) {
		return id, fmt.Errorf("missing host_id argument")
	}
	b, err := hex.DecodeString(args[i])
	if err != nil {
		return id, fmt.Errorf("bad host_id hex: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

func printReply(cmd string, kind ilm.Kind, payload []byte) {
	fmt.Printf("%s: %s\n", cmd, kind)
	if len(payload) == 0 {
		return
	}

	switch {
	case len(payload) == 4:
		fmt.Printf("  value: %d\n", binary.LittleEndian.Uint32(payload))
	case cmd == "lock-host-count" && len(payload) == 8:
		fmt.Printf("  others: %d self: %d\n",
			binary.LittleEndian.Uint32(payload[0:4]), binary.LittleEndian.Uint32(payload[4:8]))
	default:
		fmt.Printf("  payload: %s\n", hex.EncodeToString(payload))
	}
}
