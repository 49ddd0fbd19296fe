// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package pidfile implements an advisory-locked pid file: a second daemon
// start against the same path fails fast instead of racing the first
// instance for the dispatcher socket.
package pidfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PidFile is a held advisory lock on an open pid file. Closing it unlocks
// and removes the file; a process that dies without calling Close leaves
// the file behind but the kernel drops the flock, so the next start still
// succeeds.
type PidFile struct {
	path string
	file *os.File
}

// Acquire opens (creating if necessary) the pid file at path, takes a
// non-blocking exclusive flock on it, and writes the current pid. It
// fails if another process already holds the lock.
func Acquire(path string) (*PidFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pidfile: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("pidfile: %s is locked by another process", path)
		}
		return nil, fmt.Errorf("pidfile: flock %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("pidfile: truncate %s: %w", path, err)
	}

	if _, err := f.WriteString(fmt.Sprintf("%d\n", os.Getpid())); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("pidfile: write %s: %w", path, err)
	}

	return &PidFile{path: path, file: f}, nil
}

// Close releases the lock, closes the file, and removes it.
func (p *PidFile) Close() error {
	unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	closeErr := p.file.Close()
	removeErr := os.Remove(p.path)

	if closeErr != nil {
		return closeErr
	}
	return removeErr
}
