// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Command ilmd is the in-drive mutex lock manager daemon: it listens on a
// unix socket, hands each connection its own lockspace, and fences the
// host when a lock's membership is irrecoverably lost.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dswarbrick/ilm/config"
	"github.com/dswarbrick/ilm/dispatch"
	"github.com/dswarbrick/ilm/fencing"
	"github.com/dswarbrick/ilm/lockspace"
	"github.com/dswarbrick/ilm/logging"
	"github.com/dswarbrick/ilm/pidfile"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse("ilmd", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ilmd: %v\n", err)
		return 1
	}

	if cfg.FilePriority != logging.Disabled {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "ilmd: creating log dir: %v\n", err)
			return 1
		}
	}

	if err := logging.Init(logging.Config{
		FilePriority:   cfg.FilePriority,
		LogDir:         cfg.LogDir,
		SyslogPriority: cfg.SyslogPriority,
		SyslogTag:      "ilmd",
		StderrPriority: cfg.StderrPriority,
		UTC:            cfg.UTC,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "ilmd: initializing logging: %v\n", err)
		return 1
	}
	defer logging.Close()

	if cfg.Mlock {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			logging.Error("mlockall failed", "error", err)
			return 1
		}
		logging.Info("address space locked")
	}

	if err := os.MkdirAll(cfg.RunDir, 0o755); err != nil {
		logging.Error("creating run dir", "error", err)
		return 1
	}

	pf, err := pidfile.Acquire(filepath.Join(cfg.RunDir, "ilmd.pid"))
	if err != nil {
		logging.Error("acquiring pid file", "error", err)
		return 1
	}
	defer pf.Close()

	var fence fencing.Action
	if cfg.KillPath != "" {
		fence = fencing.Exec{Path: cfg.KillPath, Args: cfg.KillArgs}
	}

	srv := dispatch.New()
	srv.NewLockspace = func() *lockspace.Lockspace { return lockspace.New(fence) }

	socketPath := filepath.Join(cfg.RunDir, "main.sock")
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(socketPath) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Info("ilmd started", "socket", socketPath)

	select {
	case sig := <-sigCh:
		signal.Stop(sigCh)
		logging.Info("shutdown signal received", "signal", sig.String())
		if err := srv.Close(); err != nil {
			logging.Error("closing dispatch server", "error", err)
			return 1
		}
		<-serveErr
		logging.Info("ilmd stopped")
		return 0

	case err := <-serveErr:
		signal.Stop(sigCh)
		if err != nil {
			logging.Error("dispatch server exited", "error", err)
			return 1
		}
		return 0
	}
}
