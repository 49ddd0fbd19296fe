// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package config implements the daemon's command-line and environment
// surface (spec.md §6): -D/-L/-U/-S/-E/-l plus $ILM_RUN_DIR/$ILM_LOG_DIR,
// with an optional TOML file for anything not worth a flag.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	flag "github.com/spf13/pflag"

	"github.com/dswarbrick/ilm/logging"
)

const (
	defaultRunDir = "/run/ilm"
	defaultLogDir = "/var/log/ilm"
)

// File is the optional TOML configuration file layered under the CLI
// flags: a flag explicitly set on the command line always wins.
type File struct {
	KillPath string   `toml:"killpath"`
	KillArgs []string `toml:"killargs"`
}

// Config is the daemon's fully resolved startup configuration.
type Config struct {
	Debug          bool
	FilePriority   logging.Level
	UTC            bool
	SyslogPriority logging.Level
	StderrPriority logging.Level
	Mlock          bool

	RunDir string
	LogDir string

	KillPath string
	KillArgs []string
}

// Parse builds a Config from args (typically os.Args[1:]) and the
// process environment. name is used as the flag set's program name in
// usage/error output.
func Parse(name string, args []string) (Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	debug := fs.BoolP("debug", "D", false, "enable debug logging")
	filePriority := fs.StringP("file-log-priority", "L", "", "file log sink priority (emerg..debug), empty disables the sink")
	utcLogs := fs.BoolP("utc-logs", "U", false, "render log timestamps in UTC instead of local time")
	syslogPriority := fs.StringP("syslog-priority", "S", "", "syslog sink priority (emerg..debug), empty disables the sink")
	stderrPriority := fs.StringP("stderr-priority", "E", "err", "stderr sink priority (emerg..debug), empty disables the sink")
	mlock := fs.BoolP("mlock", "l", false, "mlock the daemon's address space to avoid being swapped out")
	configPath := fs.String("config", "", "optional TOML file for settings with no dedicated flag")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Debug:  *debug,
		UTC:    *utcLogs,
		Mlock:  *mlock,
		RunDir: envOr("ILM_RUN_DIR", defaultRunDir),
		LogDir: envOr("ILM_LOG_DIR", defaultLogDir),
	}

	var err error
	if cfg.FilePriority, err = logging.ParseLevel(*filePriority); err != nil {
		return Config{}, err
	}
	if cfg.SyslogPriority, err = logging.ParseLevel(*syslogPriority); err != nil {
		return Config{}, err
	}
	if cfg.StderrPriority, err = logging.ParseLevel(*stderrPriority); err != nil {
		return Config{}, err
	}

	if cfg.Debug {
		cfg.FilePriority = logging.LevelDebug
		if cfg.StderrPriority < logging.LevelDebug {
			cfg.StderrPriority = logging.LevelDebug
		}
	}

	if *configPath != "" {
		var file File
		if _, err := toml.DecodeFile(*configPath, &file); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", *configPath, err)
		}
		cfg.KillPath = file.KillPath
		cfg.KillArgs = file.KillArgs
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
