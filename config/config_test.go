// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/ilm/logging"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse("ilmd", nil)
	require.NoError(t, err)

	assert.False(t, cfg.Debug)
	assert.Equal(t, logging.Disabled, cfg.FilePriority)
	assert.Equal(t, logging.LevelErr, cfg.StderrPriority)
	assert.False(t, cfg.Mlock)
}

func TestParseDebugRaisesFileAndStderrPriority(t *testing.T) {
	cfg, err := Parse("ilmd", []string{"-D"})
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, logging.LevelDebug, cfg.FilePriority)
	assert.Equal(t, logging.LevelDebug, cfg.StderrPriority)
}

func TestParseHonorsExplicitPriorities(t *testing.T) {
	cfg, err := Parse("ilmd", []string{"-L", "warning", "-S", "info", "-E", "crit"})
	require.NoError(t, err)

	assert.Equal(t, logging.LevelWarning, cfg.FilePriority)
	assert.Equal(t, logging.LevelInfo, cfg.SyslogPriority)
	assert.Equal(t, logging.LevelCrit, cfg.StderrPriority)
}

func TestParseRejectsUnknownPriority(t *testing.T) {
	_, err := Parse("ilmd", []string{"-L", "deafening"})
	assert.Error(t, err)
}

func TestParseReadsRunAndLogDirFromEnv(t *testing.T) {
	t.Setenv("ILM_RUN_DIR", "/tmp/run-ilm")
	t.Setenv("ILM_LOG_DIR", "/tmp/log-ilm")

	cfg, err := Parse("ilmd", nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/run-ilm", cfg.RunDir)
	assert.Equal(t, "/tmp/log-ilm", cfg.LogDir)
}

func TestParseReadsKillpathFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ilmd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
killpath = "/usr/local/bin/fence-node"
killargs = ["--reason", "quorum-loss"]
`), 0o644))

	cfg, err := Parse("ilmd", []string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/fence-node", cfg.KillPath)
	assert.Equal(t, []string{"--reason", "quorum-loss"}, cfg.KillArgs)
}

func TestParseMlockFlag(t *testing.T) {
	cfg, err := Parse("ilmd", []string{"-l"})
	require.NoError(t, err)
	assert.True(t, cfg.Mlock)
}
