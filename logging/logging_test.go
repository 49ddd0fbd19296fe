// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelAcceptsNameAndNumber(t *testing.T) {
	lvl, err := ParseLevel("info")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)

	lvl, err = ParseLevel("6")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)
}

func TestParseLevelEmptyMeansDisabled(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, Disabled, lvl)
}

func TestParseLevelRejectsGarbage(t *testing.T) {
	_, err := ParseLevel("loudest")
	assert.Error(t, err)
}

func TestInitWritesToConfiguredFile(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Init(Config{
		FilePriority:   LevelDebug,
		LogDir:         dir,
		SyslogPriority: Disabled,
		StderrPriority: Disabled,
	}))
	defer Close()

	Info("hello from the lock manager", "lock_id", "abc")

	data, err := os.ReadFile(filepath.Join(dir, "ilmd.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the lock manager")
	assert.Contains(t, string(data), "lock_id=abc")
}

func TestInitRespectsPerSinkPriority(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Init(Config{
		FilePriority:   LevelErr,
		LogDir:         dir,
		SyslogPriority: Disabled,
		StderrPriority: Disabled,
	}))
	defer Close()

	Info("should not appear")
	Error("should appear")

	data, err := os.ReadFile(filepath.Join(dir, "ilmd.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should not appear")
	assert.Contains(t, string(data), "should appear")
}

func TestInitWithNoSinksFallsBackToStderrErrorOnly(t *testing.T) {
	require.NoError(t, Init(Config{
		FilePriority:   Disabled,
		SyslogPriority: Disabled,
		StderrPriority: Disabled,
	}))
	defer Close()

	// No assertion beyond "does not panic and logging calls are safe" —
	// the fallback handler writes to stderr, which this test does not
	// capture.
	Info("swallowed")
	Error("also fine")
}
