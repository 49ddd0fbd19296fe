// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesOwnPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ilmd.pid")

	pf, err := Acquire(path)
	require.NoError(t, err)
	defer pf.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRejectsSecondInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ilmd.pid")

	pf, err := Acquire(path)
	require.NoError(t, err)
	defer pf.Close()

	_, err = Acquire(path)
	assert.Error(t, err)
}

func TestCloseRemovesFileAndAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ilmd.pid")

	pf, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	pf2, err := Acquire(path)
	require.NoError(t, err)
	defer pf2.Close()
}
