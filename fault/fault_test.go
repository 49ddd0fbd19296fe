// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package fault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/ilm"
)

func TestSetPercentRejectsOutOfRange(t *testing.T) {
	assert.Equal(t, ilm.KindInvalid, SetPercent(-1))
	assert.Equal(t, ilm.KindInvalid, SetPercent(101))
}

func TestSetPercentZeroNeverHits(t *testing.T) {
	require.NoError(t, SetPercent(0))
	for i := 0; i < 1000; i++ {
		assert.False(t, IsHit())
	}
}

func TestSetPercentHundredAlwaysHits(t *testing.T) {
	require.NoError(t, SetPercent(100))
	for i := 0; i < 1000; i++ {
		assert.True(t, IsHit())
	}
	require.NoError(t, SetPercent(0))
}

func TestPercentReflectsLastSet(t *testing.T) {
	require.NoError(t, SetPercent(42))
	assert.Equal(t, 42, Percent())
	require.NoError(t, SetPercent(0))
}
