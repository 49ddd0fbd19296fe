// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nvme

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/dswarbrick/ilm/idm"
)

func TestPassthruCommandSize(t *testing.T) {
	assert.Equal(t, uintptr(72), unsafe.Sizeof(nvmePassthruCommand{}))
}

func TestStatusFromResult(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(idm.StatusOK, statusFromResult(0x00))
	assert.Equal(idm.StatusMutexConflict, statusFromResult(0xC9))
	assert.Equal(idm.StatusMutexHeldAlready, statusFromResult(0xCA))
	assert.Equal(idm.StatusMutexHeldByAnother, statusFromResult(0xCB))
	assert.Equal(idm.StatusDeviceIoError, statusFromResult(0x42))

	// Only the low byte carries the vendor status; upper bytes used for
	// request-specific diagnostics are ignored.
	assert.Equal(idm.StatusMutexConflict, statusFromResult(0xdead00c9))
}
