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

// NVMe vendor admin passthrough commands used for the IDM primitive.

package nvme

import (
	"unsafe"

	"github.com/dswarbrick/go-nvme/ioctl"
)

// NVMeAdminVendorIDM is the vendor-specific NVMe admin opcode drives
// register their IDM pass-through command under. Per the NVMe spec,
// vendor-specific admin opcodes occupy the 0xC0-0xFF range.
const NVMeAdminVendorIDM = 0xC1

var (
	// NVME_IOCTL_ADMIN_CMD is defined in <linux/nvme_ioctl.h>.
	NVME_IOCTL_ADMIN_CMD = ioctl.Iowr('N', 0x41, unsafe.Sizeof(nvmePassthruCommand{}))
)

// nvmePassthruCommand mirrors <linux/nvme_ioctl.h>'s struct
// nvme_passthru_cmd (72 bytes).
type nvmePassthruCommand struct {
	opcode       uint8
	flags        uint8
	rsvd1        uint16
	nsid         uint32
	cdw2         uint32
	cdw3         uint32
	metadata     uint64
	addr         uint64
	metadata_len uint32
	data_len     uint32
	cdw10        uint32
	cdw11        uint32
	cdw12        uint32
	cdw13        uint32
	cdw14        uint32
	cdw15        uint32
	timeout_ms   uint32
	result       uint32
} // 72 bytes
