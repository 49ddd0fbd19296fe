// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI generic IO functions.

package scsi

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/dswarbrick/go-nvme/ioctl"
)

const (
	SG_DXFER_NONE        = -1
	SG_DXFER_TO_DEV      = -2
	SG_DXFER_FROM_DEV    = -3
	SG_DXFER_TO_FROM_DEV = -4

	SG_INFO_OK_MASK = 0x1
	SG_INFO_OK      = 0x0

	SG_IO = 0x2285

	// DEFAULT_TIMEOUT is the pass-through command timeout in milliseconds.
	DEFAULT_TIMEOUT = 15000
)

// sgIoHdr mirrors <scsi/sg.h>'s sg_io_hdr_t.
type sgIoHdr struct {
	interface_id    int32
	dxfer_direction int32
	cmd_len         uint8
	mx_sb_len       uint8
	iovec_count     uint16
	dxfer_len       uint32
	dxferp          uintptr
	cmdp            uintptr // Command pointer
	sbp             uintptr // Sense buf pointer
	timeout         uint32
	flags           uint32
	pack_id         int32
	usr_ptr         uintptr
	status          uint8
	masked_status   uint8
	msg_status      uint8
	sb_len_wr       uint8
	host_status     uint16
	driver_status   uint16
	resid           int32
	duration        uint32
	info            uint32
}

// SgioError reports a non-zero SCSI/host/driver status returned from a
// SG_IO pass-through, as distinct from an ioctl-level transport failure.
type SgioError struct {
	ScsiStatus   uint8
	HostStatus   uint16
	DriverStatus uint16
	SenseBuf     [32]byte
}

func (e SgioError) Error() string {
	return fmt.Sprintf("SCSI status: %#02x, host status: %#02x, driver status: %#02x",
		e.ScsiStatus, e.HostStatus, e.DriverStatus)
}

// execGenericIO issues cdb via SG_IO, transferring data in the given
// direction, and returns the sense buffer contents alongside any error.
func execGenericIO(fd int, direction int32, cdb []byte, data []byte, timeoutMs uint32) ([]byte, error) {
	senseBuf := make([]byte, 32)

	hdr := sgIoHdr{
		interface_id:    'S',
		dxfer_direction: direction,
		cmd_len:         uint8(len(cdb)),
		mx_sb_len:       uint8(len(senseBuf)),
		cmdp:            uintptr(unsafe.Pointer(&cdb[0])),
		sbp:             uintptr(unsafe.Pointer(&senseBuf[0])),
		timeout:         timeoutMs,
	}

	if len(data) > 0 {
		hdr.dxfer_len = uint32(len(data))
		hdr.dxferp = uintptr(unsafe.Pointer(&data[0]))
	}

	if err := ioctl.Ioctl(uintptr(fd), SG_IO, uintptr(unsafe.Pointer(&hdr))); err != nil {
		return senseBuf, err
	}

	if hdr.info&SG_INFO_OK_MASK != SG_INFO_OK {
		err := SgioError{
			ScsiStatus:   hdr.status,
			HostStatus:   hdr.host_status,
			DriverStatus: hdr.driver_status,
		}
		copy(err.SenseBuf[:], senseBuf)
		return senseBuf, err
	}

	return senseBuf, nil
}

func openDevice(path string) (int, error) {
	return syscall.Open(path, syscall.O_RDWR, 0600)
}
