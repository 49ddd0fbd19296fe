// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nvme

import (
	"unsafe"

	"github.com/dswarbrick/go-nvme/ioctl"
	"golang.org/x/sys/unix"

	"github.com/dswarbrick/ilm/idm"
)

// NVMe vendor completion status codes for the IDM admin command, carried
// back in the passthrough command's result field.
const (
	nvmeStatusOK                 = 0x00
	nvmeStatusMutexConflict      = 0xC9
	nvmeStatusMutexHeldAlready   = 0xCA
	nvmeStatusMutexHeldByAnother = 0xCB

	nvmeDefaultTimeoutMs = 15000
)

// Device is an NVMe admin passthrough IDM transport, issuing the vendor
// IDM command via NVME_IOCTL_ADMIN_CMD the way the sibling go-nvme library
// issues its Identify admin commands.
type Device struct {
	path string
	fd   int
}

// New returns an unopened NVMe char device.
func New(path string) *Device {
	return &Device{path: path}
}

func (d *Device) Path() string { return d.path }

func (d *Device) Open() error {
	fd, err := unix.Open(d.path, unix.O_RDWR, 0600)
	if err != nil {
		return err
	}
	d.fd = fd
	return nil
}

func (d *Device) Close() error {
	return unix.Close(d.fd)
}

func (d *Device) Exec(cmd idm.Command) (idm.Result, error) {
	word := idm.OpcodeGroupWord(cmd.Op, cmd.Group)
	op, _ := idm.SplitOpcodeGroupWord(word)

	if cmd.Op == idm.OpNormal {
		numRecords := cmd.NumRecords
		if numRecords <= 0 {
			numRecords = 1
		}
		return d.execRead(word, op, numRecords)
	}
	return d.execWrite(word, op, cmd.Record)
}

func (d *Device) execWrite(word uint16, op idm.Opcode, rec idm.Record) (idm.Result, error) {
	buf, err := rec.Encode()
	if err != nil {
		return idm.Result{Kind: idm.MapStatus(idm.StatusDeviceIoError, op)}, err
	}

	passthru := nvmePassthruCommand{
		opcode:     NVMeAdminVendorIDM,
		nsid:       0xffffffff,
		addr:       uint64(uintptr(unsafe.Pointer(&buf[0]))),
		data_len:   uint32(len(buf)),
		cdw10:      uint32(word),
		timeout_ms: nvmeDefaultTimeoutMs,
	}

	if err := ioctl.Ioctl(uintptr(d.fd), NVME_IOCTL_ADMIN_CMD, uintptr(unsafe.Pointer(&passthru))); err != nil {
		return idm.Result{Kind: idm.MapStatus(idm.StatusDeviceIoError, op), Status: idm.StatusDeviceIoError}, err
	}

	status := statusFromResult(passthru.result)
	return idm.Result{Kind: idm.MapStatus(status, op), Status: status}, nil
}

func (d *Device) execRead(word uint16, op idm.Opcode, numRecords int) (idm.Result, error) {
	data := make([]byte, idm.RecordSize*numRecords)

	passthru := nvmePassthruCommand{
		opcode:     NVMeAdminVendorIDM,
		nsid:       0xffffffff,
		addr:       uint64(uintptr(unsafe.Pointer(&data[0]))),
		data_len:   uint32(len(data)),
		cdw10:      uint32(word),
		timeout_ms: nvmeDefaultTimeoutMs,
	}

	if err := ioctl.Ioctl(uintptr(d.fd), NVME_IOCTL_ADMIN_CMD, uintptr(unsafe.Pointer(&passthru))); err != nil {
		return idm.Result{Kind: idm.MapStatus(idm.StatusDeviceIoError, op), Status: idm.StatusDeviceIoError}, err
	}

	status := statusFromResult(passthru.result)
	if status != idm.StatusOK {
		return idm.Result{Kind: idm.MapStatus(status, op), Status: status}, nil
	}

	records, err := idm.DecodeMany(data, numRecords)
	if err != nil {
		return idm.Result{Kind: idm.MapStatus(idm.StatusDeviceIoError, op), Status: idm.StatusDeviceIoError}, err
	}

	return idm.Result{Kind: idm.MapStatus(status, op), Status: status, Records: records}, nil
}

func statusFromResult(result uint32) idm.DeviceStatus {
	switch result & 0xff {
	case nvmeStatusOK:
		return idm.StatusOK
	case nvmeStatusMutexConflict:
		return idm.StatusMutexConflict
	case nvmeStatusMutexHeldAlready:
		return idm.StatusMutexHeldAlready
	case nvmeStatusMutexHeldByAnother:
		return idm.StatusMutexHeldByAnother
	default:
		return idm.StatusDeviceIoError
	}
}

// Identify issues an NVMe Identify Controller admin command (opcode 0x06)
// and returns the first 1024 bytes of the 4096-byte page, whose last byte
// idm.IdentifyRecord treats as the IDM version.
func (d *Device) Identify() (idm.IdentifyRecord, error) {
	var rec idm.IdentifyRecord
	buf := make([]byte, 4096)

	passthru := nvmePassthruCommand{
		opcode:     nvmeAdminIdentify,
		nsid:       0,
		addr:       uint64(uintptr(unsafe.Pointer(&buf[0]))),
		data_len:   uint32(len(buf)),
		cdw10:      1,
		timeout_ms: nvmeDefaultTimeoutMs,
	}

	if err := ioctl.Ioctl(uintptr(d.fd), NVME_IOCTL_ADMIN_CMD, uintptr(unsafe.Pointer(&passthru))); err != nil {
		return rec, err
	}

	copy(rec[:], buf[:len(rec)])
	return rec, nil
}

const nvmeAdminIdentify = 0x06
