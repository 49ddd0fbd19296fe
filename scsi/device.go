// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package scsi

import (
	"fmt"
	"syscall"

	"github.com/dswarbrick/ilm/idm"
)

// SCSI status codes relevant to the IDM vendor command, per SAM-5.
const (
	scsiStatusGood               = 0x00
	scsiStatusBusy               = 0x08
	scsiStatusReservationConflct = 0x18
	scsiStatusCommandTerminated  = 0x22
)

// Device is a SCSI generic (/dev/sg*) IDM transport: it issues the vendor
// CDB16 pass-through command via SG_IO, the way the teacher's sgio.go
// issued INQUIRY and ATA PASS-THROUGH CDBs over the same ioctl.
type Device struct {
	path string
	fd   int
}

// New returns an unopened SCSI generic device at path.
func New(path string) *Device {
	return &Device{path: path}
}

func (d *Device) Path() string { return d.path }

func (d *Device) Open() error {
	fd, err := openDevice(d.path)
	if err != nil {
		return err
	}
	d.fd = fd
	return nil
}

func (d *Device) Close() error {
	return syscall.Close(d.fd)
}

// Exec issues a single IDM pass-through command synchronously.
func (d *Device) Exec(cmd idm.Command) (idm.Result, error) {
	word := idm.OpcodeGroupWord(cmd.Op, cmd.Group)

	if cmd.Op == idm.OpNormal {
		numRecords := cmd.NumRecords
		if numRecords <= 0 {
			numRecords = 1
		}
		return d.execRead(word, numRecords)
	}
	return d.execWrite(word, cmd.Record)
}

func (d *Device) execWrite(word uint16, rec idm.Record) (idm.Result, error) {
	buf, err := rec.Encode()
	if err != nil {
		return idm.Result{Kind: idm.MapStatus(idm.StatusDeviceIoError, idm.Opcode(word>>12))}, err
	}

	cdb := buildIDMCdb(word, 1)
	data := buf[:]

	_, err = execGenericIO(d.fd, SG_DXFER_TO_DEV, cdb[:], data, DEFAULT_TIMEOUT)
	op, _ := idm.SplitOpcodeGroupWord(word)
	status, ioErr := statusFromErr(err)
	if ioErr != nil {
		return idm.Result{Kind: idm.MapStatus(status, op), Status: status}, ioErr
	}

	return idm.Result{Kind: idm.MapStatus(status, op), Status: status}, nil
}

func (d *Device) execRead(word uint16, numRecords int) (idm.Result, error) {
	cdb := buildIDMCdb(word, uint32(numRecords))
	data := make([]byte, idm.RecordSize*numRecords)

	_, err := execGenericIO(d.fd, SG_DXFER_FROM_DEV, cdb[:], data, DEFAULT_TIMEOUT)
	op, _ := idm.SplitOpcodeGroupWord(word)
	status, ioErr := statusFromErr(err)
	if ioErr != nil {
		return idm.Result{Kind: idm.MapStatus(status, op), Status: status}, ioErr
	}

	records, err := idm.DecodeMany(data, numRecords)
	if err != nil {
		return idm.Result{Kind: idm.MapStatus(idm.StatusDeviceIoError, op), Status: idm.StatusDeviceIoError}, err
	}

	return idm.Result{Kind: idm.MapStatus(status, op), Status: status, Records: records}, nil
}

// statusFromErr translates the error returned from execGenericIO into the
// common idm.DeviceStatus. A nil err maps to StatusOK; a transport-level
// ioctl failure maps to StatusDeviceIoError and is also returned so the
// caller can surface it; an SgioError is translated by SCSI status byte
// and swallowed (it is not a Go-level error, it is the device's answer).
func statusFromErr(err error) (idm.DeviceStatus, error) {
	if err == nil {
		return idm.StatusOK, nil
	}

	if sgErr, ok := err.(SgioError); ok {
		switch sgErr.ScsiStatus {
		case scsiStatusGood:
			return idm.StatusOK, nil
		case scsiStatusReservationConflct:
			return idm.StatusMutexConflict, nil
		case scsiStatusCommandTerminated:
			return idm.StatusMutexHeldAlready, nil
		case scsiStatusBusy:
			return idm.StatusMutexHeldByAnother, nil
		default:
			return idm.StatusDeviceIoError, fmt.Errorf("scsi: unmapped status: %w", sgErr)
		}
	}

	return idm.StatusDeviceIoError, err
}

// Identify reads the vendor identify page via a standard SCSI INQUIRY
// command's vendor-specific page, returning the raw 1024-byte buffer whose
// last byte idm.IdentifyRecord treats as the IDM version. A drive that
// rejects the INQUIRY vendor page outright (a SATA drive sitting behind a
// SAS expander that only forwards standard ATA commands) falls back to
// ATA IDENTIFY DEVICE via IdentifyATA.
func (d *Device) Identify() (idm.IdentifyRecord, error) {
	var rec idm.IdentifyRecord

	cdb := CDB6{SCSI_INQUIRY, 0, 0, byte(len(rec) >> 8), byte(len(rec) & 0xff), 0}
	data := make([]byte, len(rec))

	if _, err := execGenericIO(d.fd, SG_DXFER_FROM_DEV, cdb[:], data, DEFAULT_TIMEOUT); err != nil {
		if _, ok := err.(SgioError); ok {
			return d.IdentifyATA()
		}
		return rec, err
	}

	copy(rec[:], data)
	return rec, nil
}
