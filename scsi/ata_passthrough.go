// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package scsi

import (
	"github.com/dswarbrick/ilm/ata"
	"github.com/dswarbrick/ilm/idm"
)

// ATA PASS-THROUGH(16) protocol/t_length fields relevant to a PIO data-in
// IDENTIFY DEVICE: protocol 4 (PIO Data-In), t_length 2 (transfer length in
// the sector count field), byte_block 1.
const (
	ataProtoPioDataIn = 4 << 1
	ataFlagsTDir      = 1 << 3 // t_dir: 1 = data from device
	ataFlagsByteBlock = 1 << 2
	ataFlagsTLength   = 2 // t_length: sector count field carries the length
)

// buildATA16Cdb assembles a CDB16 ATA PASS-THROUGH wrapping a PIO
// data-in ATA command with no feature/LBA payload, the shape IDENTIFY
// DEVICE takes.
func buildATA16Cdb(ataCommand byte, sectorCount byte) CDB16 {
	var cdb CDB16
	cdb[0] = SCSI_ATA_PASSTHRU_16
	cdb[1] = ataProtoPioDataIn
	cdb[2] = ataFlagsTDir | ataFlagsByteBlock | ataFlagsTLength
	cdb[6] = sectorCount
	cdb[14] = ataCommand
	return cdb
}

// IdentifyATA issues ATA IDENTIFY DEVICE through a SCSI-to-ATA translator
// (a SATA drive behind a SAS expander/HBA), for drives that do not answer
// the vendor INQUIRY page Identify uses. The 512-byte IDENTIFY DEVICE
// sector is copied into the low bytes of the returned IdentifyRecord and
// the rest stays zero, so IdentifyRecord.VersionByte, which reads the last
// byte, reports 0 for a drive identified through this path.
func (d *Device) IdentifyATA() (idm.IdentifyRecord, error) {
	var rec idm.IdentifyRecord

	cdb := buildATA16Cdb(ata.ATA_IDENTIFY_DEVICE, 1)
	data := make([]byte, 512)

	if _, err := execGenericIO(d.fd, SG_DXFER_FROM_DEV, cdb[:], data, DEFAULT_TIMEOUT); err != nil {
		return rec, err
	}

	copy(rec[:], data)
	return rec, nil
}
