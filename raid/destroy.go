// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package raid

import (
	"github.com/dswarbrick/ilm"
	"github.com/dswarbrick/ilm/idm"
)

// Destroy frees the firmware-side mutex state for l on every drive,
// best-effort, and resets every slot to NoAccess. Each slot's own
// drive.Device.Exec handles the opcode, so the SCSI and NVMe transports
// never share a destructor to apply to the wrong device class.
func (e *Engine) Destroy(l *Lock) ilm.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := bareRecord(l)
	last := ilm.KindOK

	for i := range l.Drives {
		result, err := e.exec(l.Drives[i].Device, idm.Command{Op: idm.OpDestroy, Group: idm.GroupDefault, Record: rec})
		l.Drives[i].State = NoAccess

		if err != nil {
			last = ilm.KindIO
			continue
		}
		if result.Kind != ilm.KindOK && result.Kind != ilm.KindNotFound {
			last = result.Kind
		}
	}

	l.Mode = ilm.ModeUnlocked
	l.convertFailed = false

	return last
}
