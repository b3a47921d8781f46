/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package devices

import (
	"github.com/gravwell/detnetd/schedule"
)

// IntelI210 handles the Intel i210 family. The controller offers launch time
// control but no gate scheduling offload.
type IntelI210 struct {
	base
}

var (
	i210ValidIDs = []string{
		`8086:1533`, `8086:1536`, `8086:1537`, `8086:1538`,
		`8086:157B`, `8086:157C`, `8086:15F6`,
	}
	// Hardware default with an empty flash image, or the NVM configuration
	// failed to load.
	i210UnprogrammedIDs = []string{`8086:1531`}
)

func init() {
	register(append(append([]string{}, i210ValidIDs...), i210UnprogrammedIDs...), newIntelI210)
}

func newIntelI210(pciID string) (Device, error) {
	if member(i210UnprogrammedIDs, pciID) {
		return nil, ErrDeviceUnprogrammed
	}
	return &IntelI210{
		base: base{
			name:        `Intel i210`,
			numTxQueues: 4,
			numRxQueues: 4,
			caps:        capSet(LaunchTimeControl),
			baseTimeMult: -1,
			// MAC+PHY latency assuming 100 mbit link
			hwLatencyMin: 2168,
			hwLatencyMax: 2384,
			features: map[string]bool{
				`rxvlan`: false,
			},
			txRing: 1024,
			rxRing: 1024,
		},
	}, nil
}

func (d *IntelI210) SupportsSchedule(s *schedule.Schedule) bool {
	return true
}

func (d *IntelI210) DefaultHints() schedule.Hints {
	// No Qbv offload on this part; the schedule runs in software with
	// hardware launch time control.
	return schedule.Hints{
		TxSelection:        schedule.TxSelectionEST,
		TxSelectionOffload: false,
		DataPath:           schedule.DataPathAFPacket,
		Preemption:         false,
		LaunchTimeControl:  true,
	}
}
