/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package devices

import (
	"fmt"

	"github.com/gravwell/detnetd/schedule"
)

// IntelMgbeEhl handles the integrated Intel mGBE controller on the Elkhart
// Lake platform, both the host and PSE instances.
type IntelMgbeEhl struct {
	base
}

var (
	mgbeEhlHostIDs = []string{`8086:4B30`, `8086:4B31`, `8086:4B32`}
	mgbeEhlPseIDs  = []string{
		`8086:4BA0`, `8086:4BA1`, `8086:4BA2`,
		`8086:4BB0`, `8086:4BB1`, `8086:4BB2`,
	}

	// Later mGBE instances are recognized so the error message is useful,
	// but no handler exists for them yet.
	mgbeTglIDs = []string{`8086:A0AC`, `8086:43AC`, `8086:43A2`}
	mgbeAdlIDs = []string{`8086:7AAC`, `8086:7AAD`, `8086:54AC`}
)

func init() {
	register(append(append([]string{}, mgbeEhlHostIDs...), mgbeEhlPseIDs...), newIntelMgbeEhl)
	register(mgbeTglIDs, newUnimplementedMgbe(`Tiger Lake`))
	register(mgbeAdlIDs, newUnimplementedMgbe(`Alder Lake`))
}

func newUnimplementedMgbe(platform string) constructor {
	return func(pciID string) (Device, error) {
		return nil, fmt.Errorf("%w: no handler for the %s integrated TSN controller (%s)",
			ErrDeviceNotImplemented, platform, pciID)
	}
}

func newIntelMgbeEhl(pciID string) (Device, error) {
	return &IntelMgbeEhl{
		base: base{
			name:        `Intel mGBE EHL`,
			numTxQueues: 8,
			numRxQueues: 8,
			caps:        capSet(GateSched, LaunchTimeControl, FramePreemption),
			// The controller refuses base times closer than one full cycle
			// ahead, so schedule two cycles out.
			baseTimeMult: 2,
			// Placeholder MAC+PHY latency
			hwLatencyMin: 256,
			hwLatencyMax: 512,
			features: map[string]bool{
				`rxvlan`:        false,
				`hw-tc-offload`: true,
			},
			txRing: 1024,
			rxRing: 1024,
		},
	}, nil
}

// SupportsSchedule accepts any schedule; the mGBE gate hardware can reopen a
// queue within a cycle.
func (d *IntelMgbeEhl) SupportsSchedule(s *schedule.Schedule) bool {
	return true
}
