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

// IntelI226 handles the Intel i226 family.
type IntelI226 struct {
	base
}

// The unprogrammed-NVM default 8086:15FD is shared with the i225 family and
// is claimed by its constructor.
var i226ValidIDs = []string{`8086:125B`, `8086:125D`}

func init() {
	register(i226ValidIDs, newIntelI226)
}

func newIntelI226(pciID string) (Device, error) {
	return &IntelI226{
		base: base{
			name:        `Intel i226`,
			numTxQueues: 4,
			numRxQueues: 4,
			caps:        capSet(GateSched, LaunchTimeControl, FramePreemption),
			baseTimeMult: -1,
			// Placeholder MAC+PHY latency
			hwLatencyMin: 1000,
			hwLatencyMax: 2000,
			features: map[string]bool{
				`rxvlan`: false,
			},
			txRing: 1024,
			rxRing: 1024,
		},
	}, nil
}

// SupportsSchedule accepts schedules that reopen a gate within a cycle only
// while the exclusive queue-per-class layout can absorb them:
//
//	RT | BE          BE  | RT  | BE
//	BE | RT          RT1 | RT2 | BE ...
//
// which caps the shape at three traffics and four slots.
func (d *IntelI226) SupportsSchedule(s *schedule.Schedule) bool {
	if !s.OpensGateMultipleTimesPerCycle() {
		return true
	}
	return s.NumTraffics() <= 3 && len(s.Slots) <= 4
}
