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

// IntelI225 handles the Intel i225 family. Only the LM and IT variants are
// TSN capable; the gate hardware cannot reopen a queue within a cycle.
type IntelI225 struct {
	base
}

var (
	i225ValidIDs = []string{`8086:0D9F`, `8086:15F2`}
	// i225-V and i225-LMvP do not support TSN.
	i225NonTSNIDs = []string{`8086:15F3`, `8086:5502`}
	// Hardware default with an empty flash image, or the NVM configuration
	// failed to load.
	i225UnprogrammedIDs = []string{`8086:15FD`}
)

func init() {
	ids := append(append([]string{}, i225ValidIDs...), i225NonTSNIDs...)
	register(append(ids, i225UnprogrammedIDs...), newIntelI225)
}

func newIntelI225(pciID string) (Device, error) {
	if member(i225NonTSNIDs, pciID) {
		return nil, ErrDeviceNotTSNCapable
	}
	if member(i225UnprogrammedIDs, pciID) {
		return nil, ErrDeviceUnprogrammed
	}
	return &IntelI225{
		base: base{
			name:        `Intel i225`,
			numTxQueues: 4,
			numRxQueues: 4,
			caps:        capSet(GateSched),
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

func (d *IntelI225) SupportsSchedule(s *schedule.Schedule) bool {
	return !s.OpensGateMultipleTimesPerCycle()
}
