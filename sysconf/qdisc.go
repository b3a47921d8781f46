/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package sysconf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gravwell/detnetd/mapping"
	"github.com/gravwell/detnetd/schedule"
)

var (
	ErrEmptySchedule = errors.New("cannot install an empty schedule")
	ErrBadTC         = errors.New("slot traffic class outside the gate mask range")
)

// QdiscConfigurator installs and removes the taprio queueing discipline.
type QdiscConfigurator struct{}

// Setup installs the time aware scheduler. With offload the schedule runs in
// hardware (flags 0x2); otherwise taprio runs in software against CLOCK_TAI.
func (q QdiscConfigurator) Setup(iface string, m *mapping.Mapping, sched *schedule.Schedule, baseTime int64, offload bool) error {
	cmd, err := taprioCommand(iface, m, sched, baseTime, offload)
	if err != nil {
		return err
	}
	return runCommand(cmd)
}

// Unset removes the root qdisc, dropping the gate schedule.
func (q QdiscConfigurator) Unset(iface string) error {
	return runCommand(taprioDeleteCommand(iface))
}

func taprioDeleteCommand(iface string) string {
	return fmt.Sprintf("tc qdisc del dev %s root", iface)
}

// taprioCommand renders the full tc invocation for the schedule. The command
// text is deterministic so it can be asserted in tests.
func taprioCommand(iface string, m *mapping.Mapping, sched *schedule.Schedule, baseTime int64, offload bool) (string, error) {
	if sched.Empty() {
		return ``, ErrEmptySchedule
	}

	soprioToTC := m.SoprioToTC()
	numTC := distinct(soprioToTC)

	var sb strings.Builder
	fmt.Fprintf(&sb, "tc qdisc replace dev %s parent root taprio", iface)
	fmt.Fprintf(&sb, " num_tc %d", numTC)
	fmt.Fprintf(&sb, " map %s", joinInts(soprioToTC))
	sb.WriteString(" queues")
	for _, qr := range m.TCToHwq() {
		fmt.Fprintf(&sb, " %d@%d", qr.NumQueues, qr.Offset)
	}
	fmt.Fprintf(&sb, " base-time %d", baseTime)
	for _, slot := range sched.Slots {
		mask, err := gateMask(slot.Traffic.TC)
		if err != nil {
			return ``, err
		}
		fmt.Fprintf(&sb, " sched-entry S %s %d", mask, slot.Length)
	}
	if offload {
		sb.WriteString(" flags 0x2")
	} else {
		sb.WriteString(" flags 0x0 clockid CLOCK_TAI")
	}
	return sb.String(), nil
}

// gateMask renders the 8 bit gate state for a slot as two hex digits, with
// only the slot's traffic class gate open.
func gateMask(tc int) (string, error) {
	if tc < 0 || tc > 7 {
		return ``, ErrBadTC
	}
	return fmt.Sprintf("%02X", 1<<uint(tc)), nil
}

func distinct(vals []int) int {
	set := make(map[int]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return len(set)
}

func joinInts(vals []int) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, fmt.Sprintf("%d", v))
	}
	return strings.Join(parts, " ")
}
