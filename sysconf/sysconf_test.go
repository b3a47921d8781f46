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
	"testing"

	"github.com/gravwell/detnetd/mapping"
	"github.com/gravwell/detnetd/schedule"
)

func testSchedule() *schedule.Schedule {
	rt := &schedule.Traffic{Type: schedule.Scheduled, TC: 1}
	be := &schedule.Traffic{Type: schedule.BestEffort, TC: 0}
	return &schedule.Schedule{
		Period: 20000000,
		Slots: []schedule.Slot{
			{Start: 0, End: 12176, Length: 12176, Traffic: rt},
			{Start: 12176, End: 20000000, Length: 19987824, Traffic: be},
		},
	}
}

func TestTaprioCommandOffload(t *testing.T) {
	m, err := mapping.New(8)
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := taprioCommand(`eth0`, m, testSchedule(), 250000000, true)
	if err != nil {
		t.Fatal(err)
	}
	want := `tc qdisc replace dev eth0 parent root taprio` +
		` num_tc 8` +
		` map 0 0 0 0 0 0 0 1 2 3 4 5 6 7 0 0` +
		` queues 1@0 1@1 1@2 1@3 1@4 1@5 1@6 1@7` +
		` base-time 250000000` +
		` sched-entry S 02 12176` +
		` sched-entry S 01 19987824` +
		` flags 0x2`
	if cmd != want {
		t.Fatalf("command mismatch:\n got  %s\n want %s", cmd, want)
	}
}

func TestTaprioCommandSoftware(t *testing.T) {
	m, err := mapping.New(4)
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := taprioCommand(`enp2s0`, m, testSchedule(), 0, false)
	if err != nil {
		t.Fatal(err)
	}
	want := `tc qdisc replace dev enp2s0 parent root taprio` +
		` num_tc 4` +
		` map 0 0 0 0 0 0 0 1 2 3 0 0 0 0 0 0` +
		` queues 1@0 1@1 1@2 1@3` +
		` base-time 0` +
		` sched-entry S 02 12176` +
		` sched-entry S 01 19987824` +
		` flags 0x0 clockid CLOCK_TAI`
	if cmd != want {
		t.Fatalf("command mismatch:\n got  %s\n want %s", cmd, want)
	}
}

func TestTaprioCommandRejectsEmptySchedule(t *testing.T) {
	m, err := mapping.New(8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := taprioCommand(`eth0`, m, schedule.NewSchedule(), 0, true); !errors.Is(err, ErrEmptySchedule) {
		t.Fatalf("expected ErrEmptySchedule, got %v", err)
	}
}

func TestGateMask(t *testing.T) {
	for _, tc := range []struct {
		tc   int
		want string
	}{
		{0, `01`},
		{1, `02`},
		{3, `08`},
		{7, `80`},
	} {
		mask, err := gateMask(tc.tc)
		if err != nil {
			t.Fatal(err)
		}
		if mask != tc.want {
			t.Fatalf("tc %d: got %s want %s", tc.tc, mask, tc.want)
		}
	}
	if _, err := gateMask(8); !errors.Is(err, ErrBadTC) {
		t.Fatalf("tc 8 should be rejected")
	}
}

func TestTaprioDeleteCommand(t *testing.T) {
	if got := taprioDeleteCommand(`eth0`); got != `tc qdisc del dev eth0 root` {
		t.Fatalf("unexpected delete command: %s", got)
	}
}

func TestVlanAddCommand(t *testing.T) {
	m, err := mapping.New(8)
	if err != nil {
		t.Fatal(err)
	}
	cmd := vlanAddCommand(`eth0`, 3, m.SoprioToPCP())
	want := `ip link add link eth0 name eth0.3 type vlan protocol 802.1Q id 3` +
		` egress 0:0 7:1 8:2 9:3 10:4 11:5 12:6 13:7`
	if cmd != want {
		t.Fatalf("command mismatch:\n got  %s\n want %s", cmd, want)
	}
}

func TestVlanName(t *testing.T) {
	if got := VlanName(`eth0`, 3); got != `eth0.3` {
		t.Fatalf("vlan name: got %s", got)
	}
}

func TestIsValidPath(t *testing.T) {
	if IsValidPath(``) || IsValidPath(`relative/path`) {
		t.Fatal("relative and empty paths must be rejected")
	}
	if !IsValidPath(`/var/lock/detnetd`) {
		t.Fatal("absolute path rejected")
	}
}
