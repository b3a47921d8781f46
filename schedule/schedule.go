/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package schedule

import (
	"fmt"
	"sort"
	"strings"
)

// Slot is one gate-open window. Invariant: Start < End, Length = End-Start.
type Slot struct {
	Start   int64
	End     int64
	Length  int64
	Traffic *Traffic
}

func newSlot(start, end int64, traffic *Traffic) Slot {
	return Slot{
		Start:   start,
		End:     end,
		Length:  end - start,
		Traffic: traffic,
	}
}

// Schedule is an ordered sequence of non-overlapping slots covering
// [0, Period) contiguously. Exactly one traffic is active per slot; best
// effort fills every gap left by scheduled traffic.
type Schedule struct {
	Slots  []Slot
	Period int64
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

func (s *Schedule) Empty() bool {
	return len(s.Slots) == 0
}

func (s *Schedule) addScheduledTraffic(start, end int64, traffic *Traffic) {
	s.Slots = append(s.Slots, newSlot(start, end, traffic))
	s.sort()
}

func (s *Schedule) sort() {
	sort.Slice(s.Slots, func(i, j int) bool {
		return s.Slots[i].Start < s.Slots[j].Start
	})
}

// addBestEffortPadding fills every gap between scheduled slots with best
// effort, including the tail up to the period.
func (s *Schedule) addBestEffortPadding(be *Traffic) {
	var end int64
	n := len(s.Slots)
	for i := 0; i < n; i++ {
		if end < s.Slots[i].Start {
			// Padding slots go at the end and get sorted below, so no
			// re-indexing is needed while walking.
			s.Slots = append(s.Slots, newSlot(end, s.Slots[i].Start, be))
		}
		end = s.Slots[i].End
	}
	s.sort()
	if n := len(s.Slots); n > 0 && s.Slots[n-1].End < s.Period {
		s.Slots = append(s.Slots, newSlot(s.Slots[n-1].End, s.Period, be))
	}
}

// ConflictsWithTraffic reports whether the traffic's window lands inside any
// scheduled slot. Best effort never conflicts.
func (s *Schedule) ConflictsWithTraffic(traffic *Traffic) bool {
	if traffic.Type == BestEffort {
		return false
	}
	for _, slot := range s.Slots {
		if slot.Traffic.Type != Scheduled {
			continue
		}
		if traffic.Start >= slot.Start && traffic.Start <= slot.End {
			return true
		}
		if traffic.End >= slot.Start && traffic.End <= slot.End {
			return true
		}
	}
	return false
}

// OpensGateMultipleTimesPerCycle reports whether any gate has to open more
// than once over the same cycle. Some devices do not allow a hardware queue
// to be opened twice within a cycle.
func (s *Schedule) OpensGateMultipleTimesPerCycle() bool {
	opened := make(map[*Traffic]bool, len(s.Slots))
	for i, slot := range s.Slots {
		var previous *Traffic
		if i > 0 {
			previous = s.Slots[i-1].Traffic
		}
		if opened[slot.Traffic] {
			// A slot continuing the previous traffic keeps the gate open, so
			// it is not a new open event.
			if previous != slot.Traffic {
				return true
			}
		} else {
			opened[slot.Traffic] = true
		}
	}
	return false
}

// NumTraffics counts the distinct traffics referenced by the schedule,
// including best effort.
func (s *Schedule) NumTraffics() int {
	set := make(map[*Traffic]bool, len(s.Slots))
	for _, slot := range s.Slots {
		set[slot.Traffic] = true
	}
	return len(set)
}

func (s *Schedule) String() string {
	slots := make([]string, 0, len(s.Slots))
	for _, slot := range s.Slots {
		slots = append(slots, fmt.Sprintf("|%d %d|", slot.Start, slot.End))
	}
	return "<" + strings.Join(slots, ",") + ">"
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lcm computes the least common multiple of the given intervals. The second
// return is false when the result would not fit the period bound.
func lcm(numbers []int64) (int64, bool) {
	var r int64 = 1
	for _, n := range numbers {
		g := gcd(r, n)
		q := n / g
		if r > maxPeriod/q {
			return 0, false
		}
		r *= q
	}
	return r, true
}
