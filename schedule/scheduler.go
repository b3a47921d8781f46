/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package schedule

import (
	"errors"
)

// maxPeriod bounds the schedule period at 2^40 ns (about 18 minutes) so that
// adversarial coprime intervals cannot push the LCM into overflow while
// generating slots.
const maxPeriod int64 = 1 << 40

var (
	ErrConflict       = errors.New("Traffic conflicts with existing schedule")
	ErrPeriodOverflow = errors.New("schedule period exceeds the supported bound")
	ErrUnknownTraffic = errors.New("traffic is not part of the schedule")
)

// Scheduler owns the traffic set for one interface and keeps the schedule
// valid under incremental add and remove. Index 0 of the traffic set always
// holds best effort.
type Scheduler struct {
	Schedule *Schedule
	traffics []*Traffic
}

// NewScheduler creates a scheduler whose best effort traffic is bound to the
// given traffic class.
func NewScheduler(bestEffortTC int) *Scheduler {
	return &Scheduler{
		Schedule: NewSchedule(),
		traffics: []*Traffic{NewBestEffortTraffic(bestEffortTC)},
	}
}

// BestEffort returns the distinguished best effort traffic.
func (s *Scheduler) BestEffort() *Traffic {
	return s.traffics[0]
}

// Traffics returns the current traffic set, best effort included.
func (s *Scheduler) Traffics() []*Traffic {
	return s.traffics
}

// NumScheduled returns the number of scheduled (non best effort) traffics.
func (s *Scheduler) NumScheduled() int {
	return len(s.traffics) - 1
}

// Add accepts the traffic into the schedule, regenerating it from scratch.
// The traffic set is left untouched when the add fails.
func (s *Scheduler) Add(traffic *Traffic) error {
	if s.Schedule.ConflictsWithTraffic(traffic) {
		return ErrConflict
	}
	s.traffics = append(s.traffics, traffic)
	if err := s.reschedule(); err != nil {
		s.traffics = s.traffics[:len(s.traffics)-1]
		if rerr := s.reschedule(); rerr != nil {
			return rerr
		}
		return err
	}
	return nil
}

// Remove drops the traffic and regenerates; with only best effort left the
// schedule becomes empty (period zero).
func (s *Scheduler) Remove(traffic *Traffic) error {
	for i, t := range s.traffics {
		if t == traffic {
			s.traffics = append(s.traffics[:i], s.traffics[i+1:]...)
			return s.reschedule()
		}
	}
	return ErrUnknownTraffic
}

func (s *Scheduler) reschedule() error {
	if len(s.traffics) == 1 && s.traffics[0].Type == BestEffort {
		s.Schedule = NewSchedule()
		return nil
	}

	var scheduled []*Traffic
	for _, t := range s.traffics {
		if t.Type == Scheduled {
			scheduled = append(scheduled, t)
		}
	}

	intervals := make([]int64, 0, len(scheduled))
	for _, t := range scheduled {
		intervals = append(intervals, t.Interval)
	}
	period, ok := lcm(intervals)
	if !ok {
		return ErrPeriodOverflow
	}

	sched := NewSchedule()
	sched.Period = period
	for _, t := range scheduled {
		n := period / t.Interval
		for i := int64(0); i < n; i++ {
			start := t.Start + t.Interval*i
			sched.addScheduledTraffic(start, start+t.Length, t)
		}
	}
	// The conflict pre-check only sees the slots of the current period;
	// growing the period can still collide replicas of different streams.
	for i := 1; i < len(sched.Slots); i++ {
		if sched.Slots[i-1].End > sched.Slots[i].Start {
			return ErrConflict
		}
	}
	sched.addBestEffortPadding(s.traffics[0])
	s.Schedule = sched
	return nil
}
