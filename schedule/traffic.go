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
	"fmt"
)

type TrafficType int

const (
	BestEffort TrafficType = 0
	Scheduled  TrafficType = 1
)

var (
	ErrFrameExceedsInterval = errors.New("frame transmission time reaches or exceeds the interval")
	ErrInvalidRate          = errors.New("Invalid link rate")
)

// Traffic is a stream accepted into the schedule. For scheduled traffic,
// Start/End/Length are the on-wire window within one cycle, in ns, and TC is
// the traffic class assigned by the mapping. A best effort traffic carries
// no timing and fills every gap.
type Traffic struct {
	Type     TrafficType
	Interval int64
	Size     int
	Start    int64
	End      int64
	Length   int64
	TC       int
	Config   *Configuration
}

// NewBestEffortTraffic returns the distinguished best effort traffic for a
// schedule, bound to the given traffic class.
func NewBestEffortTraffic(tc int) *Traffic {
	return &Traffic{Type: BestEffort, TC: tc}
}

// NewScheduledTraffic computes the wire occupancy of the stream at the given
// link rate in bits per second. Frame length is floor(size*8 / (rate/1e9)) ns.
func NewScheduledTraffic(cfg *Configuration, rate int64) (*Traffic, error) {
	if rate <= 0 {
		return nil, ErrInvalidRate
	}
	length := int64(cfg.Traffic.Size) * BytesToBit * SecToNs / rate
	start := cfg.Stream.TxOffset
	if length >= cfg.Traffic.Interval {
		return nil, ErrFrameExceedsInterval
	}
	// The frame must also complete within its own cycle, or its slot would
	// spill into the next one.
	if start+length > cfg.Traffic.Interval {
		return nil, ErrFrameExceedsInterval
	}
	return &Traffic{
		Type:     Scheduled,
		Interval: cfg.Traffic.Interval,
		Size:     cfg.Traffic.Size,
		Start:    start,
		End:      start + length,
		Length:   length,
		Config:   cfg,
	}, nil
}

func (t *Traffic) String() string {
	if t == nil {
		return `nil`
	}
	switch t.Type {
	case Scheduled:
		return fmt.Sprintf("Sc %d [%d %d]", t.Interval, t.Start, t.End)
	case BestEffort:
		return `BE`
	}
	return `Unknown Traffic`
}
