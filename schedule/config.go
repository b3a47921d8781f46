/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package schedule implements the local scheduling facilities for multiple
// deterministic streams: the stream and traffic data model, the periodic
// gate schedule, and the scheduler that maintains it under add and remove.
//
// It deals with domain entities only; applying a schedule to the system is
// someone else's job.
package schedule

import (
	"errors"
	"regexp"
)

const (
	SecToNs    int64 = 1000 * 1000 * 1000
	BytesToBit int64 = 8

	// VLAN IDs 0/1 and 4095 are reserved, per 802.1Q.
	MinVID = 2
	MaxVID = 4094

	MaxPCP = 7
)

var (
	ErrInvalidMacAddress = errors.New("Invalid MAC address")
	ErrInvalidVlanID     = errors.New("Invalid VLAN ID")
	ErrInvalidPCP        = errors.New("Invalid VLAN PCP")
	ErrInvalidTxOffset   = errors.New("Invalid TxOffset, it must be smaller than Interval")
	ErrInvalidBaseTime   = errors.New("Invalid base time")
	ErrInvalidInterval   = errors.New("Invalid Interval")
	ErrInvalidFrameSize  = errors.New("Invalid frame size")
)

var macRegexp = regexp.MustCompile(`^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$`)

// TxSelection selects the transmission selection mechanism.
type TxSelection int

const (
	// TxSelectionEST is 802.1Qbv Enhancements for Scheduled Traffic.
	TxSelectionEST TxSelection = 0
	// TxSelectionStrictPriority is plain strict priority selection.
	TxSelectionStrictPriority TxSelection = 1
)

// DataPath selects the packet I/O technology the application will use.
type DataPath int

const (
	DataPathAFPacket DataPath = 0
	DataPathAFXDPZC  DataPath = 1
)

// Hints carry optional per-stream QoS preferences; the device layer decides
// whether the underlying hardware can honor them.
type Hints struct {
	TxSelection        TxSelection
	TxSelectionOffload bool
	DataPath           DataPath
	Preemption         bool
	LaunchTimeControl  bool
}

// StreamConfiguration identifies one stream: destination, VLAN tagging and
// the transmission offset within the cycle. BaseTime is an absolute TAI
// timestamp in ns; nil means the daemon computes one.
type StreamConfiguration struct {
	Addr     string
	VID      int
	PCP      int
	TxOffset int64
	BaseTime *int64
}

func NewStreamConfiguration(addr string, vid, pcp int, txoffset int64, baseTime *int64) (*StreamConfiguration, error) {
	if !IsMacAddress(addr) {
		return nil, ErrInvalidMacAddress
	}
	if !IsValidVlanID(vid) {
		return nil, ErrInvalidVlanID
	}
	if !IsValidPCP(pcp) {
		return nil, ErrInvalidPCP
	}
	if txoffset < 0 {
		return nil, ErrInvalidTxOffset
	}
	if baseTime != nil && *baseTime < 0 {
		return nil, ErrInvalidBaseTime
	}
	return &StreamConfiguration{
		Addr:     addr,
		VID:      vid,
		PCP:      pcp,
		TxOffset: txoffset,
		BaseTime: baseTime,
	}, nil
}

// TrafficSpecification gives the periodic shape of a stream: one frame of
// Size bytes every Interval nanoseconds.
type TrafficSpecification struct {
	Interval int64
	Size     int
}

func NewTrafficSpecification(interval int64, size int) (*TrafficSpecification, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if size <= 0 {
		return nil, ErrInvalidFrameSize
	}
	return &TrafficSpecification{Interval: interval, Size: size}, nil
}

// Configuration is a fully validated talker request for a given interface.
type Configuration struct {
	Interface string
	Stream    *StreamConfiguration
	Traffic   *TrafficSpecification
	Hints     *Hints
}

func NewConfiguration(iface string, stream *StreamConfiguration, traffic *TrafficSpecification, hints *Hints) (*Configuration, error) {
	if stream.TxOffset >= traffic.Interval {
		return nil, ErrInvalidTxOffset
	}
	return &Configuration{
		Interface: iface,
		Stream:    stream,
		Traffic:   traffic,
		Hints:     hints,
	}, nil
}

// ListenerConfiguration is the receive-side variant; MAddress is the
// multicast address the listener joins.
type ListenerConfiguration struct {
	Configuration
	MAddress string
}

func NewListenerConfiguration(iface string, stream *StreamConfiguration, traffic *TrafficSpecification, hints *Hints, maddress string) (*ListenerConfiguration, error) {
	cfg, err := NewConfiguration(iface, stream, traffic, hints)
	if err != nil {
		return nil, err
	}
	if !IsMacAddress(maddress) {
		return nil, ErrInvalidMacAddress
	}
	return &ListenerConfiguration{Configuration: *cfg, MAddress: maddress}, nil
}

func IsMacAddress(addr string) bool {
	return macRegexp.MatchString(addr)
}

func IsValidVlanID(vid int) bool {
	return vid >= MinVID && vid <= MaxVID
}

func IsValidPCP(pcp int) bool {
	return pcp >= 0 && pcp <= MaxPCP
}
