/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package devices holds the capability records for the network controllers
// detnetd knows how to drive. A device is matched from its PCI vendor:device
// string; each family encodes its own schedule feasibility constraints.
package devices

import (
	"errors"
	"fmt"

	"github.com/gravwell/detnetd/schedule"
)

type Capability int

const (
	// GateSched is 802.1Qbv time aware gate scheduling.
	GateSched Capability = iota
	// FramePreemption is 802.1Qbu.
	FramePreemption
	// LaunchTimeControl is per-packet launch time (SO_TXTIME style).
	LaunchTimeControl
)

var (
	ErrUnknownDevice        = errors.New("Unrecognized PCI ID")
	ErrDeviceNotTSNCapable  = errors.New("device model does not support TSN")
	ErrDeviceUnprogrammed   = errors.New("device flash image is empty or the NVM configuration failed to load")
	ErrDeviceNotImplemented = errors.New("device is recognized but not yet supported")
	ErrUnsupportedSchedule  = errors.New("device cannot implement the requested schedule")
	ErrUnsupportedFeature   = errors.New("device does not support the requested feature")
)

// Device is the capability record for one controller family. Records are
// immutable and process lived.
type Device interface {
	Name() string

	NumTxQueues() int
	NumRxQueues() int

	HasCapability(c Capability) bool

	// SupportsSchedule encodes the device specific feasibility constraints,
	// e.g. whether a gate may open more than once per cycle.
	SupportsSchedule(s *schedule.Schedule) bool

	// BaseTimeMultiple is the number of cycles added to the start of the
	// next cycle when computing a base time. Negative values place the base
	// time in the past.
	BaseTimeMultiple() int64

	// HardwareLatencyMin and HardwareLatencyMax bound the MAC+PHY delay in ns.
	HardwareLatencyMin() int64
	HardwareLatencyMax() int64

	// Features is the ethtool feature set the device wants while running
	// deterministic traffic.
	Features() map[string]bool

	// NumTxRingEntries and NumRxRingEntries are the ring sizes to configure.
	NumTxRingEntries() int
	NumRxRingEntries() int

	// DefaultHints are the hints applied when a request carries none.
	DefaultHints() schedule.Hints
}

type constructor func(pciID string) (Device, error)

// registry maps PCI vendor:device strings to family constructors. Add new
// families here.
var registry = map[string]constructor{}

func register(ids []string, c constructor) {
	for _, id := range ids {
		registry[id] = c
	}
}

// FromPCIID returns the device record handling the given PCI vendor:device
// string. Unknown IDs fail; known IDs may still be refused by the family
// (non-TSN variants, unprogrammed NVM).
func FromPCIID(pciID string) (Device, error) {
	c, ok := registry[pciID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, pciID)
	}
	return c(pciID)
}

// CheckHints validates requested hints against the device capability set.
func CheckHints(d Device, h *schedule.Hints) error {
	if h == nil {
		return nil
	}
	if h.TxSelection == schedule.TxSelectionEST && h.TxSelectionOffload && !d.HasCapability(GateSched) {
		return fmt.Errorf("%w: 802.1Qbv offload", ErrUnsupportedFeature)
	}
	if h.Preemption && !d.HasCapability(FramePreemption) {
		return fmt.Errorf("%w: frame preemption", ErrUnsupportedFeature)
	}
	if h.LaunchTimeControl && !d.HasCapability(LaunchTimeControl) {
		return fmt.Errorf("%w: launch time control", ErrUnsupportedFeature)
	}
	return nil
}

// base carries the fields every family shares.
type base struct {
	name         string
	numTxQueues  int
	numRxQueues  int
	caps         map[Capability]bool
	baseTimeMult int64
	hwLatencyMin int64
	hwLatencyMax int64
	features     map[string]bool
	txRing       int
	rxRing       int
}

func (b *base) Name() string                 { return b.name }
func (b *base) NumTxQueues() int             { return b.numTxQueues }
func (b *base) NumRxQueues() int             { return b.numRxQueues }
func (b *base) HasCapability(c Capability) bool { return b.caps[c] }
func (b *base) BaseTimeMultiple() int64      { return b.baseTimeMult }
func (b *base) HardwareLatencyMin() int64    { return b.hwLatencyMin }
func (b *base) HardwareLatencyMax() int64    { return b.hwLatencyMax }
func (b *base) NumTxRingEntries() int        { return b.txRing }
func (b *base) NumRxRingEntries() int        { return b.rxRing }

func (b *base) Features() map[string]bool {
	f := make(map[string]bool, len(b.features))
	for k, v := range b.features {
		f[k] = v
	}
	return f
}

func (b *base) DefaultHints() schedule.Hints {
	return schedule.Hints{
		TxSelection:        schedule.TxSelectionEST,
		TxSelectionOffload: true,
		DataPath:           schedule.DataPathAFPacket,
		Preemption:         false,
		LaunchTimeControl:  false,
	}
}

func capSet(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

func member(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
