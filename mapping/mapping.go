/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package mapping tracks which socket priorities, traffic classes and
// hardware queues are free on an interface, and hands them out as a unit.
//
// The conventions are Linux specific:
//   - Best effort: socket priority 0 (the kernel default), traffic class 0,
//     PCP 0, hardware queue 0.
//   - Scheduled streams: socket priorities 7 and up, because priorities 1 to
//     6 can be set without CAP_NET_ADMIN (see man 7 socket); traffic classes
//     and Tx queues 1 to Qtx-1, one queue per class.
//
// All three pools are ordered free-lists popped from the head, so the
// results are deterministic: lowest index first.
package mapping

import (
	"errors"
)

const (
	// BestEffortSoprio and BestEffortTC are fixed by convention and never
	// enter the free-lists.
	BestEffortSoprio = 0
	BestEffortTC     = 0

	// FirstStreamSoprio is the lowest socket priority handed to streams.
	FirstStreamSoprio = 7

	// SoprioTableSize is the size of the kernel's priority to traffic class
	// map, as consumed by taprio.
	SoprioTableSize = 16
)

var (
	ErrExhausted          = errors.New("no resources available for the stream")
	ErrInvariantViolation = errors.New("releasing would leave no mapped traffic class")
	ErrNotAllocated       = errors.New("resource is not currently allocated")
	ErrInvalidPCP         = errors.New("Invalid VLAN PCP")
	ErrTooFewQueues       = errors.New("device must expose at least two Tx queues")
)

// QueueRange maps one traffic class onto a run of hardware queues, in the
// count@offset form taprio consumes.
type QueueRange struct {
	Offset    int
	NumQueues int
}

// Mapping is the per-interface resource allocation state machine.
type Mapping struct {
	numTxQueues int

	availableSoprio  []int
	availableTC      []int
	availableTxQueue []int

	tcToSoprio  []int
	soprioToPCP map[int]int
	tcToHwq     []QueueRange
}

// New builds the fixed mapping for a device with the given Tx queue count:
// one traffic class and one queue per stream, statically wired tables.
func New(numTxQueues int) (*Mapping, error) {
	if numTxQueues < 2 {
		return nil, ErrTooFewQueues
	}
	m := &Mapping{
		numTxQueues: numTxQueues,
		tcToSoprio:  []int{BestEffortSoprio},
		soprioToPCP: map[int]int{BestEffortSoprio: 0},
	}
	for i := 0; i < numTxQueues-1; i++ {
		m.availableSoprio = append(m.availableSoprio, FirstStreamSoprio+i)
		m.availableTC = append(m.availableTC, 1+i)
		m.availableTxQueue = append(m.availableTxQueue, 1+i)
		m.tcToSoprio = append(m.tcToSoprio, FirstStreamSoprio+i)
	}
	pcp := 1
	for _, soprio := range m.tcToSoprio[1:] {
		m.soprioToPCP[soprio] = pcp
		pcp++
	}
	for i := 0; i < numTxQueues; i++ {
		m.tcToHwq = append(m.tcToHwq, QueueRange{Offset: i, NumQueues: 1})
	}
	return m, nil
}

// AssignAndMap reserves one socket priority, traffic class and Tx queue for
// a stream tagged with the given PCP. Pops are head-first from each list in
// that order; a partial failure pushes the already popped items back before
// returning, so failed calls never leak.
func (m *Mapping) AssignAndMap(pcp int) (soprio, tc, queue int, err error) {
	if pcp < 0 || pcp > 7 {
		err = ErrInvalidPCP
		return
	}
	if soprio, err = pop(&m.availableSoprio); err != nil {
		return
	}
	if tc, err = pop(&m.availableTC); err != nil {
		push(&m.availableSoprio, soprio)
		return
	}
	if queue, err = pop(&m.availableTxQueue); err != nil {
		push(&m.availableTC, tc)
		push(&m.availableSoprio, soprio)
		return
	}
	return
}

// UnmapAndFree returns a triple to the pools, re-inserting at the head so a
// subsequent assignment reuses the lowest indices first.
func (m *Mapping) UnmapAndFree(soprio, tc, queue int) error {
	// At least one mapped traffic class has to remain for best effort.
	if len(m.availableTC) >= m.numTxQueues-1 {
		return ErrInvariantViolation
	}
	if soprio == BestEffortSoprio || tc == BestEffortTC || queue == 0 {
		return ErrNotAllocated
	}
	if contains(m.availableSoprio, soprio) || contains(m.availableTC, tc) || contains(m.availableTxQueue, queue) {
		return ErrNotAllocated
	}
	push(&m.availableTxQueue, queue)
	push(&m.availableTC, tc)
	push(&m.availableSoprio, soprio)
	return nil
}

// SoprioToTC returns the 16 entry socket priority to traffic class table.
// Priorities not assigned to a scheduled class default to best effort.
func (m *Mapping) SoprioToTC() []int {
	table := make([]int, SoprioTableSize)
	for tc, soprio := range m.tcToSoprio {
		if soprio < SoprioTableSize {
			table[soprio] = tc
		}
	}
	return table
}

// SoprioToPCP returns the fixed egress priority to PCP table.
func (m *Mapping) SoprioToPCP() map[int]int {
	table := make(map[int]int, len(m.soprioToPCP))
	for k, v := range m.soprioToPCP {
		table[k] = v
	}
	return table
}

// TCToHwq returns the traffic class to hardware queue ranges.
func (m *Mapping) TCToHwq() []QueueRange {
	table := make([]QueueRange, len(m.tcToHwq))
	copy(table, m.tcToHwq)
	return table
}

// NumTC returns the number of traffic classes the device is configured for.
func (m *Mapping) NumTC() int {
	return m.numTxQueues
}

// FreeCounts reports the free list sizes, soprio/tc/queue order.
func (m *Mapping) FreeCounts() (int, int, int) {
	return len(m.availableSoprio), len(m.availableTC), len(m.availableTxQueue)
}

func pop(list *[]int) (int, error) {
	if len(*list) == 0 {
		return 0, ErrExhausted
	}
	v := (*list)[0]
	*list = (*list)[1:]
	return v, nil
}

func push(list *[]int, v int) {
	*list = append([]int{v}, *list...)
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
