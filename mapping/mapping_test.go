/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mapping

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPools(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)

	ns, nt, nq := m.FreeCounts()
	require.Equal(t, 7, ns)
	require.Equal(t, 7, nt)
	require.Equal(t, 7, nq)

	require.Equal(t, []int{7, 8, 9, 10, 11, 12, 13}, m.availableSoprio)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, m.availableTC)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, m.availableTxQueue)

	require.Equal(t, []int{0, 7, 8, 9, 10, 11, 12, 13}, m.tcToSoprio)
	require.Equal(t, map[int]int{0: 0, 7: 1, 8: 2, 9: 3, 10: 4, 11: 5, 12: 6, 13: 7}, m.SoprioToPCP())

	hwq := m.TCToHwq()
	require.Len(t, hwq, 8)
	for i, qr := range hwq {
		require.Equal(t, QueueRange{Offset: i, NumQueues: 1}, qr)
	}

	require.NotContains(t, m.availableSoprio, BestEffortSoprio)
	require.NotContains(t, m.availableTC, BestEffortTC)
}

func TestNewRejectsSingleQueue(t *testing.T) {
	_, err := New(1)
	require.ErrorIs(t, err, ErrTooFewQueues)
}

func TestAssignIsDeterministic(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)

	soprio, tc, queue, err := m.AssignAndMap(6)
	require.NoError(t, err)
	require.Equal(t, 7, soprio)
	require.Equal(t, 1, tc)
	require.Equal(t, 1, queue)

	soprio, tc, queue, err = m.AssignAndMap(6)
	require.NoError(t, err)
	require.Equal(t, 8, soprio)
	require.Equal(t, 2, tc)
	require.Equal(t, 2, queue)
}

func TestAssignRejectsBadPCP(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)
	_, _, _, err = m.AssignAndMap(8)
	require.ErrorIs(t, err, ErrInvalidPCP)
	_, _, _, err = m.AssignAndMap(-1)
	require.ErrorIs(t, err, ErrInvalidPCP)
}

func TestExhaustion(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, _, _, err := m.AssignAndMap(6)
		require.NoError(t, err)
	}
	_, _, _, err = m.AssignAndMap(6)
	require.ErrorIs(t, err, ErrExhausted)

	ns, nt, nq := m.FreeCounts()
	require.Zero(t, ns)
	require.Zero(t, nt)
	require.Zero(t, nq)
}

func TestPartialAssignRollsBack(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)

	// Starve only the queue pool; the popped soprio and tc must come back at
	// the head of their lists.
	saved := m.availableTxQueue
	m.availableTxQueue = nil
	_, _, _, err = m.AssignAndMap(6)
	require.ErrorIs(t, err, ErrExhausted)
	m.availableTxQueue = saved

	require.Equal(t, []int{7, 8, 9, 10, 11, 12, 13}, m.availableSoprio)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, m.availableTC)
}

func TestFreeReinsertsAtHead(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)

	s1, t1, q1, err := m.AssignAndMap(6)
	require.NoError(t, err)
	_, _, _, err = m.AssignAndMap(6)
	require.NoError(t, err)

	require.NoError(t, m.UnmapAndFree(s1, t1, q1))

	// The freed triple is first in line again.
	s3, t3, q3, err := m.AssignAndMap(6)
	require.NoError(t, err)
	require.Equal(t, s1, s3)
	require.Equal(t, t1, t3)
	require.Equal(t, q1, q3)
}

func TestFreeRejectsUnallocated(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)

	// Nothing allocated at all: releasing would exceed the pool.
	require.ErrorIs(t, m.UnmapAndFree(7, 1, 1), ErrInvariantViolation)

	_, _, _, err = m.AssignAndMap(6)
	require.NoError(t, err)

	// Best effort resources are not releasable.
	require.ErrorIs(t, m.UnmapAndFree(0, 1, 1), ErrNotAllocated)
	require.ErrorIs(t, m.UnmapAndFree(7, 0, 1), ErrNotAllocated)
	// Values still sitting in the free lists are not releasable either.
	require.ErrorIs(t, m.UnmapAndFree(8, 2, 2), ErrNotAllocated)
}

func TestPoolConservation(t *testing.T) {
	m, err := New(4)
	require.NoError(t, err)

	type triple struct{ s, tc, q int }
	var allocated []triple
	for {
		s, tc, q, err := m.AssignAndMap(5)
		if err != nil {
			require.ErrorIs(t, err, ErrExhausted)
			break
		}
		allocated = append(allocated, triple{s, tc, q})
	}
	require.Len(t, allocated, 3)

	for _, a := range allocated {
		require.NoError(t, m.UnmapAndFree(a.s, a.tc, a.q))
	}
	ns, nt, nq := m.FreeCounts()
	require.Equal(t, 3, ns)
	require.Equal(t, 3, nt)
	require.Equal(t, 3, nq)
}

func TestSoprioToTC(t *testing.T) {
	m, err := New(8)
	require.NoError(t, err)

	table := m.SoprioToTC()
	require.Len(t, table, SoprioTableSize)
	want := []int{0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 0, 0}
	require.Equal(t, want, table)
}
