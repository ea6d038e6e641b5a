package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRingRecycle(t *testing.T) {
	r := newSnapshotRing(3)
	assert.Empty(t, r.since(0))

	for ts := int64(1); ts <= 5; ts++ {
		r.record(ts, int(ts), 0, 0)
	}

	states := r.since(0)
	require.Len(t, states, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{states[0].Timestamp, states[1].Timestamp, states[2].Timestamp})
	assert.Equal(t, 3, r.len())
}

func TestSnapshotRingSince(t *testing.T) {
	r := newSnapshotRing(10)
	r.record(100, 4, 1, 0)
	r.record(200, 4, 2, 0)
	r.record(300, 4, 4, 3)

	states := r.since(200)
	require.Len(t, states, 2)
	assert.Equal(t, PoolState{Timestamp: 200, Size: 4, InUse: 2}, states[0])
	assert.Equal(t, PoolState{Timestamp: 300, Size: 4, InUse: 4, Waiting: 3}, states[1])

	assert.Empty(t, r.since(301))
}

func TestSnapshotRingReturnsCopies(t *testing.T) {
	r := newSnapshotRing(2)
	r.record(1, 1, 1, 1)

	states := r.since(0)
	states[0].Size = 99
	assert.Equal(t, 1, r.since(0)[0].Size)
}
