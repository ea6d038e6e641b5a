package pool

// snapshotRing is a fixed set of PoolState slots recycled oldest first.
// It is not safe for concurrent use; Counter guards it with snapshotMu.
type snapshotRing struct {
	slots  []PoolState
	head   int
	filled int
}

func newSnapshotRing(size int) *snapshotRing {
	return &snapshotRing{slots: make([]PoolState, size)}
}

// record overwrites the oldest slot and makes it the newest.
func (r *snapshotRing) record(timestamp int64, size, inUse, waiting int) {
	if r.filled < len(r.slots) {
		r.slots[(r.head+r.filled)%len(r.slots)].set(timestamp, size, inUse, waiting)
		r.filled++
		return
	}
	r.slots[r.head].set(timestamp, size, inUse, waiting)
	r.head = (r.head + 1) % len(r.slots)
}

// since copies the samples taken at or after timestamp, oldest first.
func (r *snapshotRing) since(timestamp int64) []PoolState {
	out := make([]PoolState, 0, r.filled)
	for i := 0; i < r.filled; i++ {
		s := r.slots[(r.head+i)%len(r.slots)]
		if s.Timestamp >= timestamp {
			out = append(out, s)
		}
	}
	return out
}

func (r *snapshotRing) len() int {
	return r.filled
}
