package pool

import "time"

// PoolState is one occupancy sample taken by the snapshot sampler.
// Timestamp is in Unix milliseconds.
type PoolState struct {
	Timestamp int64 `json:"timestamp"`
	Size      int   `json:"size"`
	InUse     int   `json:"in_use"`
	Waiting   int   `json:"waiting"`
}

// Time returns the sample time.
func (s PoolState) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

func (s *PoolState) set(timestamp int64, size, inUse, waiting int) {
	*s = PoolState{Timestamp: timestamp, Size: size, InUse: inUse, Waiting: waiting}
}
