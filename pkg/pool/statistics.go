package pool

import "time"

// Statistics is a report assembled by Wrapper.Statistics.
//
// Created, Destroyed, Requests, DelayedRequests and FailedRequests count
// since the last reset. A delayed request is a checkout that found the pool
// exhausted and had to wait. The per-second rates cover the window since the previous
// Statistics call, which that call then restarts. The check-out times are
// in microseconds and are consumed by the call that reports them.
type Statistics struct {
	Username     string    `json:"username"`
	Timestamp    time.Time `json:"timestamp"`
	ResetTime    time.Time `json:"reset_time"`
	CreationTime time.Time `json:"creation_time"`

	Size      int `json:"size"`
	InUse     int `json:"in_use"`
	Available int `json:"available"`
	Waiting   int `json:"waiting"`

	Created                  int64   `json:"created"`
	Destroyed                int64   `json:"destroyed"`
	Requests                 int64   `json:"requests"`
	RequestsPerSecond        float64 `json:"requests_per_second"`
	DelayedRequests          int64   `json:"delayed_requests"`
	DelayedRequestsPerSecond float64 `json:"delayed_requests_per_second"`
	FailedRequests           int64   `json:"failed_requests"`
	FailedRequestsPerSecond  float64 `json:"failed_requests_per_second"`

	CheckOutTimeSamples int   `json:"check_out_time_samples"`
	AverageTime         int64 `json:"average_time_us"`
	MinimumTime         int64 `json:"minimum_time_us"`
	MaximumTime         int64 `json:"maximum_time_us"`

	Snapshot []PoolState `json:"snapshot,omitempty"`
}

// Counts is a non-destructive read of the lifetime counters.
type Counts struct {
	Created         int64
	Destroyed       int64
	Requests        int64
	DelayedRequests int64
	FailedRequests  int64
}
