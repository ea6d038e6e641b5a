// Package metrics exports dbpool statistics to Prometheus.
//
// # Overview
//
// The package provides:
//   - PoolCollector: a prometheus.Collector reading live occupancy and the
//     lifetime counters of one or more pools at scrape time
//   - CheckoutObserver: a pool.Observer recording checkout durations by
//     outcome
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	observer := metrics.NewCheckoutObserver(reg)
//
//	w, err := pool.New(ctx, factory, user, cfg, pool.WithObserver(observer))
//	...
//	reg.MustRegister(metrics.NewPoolCollector(w))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Scraping
//
// A scrape never calls Wrapper.Statistics. Statistics restarts the
// per-second window and consumes the check-out times, so the collector
// reads Counts and Occupancy instead and leaves the report to its callers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/dbpool/pkg/pool"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

const namespace = "dbpool"

// Source is a pool the collector can read. *pool.Wrapper satisfies it.
type Source interface {
	Name() string
	Counts() pool.Counts
	Occupancy() pool.Occupancy
}

var (
	connectionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "connections"),
		"Number of physical connections by state",
		[]string{"pool", "state"}, nil,
	)
	waitingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "waiting_requests"),
		"Number of checkouts waiting for a connection",
		[]string{"pool"}, nil,
	)
	createdDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "connections_created_total"),
		"Physical connections opened since the last statistics reset",
		[]string{"pool"}, nil,
	)
	destroyedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "connections_destroyed_total"),
		"Physical connections closed since the last statistics reset",
		[]string{"pool"}, nil,
	)
	requestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "requests_total"),
		"Authenticated checkouts since the last statistics reset",
		[]string{"pool"}, nil,
	)
	delayedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "delayed_requests_total"),
		"Checkouts that waited for a connection since the last statistics reset",
		[]string{"pool"}, nil,
	)
	failedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "failed_requests_total"),
		"Checkouts that failed since the last statistics reset",
		[]string{"pool"}, nil,
	)
)

// PoolCollector exports the state of a set of pools.
type PoolCollector struct {
	sources []Source
}

// NewPoolCollector creates a collector for sources
func NewPoolCollector(sources ...Source) *PoolCollector {
	return &PoolCollector{sources: sources}
}

// Describe implements prometheus.Collector
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- connectionsDesc
	ch <- waitingDesc
	ch <- createdDesc
	ch <- destroyedDesc
	ch <- requestsDesc
	ch <- delayedDesc
	ch <- failedDesc
}

// Collect implements prometheus.Collector
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.sources {
		name := s.Name()
		occ := s.Occupancy()
		counts := s.Counts()

		ch <- prometheus.MustNewConstMetric(connectionsDesc, prometheus.GaugeValue, float64(occ.InUse), name, "in_use")
		ch <- prometheus.MustNewConstMetric(connectionsDesc, prometheus.GaugeValue, float64(occ.Available), name, "available")
		ch <- prometheus.MustNewConstMetric(waitingDesc, prometheus.GaugeValue, float64(occ.Waiting), name)
		// the counters restart at zero on a statistics reset, which
		// Prometheus rate() treats as a counter reset
		ch <- prometheus.MustNewConstMetric(createdDesc, prometheus.CounterValue, float64(counts.Created), name)
		ch <- prometheus.MustNewConstMetric(destroyedDesc, prometheus.CounterValue, float64(counts.Destroyed), name)
		ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(counts.Requests), name)
		ch <- prometheus.MustNewConstMetric(delayedDesc, prometheus.CounterValue, float64(counts.DelayedRequests), name)
		ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.CounterValue, float64(counts.FailedRequests), name)
	}
}

// CheckoutObserver records checkout durations. It implements pool.Observer.
type CheckoutObserver struct {
	duration *prometheus.HistogramVec
}

// NewCheckoutObserver registers the checkout histogram with reg.
//
// Labels: pool, outcome ("success" or the error category such as
// "timeout" or "connection")
func NewCheckoutObserver(reg prometheus.Registerer) *CheckoutObserver {
	return &CheckoutObserver{
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "checkout_duration_seconds",
				Help:      "Time taken to check a connection out of the pool",
				Buckets: []float64{
					0.0001, // 100μs - idle connection handed out
					0.001,  // 1ms
					0.01,   // 10ms - new physical connection
					0.1,    // 100ms
					1,      // 1s - waiting on an exhausted pool
					10,     // 10s
					30,     // 30s - default maximum check-out time
				},
			},
			[]string{"pool", "outcome"},
		),
	}
}

// ObserveCheckout implements pool.Observer
func (o *CheckoutObserver) ObserveCheckout(poolName string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(poolerrors.GetType(err))
	}
	o.duration.WithLabelValues(poolName, outcome).Observe(elapsed.Seconds())
}
