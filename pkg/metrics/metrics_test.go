package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/dbpool/pkg/pool"
	"github.com/ajitpratap0/dbpool/pkg/poolerrors"
)

type stubSource struct {
	name      string
	counts    pool.Counts
	occupancy pool.Occupancy
}

func (s stubSource) Name() string              { return s.name }
func (s stubSource) Counts() pool.Counts       { return s.counts }
func (s stubSource) Occupancy() pool.Occupancy { return s.occupancy }

func TestPoolCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewPoolCollector(stubSource{
		name:      "orders",
		counts:    pool.Counts{Created: 5, Destroyed: 2, Requests: 40, DelayedRequests: 3, FailedRequests: 1},
		occupancy: pool.Occupancy{Size: 3, InUse: 2, Available: 1, Waiting: 4},
	}))

	expected := `
# HELP dbpool_connections Number of physical connections by state
# TYPE dbpool_connections gauge
dbpool_connections{pool="orders",state="available"} 1
dbpool_connections{pool="orders",state="in_use"} 2
# HELP dbpool_connections_created_total Physical connections opened since the last statistics reset
# TYPE dbpool_connections_created_total counter
dbpool_connections_created_total{pool="orders"} 5
# HELP dbpool_connections_destroyed_total Physical connections closed since the last statistics reset
# TYPE dbpool_connections_destroyed_total counter
dbpool_connections_destroyed_total{pool="orders"} 2
# HELP dbpool_delayed_requests_total Checkouts that waited for a connection since the last statistics reset
# TYPE dbpool_delayed_requests_total counter
dbpool_delayed_requests_total{pool="orders"} 3
# HELP dbpool_failed_requests_total Checkouts that failed since the last statistics reset
# TYPE dbpool_failed_requests_total counter
dbpool_failed_requests_total{pool="orders"} 1
# HELP dbpool_requests_total Authenticated checkouts since the last statistics reset
# TYPE dbpool_requests_total counter
dbpool_requests_total{pool="orders"} 40
# HELP dbpool_waiting_requests Number of checkouts waiting for a connection
# TYPE dbpool_waiting_requests gauge
dbpool_waiting_requests{pool="orders"} 4
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestPoolCollectorMultiplePools(t *testing.T) {
	c := NewPoolCollector(stubSource{name: "a"}, stubSource{name: "b"})
	// eight series per pool
	assert.Equal(t, 16, testutil.CollectAndCount(c))
}

func TestCheckoutObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewCheckoutObserver(reg)

	o.ObserveCheckout("orders", 2*time.Millisecond, nil)
	o.ObserveCheckout("orders", time.Millisecond, nil)
	o.ObserveCheckout("orders", 30*time.Second, poolerrors.New(poolerrors.ErrorTypeTimeout, "timed out waiting for a connection"))
	o.ObserveCheckout("orders", time.Millisecond, errors.New("plain"))

	assert.Equal(t, 3, testutil.CollectAndCount(o.duration))

	count, err := testutil.GatherAndCount(reg, "dbpool_checkout_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)

	outcomes := map[string]uint64{}
	for _, m := range families[0].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "outcome" {
				outcomes[l.GetValue()] = m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, map[string]uint64{"success": 2, "timeout": 1, "internal": 1}, outcomes)
}
