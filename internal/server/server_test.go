package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/dbpool/pkg/pool"
)

type stubPool struct {
	name      string
	since     []int64
	resets    int
	checkOut  bool
	snapshots bool
}

func (p *stubPool) Name() string { return p.name }
func (p *stubPool) Statistics(since int64) pool.Statistics {
	p.since = append(p.since, since)
	return pool.Statistics{Username: "admin", Requests: 7}
}
func (p *stubPool) ResetStatistics()                          { p.resets++ }
func (p *stubPool) SetCollectCheckOutTimes(enabled bool)       { p.checkOut = enabled }
func (p *stubPool) SetCollectSnapshotStatistics(enabled bool) { p.snapshots = enabled }
func (p *stubPool) CollectCheckOutTimes() bool                 { return p.checkOut }
func (p *stubPool) CollectSnapshotStatistics() bool            { return p.snapshots }

func newTestServer(t *testing.T, pools ...Pool) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "dbpool_test_total", Help: "test"}))

	srv := httptest.NewServer(NewHandler(reg, zaptest.NewLogger(t), pools...).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestGetStatistics(t *testing.T) {
	p := &stubPool{name: "orders"}
	srv := newTestServer(t, p)

	resp, err := http.Get(srv.URL + "/pools/orders/stats?since=1500")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats pool.Statistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(7), stats.Requests)
	assert.Equal(t, "admin", stats.Username)

	resp2, err := http.Get(srv.URL + "/pools/orders/stats")
	require.NoError(t, err)
	resp2.Body.Close()

	assert.Equal(t, []int64{1500, -1}, p.since)
}

func TestGetStatisticsErrors(t *testing.T) {
	srv := newTestServer(t, &stubPool{name: "orders"})

	resp, err := http.Get(srv.URL + "/pools/orders/stats?since=yesterday")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/pools/billing/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "billing")
}

func TestResetAndCollection(t *testing.T) {
	p := &stubPool{name: "orders"}
	srv := newTestServer(t, p)

	resp, err := http.Post(srv.URL+"/pools/orders/stats/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, p.resets)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/pools/orders/collect", strings.NewReader(`{"snapshots": true}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body CollectionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, CollectionResponse{Snapshots: true}, body)
	assert.True(t, p.snapshots)
	assert.False(t, p.checkOut)
}

func TestListPoolsHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &stubPool{name: "orders"}, &stubPool{name: "billing"})

	resp, err := http.Get(srv.URL + "/pools")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	resp.Body.Close()
	assert.Equal(t, []string{"billing", "orders"}, names)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "dbpool_test_total")
}
